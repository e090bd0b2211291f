package conversion

import (
	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/telemetry"
	"github.com/shopspring/decimal"
)

// AssignmentSource yields the assignments a visitor currently holds.
type AssignmentSource interface {
	Assignments(ectx domain.EvaluationContext) []domain.Assignment
}

// Logger is the part of the telemetry logger this use case needs.
type Logger interface {
	LogConversion(cctx telemetry.ConversionContext, conversionType string, value *decimal.Decimal, orderID string, properties map[string]any) int
}

type UseCase struct {
	Assignments AssignmentSource
	Logger      Logger
}

type Request struct {
	Context        domain.EvaluationContext
	ConversionType string
	Value          *decimal.Decimal
	OrderID        string
	Properties     map[string]any
}

// Run records a conversion against every experiment the visitor is in and
// returns how many records were queued. Visitors without an identity or
// without assignments record nothing.
func (u *UseCase) Run(req Request) int {
	visitor, ok := req.Context.Visitor()
	if !ok {
		return 0
	}
	held := u.Assignments.Assignments(req.Context)
	if len(held) == 0 {
		return 0
	}
	return u.Logger.LogConversion(telemetry.ConversionContext{
		Visitor:     visitor,
		Assignments: held,
		Now:         req.Context.Now,
	}, req.ConversionType, req.Value, req.OrderID, req.Properties)
}
