package engine

import (
	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/domain/model"
	"github.com/Victor-armando18/offer-engine/internal/interfaces"
)

type (
	Offer             = domain.Offer
	Conditions        = domain.Conditions
	Scope             = domain.Scope
	PercentDiscount   = domain.PercentDiscount
	FlatDiscount      = domain.FlatDiscount
	BuyXGetY          = domain.BuyXGetY
	FreeItem          = domain.FreeItem
	Experiment        = domain.Experiment
	Variant           = domain.Variant
	User              = domain.User
	EvaluationContext = domain.EvaluationContext
	Options           = domain.Options
	EvaluationResult  = domain.EvaluationResult
	ApplicationPlan   = domain.ApplicationPlan
	PotentialOffer    = domain.PotentialOffer
	RejectedOffer     = domain.RejectedOffer

	Cart             = model.ExternalCart
	CartItem         = model.ExternalCartItem
	ProductSnapshot  = model.ProductSnapshot
	VariantSnapshot  = model.VariantSnapshot
	OfferCatalog     = interfaces.OfferCatalog
	ExperimentSource = interfaces.ExperimentSource
	TelemetrySink    = interfaces.TelemetrySink
)
