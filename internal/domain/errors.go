package domain

import "fmt"

// EngineError is the error type surfaced by the offer engine. Code groups the
// failure by concern so callers can branch with errors.Is against the
// sentinels below; Cause carries the underlying failure when there is one.
type EngineError struct {
	Code    int
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("engine error %d: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// Is matches any EngineError carrying the same code.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	return ok && t.Code == e.Code
}

// Wrap returns a copy of base with cause attached.
func Wrap(base *EngineError, cause error) *EngineError {
	return &EngineError{Code: base.Code, Message: base.Message, Cause: cause}
}

// Wrapf returns a copy of base with a formatted detail appended to the message.
func Wrapf(base *EngineError, format string, args ...any) *EngineError {
	return &EngineError{Code: base.Code, Message: base.Message + ": " + fmt.Sprintf(format, args...)}
}

// ---- Catalog / fetch errors (1000-1099) ----

var (
	ErrCatalogFetch     = &EngineError{Code: 1001, Message: "offer catalog fetch failed"}
	ErrExperimentFetch  = &EngineError{Code: 1002, Message: "experiment fetch failed"}
	ErrCatalogDecode    = &EngineError{Code: 1003, Message: "offer catalog could not be decoded"}
	ErrCatalogNotLoaded = &EngineError{Code: 1004, Message: "offer catalog has not been loaded yet"}
)

// ---- Evaluation input errors (1100-1199) ----

var (
	ErrInvalidOffer        = &EngineError{Code: 1101, Message: "invalid offer definition"}
	ErrInvalidCart         = &EngineError{Code: 1102, Message: "invalid cart"}
	ErrInvalidExperiment   = &EngineError{Code: 1103, Message: "invalid experiment definition"}
	ErrRuleExecutionFailed = &EngineError{Code: 1104, Message: "rule execution failed"}
	ErrPatchInvalid        = &EngineError{Code: 1105, Message: "cart patch could not be applied"}
)

// ---- Telemetry errors (1200-1299) ----

var (
	ErrTelemetryWrite     = &EngineError{Code: 1201, Message: "telemetry write failed"}
	ErrTelemetryQueueFull = &EngineError{Code: 1202, Message: "telemetry queue is full"}
	ErrTelemetryClosed    = &EngineError{Code: 1203, Message: "telemetry logger is closed"}
)

// ---- Config errors (1300-1399) ----

var (
	ErrConfigInvalid = &EngineError{Code: 1301, Message: "invalid configuration"}
)
