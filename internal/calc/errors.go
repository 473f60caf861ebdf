package calc

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/carbon-cli/internal/geo"
	"github.com/sells-group/carbon-cli/internal/model"
)

// UnknownCitySuggestion accompanies unknown-city errors on extracted routes.
const UnknownCitySuggestion = "The city might not be in our database. Try using a major city name."

var (
	// ErrUnknownTransportMode matches every *UnknownTransportModeError.
	ErrUnknownTransportMode = eris.New("unknown transport mode")

	// ErrExtractionUnavailable is returned by the free-text operations when
	// the engine was built without an extractor.
	ErrExtractionUnavailable = eris.New("calc: route extraction is not configured")
)

// ValidationError lists per-field problems with a request, keyed by the
// field's JSON name.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return "Validation failed"
}

// UnknownCityError means one endpoint of the route is not in the city table.
// Parsed is set when the route came from free-text extraction.
type UnknownCityError struct {
	Side   geo.Side
	City   string
	Parsed *model.Extraction
}

func (e *UnknownCityError) Error() string {
	return fmt.Sprintf("Unknown %s city: %s", e.Side, e.City)
}

// Suggestion returns a hint for the caller, if any.
func (e *UnknownCityError) Suggestion() string {
	if e.Parsed == nil {
		return ""
	}
	return UnknownCitySuggestion
}

// UnknownTransportModeError means the durable factor table has no row for
// the requested mode.
type UnknownTransportModeError struct {
	Mode model.TransportMode
}

func (e *UnknownTransportModeError) Error() string {
	return "Unknown transport mode: " + string(e.Mode)
}

// Is makes errors.Is(err, ErrUnknownTransportMode) hold.
func (e *UnknownTransportModeError) Is(target error) bool {
	return target == ErrUnknownTransportMode
}

// ExtractionIncompleteError means the extractor did not find both
// endpoints. Parsed is the partial guess.
type ExtractionIncompleteError struct {
	Parsed model.Extraction
}

func (e *ExtractionIncompleteError) Error() string {
	return "Could not extract origin and destination from query"
}

// StoreError is a durable-store failure while resolving a factor. It is a
// system fault, not a caller mistake.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return "calc: resolve emission factor: " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsCallerError reports whether err was caused by the request rather than
// by a dependency.
func IsCallerError(err error) bool {
	var (
		verr *ValidationError
		cerr *UnknownCityError
		xerr *ExtractionIncompleteError
	)
	return errors.As(err, &verr) ||
		errors.As(err, &cerr) ||
		errors.As(err, &xerr) ||
		errors.Is(err, ErrUnknownTransportMode)
}
