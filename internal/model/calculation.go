package model

import "time"

// Variant distinguishes explicit requests from ones inferred from free text.
type Variant string

const (
	VariantDirect Variant = "direct"
	VariantSmart  Variant = "smart"
)

// CalculationRequest is an explicit shipment description.
type CalculationRequest struct {
	Origin        string        `json:"origin" validate:"required"`
	Destination   string        `json:"destination" validate:"required"`
	WeightKg      float64       `json:"weight_kg" validate:"gt=0"`
	TransportMode TransportMode `json:"transport_mode,omitempty" validate:"omitempty,oneof=ground air sea"`
}

// SmartRequest describes a shipment in free text. Explicit weight and mode
// take precedence over anything extracted from the query.
type SmartRequest struct {
	Query         string         `json:"query" validate:"required"`
	WeightKg      *float64       `json:"weight_kg,omitempty" validate:"omitempty,gt=0"`
	TransportMode *TransportMode `json:"transport_mode,omitempty" validate:"omitempty,oneof=ground air sea"`
}

// ParseRequest asks for extraction only.
type ParseRequest struct {
	Query string `json:"query" validate:"required"`
}

// RequestEcho repeats the resolved inputs of a direct calculation.
type RequestEcho struct {
	Origin        string        `json:"origin"`
	Destination   string        `json:"destination"`
	WeightKg      float64       `json:"weight_kg"`
	TransportMode TransportMode `json:"transport_mode"`
}

// CalculationResult is both the response body and the cached payload. The
// cached copy never carries CacheHit, ClaudeReasoning or LatencyMs; those are
// stamped per response.
type CalculationResult struct {
	EmissionsKg   float64       `json:"emissions_kg"`
	DistanceKm    int           `json:"distance_km"`
	TransportMode TransportMode `json:"transport_mode"`
	Confidence    float64       `json:"confidence"`
	CalculationID string        `json:"calculation_id"`

	// Direct variant.
	Request *RequestEcho `json:"request,omitempty"`

	// Smart variant.
	ParsedOrigin      string  `json:"parsed_origin,omitempty"`
	ParsedDestination string  `json:"parsed_destination,omitempty"`
	WeightKg          float64 `json:"weight_kg,omitempty"`

	CacheHit        bool   `json:"cache_hit"`
	ClaudeReasoning string `json:"claude_reasoning,omitempty"`
	LatencyMs       int64  `json:"latency_ms"`
}

// Cacheable reports whether a decoded cache payload has the shape of a
// stored result. Anything else is treated as a miss.
func (r *CalculationResult) Cacheable() bool {
	return r != nil &&
		r.CalculationID != "" &&
		r.TransportMode.Valid() &&
		r.DistanceKm >= 0 &&
		r.EmissionsKg >= 0
}

// Extraction is the best-effort structured reading of a free-text query.
type Extraction struct {
	Origin        string         `json:"origin"`
	Destination   string         `json:"destination"`
	WeightKg      *float64       `json:"weight_kg"`
	TransportMode *TransportMode `json:"transport_mode"`
	Confidence    float64        `json:"confidence"`
	Reasoning     string         `json:"reasoning"`
}

// ParseResult is an Extraction plus the time taken to produce it.
type ParseResult struct {
	Extraction
	LatencyMs int64 `json:"latency_ms"`
}

// Complete reports whether both endpoints were extracted.
func (e Extraction) Complete() bool {
	return e.Origin != "" && e.Destination != ""
}

// AuditRecord is one row of the calculation log.
type AuditRecord struct {
	ID            string        `json:"id"`
	Variant       Variant       `json:"variant"`
	Origin        string        `json:"origin"`
	Destination   string        `json:"destination"`
	WeightKg      float64       `json:"weight_kg"`
	TransportMode TransportMode `json:"transport_mode"`
	DistanceKm    int           `json:"distance_km"`
	EmissionsKg   float64       `json:"emissions_kg"`
	LatencyMs     int64         `json:"latency_ms"`
	CreatedAt     time.Time     `json:"created_at"`
}
