package model

import "time"

// TransportMode identifies how a shipment moves between cities.
type TransportMode string

const (
	TransportGround TransportMode = "ground"
	TransportAir    TransportMode = "air"
	TransportSea    TransportMode = "sea"
)

// DefaultTransportMode is applied when a request omits the mode.
const DefaultTransportMode = TransportGround

// TransportModes lists every supported mode in display order.
var TransportModes = []TransportMode{TransportGround, TransportAir, TransportSea}

// Valid reports whether m is one of the supported modes.
func (m TransportMode) Valid() bool {
	switch m {
	case TransportGround, TransportAir, TransportSea:
		return true
	default:
		return false
	}
}

func (m TransportMode) String() string {
	return string(m)
}

// EmissionFactor is a row of the durable emission factor table.
type EmissionFactor struct {
	TransportMode TransportMode `json:"transport_mode" yaml:"transport_mode"`
	FactorPerKmKg float64       `json:"factor_per_km_kg" yaml:"factor_per_km_kg"`
	UpdatedAt     time.Time     `json:"updated_at" yaml:"-"`
}
