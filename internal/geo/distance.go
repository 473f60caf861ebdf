package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// Side names which endpoint of a route failed to resolve.
type Side string

const (
	SideOrigin      Side = "origin"
	SideDestination Side = "destination"
)

// UnknownCityError is returned when a city identifier is not in the index.
type UnknownCityError struct {
	Side Side
	City string
}

func (e *UnknownCityError) Error() string {
	return fmt.Sprintf("Unknown %s city: %s", e.Side, e.City)
}

// DistanceResult is a resolved route with its distance rounded to whole km.
type DistanceResult struct {
	DistanceKm        int        `json:"distance_km"`
	OriginCoords      Coordinate `json:"origin_coords"`
	DestinationCoords Coordinate `json:"destination_coords"`
}

// Haversine returns the great-circle distance in kilometres between a and b.
// The result is not rounded.
func Haversine(a, b Coordinate) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// Distance resolves both cities and returns the rounded great-circle
// distance between them. The origin is checked first.
func (ix *Index) Distance(origin, destination string) (*DistanceResult, error) {
	from, ok := ix.Lookup(origin)
	if !ok {
		return nil, &UnknownCityError{Side: SideOrigin, City: origin}
	}
	to, ok := ix.Lookup(destination)
	if !ok {
		return nil, &UnknownCityError{Side: SideDestination, City: destination}
	}

	return &DistanceResult{
		DistanceKm:        int(math.Round(Haversine(from, to))),
		OriginCoords:      from,
		DestinationCoords: to,
	}, nil
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
