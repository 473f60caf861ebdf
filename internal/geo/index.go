// Package geo resolves city identifiers to coordinates and computes
// great-circle distances between them.
package geo

import (
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate lies within the WGS84 ranges.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Index is an immutable city lookup table. It is safe for concurrent use.
type Index struct {
	cities map[string]Coordinate
	names  []string
}

var defaultIndex = NewIndex(cityCoordinates)

// Default returns the index built from the built-in city table.
func Default() *Index {
	return defaultIndex
}

// NewIndex copies cities into a new Index. Keys are stored in Unicode NFC so
// precomposed and decomposed spellings of the same name resolve alike;
// entries with out-of-range coordinates are dropped.
func NewIndex(cities map[string]Coordinate) *Index {
	ix := &Index{
		cities: make(map[string]Coordinate, len(cities)),
		names:  make([]string, 0, len(cities)),
	}
	for name, c := range cities {
		if !c.Valid() {
			continue
		}
		key := Normalize(name)
		if _, dup := ix.cities[key]; dup {
			continue
		}
		ix.cities[key] = c
		ix.names = append(ix.names, key)
	}
	sort.Strings(ix.names)
	return ix
}

// Normalize returns the canonical form of a city identifier. Case and
// whitespace are preserved; matching stays exact.
func Normalize(city string) string {
	return norm.NFC.String(city)
}

// Lookup returns the coordinates for city.
func (ix *Index) Lookup(city string) (Coordinate, bool) {
	c, ok := ix.cities[Normalize(city)]
	return c, ok
}

// Cities returns the sorted list of known identifiers.
func (ix *Index) Cities() []string {
	out := make([]string, len(ix.names))
	copy(out, ix.names)
	return out
}

// Len returns the number of known cities.
func (ix *Index) Len() int {
	return len(ix.names)
}
