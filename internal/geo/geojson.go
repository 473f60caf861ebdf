package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Point converts c to a go-geom point in EPSG:4326 (lng, lat order).
func (c Coordinate) Point() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{c.Lng, c.Lat}).SetSRID(4326)
}

// FeatureCollection returns every city in the index as a GeoJSON point
// feature with a "name" property, sorted by name.
func (ix *Index) FeatureCollection() *geojson.FeatureCollection {
	bounds := geom.NewBounds(geom.XY)
	features := make([]*geojson.Feature, 0, len(ix.names))
	for _, name := range ix.names {
		pt := ix.cities[name].Point()
		bounds.Extend(pt)
		features = append(features, &geojson.Feature{
			ID:       name,
			Geometry: pt,
			Properties: map[string]any{
				"name": name,
			},
		})
	}
	fc := &geojson.FeatureCollection{Features: features}
	if len(features) > 0 {
		fc.BBox = bounds
	}
	return fc
}

// MarshalGeoJSON encodes the index as a GeoJSON FeatureCollection.
func (ix *Index) MarshalGeoJSON() ([]byte, error) {
	b, err := ix.FeatureCollection().MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "geo: marshal geojson")
	}
	return b, nil
}
