// Package geo places the simulation frame on the globe. The local frame is
// metric with +X east, +Y up and -Z north, anchored at a geodetic origin.
package geo

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Stored positions are EPSG:3857 so SQLite, which has no spatial awareness,
// can round-trip them through the WKB Scan/Value pair. Exports to GeoJSON
// are EPSG:4326.

// ErrInvalidOrigin is returned for an origin outside the mercator range.
var ErrInvalidOrigin = errors.New("invalid geodetic origin")

// maxMercatorLat is where EPSG:3857 is clipped.
const maxMercatorLat = 85.05112878

type transform = func(a, b, c float64) (float64, float64, float64)

// Origin anchors local coordinates.
type Origin struct {
	Lon, Lat float64

	x0, y0 float64
	// scale converts ground metres to mercator metres at the origin.
	scale  float64
	toGeo  transform
	toMerc transform
}

// NewOrigin prepares the projection for lon/lat in degrees.
func NewOrigin(lon, lat float64) (*Origin, error) {
	if math.Abs(lat) >= maxMercatorLat || math.Abs(lon) > 180 {
		return nil, ErrInvalidOrigin
	}
	epsg := wgs84.EPSG()
	o := &Origin{
		Lon:    lon,
		Lat:    lat,
		toMerc: epsg.Transform(4326, 3857),
		toGeo:  epsg.Transform(3857, 4326),
		scale:  1 / math.Cos(lat*math.Pi/180),
	}
	o.x0, o.y0, _ = o.toMerc(lon, lat, 0)
	return o, nil
}

// Mercator returns the EPSG:3857 x, y of a local position.
func (o *Origin) Mercator(p mgl32.Vec3) (x, y float64) {
	return o.x0 + float64(p.X())*o.scale, o.y0 - float64(p.Z())*o.scale
}

// LonLat returns the EPSG:4326 longitude and latitude of a local position.
func (o *Origin) LonLat(p mgl32.Vec3) (lon, lat float64) {
	x, y := o.Mercator(p)
	lon, lat, _ = o.toGeo(x, y, 0)
	return lon, lat
}

// Point3857 is the stored form of a local position. Z carries the height.
func (o *Origin) Point3857(p mgl32.Vec3) (geom.Point, error) {
	x, y := o.Mercator(p)
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Z:    float64(p.Y()),
			Type: geom.CoordinatesType(geom.DimXYZ),
		},
	)
}

// Coords3857From4326 creates a GPS point from a longitude and latitude
func Coords3857From4326(longitude, latitude float64) (geom.Point, error) {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	return geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
		},
	)
}
