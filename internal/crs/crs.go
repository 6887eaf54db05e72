// Package crs converts geodetic coordinates to the projected plane used by
// Korean cadastral data. The only supported target is EPSG:5186 (Korea 2000 /
// Central Belt 2010), a Transverse Mercator projection on the GRS80
// ellipsoid; sources are the geodetic frames the geocoding service can
// return, EPSG:4326 and EPSG:4019.
package crs

import (
	"math"

	"github.com/rotisserie/eris"
)

// Pair names the source and target CRS by EPSG code. It is fixed once per
// deployment from configuration, not per request.
type Pair struct {
	Source int
	Target int
}

type ellipsoid struct {
	a    float64 // semi-major axis (m)
	invF float64 // inverse flattening
}

// Geodetic source frames. 4019 is the bare GRS80 geodetic CRS; the two
// differ from each other by under a tenth of a millimetre on the ground.
var sourceEllipsoids = map[int]ellipsoid{
	4326: {a: 6378137.0, invF: 298.257223563},
	4019: {a: 6378137.0, invF: 298.257222101},
}

// EPSG:5186 projection parameters.
const (
	epsg5186     = 5186
	lat0Deg      = 38.0
	lon0Deg      = 127.0
	scaleFactor  = 1.0
	falseEasting = 200000.0
	falseNorth   = 600000.0
)

// Transformer maps (latitude, longitude) in the source CRS to projected
// (easting, northing) metres. It is stateless after construction and safe
// for concurrent use.
type Transformer struct {
	pair Pair

	a   float64
	e2  float64 // first eccentricity squared
	ep2 float64 // second eccentricity squared
	m0  float64 // meridian arc length at lat0
}

// NewTransformer builds a Transformer for the given pair. Unsupported EPSG
// codes are a configuration error.
func NewTransformer(p Pair) (*Transformer, error) {
	ell, ok := sourceEllipsoids[p.Source]
	if !ok {
		return nil, eris.Errorf("crs: unsupported source EPSG:%d (want 4326 or 4019)", p.Source)
	}
	if p.Target != epsg5186 {
		return nil, eris.Errorf("crs: unsupported target EPSG:%d (want 5186)", p.Target)
	}

	f := 1.0 / ell.invF
	e2 := f * (2 - f)
	t := &Transformer{
		pair: p,
		a:    ell.a,
		e2:   e2,
		ep2:  e2 / (1 - e2),
	}
	t.m0 = t.meridianArc(lat0Deg * math.Pi / 180)
	return t, nil
}

// Pair returns the configured CRS pair.
func (t *Transformer) Pair() Pair {
	return t.pair
}

// Transform projects a geodetic coordinate to (easting, northing) metres.
// It is total and deterministic over valid input; |lat| > 90 or |lng| > 180
// violates the caller contract and propagates NaN rather than erroring.
func (t *Transformer) Transform(lat, lng float64) (easting, northing float64) {
	phi := lat * math.Pi / 180
	lam := lng * math.Pi / 180
	lam0 := lon0Deg * math.Pi / 180

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	tanPhi := math.Tan(phi)

	nu := t.a / math.Sqrt(1-t.e2*sinPhi*sinPhi) // prime vertical radius
	tt := tanPhi * tanPhi
	cc := t.ep2 * cosPhi * cosPhi
	aa := (lam - lam0) * cosPhi

	aa2 := aa * aa
	aa3 := aa2 * aa

	easting = falseEasting + scaleFactor*nu*(aa+
		(1-tt+cc)*aa3/6+
		(5-18*tt+tt*tt+72*cc-58*t.ep2)*aa3*aa2/120)

	m := t.meridianArc(phi)
	northing = falseNorth + scaleFactor*(m-t.m0+nu*tanPhi*(aa2/2+
		(5-tt+9*cc+4*cc*cc)*aa2*aa2/24+
		(61-58*tt+tt*tt+600*cc-330*t.ep2)*aa3*aa3/720))

	return easting, northing
}

// meridianArc returns the ellipsoidal meridian arc length from the equator
// to latitude phi (radians).
func (t *Transformer) meridianArc(phi float64) float64 {
	e2 := t.e2
	e4 := e2 * e2
	e6 := e4 * e2

	return t.a * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}
