package core

import "math"

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378.137              // semi-major axis (kilometres)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// Vec3 is an ECEF-style vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// AngleBetweenDegrees returns the angle between a and b in [0, 180].
// A zero-length vector yields 0.
func AngleBetweenDegrees(a, b Vec3) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	cos := a.Dot(b) / (na * nb)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * radToDeg
}

// LookAngles holds azimuth, elevation and range from an observer to a target.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = North, clockwise
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
}

// Observer is a fixed point on the WGS-84 ellipsoid with its ECEF position
// precomputed for repeated look-angle queries.
type Observer struct {
	latRad, lonRad float64
	ecef           Vec3
}

// NewObserver builds an observer from geodetic degrees and a height in
// metres above the ellipsoid.
func NewObserver(latDeg, lonDeg, heightM float64) Observer {
	lat := latDeg * degToRad
	lon := lonDeg * degToRad
	h := heightM / 1000.0

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinLon, cosLon := math.Sin(lon), math.Cos(lon)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Observer{
		latRad: lat,
		lonRad: lon,
		ecef: Vec3{
			X: (n + h) * cosLat * cosLon,
			Y: (n + h) * cosLat * sinLon,
			Z: (n*(1-wgs84E2) + h) * sinLat,
		},
	}
}

// ECEF returns the observer position in kilometres.
func (o Observer) ECEF() Vec3 { return o.ecef }

// LineOfSight returns the vector from the observer to target (ECEF km).
func (o Observer) LineOfSight(target Vec3) Vec3 {
	return target.Sub(o.ecef)
}

// Look computes azimuth, elevation and range to a target given in ECEF
// kilometres, using the South-East-Zenith rotation.
func (o Observer) Look(target Vec3) LookAngles {
	r := o.LineOfSight(target)

	sinLat, cosLat := math.Sin(o.latRad), math.Cos(o.latRad)
	sinLon, cosLon := math.Sin(o.lonRad), math.Cos(o.lonRad)

	south := sinLat*cosLon*r.X + sinLat*sinLon*r.Y - cosLat*r.Z
	east := -sinLon*r.X + cosLon*r.Y
	zenith := cosLat*cosLon*r.X + cosLat*sinLon*r.Y + sinLat*r.Z

	rng := math.Sqrt(south*south + east*east + zenith*zenith)
	if rng == 0 {
		return LookAngles{ElevationDeg: 90}
	}

	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}
	return LookAngles{
		AzimuthDeg:   az * radToDeg,
		ElevationDeg: math.Asin(zenith/rng) * radToDeg,
		RangeKm:      rng,
	}
}
