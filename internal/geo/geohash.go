// Package geo provides the locality-preserving encoding and radius math used
// to match medicine requests with nearby pharmacies. Coordinates are encoded
// as base-32 geohashes; a radius query is answered with a small set of string
// ranges that cover the disc. The ranges over-approximate the disc, so callers
// must always post-filter candidates with DistanceKm.
package geo

import (
	"math"
	"strings"
)

const (
	base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

	// Precision of a full geocode. 10 characters resolve to well under a
	// meter of cell height, comfortably finer than the 150m the matching
	// radius needs.
	EncodePrecision = 10

	// DefaultRadiusKm is the broadcast radius for pharmacy subscriptions.
	DefaultRadiusKm = 2.0

	bitsPerChar          = 5
	maximumBitsPrecision = 22 * bitsPerChar

	earthMeridionalCircumference = 40007860.0
	earthEquatorialRadiusMeters  = 6378137.0
	metersPerDegreeLatitude      = 110574.0
	earthEccentricitySquared     = 0.00669447819799

	epsilon = 1e-12
)

// Bounds is a half-open geocode range [Start, End). A geocode g is inside the
// range when Start <= g < End under plain byte-wise string comparison.
type Bounds struct {
	Start string
	End   string
}

// IsValidLocation reports whether lat/lng form usable WGS84 coordinates.
func IsValidLocation(lat, lng float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lng) &&
		lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Encode returns the geocode of (lat, lng) at EncodePrecision characters.
// Encoding is deterministic; nearby points share long common prefixes.
func Encode(lat, lng float64) string {
	return encode(lat, lng, EncodePrecision)
}

func encode(lat, lng float64, precision int) string {
	latMin, latMax := -90.0, 90.0
	lngMin, lngMax := -180.0, 180.0

	var sb strings.Builder
	sb.Grow(precision)
	even := true
	ch := 0
	bit := 0
	for sb.Len() < precision {
		if even {
			mid := (lngMin + lngMax) / 2
			if lng >= mid {
				ch = ch<<1 | 1
				lngMin = mid
			} else {
				ch <<= 1
				lngMax = mid
			}
		} else {
			mid := (latMin + latMax) / 2
			if lat >= mid {
				ch = ch<<1 | 1
				latMin = mid
			} else {
				ch <<= 1
				latMax = mid
			}
		}
		even = !even
		bit++
		if bit == bitsPerChar {
			sb.WriteByte(base32[ch])
			bit = 0
			ch = 0
		}
	}
	return sb.String()
}

// DistanceKm returns the great-circle distance between two points in
// kilometers. Symmetric; zero for identical points.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(degreesToRadians(lat1))*math.Cos(degreesToRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// QueryBounds returns geocode ranges whose union contains every point within
// radiusMeters of the center. The union is a superset of the disc: prefix
// locality breaks at cell boundaries, so up to nine ranges are produced and
// candidates must still be checked with DistanceKm.
func QueryBounds(lat, lng, radiusMeters float64) []Bounds {
	queryBits := boundingBoxBits(lat, radiusMeters)
	if queryBits < 1 {
		queryBits = 1
	}
	precision := (queryBits + bitsPerChar - 1) / bitsPerChar

	out := make([]Bounds, 0, 9)
	for _, c := range boundingBoxCoordinates(lat, lng, radiusMeters) {
		b := geohashQuery(encode(c[0], c[1], precision), queryBits)
		dup := false
		for _, seen := range out {
			if seen == b {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, b)
		}
	}
	return out
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func wrapLongitude(lng float64) float64 {
	if lng <= 180 && lng >= -180 {
		return lng
	}
	adjusted := lng + 180
	if adjusted > 0 {
		return math.Mod(adjusted, 360) - 180
	}
	return 180 - math.Mod(-adjusted, 360)
}

// metersToLongitudeDegrees converts a ground distance to longitude degrees at
// the given latitude; longitude lines converge toward the poles.
func metersToLongitudeDegrees(distance, latitude float64) float64 {
	radians := degreesToRadians(latitude)
	num := math.Cos(radians) * earthEquatorialRadiusMeters * math.Pi / 180
	denom := 1 / math.Sqrt(1-earthEccentricitySquared*math.Sin(radians)*math.Sin(radians))
	deltaDeg := num * denom
	if deltaDeg < epsilon {
		if distance > 0 {
			return 360
		}
		return 0
	}
	return math.Min(360, distance/deltaDeg)
}

func longitudeBitsForResolution(resolution, latitude float64) float64 {
	degs := metersToLongitudeDegrees(resolution, latitude)
	if math.Abs(degs) > 0.000001 {
		return math.Max(1, math.Log2(360/degs))
	}
	return 1
}

func latitudeBitsForResolution(resolution float64) float64 {
	return math.Min(math.Log2(earthMeridionalCircumference/2/resolution), maximumBitsPrecision)
}

// boundingBoxBits picks the number of leading geohash bits that still keep a
// cell at least as large as the search box, at the worst latitude the box
// touches.
func boundingBoxBits(lat, size float64) int {
	latDeltaDegrees := size / metersPerDegreeLatitude
	latitudeNorth := math.Min(90, lat+latDeltaDegrees)
	latitudeSouth := math.Max(-90, lat-latDeltaDegrees)
	bitsLat := math.Floor(latitudeBitsForResolution(size)) * 2
	bitsLngNorth := math.Floor(longitudeBitsForResolution(size, latitudeNorth))*2 - 1
	bitsLngSouth := math.Floor(longitudeBitsForResolution(size, latitudeSouth))*2 - 1
	return int(math.Min(math.Min(bitsLat, bitsLngNorth), math.Min(bitsLngSouth, maximumBitsPrecision)))
}

// boundingBoxCoordinates returns the center plus the eight surrounding points
// of the bounding box of the disc. One range query per point covers cell
// boundaries the center's own prefix misses.
func boundingBoxCoordinates(lat, lng, radius float64) [9][2]float64 {
	latDegrees := radius / metersPerDegreeLatitude
	latitudeNorth := math.Min(90, lat+latDegrees)
	latitudeSouth := math.Max(-90, lat-latDegrees)
	lngDegsNorth := metersToLongitudeDegrees(radius, latitudeNorth)
	lngDegsSouth := metersToLongitudeDegrees(radius, latitudeSouth)
	lngDegs := math.Max(lngDegsNorth, lngDegsSouth)
	return [9][2]float64{
		{lat, lng},
		{lat, wrapLongitude(lng - lngDegs)},
		{lat, wrapLongitude(lng + lngDegs)},
		{latitudeNorth, lng},
		{latitudeNorth, wrapLongitude(lng - lngDegs)},
		{latitudeNorth, wrapLongitude(lng + lngDegs)},
		{latitudeSouth, lng},
		{latitudeSouth, wrapLongitude(lng - lngDegs)},
		{latitudeSouth, wrapLongitude(lng + lngDegs)},
	}
}

// geohashQuery widens a geohash to the range of all geocodes sharing its
// leading bits. '~' sorts above every base-32 digit, which makes it a safe
// upper sentinel for string range scans.
func geohashQuery(geohash string, bits int) Bounds {
	precision := (bits + bitsPerChar - 1) / bitsPerChar
	if len(geohash) < precision {
		return Bounds{Start: geohash, End: geohash + "~"}
	}
	geohash = geohash[:precision]
	base := geohash[:len(geohash)-1]
	lastValue := strings.IndexByte(base32, geohash[len(geohash)-1])
	significantBits := bits - len(base)*bitsPerChar
	unusedBits := bitsPerChar - significantBits
	startValue := (lastValue >> unusedBits) << unusedBits
	endValue := startValue + (1 << unusedBits)
	if endValue > 31 {
		return Bounds{Start: base + string(base32[startValue]), End: base + "~"}
	}
	return Bounds{Start: base + string(base32[startValue]), End: base + string(base32[endValue])}
}
