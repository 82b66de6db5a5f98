package geo

import "math"

// earthRadius is the mean Earth radius in meters, matching the haversine
// formulation used by the routing stack.
const earthRadius = 6371000

// Distance calculates the great-circle distance between two points in meters
// using the Haversine formula.
func Distance(a, b Point) float64 {
	if a.Lat == b.Lat && a.Lng == b.Lng {
		return 0
	}

	lat1 := a.Lat * math.Pi / 180
	lon1 := a.Lng * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	lon2 := b.Lng * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadius * c
}

// RingCentroid returns the center of the bounding box of a polygon ring,
// not a true area centroid.
func RingCentroid(ring []Point) Point {
	bounds := NewBounds()
	for _, p := range ring {
		bounds = bounds.Extend(p)
	}
	return bounds.Center()
}

// PointToSegment calculates the minimum distance in meters from a point to
// the great-circle segment between a and b, using a cross-track
// approximation suitable for short distances.
func PointToSegment(p, a, b Point) float64 {
	if a.Lat == b.Lat && a.Lng == b.Lng {
		return Distance(p, a)
	}

	distanceToStart := Distance(p, a)
	distanceToEnd := Distance(p, b)
	segmentLength := Distance(a, b)

	if segmentLength < 1 {
		return math.Min(distanceToStart, distanceToEnd)
	}

	lat1 := a.Lat * math.Pi / 180
	lon1 := a.Lng * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	lon2 := b.Lng * math.Pi / 180
	lat3 := p.Lat * math.Pi / 180
	lon3 := p.Lng * math.Pi / 180

	// Angular distance from segment start to the point
	d13 := distanceToStart / earthRadius

	// Bearing from start to end
	y := math.Sin(lon2-lon1) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(lon2-lon1)
	bearingToEnd := math.Atan2(y, x)

	// Bearing from start to the point
	y = math.Sin(lon3-lon1) * math.Cos(lat3)
	x = math.Cos(lat1)*math.Sin(lat3) - math.Sin(lat1)*math.Cos(lat3)*math.Cos(lon3-lon1)
	bearingToPoint := math.Atan2(y, x)

	dxt := math.Asin(math.Sin(d13) * math.Sin(bearingToPoint-bearingToEnd))
	crossTrack := math.Abs(dxt) * earthRadius

	// If the projection falls past the segment end, the nearest point is the endpoint
	dat := math.Acos(math.Cos(d13) / math.Cos(dxt))
	alongTrack := dat * earthRadius
	if alongTrack > segmentLength {
		return distanceToEnd
	}

	return crossTrack
}

// PointToPath calculates the minimum distance in meters from a point to a
// coordinate sequence treated as a connected path.
func PointToPath(p Point, path []Point) float64 {
	if len(path) == 0 {
		return math.Inf(1)
	}
	if len(path) == 1 {
		return Distance(p, path[0])
	}

	minDistance := math.Inf(1)
	for i := 0; i < len(path)-1; i++ {
		if d := PointToSegment(p, path[i], path[i+1]); d < minDistance {
			minDistance = d
		}
	}
	return minDistance
}
