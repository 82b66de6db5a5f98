// Package routing provides the client for the outdoor directions service,
// an OpenRouteService-compatible API reached through the campus backend
// proxy. Route computation itself is a black box; this package owns the
// request shape and the decoding of the returned geometry and steps.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/twpayne/go-polyline"

	"github.com/usiu-smartnav/wayfinder/internal/lib/geo"
)

// Profile selects the travel profile used for route computation.
type Profile string

const (
	ProfileFoot Profile = "foot-walking"
	ProfileCar  Profile = "driving-car"
)

// ProfileForMode maps the client's travel modes ("foot", "car") to routing
// profiles. Unknown modes fall back to walking.
func ProfileForMode(mode string) Profile {
	if mode == "car" {
		return ProfileCar
	}
	return ProfileFoot
}

// Instruction is one turn-by-turn step of a route. WayPointIndex points
// into the route's coordinate sequence at the step's starting point.
type Instruction struct {
	Text          string  `json:"instruction"`
	Distance      float64 `json:"distance"`
	Duration      float64 `json:"duration"`
	WayPointIndex int     `json:"way_point_index"`
}

// Route is a computed outdoor route: its geometry plus the flattened step
// instructions from every segment, in traversal order.
type Route struct {
	Coordinates  []geo.Point
	Instructions []Instruction
}

// Client provides access to the directions API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new directions client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Directions computes a route from start to end for the given profile.
func (c *Client) Directions(ctx context.Context, start, end geo.Point, profile Profile) (*Route, error) {
	// Directions APIs take [longitude, latitude] pairs
	requestBody := map[string]any{
		"coordinates": [][]float64{
			{start.Lng, start.Lat},
			{end.Lng, end.Lat},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	requestURL := fmt.Sprintf("%s/ors-proxy/?profile=%s", c.baseURL, profile)
	req, err := http.NewRequestWithContext(ctx, "POST", requestURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		return nil, fmt.Errorf("rate limit exceeded")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("directions API error %d: %s", resp.StatusCode, string(body))
	}

	var response directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return processDirectionsResponse(response)
}

// processDirectionsResponse flattens the response into a Route. The
// service answers in GeoJSON; the non-GeoJSON variant carries an encoded
// polyline instead and is accepted too.
func processDirectionsResponse(response directionsResponse) (*Route, error) {
	if len(response.Features) > 0 {
		feature := response.Features[0]
		if feature.Geometry.Type != "LineString" {
			return nil, fmt.Errorf("unexpected route geometry type %q", feature.Geometry.Type)
		}

		coords := make([]geo.Point, len(feature.Geometry.Coordinates))
		for i, pair := range feature.Geometry.Coordinates {
			coords[i] = geo.Point{Lat: pair[1], Lng: pair[0]}
		}

		instructions, err := flattenSegments(feature.Properties.Segments)
		if err != nil {
			return nil, err
		}
		return &Route{Coordinates: coords, Instructions: instructions}, nil
	}

	if len(response.Routes) > 0 {
		route := response.Routes[0]
		coords, err := decodePolyline(route.Geometry)
		if err != nil {
			return nil, fmt.Errorf("failed to decode route polyline: %w", err)
		}

		instructions, err := flattenSegments(route.Segments)
		if err != nil {
			return nil, err
		}
		return &Route{Coordinates: coords, Instructions: instructions}, nil
	}

	return nil, fmt.Errorf("no routes found in response")
}

// flattenSegments concatenates every segment's steps in order, recording
// each step's starting route-point index.
func flattenSegments(segments []directionsSegment) ([]Instruction, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("route has no segments")
	}

	var instructions []Instruction
	for _, segment := range segments {
		for _, step := range segment.Steps {
			if len(step.WayPoints) == 0 {
				return nil, fmt.Errorf("step %q has no way points", step.Instruction)
			}
			instructions = append(instructions, Instruction{
				Text:          step.Instruction,
				Distance:      step.Distance,
				Duration:      step.Duration,
				WayPointIndex: step.WayPoints[0],
			})
		}
	}
	return instructions, nil
}

// decodePolyline decodes an encoded polyline string to a point sequence.
func decodePolyline(encoded string) ([]geo.Point, error) {
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, err
	}

	points := make([]geo.Point, len(coords))
	for i, c := range coords {
		points[i] = geo.Point{Lat: c[0], Lng: c[1]}
	}
	return points, nil
}

// directionsResponse covers both the GeoJSON and the encoded-polyline
// response shapes.
type directionsResponse struct {
	Features []directionsFeature `json:"features"`
	Routes   []directionsRoute   `json:"routes"`
}

type directionsFeature struct {
	Geometry struct {
		Type        string       `json:"type"`
		Coordinates [][2]float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		Segments []directionsSegment `json:"segments"`
	} `json:"properties"`
}

type directionsRoute struct {
	Geometry string              `json:"geometry"`
	Segments []directionsSegment `json:"segments"`
}

type directionsSegment struct {
	Distance float64          `json:"distance"`
	Duration float64          `json:"duration"`
	Steps    []directionsStep `json:"steps"`
}

type directionsStep struct {
	Distance    float64 `json:"distance"`
	Duration    float64 `json:"duration"`
	Instruction string  `json:"instruction"`
	WayPoints   []int   `json:"way_points"`
}
