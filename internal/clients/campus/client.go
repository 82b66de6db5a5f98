// Package campus provides the HTTP client for the campus navigation
// backend: GeoJSON feature collections, floor listings, indoor graphs and
// the parking registration endpoints.
package campus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	model "github.com/usiu-smartnav/wayfinder/internal/campus"
	"github.com/usiu-smartnav/wayfinder/internal/lib/geo"
)

// csrfCookieName is the cookie set by the backend's token-priming endpoint;
// its value must be echoed in the X-CSRFToken header on POST requests.
const csrfCookieName = "csrftoken"

// Client provides access to the campus navigation backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new backend client. The client carries a cookie jar
// so the session and CSRF cookie plumbing stays inside this package.
func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

// PrimeCSRF asks the backend to set the CSRF cookie. Called once at
// startup; registration posts fail without it.
func (c *Client) PrimeCSRF(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/get-csrf-token/", nil)
	if err != nil {
		return fmt.Errorf("failed to create csrf request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute csrf request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("csrf endpoint returned %d", resp.StatusCode)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// ListBuildings fetches all building features.
func (c *Client) ListBuildings(ctx context.Context) ([]model.Feature, error) {
	return c.listFeatures(ctx, "/buildings/")
}

// ListRooms fetches all room features, including corridor LineStrings.
func (c *Client) ListRooms(ctx context.Context) ([]model.Feature, error) {
	return c.listFeatures(ctx, "/rooms/")
}

// ListParkingLots fetches all parking lot features.
func (c *Client) ListParkingLots(ctx context.Context) ([]model.Feature, error) {
	return c.listFeatures(ctx, "/parking-lots/")
}

// ListEntryPoints fetches all building entry point features.
func (c *Client) ListEntryPoints(ctx context.Context) ([]model.Feature, error) {
	return c.listFeatures(ctx, "/entry-points/")
}

// ListFloors fetches the floors of one building.
func (c *Client) ListFloors(ctx context.Context, buildingID int64) ([]model.Floor, error) {
	features, err := c.listFeatures(ctx, "/floors/?building="+strconv.FormatInt(buildingID, 10))
	if err != nil {
		return nil, err
	}

	var floors []model.Floor
	for _, f := range features {
		building, ok := f.BuildingID()
		if !ok || building != buildingID {
			continue
		}
		level, _ := f.FloorLevel()
		if level == 0 {
			// Floor serializers expose level directly rather than via the
			// room-style floor__level key.
			if n, ok := f.Properties["level"].(float64); ok {
				level = int(n)
			}
		}
		id := f.ID
		if id == 0 {
			if n, ok := f.Properties["id"].(float64); ok {
				id = int64(n)
			}
		}
		floors = append(floors, model.Floor{ID: id, Level: level, Building: building})
	}
	return floors, nil
}

// IndoorGraph fetches the indoor path graph for one floor.
func (c *Client) IndoorGraph(ctx context.Context, floorID int64) (*IndoorGraph, error) {
	var graph IndoorGraph
	path := "/indoor-path-graph/?floor=" + strconv.FormatInt(floorID, 10)
	if err := c.getJSON(ctx, path, &graph); err != nil {
		return nil, err
	}
	return &graph, nil
}

// IndoorRoute computes the shortest indoor path between two graph nodes and
// returns the ordered coordinate sequence.
func (c *Client) IndoorRoute(ctx context.Context, startNodeID, endNodeID int64) ([]geo.Point, error) {
	var response indoorPathResponse
	path := fmt.Sprintf("/indoor-path/dijkstra/?start=%d&end=%d", startNodeID, endNodeID)
	if err := c.getJSON(ctx, path, &response); err != nil {
		return nil, err
	}

	points := make([]geo.Point, len(response.Path))
	for i, node := range response.Path {
		points[i] = geo.Point{Lat: node.Lat, Lng: node.Lng}
	}
	return points, nil
}

// IndoorRouteBetweenRooms computes an indoor path between two rooms and
// returns its geometry.
func (c *Client) IndoorRouteBetweenRooms(ctx context.Context, startRoomID, endRoomID int64) (*model.Geometry, error) {
	var response struct {
		Geometry *model.Geometry `json:"geometry"`
		Error    string          `json:"error"`
	}
	path := fmt.Sprintf("/indoor-navigation/?start_room_id=%d&end_room_id=%d", startRoomID, endRoomID)
	if err := c.getJSON(ctx, path, &response); err != nil {
		return nil, err
	}
	if response.Geometry == nil {
		if response.Error != "" {
			return nil, fmt.Errorf("indoor navigation failed: %s", response.Error)
		}
		return nil, fmt.Errorf("indoor navigation returned no geometry")
	}
	return response.Geometry, nil
}

// Register claims a slot at a parking lot for this device. The reserved
// flag requests a reserved slot.
func (c *Client) Register(ctx context.Context, lotID int64, deviceID string, reserved bool) (*RegisterResult, error) {
	body := map[string]any{
		"device_id": deviceID,
		"reserved":  reserved,
	}

	var result RegisterResult
	path := fmt.Sprintf("/parking/register/%d/", lotID)
	if err := c.postJSON(ctx, path, body, &result); err != nil {
		return nil, err
	}
	if result.SessionID == "" {
		return nil, fmt.Errorf("no session ID returned from server")
	}
	return &result, nil
}

// Deregister releases this device's session at a parking lot.
func (c *Client) Deregister(ctx context.Context, lotID int64, deviceID, sessionID string, reserved bool) (*DeregisterResult, error) {
	body := map[string]any{
		"device_id":  deviceID,
		"session_id": sessionID,
		"reserved":   reserved,
	}

	var result DeregisterResult
	path := fmt.Sprintf("/parking/deregister/%d/", lotID)
	if err := c.postJSON(ctx, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ActiveSessions fetches the server's authoritative view of this device's
// live parking sessions.
func (c *Client) ActiveSessions(ctx context.Context, deviceID string) ([]ActiveSession, error) {
	var sessions []ActiveSession
	path := "/parking/active-sessions/?device_id=" + url.QueryEscape(deviceID)
	if err := c.getJSON(ctx, path, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *Client) listFeatures(ctx context.Context, path string) ([]model.Feature, error) {
	var collection model.FeatureCollection
	if err := c.getJSON(ctx, path, &collection); err != nil {
		return nil, err
	}
	return collection.Features, nil
}

func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return serverError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, result any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.csrfToken(); token != "" {
		req.Header.Set("X-CSRFToken", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return serverError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// csrfToken returns the value of the CSRF cookie the backend set, if any.
func (c *Client) csrfToken() string {
	base, err := url.Parse(c.baseURL)
	if err != nil || c.httpClient.Jar == nil {
		return ""
	}
	for _, cookie := range c.httpClient.Jar.Cookies(base) {
		if cookie.Name == csrfCookieName {
			return cookie.Value
		}
	}
	return ""
}

// serverError surfaces the server-provided error message when the body
// carries one, falling back to the status code.
func serverError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("API error %d: %s", resp.StatusCode, string(body))}
}
