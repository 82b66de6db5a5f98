package campus

import "fmt"

// RegisterResult is the backend's response to a successful registration.
type RegisterResult struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Remaining int    `json:"remaining"`
}

// DeregisterResult is the backend's response to a successful deregistration.
type DeregisterResult struct {
	Message   string `json:"message"`
	Available int    `json:"available"`
}

// ActiveSession is one live (lot, session) pair for a device.
type ActiveSession struct {
	SessionID  string `json:"session_id"`
	ParkingLot int64  `json:"parking_lot"`
	DeviceID   string `json:"device_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

// IndoorGraph is one floor's indoor path graph.
type IndoorGraph struct {
	Nodes []IndoorNode `json:"nodes"`
	Edges []IndoorEdge `json:"edges"`
}

// IndoorNode is a navigable point on a floor: a room door, hallway
// junction, staircase or elevator.
type IndoorNode struct {
	ID   int64   `json:"id"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Type string  `json:"type"`
}

// IndoorEdge connects two indoor nodes.
type IndoorEdge struct {
	ID   int64 `json:"id"`
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type indoorPathResponse struct {
	Path []IndoorNode `json:"path"`
}

// APIError is a backend failure carrying the server-provided message when
// one was decodable.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// String implements fmt.Stringer for log output.
func (e *APIError) String() string {
	return fmt.Sprintf("campus API error (%d): %s", e.StatusCode, e.Message)
}
