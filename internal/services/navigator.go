// Package services wires the wayfinding components into one orchestrator:
// data fetch, destination resolution, routing, live guidance and parking
// sessions.
package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/usiu-smartnav/wayfinder/internal/cache"
	"github.com/usiu-smartnav/wayfinder/internal/campus"
	campusclient "github.com/usiu-smartnav/wayfinder/internal/clients/campus"
	"github.com/usiu-smartnav/wayfinder/internal/clients/routing"
	"github.com/usiu-smartnav/wayfinder/internal/config"
	"github.com/usiu-smartnav/wayfinder/internal/lib/geo"
	"github.com/usiu-smartnav/wayfinder/internal/lib/guidance"
	"github.com/usiu-smartnav/wayfinder/internal/lib/resolve"
	"github.com/usiu-smartnav/wayfinder/internal/location"
	"github.com/usiu-smartnav/wayfinder/internal/parking"
	"github.com/usiu-smartnav/wayfinder/internal/store"
)

// CampusService is the backend surface the navigator consumes.
// *campusclient.Client satisfies it.
type CampusService interface {
	PrimeCSRF(ctx context.Context) error
	ListBuildings(ctx context.Context) ([]campus.Feature, error)
	ListRooms(ctx context.Context) ([]campus.Feature, error)
	ListParkingLots(ctx context.Context) ([]campus.Feature, error)
	ListEntryPoints(ctx context.Context) ([]campus.Feature, error)
	ListFloors(ctx context.Context, buildingID int64) ([]campus.Floor, error)
	IndoorGraph(ctx context.Context, floorID int64) (*campusclient.IndoorGraph, error)
	IndoorRoute(ctx context.Context, startNodeID, endNodeID int64) ([]geo.Point, error)
	IndoorRouteBetweenRooms(ctx context.Context, startRoomID, endRoomID int64) (*campus.Geometry, error)
}

// RouteService computes outdoor routes. *routing.Client satisfies it.
type RouteService interface {
	Directions(ctx context.Context, start, end geo.Point, profile routing.Profile) (*routing.Route, error)
}

// Navigator owns the client's navigation state: the fetched feature
// universe, the active route, the user's position and the parking session
// map.
type Navigator struct {
	cfg        *config.Config
	backend    CampusService
	directions RouteService
	cache      *cache.Cache
	store      *store.Store
	engine     *guidance.Engine
	speaker    guidance.Speaker
	acquirer   *location.Acquirer
	reconciler *parking.Reconciler

	// onRecenter is told about every acquired position so the map view
	// can follow the user.
	onRecenter func(geo.Point)

	mu           sync.Mutex
	buildings    []campus.Feature
	rooms        []campus.Feature
	parkingLots  []campus.Feature
	entryPoints  []campus.Feature
	bounds       geo.Bounds
	hasBounds    bool
	start        *geo.Point
	end          *geo.Point
	userPosition *location.Position
	travelMode   string
	voiceEnabled bool
	route        *routing.Route

	offRouteWarned bool
}

// Registration bundles the reconciler's remote dependency so callers can
// pass the same backend client for both surfaces.
type Registration = parking.RegistrationService

// New creates a navigator. onRecenter may be nil.
func New(cfg *config.Config, backend CampusService, registration Registration, directions RouteService, source location.Source, st *store.Store, speaker guidance.Speaker, onRecenter func(geo.Point)) *Navigator {
	n := &Navigator{
		cfg:          cfg,
		backend:      backend,
		directions:   directions,
		cache:        cache.New(),
		store:        st,
		speaker:      speaker,
		engine:       guidance.NewEngine(speaker, cfg.Guidance.ProximityMeters),
		onRecenter:   onRecenter,
		travelMode:   cfg.Routing.Mode,
		voiceEnabled: cfg.Guidance.VoiceEnabled,
	}

	n.reconciler = parking.NewReconciler(registration, st, n.updateLotSlots)
	n.acquirer = location.NewAcquirer(source, st, location.Options{
		HighAccuracy: cfg.Location.HighAccuracy,
		Timeout:      cfg.Location.Timeout,
	}, location.Callbacks{
		OnPosition: n.handlePosition,
		OnFailure: func(e *location.Error) {
			log.Printf("Geolocation failed: %s", e.Message())
		},
		OnNotice: func(msg string) {
			log.Printf("%s", msg)
		},
	})
	return n
}

// Startup primes the CSRF cookie, loads the device identity, fetches the
// feature universe and reconciles parking sessions against the server.
// Individual failures degrade their feature and do not abort startup.
func (n *Navigator) Startup(ctx context.Context) error {
	if err := n.backend.PrimeCSRF(ctx); err != nil {
		log.Printf("Failed to prime CSRF cookie: %v", err)
	}

	n.cache.StartPeriodicCleanup(ctx, n.cfg.Campus.CacheTTL)

	deviceID, err := n.store.DeviceID()
	if err != nil {
		return fmt.Errorf("failed to establish device identity: %w", err)
	}
	log.Printf("Device identity: %s", deviceID)

	if err := n.fetchFeatures(ctx); err != nil {
		return err
	}

	if err := n.reconciler.Reconcile(ctx); err != nil {
		log.Printf("Session reconciliation failed: %v", err)
	}
	return nil
}

// fetchFeatures loads all feature categories, consulting the cache first,
// and folds buildings and parking lots into the padded map bounds.
func (n *Navigator) fetchFeatures(ctx context.Context) error {
	buildings, err := n.featureCategory(ctx, "buildings", n.backend.ListBuildings)
	if err != nil {
		return fmt.Errorf("failed to fetch buildings: %w", err)
	}
	rooms, err := n.featureCategory(ctx, "rooms", n.backend.ListRooms)
	if err != nil {
		return fmt.Errorf("failed to fetch rooms: %w", err)
	}
	parkingLots, err := n.featureCategory(ctx, "parking-lots", n.backend.ListParkingLots)
	if err != nil {
		return fmt.Errorf("failed to fetch parking lots: %w", err)
	}
	entryPoints, err := n.featureCategory(ctx, "entry-points", n.backend.ListEntryPoints)
	if err != nil {
		return fmt.Errorf("failed to fetch entry points: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.buildings = buildings
	n.rooms = rooms
	n.parkingLots = parkingLots
	n.entryPoints = entryPoints

	boundsInput := make([]campus.Feature, 0, len(buildings)+len(parkingLots))
	boundsInput = append(boundsInput, buildings...)
	boundsInput = append(boundsInput, parkingLots...)
	if bounds, ok := campus.CollectionBounds(boundsInput); ok {
		n.bounds = bounds.Pad(0.05)
		n.hasBounds = true
	}
	return nil
}

func (n *Navigator) featureCategory(ctx context.Context, category string, fetch func(context.Context) ([]campus.Feature, error)) ([]campus.Feature, error) {
	if cached, found, err := n.cache.GetFeatures(category); err == nil && found {
		return cached, nil
	}
	features, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := n.cache.SetFeatures(category, features, n.cfg.Campus.CacheTTL); err != nil {
		log.Printf("Failed to cache %s: %v", category, err)
	}
	return features, nil
}

// Locate starts the continuous position watch. isRetry marks an explicit
// user-requested reattempt, which skips the fallback chain.
func (n *Navigator) Locate(ctx context.Context, isRetry bool) {
	n.acquirer.Start(ctx, isRetry)
}

// StopLocating cancels the position watch.
func (n *Navigator) StopLocating() {
	n.acquirer.Stop()
}

// LocationState exposes the acquirer's lifecycle state.
func (n *Navigator) LocationState() location.State {
	return n.acquirer.State()
}

// LocationError exposes the last classified geolocation failure, or nil.
func (n *Navigator) LocationError() *location.Error {
	return n.acquirer.LastError()
}

// handlePosition receives every position sample: it records the user
// position, seeds the route start on the first fix, recenters the map and
// feeds the guidance engine while voice is enabled. When the fix completes
// a start/end pair that has no route yet, the route is requested.
func (n *Navigator) handlePosition(pos location.Position) {
	n.mu.Lock()
	n.userPosition = &pos
	if n.start == nil {
		p := pos.Point
		n.start = &p
	}
	needRoute := n.end != nil && n.route == nil
	voice := n.voiceEnabled
	recenter := n.onRecenter
	n.mu.Unlock()

	if recenter != nil {
		recenter(pos.Point)
	}
	if voice {
		n.engine.OnPosition(pos.Point)
		n.checkOffRoute(pos.Point)
	}

	if needRoute {
		// Route fetches must not block the watch goroutine
		go func() {
			if err := n.RequestRoute(context.Background()); err != nil {
				log.Printf("Failed to fetch directions: %v", err)
			}
		}()
	}
}

// offRouteMeters is the deviation at which a position sample is reported
// as having left the route.
const offRouteMeters = 50

// checkOffRoute warns once per departure when the user strays from the
// route geometry, rearming after they return to it.
func (n *Navigator) checkOffRoute(p geo.Point) {
	d, ok := n.engine.DistanceFromRoute(p)
	if !ok {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if d > offRouteMeters {
		if !n.offRouteWarned {
			n.offRouteWarned = true
			log.Printf("Position is %.0fm off the route", d)
		}
		return
	}
	n.offRouteWarned = false
}

// SetStart pins the route origin, as a map click does.
func (n *Navigator) SetStart(p geo.Point) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.start = &p
}

// TravelMode returns the active travel mode.
func (n *Navigator) TravelMode() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.travelMode
}

// SetTravelMode switches between "foot" and "car" and recomputes the
// route when one is active.
func (n *Navigator) SetTravelMode(ctx context.Context, mode string) error {
	n.mu.Lock()
	n.travelMode = mode
	haveRoute := n.start != nil && n.end != nil
	n.mu.Unlock()

	if haveRoute {
		return n.RequestRoute(ctx)
	}
	return nil
}

// SetDestination resolves a free-text query to a target point. Any
// previous destination, route and in-flight speech are cleared first,
// then a route is requested when a start point exists.
func (n *Navigator) SetDestination(ctx context.Context, query string) error {
	n.mu.Lock()
	n.end = nil
	n.route = nil
	entities := resolve.Entities{
		Rooms:       n.rooms,
		Buildings:   n.buildings,
		ParkingLots: n.parkingLots,
		EntryPoints: n.entryPoints,
	}
	mode := resolve.TravelMode(n.travelMode)
	wasGuiding := n.voiceEnabled && n.engine.Active()
	n.mu.Unlock()

	n.engine.Clear()
	if n.speaker != nil {
		n.speaker.Cancel()
	}
	if wasGuiding {
		// The instruction list is empty; the watch backing guidance must
		// not outlive it. A successful resolution re-arms below.
		n.acquirer.Stop()
	}

	target, err := resolve.Resolve(query, entities, mode)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.end = &target
	haveStart := n.start != nil
	n.mu.Unlock()

	if haveStart {
		return n.RequestRoute(ctx)
	}
	return nil
}

// RequestRoute fetches directions for the current start, end and travel
// mode. The previous route is discarded before the new one is applied;
// responses arriving for a superseded request simply overwrite current
// state, last writer wins.
func (n *Navigator) RequestRoute(ctx context.Context) error {
	n.mu.Lock()
	if n.start == nil || n.end == nil {
		n.mu.Unlock()
		return fmt.Errorf("both start and destination are required")
	}
	start, end := *n.start, *n.end
	profile := routing.ProfileForMode(n.travelMode)
	n.mu.Unlock()

	route, err := n.directions.Directions(ctx, start, end, profile)
	if err != nil {
		return fmt.Errorf("failed to fetch directions: %w", err)
	}

	n.mu.Lock()
	// Discard the previous route before applying the new one
	n.route = nil
	n.engine.Clear()
	n.route = route
	n.offRouteWarned = false
	voice := n.voiceEnabled
	n.mu.Unlock()

	if voice && len(route.Instructions) > 0 {
		n.armGuidance(ctx, route)
	}
	return nil
}

// Route returns the active route, or nil.
func (n *Navigator) Route() *routing.Route {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route
}

// VoiceEnabled reports whether voice guidance is on.
func (n *Navigator) VoiceEnabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.voiceEnabled
}

// SetVoiceEnabled toggles voice guidance. Enabling with an active route
// arms the guidance engine from the first step; disabling cancels the
// position watch backing it.
func (n *Navigator) SetVoiceEnabled(ctx context.Context, enabled bool) {
	n.mu.Lock()
	n.voiceEnabled = enabled
	route := n.route
	n.mu.Unlock()

	if enabled && route != nil && len(route.Instructions) > 0 {
		n.armGuidance(ctx, route)
		return
	}
	if !enabled {
		n.acquirer.Stop()
	}
}

// armGuidance installs the route into the engine, resetting the spoken
// cursor, and restarts the shared position watch. Restarting first
// cancels any watch already running.
func (n *Navigator) armGuidance(ctx context.Context, route *routing.Route) {
	n.engine.SetRoute(route.Instructions, route.Coordinates)
	n.acquirer.Start(ctx, false)
}

// Clear drops the route, destination and start point, stops the watch and
// silences any in-flight utterance.
func (n *Navigator) Clear() {
	n.mu.Lock()
	n.start = nil
	n.end = nil
	n.route = nil
	n.offRouteWarned = false
	n.mu.Unlock()

	n.engine.Clear()
	n.acquirer.Stop()
	if n.speaker != nil {
		n.speaker.Cancel()
	}
}

// GuidanceCursor exposes the index of the last spoken step, -1 for none.
func (n *Navigator) GuidanceCursor() int {
	return n.engine.Cursor()
}

// OffRoute reports whether the latest fix had strayed from the route
// geometry. It stays set until a fix lands back on the route.
func (n *Navigator) OffRoute() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.offRouteWarned
}

// Floors lists a building's floors, cached per building.
func (n *Navigator) Floors(ctx context.Context, buildingID int64) ([]campus.Floor, error) {
	if floors, found, err := n.cache.GetFloors(buildingID); err == nil && found {
		return floors, nil
	}
	floors, err := n.backend.ListFloors(ctx, buildingID)
	if err != nil {
		return nil, fmt.Errorf("could not load floors: %w", err)
	}
	if err := n.cache.SetFloors(buildingID, floors, n.cfg.Campus.CacheTTL); err != nil {
		log.Printf("Failed to cache floors: %v", err)
	}
	return floors, nil
}

// RoomsOnFloor filters point rooms belonging to one building floor.
func (n *Navigator) RoomsOnFloor(buildingID int64, level int) []campus.Feature {
	n.mu.Lock()
	defer n.mu.Unlock()

	var matched []campus.Feature
	for _, room := range n.rooms {
		b, ok := room.FloorBuildingID()
		if !ok || b != buildingID {
			continue
		}
		l, ok := room.FloorLevel()
		if !ok || l != level {
			continue
		}
		if _, isPoint := room.PointCoords(); isPoint {
			matched = append(matched, room)
		}
	}
	return matched
}

// CorridorsOnFloor filters the LineString corridor features of one
// building floor.
func (n *Navigator) CorridorsOnFloor(buildingID int64, level int) []campus.Feature {
	n.mu.Lock()
	defer n.mu.Unlock()

	var matched []campus.Feature
	for _, room := range n.rooms {
		b, ok := room.FloorBuildingID()
		if !ok || b != buildingID {
			continue
		}
		l, ok := room.FloorLevel()
		if !ok || l != level {
			continue
		}
		if _, isLine := room.LineStringCoords(); isLine {
			matched = append(matched, room)
		}
	}
	return matched
}

// IndoorGraph loads a floor's indoor path graph, cached per floor.
func (n *Navigator) IndoorGraph(ctx context.Context, floorID int64) (*campusclient.IndoorGraph, error) {
	if graph, found, err := n.cache.GetIndoorGraph(floorID); err == nil && found {
		return graph, nil
	}
	graph, err := n.backend.IndoorGraph(ctx, floorID)
	if err != nil {
		return nil, fmt.Errorf("could not load indoor graph: %w", err)
	}
	if err := n.cache.SetIndoorGraph(floorID, graph, n.cfg.Campus.CacheTTL); err != nil {
		log.Printf("Failed to cache indoor graph: %v", err)
	}
	return graph, nil
}

// IndoorRoute computes an indoor path between two graph nodes.
func (n *Navigator) IndoorRoute(ctx context.Context, startNodeID, endNodeID int64) ([]geo.Point, error) {
	return n.backend.IndoorRoute(ctx, startNodeID, endNodeID)
}

// IndoorRouteBetweenRooms computes an indoor path between two rooms.
func (n *Navigator) IndoorRouteBetweenRooms(ctx context.Context, startRoomID, endRoomID int64) (*campus.Geometry, error) {
	return n.backend.IndoorRouteBetweenRooms(ctx, startRoomID, endRoomID)
}

// Park registers this device at a parking lot.
func (n *Navigator) Park(ctx context.Context, lotID int64, reserved bool) (string, error) {
	return n.reconciler.Register(ctx, lotID, reserved)
}

// Unpark releases this device's session at a parking lot.
func (n *Navigator) Unpark(ctx context.Context, lotID int64, reserved bool) error {
	return n.reconciler.Deregister(ctx, lotID, reserved)
}

// ParkingSessions returns a copy of the live session map.
func (n *Navigator) ParkingSessions() map[int64]string {
	return n.reconciler.Sessions()
}

// updateLotSlots pushes a server-confirmed slot count into the parking
// lot feature set.
func (n *Navigator) updateLotSlots(lotID int64, availableSlots int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i := range n.parkingLots {
		if n.parkingLots[i].ID == lotID {
			n.parkingLots[i].SetAvailableSlots(availableSlots)
			return
		}
	}
}

// Buildings returns the fetched building features.
func (n *Navigator) Buildings() []campus.Feature {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.buildings
}

// Rooms returns the fetched room features.
func (n *Navigator) Rooms() []campus.Feature {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rooms
}

// ParkingLots returns the fetched parking lot features.
func (n *Navigator) ParkingLots() []campus.Feature {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.parkingLots
}

// Bounds returns the padded map bounds; false before features load.
func (n *Navigator) Bounds() (geo.Bounds, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.bounds, n.hasBounds
}

// UserPosition returns the most recent acquired position, or nil.
func (n *Navigator) UserPosition() *location.Position {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.userPosition
}

// Start returns the route origin, or nil.
func (n *Navigator) Start() *geo.Point {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.start
}

// Destination returns the resolved destination, or nil.
func (n *Navigator) Destination() *geo.Point {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.end
}
