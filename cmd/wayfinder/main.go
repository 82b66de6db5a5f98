package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dpup/prefab"
	"github.com/joho/godotenv"

	"github.com/usiu-smartnav/wayfinder/internal/clients/campus"
	"github.com/usiu-smartnav/wayfinder/internal/clients/routing"
	"github.com/usiu-smartnav/wayfinder/internal/config"
	"github.com/usiu-smartnav/wayfinder/internal/lib/geo"
	"github.com/usiu-smartnav/wayfinder/internal/location"
	"github.com/usiu-smartnav/wayfinder/internal/services"
	"github.com/usiu-smartnav/wayfinder/internal/store"
)

func main() {
	// .env is optional; real environment variables win either way
	_ = godotenv.Load()

	cfg := loadConfig()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}

	campusClient := campus.NewClient(cfg.Campus.BaseURL)
	routingClient := routing.NewClient(cfg.Routing.BaseURL)
	source := location.NewManualSource()

	nav := services.New(cfg, campusClient, campusClient, routingClient, source, st, &consoleSpeaker{}, func(p geo.Point) {
		fmt.Printf("  [map] centered on %.6f, %.6f\n", p.Lat, p.Lng)
	})

	ctx := context.Background()
	if err := nav.Startup(ctx); err != nil {
		log.Fatalf("Startup failed: %v", err)
	}

	if bounds, ok := nav.Bounds(); ok {
		center := bounds.Center()
		fmt.Printf("Campus loaded: %d buildings, %d rooms, %d parking lots (center %.5f, %.5f)\n",
			len(nav.Buildings()), len(nav.Rooms()), len(nav.ParkingLots()), center.Lat, center.Lng)
	}
	fmt.Println(`Type "help" for commands.`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		runCommand(ctx, nav, source, line)
	}
}

// loadConfig overlays Prefab's config system (prefab.yaml and PF__ prefixed
// environment variables) onto the development defaults.
func loadConfig() *config.Config {
	cfg := config.DefaultConfig()

	if err := prefab.Config.Unmarshal("campus", &cfg.Campus); err != nil {
		log.Fatalf("Failed to unmarshal campus section: %v", err)
	}
	if err := prefab.Config.Unmarshal("routing", &cfg.Routing); err != nil {
		log.Fatalf("Failed to unmarshal routing section: %v", err)
	}
	if err := prefab.Config.Unmarshal("guidance", &cfg.Guidance); err != nil {
		log.Fatalf("Failed to unmarshal guidance section: %v", err)
	}
	if err := prefab.Config.Unmarshal("location", &cfg.Location); err != nil {
		log.Fatalf("Failed to unmarshal location section: %v", err)
	}
	if err := prefab.Config.Unmarshal("store", &cfg.Store); err != nil {
		log.Fatalf("Failed to unmarshal store section: %v", err)
	}

	return cfg
}

func runCommand(ctx context.Context, nav *services.Navigator, source *location.ManualSource, line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		printHelp()

	case "locate":
		isRetry := len(args) > 0 && args[0] == "retry"
		nav.Locate(ctx, isRetry)
		fmt.Println("Locating... feed fixes with: pos <lat> <lng>")

	case "pos":
		if len(args) != 2 {
			fmt.Println("usage: pos <lat> <lng>")
			return
		}
		lat, err1 := strconv.ParseFloat(args[0], 64)
		lng, err2 := strconv.ParseFloat(args[1], 64)
		if err1 != nil || err2 != nil {
			fmt.Println("usage: pos <lat> <lng>")
			return
		}
		source.Emit(location.Position{Point: geo.Point{Lat: lat, Lng: lng}})

	case "fail":
		if len(args) != 1 {
			fmt.Println("usage: fail denied|unavailable|timeout")
			return
		}
		switch args[0] {
		case "denied":
			source.FailWith(location.ErrPermissionDenied)
		case "unavailable":
			source.FailWith(location.ErrPositionUnavailable)
		case "timeout":
			source.FailWith(location.ErrTimeout)
		default:
			fmt.Println("usage: fail denied|unavailable|timeout")
		}

	case "go":
		if len(args) == 0 {
			fmt.Println("usage: go <destination name>")
			return
		}
		query := strings.Join(args, " ")
		if err := nav.SetDestination(ctx, query); err != nil {
			fmt.Printf("Could not set destination: %v\n", err)
			return
		}
		printRoute(nav)

	case "mode":
		if len(args) != 1 || (args[0] != "foot" && args[0] != "car") {
			fmt.Println("usage: mode foot|car")
			return
		}
		if err := nav.SetTravelMode(ctx, args[0]); err != nil {
			fmt.Printf("Could not switch mode: %v\n", err)
			return
		}
		fmt.Printf("Travel mode: %s\n", nav.TravelMode())

	case "voice":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			fmt.Println("usage: voice on|off")
			return
		}
		nav.SetVoiceEnabled(ctx, args[0] == "on")
		fmt.Printf("Voice guidance: %s\n", args[0])

	case "route":
		printRoute(nav)

	case "park", "unpark":
		if len(args) == 0 {
			fmt.Printf("usage: %s <lot id> [reserved]\n", cmd)
			return
		}
		lotID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Printf("usage: %s <lot id> [reserved]\n", cmd)
			return
		}
		reserved := len(args) > 1 && args[1] == "reserved"
		if cmd == "park" {
			sessionID, err := nav.Park(ctx, lotID, reserved)
			if err != nil {
				fmt.Printf("Could not register: %v\n", err)
				return
			}
			fmt.Printf("Registered at lot %d (session %s)\n", lotID, sessionID)
		} else {
			if err := nav.Unpark(ctx, lotID, reserved); err != nil {
				fmt.Printf("Could not deregister: %v\n", err)
				return
			}
			fmt.Printf("Deregistered from lot %d\n", lotID)
		}

	case "sessions":
		sessions := nav.ParkingSessions()
		if len(sessions) == 0 {
			fmt.Println("No active parking sessions")
			return
		}
		for lot, token := range sessions {
			fmt.Printf("  lot %d: %s\n", lot, token)
		}

	case "floors":
		if len(args) != 1 {
			fmt.Println("usage: floors <building id>")
			return
		}
		buildingID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Println("usage: floors <building id>")
			return
		}
		floors, err := nav.Floors(ctx, buildingID)
		if err != nil {
			fmt.Printf("Could not load floors: %v\n", err)
			return
		}
		for _, f := range floors {
			rooms := nav.RoomsOnFloor(buildingID, f.Level)
			corridors := nav.CorridorsOnFloor(buildingID, f.Level)
			fmt.Printf("  level %d (%d rooms, %d corridors)\n", f.Level, len(rooms), len(corridors))
			for _, r := range rooms {
				fmt.Printf("    %s\n", r.Name())
			}
			for _, c := range corridors {
				fmt.Printf("    %s (corridor)\n", c.Name())
			}
		}

	case "lots":
		for _, lot := range nav.ParkingLots() {
			fmt.Printf("  %s: %d/%d slots available\n", lot.Name(), lot.AvailableSlots(), lot.Capacity())
		}

	case "clear":
		nav.Clear()
		fmt.Println("Cleared route and guidance")

	default:
		fmt.Printf("Unknown command %q; type \"help\"\n", cmd)
	}
}

func printRoute(nav *services.Navigator) {
	route := nav.Route()
	if route == nil {
		if nav.Destination() != nil && nav.Start() == nil {
			fmt.Println("Destination set; waiting for a start point (locate or pos)")
			return
		}
		fmt.Println("No active route")
		return
	}
	total := 0.0
	for _, step := range route.Instructions {
		total += step.Distance
	}
	fmt.Printf("Route: %d steps, %.0fm\n", len(route.Instructions), total)
	if nav.OffRoute() {
		fmt.Println("  (you appear to be off the route)")
	}
	for i, step := range route.Instructions {
		fmt.Printf("  %d. %s (%.0fm)\n", i+1, step.Text, step.Distance)
	}
}

func printHelp() {
	fmt.Print(`Commands:
  locate [retry]      start the position watch
  pos <lat> <lng>     feed a position fix
  fail <kind>         simulate a geolocation failure (denied|unavailable|timeout)
  go <name>           set destination by name and route to it
  mode foot|car       switch travel mode
  voice on|off        toggle spoken guidance
  route               show the active route
  park <lot> [reserved]    register at a parking lot
  unpark <lot> [reserved]  release a parking session
  sessions            list active parking sessions
  floors <building>   list a building's floors and rooms
  lots                list parking lots and availability
  clear               drop route, destination and guidance
  quit                exit
`)
}

// consoleSpeaker voices guidance by printing. Printing is instantaneous so
// there is never an utterance in flight to cancel.
type consoleSpeaker struct{}

func (consoleSpeaker) Speak(text string) {
	fmt.Printf("  [voice] %s\n", text)
}

func (consoleSpeaker) Cancel() {}
