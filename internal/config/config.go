package config

import (
	"time"

	"github.com/usiu-smartnav/wayfinder/internal/lib/geo"
)

// Config is the complete client configuration.
type Config struct {
	Campus   CampusConfig   `yaml:"campus"`
	Routing  RoutingConfig  `yaml:"routing"`
	Guidance GuidanceConfig `yaml:"guidance"`
	Location LocationConfig `yaml:"location"`
	Store    StoreConfig    `yaml:"store"`
}

// CampusConfig holds backend connection settings.
type CampusConfig struct {
	BaseURL  string        `yaml:"base_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// RoutingConfig holds outdoor directions service settings.
type RoutingConfig struct {
	BaseURL string `yaml:"base_url"`
	// Mode is the initial travel mode, "foot" or "car".
	Mode string `yaml:"mode"`
}

// GuidanceConfig holds voice guidance settings.
type GuidanceConfig struct {
	ProximityMeters float64 `yaml:"proximity_meters"`
	VoiceEnabled    bool    `yaml:"voice_enabled"`
}

// LocationConfig holds geolocation settings.
type LocationConfig struct {
	HighAccuracy bool          `yaml:"high_accuracy"`
	Timeout      time.Duration `yaml:"timeout"`
}

// StoreConfig holds local persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// CampusCenter is the default map center before any features load.
var CampusCenter = geo.Point{Lat: -1.219750072616673, Lng: 36.87837859438083}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Campus: CampusConfig{
			BaseURL:  "http://localhost:8000/api",
			CacheTTL: 15 * time.Minute,
		},
		Routing: RoutingConfig{
			BaseURL: "http://localhost:8000/api",
			Mode:    "foot",
		},
		Guidance: GuidanceConfig{
			ProximityMeters: 20,
			VoiceEnabled:    false,
		},
		Location: LocationConfig{
			HighAccuracy: true,
			Timeout:      10 * time.Second,
		},
		Store: StoreConfig{
			Path: "wayfinder_state.json",
		},
	}
}
