// Package cache provides a thread-safe in-memory TTL cache for backend
// responses: feature collections are fetched once per session, floor
// listings and indoor graphs per building or floor as the user explores.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/usiu-smartnav/wayfinder/internal/campus"
	campusclient "github.com/usiu-smartnav/wayfinder/internal/clients/campus"
)

// Cache stores JSON-serialized entries with per-entry TTLs.
type Cache struct {
	entries map[string]*Entry
	mutex   sync.RWMutex
}

// Entry is one cached item with its freshness metadata.
type Entry struct {
	Key       string        `json:"key"`
	Data      []byte        `json:"data"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	TTL       time.Duration `json:"ttl"`
	Source    string        `json:"source"`
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*Entry)}
}

// Set stores data under key for the given TTL.
func (c *Cache) Set(key string, data interface{}, ttl time.Duration, source string) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data for cache: %w", err)
	}

	now := time.Now()
	entry := &Entry{
		Key:       key,
		Data:      jsonData,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		TTL:       ttl,
		Source:    source,
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[key] = entry
	return nil
}

// Get retrieves fresh data into result; the bool is false on a miss or a
// stale entry.
func (c *Cache) Get(key string, result interface{}) (bool, error) {
	c.mutex.RLock()
	entry, exists := c.entries[key]
	c.mutex.RUnlock()

	if !exists || c.IsStale(key) {
		return false, nil
	}

	if err := json.Unmarshal(entry.Data, result); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return true, nil
}

// IsStale reports whether the entry is missing or past expiration.
func (c *Cache) IsStale(key string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.entries[key]
	if !exists {
		return true
	}
	return time.Now().After(entry.ExpiresAt)
}

// Delete removes an entry.
func (c *Cache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[string]*Entry)
}

// CleanupStale removes expired entries and returns how many were dropped.
func (c *Cache) CleanupStale() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	var removed int
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// StartPeriodicCleanup runs CleanupStale on a ticker until ctx ends.
func (c *Cache) StartPeriodicCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err, _ := errors.ParseStack(debug.Stack())
				skipFrames := 3
				numFrames := 5
				logging.Errorw(ctx, "Cache cleanup: recovered from panic",
					"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.CleanupStale()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Typed helpers for the backend responses the client caches.

// SetFeatures caches one category's feature collection.
func (c *Cache) SetFeatures(category string, features []campus.Feature, ttl time.Duration) error {
	return c.Set("features:"+category, features, ttl, "campus")
}

// GetFeatures retrieves a cached feature collection by category.
func (c *Cache) GetFeatures(category string) ([]campus.Feature, bool, error) {
	var features []campus.Feature
	found, err := c.Get("features:"+category, &features)
	if err != nil || !found {
		return nil, false, err
	}
	return features, true, nil
}

// SetFloors caches a building's floor listing.
func (c *Cache) SetFloors(buildingID int64, floors []campus.Floor, ttl time.Duration) error {
	return c.Set(fmt.Sprintf("floors:%d", buildingID), floors, ttl, "campus")
}

// GetFloors retrieves a cached floor listing.
func (c *Cache) GetFloors(buildingID int64) ([]campus.Floor, bool, error) {
	var floors []campus.Floor
	found, err := c.Get(fmt.Sprintf("floors:%d", buildingID), &floors)
	if err != nil || !found {
		return nil, false, err
	}
	return floors, true, nil
}

// SetIndoorGraph caches a floor's indoor path graph.
func (c *Cache) SetIndoorGraph(floorID int64, graph *campusclient.IndoorGraph, ttl time.Duration) error {
	return c.Set(fmt.Sprintf("indoor_graph:%d", floorID), graph, ttl, "campus")
}

// GetIndoorGraph retrieves a cached indoor path graph.
func (c *Cache) GetIndoorGraph(floorID int64) (*campusclient.IndoorGraph, bool, error) {
	var graph campusclient.IndoorGraph
	found, err := c.Get(fmt.Sprintf("indoor_graph:%d", floorID), &graph)
	if err != nil || !found {
		return nil, false, err
	}
	return &graph, true, nil
}
