package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usiu-smartnav/wayfinder/internal/lib/geo"
)

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wayfinder.json")
	s, err := Open(path)
	require.NoError(t, err)
	return s, path
}

func TestOpen_MissingFileStartsEmpty(t *testing.T) {
	s, _ := tempStore(t)
	assert.Empty(t, s.Sessions())

	_, ok := s.LastKnownLocation()
	assert.False(t, ok)
}

func TestDeviceID_GeneratedOnceAndPersisted(t *testing.T) {
	s, path := tempStore(t)

	id, err := s.DeviceID()
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err, "device id should be a uuid")

	again, err := s.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, id, again)

	// A reopened store must keep the same identity
	reopened, err := Open(path)
	require.NoError(t, err)
	persisted, err := reopened.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, id, persisted)
}

func TestSessions_MutationsPersistImmediately(t *testing.T) {
	s, path := tempStore(t)

	require.NoError(t, s.PutSession(5, "token-5"))
	require.NoError(t, s.PutSession(9, "token-9"))
	require.NoError(t, s.DeleteSession(9))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{5: "token-5"}, reopened.Sessions())
}

func TestReplaceSessions(t *testing.T) {
	s, path := tempStore(t)

	require.NoError(t, s.PutSession(5, "stale"))
	require.NoError(t, s.ReplaceSessions(map[int64]string{7: "fresh"}))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{7: "fresh"}, reopened.Sessions())
}

func TestLastKnownLocation_RoundTrip(t *testing.T) {
	s, path := tempStore(t)

	fix := geo.Point{Lat: -1.2197, Lng: 36.8784}
	require.NoError(t, s.SetLastKnownLocation(fix))

	got, ok := s.LastKnownLocation()
	require.True(t, ok)
	assert.Equal(t, fix, got)

	reopened, err := Open(path)
	require.NoError(t, err)
	got, ok = reopened.LastKnownLocation()
	require.True(t, ok)
	assert.Equal(t, fix, got)
}

func TestSave_LeavesNoTempFile(t *testing.T) {
	s, path := tempStore(t)
	require.NoError(t, s.PutSession(1, "t"))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
