package configfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "clankers.json")
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(testConfigPath(t))
	require.NoError(t, err)

	assert.Equal(t, DefaultProfileName, cfg.ActiveProfile)
	require.Contains(t, cfg.Profiles, DefaultProfileName)

	profile := cfg.GetActiveProfile()
	assert.False(t, profile.SyncEnabled)
	assert.Equal(t, 30, profile.SyncInterval)
	assert.Equal(t, "none", profile.AuthMode)
	assert.Empty(t, profile.Endpoint)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := testConfigPath(t)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, cfg.SetValue("endpoint", "https://sync.example.com"))
	require.NoError(t, cfg.SetValue("sync_interval", "60"))
	cfg.CreateProfile("work")
	require.NoError(t, cfg.Save())

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.ActiveProfile, loaded.ActiveProfile)
	assert.Equal(t, cfg.Profiles, loaded.Profiles)
	assert.Contains(t, loaded.Profiles, "work")
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "clankers.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Save())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := testConfigPath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRepairsMissingPieces(t *testing.T) {
	path := testConfigPath(t)
	// Active profile points at a profile that does not exist.
	require.NoError(t, os.WriteFile(path, []byte(`{"profiles":{},"active_profile":"gone"}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultProfileName, cfg.ActiveProfile)
	assert.Contains(t, cfg.Profiles, DefaultProfileName)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("endpoint replaces", func(t *testing.T) {
		t.Setenv("CLANKERS_ENDPOINT", "https://env.example.com")

		cfg, err := Load(testConfigPath(t))
		require.NoError(t, err)
		assert.Equal(t, "https://env.example.com", cfg.GetActiveProfile().Endpoint)
	})

	t.Run("sync_enabled parses", func(t *testing.T) {
		t.Setenv("CLANKERS_SYNC_ENABLED", "true")

		cfg, err := Load(testConfigPath(t))
		require.NoError(t, err)
		assert.True(t, cfg.GetActiveProfile().SyncEnabled)
	})

	t.Run("invalid boolean leaves field unchanged", func(t *testing.T) {
		t.Setenv("CLANKERS_SYNC_ENABLED", "maybe")

		cfg, err := Load(testConfigPath(t))
		require.NoError(t, err)
		assert.False(t, cfg.GetActiveProfile().SyncEnabled)
	})
}

func TestGetSetValue(t *testing.T) {
	cfg, err := Load(testConfigPath(t))
	require.NoError(t, err)

	require.NoError(t, cfg.SetValue("sync_enabled", "true"))
	v, err := cfg.GetValue("sync_enabled")
	require.NoError(t, err)
	assert.Equal(t, "true", v)

	require.NoError(t, cfg.SetValue("auth", "none"))
	v, err = cfg.GetValue("auth")
	require.NoError(t, err)
	assert.Equal(t, "none", v)

	t.Run("strict boolean parse", func(t *testing.T) {
		err := cfg.SetValue("sync_enabled", "yes please")
		var invalid *InvalidValueError
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("strict integer parse", func(t *testing.T) {
		err := cfg.SetValue("sync_interval", "soon")
		var invalid *InvalidValueError
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("unknown key", func(t *testing.T) {
		assert.Error(t, cfg.SetValue("nope", "1"))
		_, err := cfg.GetValue("nope")
		assert.Error(t, err)
	})
}

func TestProfiles(t *testing.T) {
	cfg, err := Load(testConfigPath(t))
	require.NoError(t, err)

	cfg.CreateProfile("work")
	require.NoError(t, cfg.SetActiveProfile("work"))
	assert.Equal(t, "work", cfg.ActiveProfile)

	t.Run("create existing is a no-op", func(t *testing.T) {
		require.NoError(t, cfg.SetValue("sync_interval", "90"))
		cfg.CreateProfile("work")
		assert.Equal(t, 90, cfg.GetActiveProfile().SyncInterval)
	})

	t.Run("switch to unknown profile", func(t *testing.T) {
		err := cfg.SetActiveProfile("missing")
		assert.True(t, errors.Is(err, ErrProfileNotFound))
	})

	t.Run("deleting active falls back to default", func(t *testing.T) {
		require.NoError(t, cfg.DeleteProfile("work"))
		assert.Equal(t, DefaultProfileName, cfg.ActiveProfile)
	})

	t.Run("default is protected", func(t *testing.T) {
		err := cfg.DeleteProfile(DefaultProfileName)
		assert.True(t, errors.Is(err, ErrProtectedProfile))
	})

	t.Run("deleting unknown profile", func(t *testing.T) {
		err := cfg.DeleteProfile("missing")
		assert.True(t, errors.Is(err, ErrProfileNotFound))
	})
}
