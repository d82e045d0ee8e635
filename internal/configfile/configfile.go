// Package configfile manages the clankers.json profile store.
//
// The file holds named profiles plus the name of the active one. The
// in-memory Config is the source of truth for the life of the process;
// Save writes back to the path the Config was loaded from.
package configfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dxta-dev/clankers/internal/paths"
)

const DefaultProfileName = "default"

var (
	// ErrProfileNotFound is returned when a named profile does not exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrProtectedProfile is returned on attempts to delete the default profile.
	ErrProtectedProfile = errors.New("cannot delete the 'default' profile")
)

// InvalidValueError reports a config value that failed strict parsing.
type InvalidValueError struct {
	Key   string
	Value string
	Err   error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %v", e.Value, e.Key, e.Err)
}

func (e *InvalidValueError) Unwrap() error { return e.Err }

// Profile is one named configuration bundle.
type Profile struct {
	Endpoint     string `json:"endpoint,omitempty"`
	SyncEnabled  bool   `json:"sync_enabled"`
	SyncInterval int    `json:"sync_interval"` // seconds
	AuthMode     string `json:"auth"`          // only "none" is defined
}

// Config is the persisted profile set. path records where the config was
// loaded from so Save writes back to the same place.
type Config struct {
	Profiles      map[string]Profile `json:"profiles"`
	ActiveProfile string             `json:"active_profile"`

	path string
}

func DefaultProfile() Profile {
	return Profile{
		SyncEnabled:  false,
		SyncInterval: 30,
		AuthMode:     "none",
	}
}

func DefaultConfig() *Config {
	return &Config{
		Profiles: map[string]Profile{
			DefaultProfileName: DefaultProfile(),
		},
		ActiveProfile: DefaultProfileName,
		path:          paths.ConfigPath(),
	}
}

// Load reads the config from path, or from paths.ConfigPath() when path is
// empty. A missing file yields the default config. Environment overrides
// (CLANKERS_ENDPOINT, CLANKERS_SYNC_ENABLED) are applied to the active
// profile after parsing; an unparseable boolean leaves the field alone.
func Load(path string) (*Config, error) {
	if path == "" {
		path = paths.ConfigPath()
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.path = path
		cfg.applyEnvOverrides()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.path = path

	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	if _, ok := cfg.Profiles[DefaultProfileName]; !ok {
		cfg.Profiles[DefaultProfileName] = DefaultProfile()
	}
	if _, ok := cfg.Profiles[cfg.ActiveProfile]; !ok {
		cfg.ActiveProfile = DefaultProfileName
	}

	cfg.applyEnvOverrides()

	return &cfg, nil
}

// Save writes the config with indented JSON, creating the parent
// directory if needed.
func (c *Config) Save() error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Path returns where the config was loaded from.
func (c *Config) Path() string { return c.path }

// GetActiveProfile returns a copy of the active profile.
func (c *Config) GetActiveProfile() Profile {
	profile, ok := c.Profiles[c.ActiveProfile]
	if !ok {
		return DefaultProfile()
	}
	return profile
}

// SetActiveProfile switches the active profile.
func (c *Config) SetActiveProfile(name string) error {
	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	c.ActiveProfile = name
	return nil
}

// GetValue returns the string form of a key on the active profile.
func (c *Config) GetValue(key string) (string, error) {
	profile := c.GetActiveProfile()

	switch key {
	case "endpoint":
		return profile.Endpoint, nil
	case "sync_enabled":
		return strconv.FormatBool(profile.SyncEnabled), nil
	case "sync_interval":
		return strconv.Itoa(profile.SyncInterval), nil
	case "auth":
		return profile.AuthMode, nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// SetValue parses and sets a key on the active profile. Boolean and
// integer parses are strict.
func (c *Config) SetValue(key, value string) error {
	profile := c.GetActiveProfile()

	switch key {
	case "endpoint":
		profile.Endpoint = value
	case "sync_enabled":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return &InvalidValueError{Key: key, Value: value, Err: err}
		}
		profile.SyncEnabled = enabled
	case "sync_interval":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return &InvalidValueError{Key: key, Value: value, Err: err}
		}
		profile.SyncInterval = interval
	case "auth":
		profile.AuthMode = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}

	c.Profiles[c.ActiveProfile] = profile
	return nil
}

// CreateProfile adds a profile initialised from defaults. Creating a name
// that already exists is a no-op.
func (c *Config) CreateProfile(name string) {
	if _, ok := c.Profiles[name]; ok {
		return
	}
	c.Profiles[name] = DefaultProfile()
}

// DeleteProfile removes a profile. The default profile is protected. If
// the deleted profile was active, the default becomes active.
func (c *Config) DeleteProfile(name string) error {
	if name == DefaultProfileName {
		return ErrProtectedProfile
	}
	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	delete(c.Profiles, name)
	if c.ActiveProfile == name {
		c.ActiveProfile = DefaultProfileName
	}
	return nil
}

// ProfileNames returns the profile names in no particular order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	return names
}

func (c *Config) applyEnvOverrides() {
	profile := c.GetActiveProfile()

	if v := os.Getenv("CLANKERS_ENDPOINT"); v != "" {
		profile.Endpoint = v
	}
	if v := os.Getenv("CLANKERS_SYNC_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			profile.SyncEnabled = enabled
		}
	}

	c.Profiles[c.ActiveProfile] = profile
}
