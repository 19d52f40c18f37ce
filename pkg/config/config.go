// Package config holds the worker configuration: versioned store names,
// eviction policies, the install manifest, and routing predicates. The
// configuration is built once and passed into components at construction;
// nothing reads it through globals.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eduportal/offline-worker/pkg/policy"
)

// StoreNames are the versioned names of the three logical stores. Bumping a
// version suffix is the only supported migration mechanism: stores whose
// names fall outside the current set are destroyed on activation.
type StoreNames struct {
	Static  string `yaml:"static"`
	Dynamic string `yaml:"dynamic"`
	API     string `yaml:"api"`
}

// Current returns the active version set.
func (n StoreNames) Current() []string {
	return []string{n.Static, n.Dynamic, n.API}
}

// Contains reports whether name belongs to the active version set.
func (n StoreNames) Contains(name string) bool {
	return name == n.Static || name == n.Dynamic || name == n.API
}

// Policies holds the eviction policies for the governed stores.
// The dynamic page store is deliberately not governed.
type Policies struct {
	API    policy.Policy `yaml:"api"`
	Static policy.Policy `yaml:"static"`
}

// Config is the full worker configuration.
type Config struct {
	// Listen is the gateway listen address (e.g. ":8080").
	Listen string `yaml:"listen"`

	// Origin is the base URL of the application shell's origin server.
	// Relative intercepted requests are resolved against it.
	Origin string `yaml:"origin"`

	// Backend selects the store backend: "memory", "redis" or "leveldb".
	Backend string `yaml:"backend"`

	// RedisAddr is the Redis address when Backend is "redis".
	RedisAddr string `yaml:"redis_addr"`

	// LevelDBPath is the database directory when Backend is "leveldb".
	LevelDBPath string `yaml:"leveldb_path"`

	Stores   StoreNames `yaml:"stores"`
	Policies Policies   `yaml:"policies"`

	// PrecacheManifest is the fixed list of root-relative shell paths
	// written into the static store at install time.
	PrecacheManifest []string `yaml:"precache_manifest"`

	// StaticExtensions is the file extension allow-list for static assets.
	StaticExtensions []string `yaml:"static_extensions"`

	// APIPrefix routes requests whose path starts with it to the API store.
	APIPrefix string `yaml:"api_prefix"`

	// BackendHost routes requests whose hostname contains it to the API
	// store, regardless of path.
	BackendHost string `yaml:"backend_host"`

	// MaintenanceSchedule is the cron spec for the periodic trim sweep of
	// the governed stores. Empty disables the sweep.
	MaintenanceSchedule string `yaml:"maintenance_schedule"`
}

// DefaultConfig returns the stock worker configuration.
func DefaultConfig() Config {
	return Config{
		Listen:  ":8080",
		Origin:  "http://localhost:3000",
		Backend: "memory",
		Stores: StoreNames{
			Static:  "static-v1",
			Dynamic: "dynamic-v1",
			API:     "api-v1",
		},
		Policies: Policies{
			API:    policy.Policy{MaxEntries: 100, MaxAge: 5 * time.Minute},
			Static: policy.Policy{MaxEntries: 200, MaxAge: 24 * time.Hour},
		},
		PrecacheManifest: []string{
			"/",
			"/index.html",
			"/manifest.json",
			"/favicon.ico",
		},
		StaticExtensions: []string{
			".js", ".css", ".png", ".jpg", ".jpeg", ".gif",
			".svg", ".woff", ".woff2", ".ttf", ".eot",
		},
		APIPrefix:           "/api/",
		BackendHost:         "supabase.co",
		MaintenanceSchedule: "@every 10m",
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.Origin == "" {
		return fmt.Errorf("origin is required")
	}
	if !strings.HasPrefix(c.Origin, "http://") && !strings.HasPrefix(c.Origin, "https://") {
		return fmt.Errorf("origin must be an http(s) URL, got %q", c.Origin)
	}
	switch c.Backend {
	case "memory", "redis", "leveldb":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required for the redis backend")
	}
	if c.Backend == "leveldb" && c.LevelDBPath == "" {
		return fmt.Errorf("leveldb_path is required for the leveldb backend")
	}
	for _, name := range c.Stores.Current() {
		if name == "" {
			return fmt.Errorf("store names must not be empty")
		}
	}
	if c.Policies.API.MaxEntries <= 0 || c.Policies.Static.MaxEntries <= 0 {
		return fmt.Errorf("policy max_entries must be positive")
	}
	return nil
}
