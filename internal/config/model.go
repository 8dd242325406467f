// internal/config/model.go
//
// Typed configuration model for knit.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                        – dotenv values,
//   • `conf/global.yaml`                     – primary static file,
//   • `KNIT_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.  Koanf ignores `yaml`
//     tags unless configured otherwise.
//   • Durations accept Go syntax ("90s", "30m").
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

import (
	"fmt"
	"strings"
	"time"
)

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr      string        `koanf:"listen_addr"      validate:"required,hostname_port"`
	ForceHTTPS      bool          `koanf:"force_https"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	SubmitRate      float64       `koanf:"submit_rate"      validate:"gte=0"` // per IP per second, 0 disables
	SubmitBurst     int           `koanf:"submit_burst"     validate:"gte=0"`
}

//
// Forms section
//

// Forms configures definitions and the live instance registry.
type Forms struct {
	Dir            string        `koanf:"dir"             validate:"required"`
	InstanceKey    string        `koanf:"instance_key"`
	IdleTTL        time.Duration `koanf:"idle_ttl"        validate:"gte=0"`
	MaxInstances   int           `koanf:"max_instances"   validate:"gte=0"`
	SimulatedDelay time.Duration `koanf:"simulated_delay" validate:"gte=0"`
	Endpoint       string        `koanf:"endpoint"        validate:"omitempty,url"` // fallback for forms without one
}

//
// Session section
//

// Session selects and tunes the session store.
type Session struct {
	Store         string        `koanf:"store"          validate:"oneof=memory redis"`
	RedisAddr     string        `koanf:"redis_addr"     validate:"required_if=Store redis"`
	RedisPassword string        `koanf:"redis_password"`
	TTL           time.Duration `koanf:"ttl"            validate:"gte=0"`
	Secure        bool          `koanf:"secure"`
}

//
// Database section
//

// Database configures the optional submission archive.  An empty DSN
// disables it.
//
// The DSN template stays in YAML so operators can tweak host, port, or
// flags without touching Vault.  The password is usually a `vault:`
// reference and is injected into the DSN's single %s verb at runtime.
type Database struct {
	DSN      string `koanf:"dsn"      validate:"dsn"`
	Password string `koanf:"password"`
	Table    string `koanf:"table"`
}

// ConnString injects Password into the DSN template.  A DSN without a %s
// verb is returned unchanged.
func (d Database) ConnString() string {
	if !strings.Contains(d.DSN, "%s") {
		return d.DSN
	}
	return fmt.Sprintf(d.DSN, d.Password)
}

//
// Geo section
//

// Geo points at an optional GeoLite2-City database.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

//
// Log section
//

// Log toggles console tee and analytics logging.
type Log struct {
	Tee       bool `koanf:"tee"`
	Analytics bool `koanf:"analytics"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.  The loader
// discovers `Root` (repo root or KNIT_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Forms    Forms    `koanf:"forms"`
	Session  Session  `koanf:"session"`
	Database Database `koanf:"database"`
	Geo      Geo      `koanf:"geo"`
	Log      Log      `koanf:"log"`
	Paths    Paths    `koanf:"-"`
}
