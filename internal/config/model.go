// internal/config/model.go
//
// Typed configuration model.
//
// Context
// -------
// These structs define the shape of the tree that loader.go builds from
// three overlay layers:
//
//   - optional `.env`                          (dotenv values)
//   - `conf/global.yaml`                       (primary static file)
//   - `UNIPROFILE_`-prefixed environment vars  (highest precedence)
//
// Any string value beginning with `vault:` is resolved through the Vault
// client before unmarshalling, so the model only ever holds plain strings.
// Vault itself is configured by VAULT_ADDR and VAULT_TOKEN, read before
// this tree exists.
//
// Notes
// -----
//   - Struct tags use `koanf:"…"`; Koanf ignores `yaml` tags.
//   - `Paths` is filled at runtime; YAML must not set it.
package config

import "time"

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr   string `koanf:"listen_addr"   validate:"required,hostname_port"`
	EditorHeader string `koanf:"editor_header" validate:"required"`
}

// Database holds the DSN and pool sizing.  Password is usually a
// `vault:` reference and is spliced into DSN as its single %s verb.
type Database struct {
	DSN      string `koanf:"dsn"       validate:"required"`
	Password string `koanf:"password"`
	MaxOpen  int    `koanf:"max_open"  validate:"gte=0"`
	MaxIdle  int    `koanf:"max_idle"  validate:"gte=0"`
}

// Redis is the shared cache backend.  Addrs with more than one entry
// selects a cluster client.
type Redis struct {
	Addrs    []string `koanf:"addrs"`
	Password string   `koanf:"password"`
	DB       int      `koanf:"db" validate:"gte=0"`
}

// Cache selects and sizes the profile cache backend.
type Cache struct {
	Backend       string        `koanf:"backend"        validate:"oneof=redis memory"`
	TTL           time.Duration `koanf:"ttl"`
	MaxEntries    int           `koanf:"max_entries"    validate:"gte=0"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// Claims sizes the asynchronous claim dispatcher.
type Claims struct {
	QueueSize int           `koanf:"queue_size" validate:"gte=0"`
	Timeout   time.Duration `koanf:"timeout"`
}

// Geo points at the optional MaxMind database used for editor origin.
type Geo struct {
	GeoIPPath string `koanf:"geoip_path"`
}

// Paths is resolved at runtime.
type Paths struct {
	Root string // UNIPROFILE_ROOT or discovered parent
}

// Config is the immutable aggregate returned by Load().
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Redis    Redis    `koanf:"redis"`
	Cache    Cache    `koanf:"cache"`
	Claims   Claims   `koanf:"claims"`
	Geo      Geo      `koanf:"geo"`
	Paths    Paths    `koanf:"-"`
}
