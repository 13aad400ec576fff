package app

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Viper keys. Flags bound to these names override everything else.
const (
	KeyHome          = "home"
	KeyRelayURL      = "relay_url"
	KeyDatabase      = "database"
	KeyPassphrase    = "passphrase"
	KeyLogLevel      = "log_level"
	KeyDeviceName    = "device_name"
	KeyLinkAndSync   = "link_and_sync"
	KeyPeerExtraKey  = "peer_extra_key"
	KeyPollPerSecond = "poll_per_second"
	KeyHTTPTimeout   = "http_timeout"
	KeyScryptN       = "scrypt_n"
)

const (
	envPrefix      = "CIPHERLINK"
	configFileName = "config.yaml"
	recordsDBName  = "records.db"
)

// ErrInvalidConfig is returned by LoadConfig for unusable values.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds runtime wiring options for building the app.
type Config struct {
	Home          string        // config directory, e.g. $HOME/.cipherlink
	RelayURL      string        // coordination service base URL, e.g. http://127.0.0.1:8080
	Database      string        // account record DSN, sqlite://<path> or postgres://...
	Passphrase    string        // key store passphrase
	LogLevel      string        // trace, debug, info, warn or error
	DeviceName    string        // name a linked device registers under
	LinkAndSync   bool          // offer or accept link-and-sync
	PeerExtraKey  bool          // attach the peer extra public key when provisioning
	PollPerSecond int           // mailbox poll rate while awaiting a link
	HTTPTimeout   time.Duration // per-request timeout towards the relay
	ScryptN       int           // key store scrypt cost
	HTTP          *http.Client  // optional; built from HTTPTimeout when nil
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	home := ".cipherlink"
	if dir, err := os.UserHomeDir(); err == nil {
		home = filepath.Join(dir, ".cipherlink")
	}
	v.SetDefault(KeyHome, home)
	v.SetDefault(KeyRelayURL, "http://127.0.0.1:8080")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyDeviceName, "cipherlink")
	v.SetDefault(KeyLinkAndSync, false)
	v.SetDefault(KeyPeerExtraKey, false)
	v.SetDefault(KeyPollPerSecond, 2)
	v.SetDefault(KeyHTTPTimeout, 15*time.Second)
	v.SetDefault(KeyScryptN, 1<<15)
}

// LoadConfig resolves a Config from v. Environment variables use the
// CIPHERLINK_ prefix, and <home>/config.yaml is read when present.
func LoadConfig(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	home := v.GetString(KeyHome)
	path := filepath.Join(home, configFileName)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read %s", path)
		}
	}

	cfg := Config{
		Home:          home,
		RelayURL:      strings.TrimRight(v.GetString(KeyRelayURL), "/"),
		Database:      v.GetString(KeyDatabase),
		Passphrase:    v.GetString(KeyPassphrase),
		LogLevel:      strings.ToLower(v.GetString(KeyLogLevel)),
		DeviceName:    v.GetString(KeyDeviceName),
		LinkAndSync:   v.GetBool(KeyLinkAndSync),
		PeerExtraKey:  v.GetBool(KeyPeerExtraKey),
		PollPerSecond: v.GetInt(KeyPollPerSecond),
		HTTPTimeout:   v.GetDuration(KeyHTTPTimeout),
		ScryptN:       v.GetInt(KeyScryptN),
	}
	if cfg.Database == "" {
		cfg.Database = "sqlite://" + filepath.Join(home, recordsDBName)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values NewWire depends on.
func (c Config) Validate() error {
	if c.Home == "" {
		return errors.Wrap(ErrInvalidConfig, "home is empty")
	}
	if _, ok := logThresholds[c.LogLevel]; !ok {
		return errors.Wrapf(ErrInvalidConfig, "unknown log level %q", c.LogLevel)
	}
	if c.PollPerSecond <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "poll_per_second must be positive, got %d", c.PollPerSecond)
	}
	if c.HTTPTimeout <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "http_timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.ScryptN < 2 || c.ScryptN&(c.ScryptN-1) != 0 {
		return errors.Wrapf(ErrInvalidConfig, "scrypt_n must be a power of two above 1, got %d", c.ScryptN)
	}
	return nil
}
