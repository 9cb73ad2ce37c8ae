// Package config loads the securecomm configuration: defaults, then an optional YAML
// file, then SECURECOMM_* environment variables.
package config

import (
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by KeystoreConfig.Backend & PrefsConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Config gathers the settings of every securecomm component.
type Config struct {
	Keystore KeystoreConfig
	Prefs    PrefsConfig
	Channel  ChannelConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// KeystoreConfig selects the KeyCustody holding identity & record keys.
type KeystoreConfig struct {
	Backend string // memory | bolt
	Path    string
	// PassphraseEnv names the environment variable holding the bolt keystore passphrase.
	PassphraseEnv string
}

// PrefsConfig selects the namespace persisting custody records.
type PrefsConfig struct {
	Backend string // memory | bolt | postgres
	Path    string
	DSN     string
	// Schema is the postgres schema holding the custody_record table, created if missing.
	Schema    string
	Namespace string
}

// ChannelConfig holds the engine & channel options.
type ChannelConfig struct {
	IdentityAlias string
	HKDFInfo      string
	ReplayWindow  int
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string // debug | info | warn | error
	Format string // text | json
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address serving /metrics, disabled when empty.
	Listen string
}

// DefaultConfig returns an in memory configuration suitable for tests & demos.
func DefaultConfig() Config {
	return Config{
		Keystore: KeystoreConfig{
			Backend:       BackendMemory,
			Path:          "securecomm-keys.db",
			PassphraseEnv: "SECURECOMM_PASSPHRASE",
		},
		Prefs: PrefsConfig{
			Backend:   BackendMemory,
			Path:      "securecomm-prefs.db",
			Schema:    "securecomm",
			Namespace: "secure_storage",
		},
		Channel: ChannelConfig{
			IdentityAlias: "securecomm_ec_keypair",
			HKDFInfo:      "SecureComm-SessionKey/v1",
			ReplayWindow:  128,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// FileConfig is the YAML file layout, zero values keep the defaults.
type FileConfig struct {
	Keystore struct {
		Backend       string `yaml:"backend"`
		Path          string `yaml:"path"`
		PassphraseEnv string `yaml:"passphraseEnv"`
	} `yaml:"keystore"`
	Prefs struct {
		Backend   string `yaml:"backend"`
		Path      string `yaml:"path"`
		DSN       string `yaml:"dsn"`
		Schema    string `yaml:"schema"`
		Namespace string `yaml:"namespace"`
	} `yaml:"prefs"`
	Channel struct {
		IdentityAlias string `yaml:"identityAlias"`
		HKDFInfo      string `yaml:"hkdfInfo"`
		ReplayWindow  int    `yaml:"replayWindow"`
	} `yaml:"channel"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
}

// LoadFromPath returns DefaultConfig merged with the YAML file at configPath and the environment.
// An empty configPath skips the file. The result is validated.
func LoadFromPath(configPath string) (Config, error) {
	cfg := DefaultConfig()

	if "" != configPath {
		data, err := os.ReadFile(configPath)
		if nil != err {
			return cfg, wrapError(err, "failed reading %s", configPath)
		}
		var parsed FileConfig
		if err = yaml.Unmarshal(data, &parsed); nil != err {
			return cfg, wrapError(err, "failed parsing %s", configPath)
		}
		Merge(&cfg, parsed)
	}
	ApplyEnvOverrides(&cfg)

	return cfg, cfg.Check()
}

// Merge copies the non zero values of src into dst.
func Merge(dst *Config, src FileConfig) {
	mergeString(&dst.Keystore.Backend, src.Keystore.Backend)
	mergeString(&dst.Keystore.Path, src.Keystore.Path)
	mergeString(&dst.Keystore.PassphraseEnv, src.Keystore.PassphraseEnv)
	mergeString(&dst.Prefs.Backend, src.Prefs.Backend)
	mergeString(&dst.Prefs.Path, src.Prefs.Path)
	mergeString(&dst.Prefs.DSN, src.Prefs.DSN)
	mergeString(&dst.Prefs.Schema, src.Prefs.Schema)
	mergeString(&dst.Prefs.Namespace, src.Prefs.Namespace)
	mergeString(&dst.Channel.IdentityAlias, src.Channel.IdentityAlias)
	mergeString(&dst.Channel.HKDFInfo, src.Channel.HKDFInfo)
	if 0 != src.Channel.ReplayWindow {
		dst.Channel.ReplayWindow = src.Channel.ReplayWindow
	}
	mergeString(&dst.Log.Level, src.Log.Level)
	mergeString(&dst.Log.Format, src.Log.Format)
	mergeString(&dst.Metrics.Listen, src.Metrics.Listen)
}

// ApplyEnvOverrides sets cfg fields from the SECURECOMM_* environment variables.
// Unparsable numeric values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	overrides := []struct {
		name string
		dst  *string
	}{
		{name: "SECURECOMM_KEYSTORE_BACKEND", dst: &cfg.Keystore.Backend},
		{name: "SECURECOMM_KEYSTORE_PATH", dst: &cfg.Keystore.Path},
		{name: "SECURECOMM_PREFS_BACKEND", dst: &cfg.Prefs.Backend},
		{name: "SECURECOMM_PREFS_PATH", dst: &cfg.Prefs.Path},
		{name: "SECURECOMM_PREFS_DSN", dst: &cfg.Prefs.DSN},
		{name: "SECURECOMM_PREFS_SCHEMA", dst: &cfg.Prefs.Schema},
		{name: "SECURECOMM_LOG_LEVEL", dst: &cfg.Log.Level},
		{name: "SECURECOMM_LOG_FORMAT", dst: &cfg.Log.Format},
		{name: "SECURECOMM_METRICS_LISTEN", dst: &cfg.Metrics.Listen},
	}
	for _, o := range overrides {
		mergeString(o.dst, strings.TrimSpace(os.Getenv(o.name)))
	}

	raw := strings.TrimSpace(os.Getenv("SECURECOMM_REPLAY_WINDOW"))
	if "" == raw {
		return
	}
	v, err := strconv.Atoi(raw)
	if nil != err {
		return
	}
	cfg.Channel.ReplayWindow = v
}

// Check errors with ErrInvalid if a value is out of its domain.
func (self Config) Check() error {
	if !slices.Contains([]string{BackendMemory, BackendBolt}, self.Keystore.Backend) {
		return newError(ErrInvalid, "unsupported keystore backend %q", self.Keystore.Backend)
	}
	if BackendBolt == self.Keystore.Backend && ("" == self.Keystore.Path || "" == self.Keystore.PassphraseEnv) {
		return newError(ErrInvalid, "bolt keystore requires path & passphraseEnv")
	}
	switch self.Prefs.Backend {
	case BackendMemory:
	case BackendBolt:
		if "" == self.Prefs.Path {
			return newError(ErrInvalid, "bolt prefs requires path")
		}
	case BackendPostgres:
		if "" == self.Prefs.DSN || "" == self.Prefs.Schema {
			return newError(ErrInvalid, "postgres prefs requires dsn & schema")
		}
	default:
		return newError(ErrInvalid, "unsupported prefs backend %q", self.Prefs.Backend)
	}
	if "" == self.Channel.IdentityAlias {
		return newError(ErrInvalid, "empty identity alias")
	}
	if self.Channel.ReplayWindow < 8 {
		return newError(ErrInvalid, "replay window %d < 8", self.Channel.ReplayWindow)
	}
	if !slices.Contains([]string{"text", "json"}, self.Log.Format) {
		return newError(ErrInvalid, "unsupported log format %q", self.Log.Format)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, self.Log.Level) {
		return newError(ErrInvalid, "unsupported log level %q", self.Log.Level)
	}

	return nil
}

// Passphrase returns the bolt keystore passphrase read from the environment.
func (self Config) Passphrase() []byte {
	return []byte(os.Getenv(self.Keystore.PassphraseEnv))
}

func mergeString(dst *string, src string) {
	if "" != src {
		*dst = src
	}
}
