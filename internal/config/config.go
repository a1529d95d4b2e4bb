// Package config loads diod's configuration from defaults, an optional YAML
// file, environment variables, and CLI flags, in that increasing order of
// precedence — the same layering and library stack (viper + mapstructure +
// go-playground/validator) the teacher uses for its own Config (spec.md §6's
// CLI surface; SPEC_FULL.md §3.2).
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/marmos91/diod/internal/bytesize"
)

// Config is the fully-resolved set of knobs spec.md §6's CLI surface names.
type Config struct {
	// Listen is the set of TCP (`host:port`) or Unix-socket (absolute path)
	// endpoints to accept connections on; a `tcp:` or `unix:` prefix is
	// also accepted. May be empty if RfdNo/WfdNo are
	// set instead.
	Listen []string `mapstructure:"listen" validate:"dive,required"`

	// RfdNo/WfdNo, when both non-zero, make the server serve one
	// pre-connected transport on those fds instead of listening.
	RfdNo int `mapstructure:"rfdno"`
	WfdNo int `mapstructure:"wfdno"`

	// NumWorkers sizes the worker pool (spec.md §4.7, default 16).
	NumWorkers int `mapstructure:"nwthreads" validate:"gte=0"`

	// Msize is the server's maximum proposed msize for version
	// negotiation (spec.md §4.6).
	Msize bytesize.ByteSize `mapstructure:"msize"`

	// Exports lists permitted export paths. ExportAll, if set, permits
	// exporting any mounted filesystem and Exports is ignored for
	// authorization purposes (still used for `ctl/exports` listing of
	// explicitly configured entries).
	Exports   []string `mapstructure:"export"`
	ExportAll bool     `mapstructure:"export-all"`

	// ExportOpts is the raw per-export option CSV (e.g.
	// "sharefd,sharepath,privport,ro"), parsed by pkg/export.
	ExportOpts string `mapstructure:"export-opts"`

	// ExportFile, if set, names a YAML document of per-export entries
	// (see LoadExportFile) that are merged with Exports/ExportOpts.
	ExportFile string `mapstructure:"export-file"`

	NoAuth     bool   `mapstructure:"no-auth"`
	NoUserDB   bool   `mapstructure:"no-userdb"`
	RunAsUID   int64  `mapstructure:"runas-uid" validate:"gte=-1"`
	AllSquash  bool   `mapstructure:"allsquash"`
	SquashUser string `mapstructure:"squashuser"`

	// UserCacheSize bounds the identity.Store LRU caches.
	UserCacheSize int `mapstructure:"user-cache-size" validate:"gte=0"`

	LogLevel  string `mapstructure:"log-level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log-format" validate:"oneof=text json"`

	ConfigFile string `mapstructure:"config-file"`
}

// Defaults mirrors diod's historical command-line defaults.
func Defaults() Config {
	return Config{
		NumWorkers:    16,
		Msize:         bytesize.ByteSize(64 * 1024),
		SquashUser:    "nobody",
		UserCacheSize: 1024,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load resolves a Config from defaults, an optional file at configFile (if
// non-empty), environment variables prefixed DIOD_, and flags already bound
// into v by the caller (cmd/diod binds cobra/pflag flags into the same
// viper instance before calling Load, so flags win over everything else).
func Load(v *viper.Viper, configFile string) (*Config, error) {
	defaults := Defaults()
	v.SetDefault("nwthreads", defaults.NumWorkers)
	v.SetDefault("msize", int64(defaults.Msize))
	v.SetDefault("squashuser", defaults.SquashUser)
	v.SetDefault("user-cache-size", defaults.UserCacheSize)
	v.SetDefault("log-level", defaults.LogLevel)
	v.SetDefault("log-format", defaults.LogFormat)

	v.SetEnvPrefix("diod")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.ConfigFile = configFile

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return &cfg, nil
}

var validate = validator.New()
