package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Client config keys. Each is also read from BACKOFFICE_<KEY>.
const (
	KeyAPIURL     = "api_url"
	KeyUserID     = "user_id"
	KeyTimeout    = "timeout"
	KeyStaleTime  = "stale_time"
	KeyGCTime     = "gc_time"
	KeyPageSize   = "page_size"
	KeyLogLevel   = "log_level"
	KeyTracing    = "tracing"
	clientEnvPref = "BACKOFFICE"
)

// ClientConfig configures the back-office client library and CLI.
type ClientConfig struct {
	APIURL    string        // base URL including the versioned prefix
	UserID    string        // sent as X-User-ID
	Timeout   time.Duration // per request
	StaleTime time.Duration // 0 = fresh until invalidated
	GCTime    time.Duration // idle time before an unobserved entry is dropped
	PageSize  int
	LogLevel  string
	Tracing   bool
}

// NewClientViper returns a viper instance with client defaults and
// environment binding applied.
func NewClientViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyAPIURL, "http://localhost:8080/api/v1")
	v.SetDefault(KeyUserID, "")
	v.SetDefault(KeyTimeout, "10s")
	v.SetDefault(KeyStaleTime, "0s")
	v.SetDefault(KeyGCTime, "5m")
	v.SetDefault(KeyPageSize, 10)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyTracing, false)
	v.SetEnvPrefix(clientEnvPref)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadClientFile merges the given config file into v. An empty path looks
// for backoffice.yaml in the working directory; a missing default file is
// not an error.
func ReadClientFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}
	v.SetConfigName("backoffice")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// LoadClient decodes and validates the client config held by v.
func LoadClient(v *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		APIURL:    strings.TrimRight(strings.TrimSpace(v.GetString(KeyAPIURL)), "/"),
		UserID:    strings.TrimSpace(v.GetString(KeyUserID)),
		Timeout:   v.GetDuration(KeyTimeout),
		StaleTime: v.GetDuration(KeyStaleTime),
		GCTime:    v.GetDuration(KeyGCTime),
		PageSize:  v.GetInt(KeyPageSize),
		LogLevel:  strings.ToLower(v.GetString(KeyLogLevel)),
		Tracing:   v.GetBool(KeyTracing),
	}

	if cfg.APIURL == "" {
		return cfg, errors.New("api_url must not be empty")
	}
	if !strings.HasPrefix(cfg.APIURL, "http://") && !strings.HasPrefix(cfg.APIURL, "https://") {
		return cfg, errors.New("api_url must be an http(s) URL")
	}
	if cfg.Timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.StaleTime < 0 {
		return cfg, errors.New("stale_time must be >= 0")
	}
	if cfg.GCTime <= 0 {
		return cfg, errors.New("gc_time must be > 0")
	}
	if cfg.PageSize < 1 {
		return cfg, errors.New("page_size must be >= 1")
	}
	return cfg, nil
}
