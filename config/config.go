// Package config layers vdcollab settings: built-in defaults, then a YAML
// file, then VDCOLLAB_* environment variables, then command-line flags.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override. Nested keys join with an
// underscore, so api.url is read from VDCOLLAB_API_URL.
const EnvPrefix = "VDCOLLAB"

// FlagKeys maps command-line flag names to the setting each one overrides.
var FlagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"project":    "project_id",
	"token":      "token",
	"user-id":    "user_id",
	"api":        "api.url",
	"ws":         "realtime.url",
	"listen":     "relay.listen",
	"jwt-secret": "relay.jwt_secret",
}

// envAliases are short variable names accepted next to the derived ones.
var envAliases = map[string][]string{
	"realtime.url":           {"VDCOLLAB_REALTIME_URL", "VDCOLLAB_WS_URL"},
	"relay.listen":           {"VDCOLLAB_RELAY_LISTEN", "VDCOLLAB_LISTEN"},
	"relay.jwt_secret":       {"VDCOLLAB_RELAY_JWT_SECRET", "VDCOLLAB_JWT_SECRET"},
	"editor.symbol_debounce": {"VDCOLLAB_EDITOR_SYMBOL_DEBOUNCE", "VDCOLLAB_SYMBOL_DEBOUNCE"},
	"api.retry_attempts":     {"VDCOLLAB_API_RETRY_ATTEMPTS", "VDCOLLAB_RETRY_ATTEMPTS"},
}

// Config holds all settings.
type Config struct {
	Token     string `yaml:"token"`
	ProjectID string `yaml:"project_id"`
	UserID    string `yaml:"user_id"`

	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Editor   EditorConfig   `yaml:"editor"`
	Log      LogConfig      `yaml:"log"`
	Relay    RelayConfig    `yaml:"relay"`
}

// APIConfig configures the REST client.
type APIConfig struct {
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
}

// RealtimeConfig configures the room connection.
type RealtimeConfig struct {
	URL            string        `yaml:"url"`
	ReconnectMin   time.Duration `yaml:"reconnect_min"`
	ReconnectMax   time.Duration `yaml:"reconnect_max"`
	CursorInterval time.Duration `yaml:"cursor_interval"`
}

// EditorConfig configures the local session.
type EditorConfig struct {
	SymbolDebounce time.Duration `yaml:"symbol_debounce"`
	RecentLimit    int           `yaml:"recent_limit"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RelayConfig configures `vdcollab serve`.
type RelayConfig struct {
	Listen    string `yaml:"listen"`
	JWTSecret string `yaml:"jwt_secret"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		API: APIConfig{
			URL:           "http://localhost:5000",
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
		},
		Realtime: RealtimeConfig{
			URL:            "ws://localhost:5000/ws",
			ReconnectMin:   time.Second,
			ReconnectMax:   30 * time.Second,
			CursorInterval: 50 * time.Millisecond,
		},
		Editor: EditorConfig{
			SymbolDebounce: 300 * time.Millisecond,
			RecentLimit:    10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Relay: RelayConfig{
			Listen: "localhost:5000",
		},
	}
}

// Load resolves the settings. path names an optional YAML file and may be
// empty. flags, when not nil, contributes every flag listed in FlagKeys
// that the user set explicitly.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, errors.Wrapf(err, "bind env %s", key)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "bind flag --%s", name)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// setDefaults registers every key so environment variables are seen for
// keys the file does not mention.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("token", d.Token)
	v.SetDefault("project_id", d.ProjectID)
	v.SetDefault("user_id", d.UserID)

	v.SetDefault("api.url", d.API.URL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.retry_attempts", d.API.RetryAttempts)

	v.SetDefault("realtime.url", d.Realtime.URL)
	v.SetDefault("realtime.reconnect_min", d.Realtime.ReconnectMin)
	v.SetDefault("realtime.reconnect_max", d.Realtime.ReconnectMax)
	v.SetDefault("realtime.cursor_interval", d.Realtime.CursorInterval)

	v.SetDefault("editor.symbol_debounce", d.Editor.SymbolDebounce)
	v.SetDefault("editor.recent_limit", d.Editor.RecentLimit)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("relay.listen", d.Relay.Listen)
	v.SetDefault("relay.jwt_secret", d.Relay.JWTSecret)
}

// Redacted returns a copy with credentials masked.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Token != "" {
		out.Token = "***"
	}
	if out.Relay.JWTSecret != "" {
		out.Relay.JWTSecret = "***"
	}
	return &out
}

// YAML renders the settings in config file form.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode config")
	}
	return data, nil
}

// ValidateClient checks the settings a collaboration session needs.
func (c *Config) ValidateClient() error {
	var errs []string
	if c.ProjectID == "" {
		errs = append(errs, "project_id is required")
	}
	validateURL("api.url", c.API.URL, []string{"http", "https"}, &errs)
	validateURL("realtime.url", c.Realtime.URL, []string{"ws", "wss"}, &errs)
	if c.API.RetryAttempts < 0 {
		errs = append(errs, "api.retry_attempts must be >= 0")
	}
	if c.Editor.RecentLimit < 0 {
		errs = append(errs, "editor.recent_limit must be >= 0")
	}
	if c.Editor.SymbolDebounce < 0 {
		errs = append(errs, "editor.symbol_debounce must be >= 0")
	}
	if c.Realtime.ReconnectMax > 0 && c.Realtime.ReconnectMax < c.Realtime.ReconnectMin {
		errs = append(errs, "realtime.reconnect_max must be >= reconnect_min")
	}
	return joinErrs(errs)
}

// ValidateRelay checks the settings `vdcollab serve` needs.
func (c *Config) ValidateRelay() error {
	var errs []string
	if c.Relay.Listen == "" {
		errs = append(errs, "relay.listen is required")
	}
	return joinErrs(errs)
}

func validateURL(key, raw string, schemes []string, errs *[]string) {
	if raw == "" {
		*errs = append(*errs, key+" is required")
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		*errs = append(*errs, key+" must be an absolute url")
		return
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return
		}
	}
	*errs = append(*errs, key+" must use "+strings.Join(schemes, " or "))
}

func joinErrs(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Errorf("invalid configuration:\n - %s", strings.Join(errs, "\n - "))
}
