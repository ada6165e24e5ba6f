package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/brizzai/tutor-auth/internal/auth/autherr"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("tutor-auth version %s, commit %s, built at %s", version, commit, date)
}

type Config struct {
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	OAuth    OAuthConfig    `mapstructure:"oauth" yaml:"oauth"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Callback CallbackConfig `mapstructure:"callback" yaml:"callback"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// Runtime identifies the execution environment the login flow runs in.
type Runtime string

const (
	RuntimeBrowser Runtime = "browser"
	RuntimeNative  Runtime = "native"
)

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type OAuthConfig struct {
	WebClientID         string   `mapstructure:"web_client_id" yaml:"web_client_id"`
	NativeClientID      string   `mapstructure:"native_client_id" yaml:"native_client_id"`
	IssuerURL           string   `mapstructure:"issuer_url" yaml:"issuer_url"` // optional OIDC discovery
	Scopes              []string `mapstructure:"scopes" yaml:"scopes"`
	CallbackPath        string   `mapstructure:"callback_path" yaml:"callback_path"`
	GenericCallbackPath string   `mapstructure:"generic_callback_path" yaml:"generic_callback_path"`
	NativeScheme        string   `mapstructure:"native_scheme" yaml:"native_scheme"`
	LoopbackPort        int      `mapstructure:"loopback_port" yaml:"loopback_port"`
}

type StorageBackend string

const (
	StorageMemory  StorageBackend = "memory"
	StorageFile    StorageBackend = "file"
	StorageKeyring StorageBackend = "keyring"
	StorageSQLite  StorageBackend = "sqlite"
)

type StorageConfig struct {
	Backend        StorageBackend `mapstructure:"backend" yaml:"backend"`
	Path           string         `mapstructure:"path" yaml:"path"`
	KeyringService string         `mapstructure:"keyring_service" yaml:"keyring_service"`
}

type CallbackConfig struct {
	FailureDelay   time.Duration `mapstructure:"failure_delay" yaml:"failure_delay"`
	SuccessDelay   time.Duration `mapstructure:"success_delay" yaml:"success_delay"`
	ShortWait      time.Duration `mapstructure:"short_wait" yaml:"short_wait"`
	ExtendedWait   time.Duration `mapstructure:"extended_wait" yaml:"extended_wait"`
	LoginPath      string        `mapstructure:"login_path" yaml:"login_path"`
	HomePath       string        `mapstructure:"home_path" yaml:"home_path"`
	OnboardingPath string        `mapstructure:"onboarding_path" yaml:"onboarding_path"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port" yaml:"port"`
	Host         string   `mapstructure:"host" yaml:"host"`
	Origin       string   `mapstructure:"origin" yaml:"origin"` // public origin of the app, defaults to http://host:port
	AllowOrigins []string `mapstructure:"allow_origins" yaml:"allow_origins"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level" yaml:"level"`
	Format            string `mapstructure:"format" yaml:"format"`
	Color             bool   `mapstructure:"color" yaml:"color"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace" yaml:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path" yaml:"output_path"`
	DisableConsole    bool   `mapstructure:"disable_console" yaml:"disable_console"`
	MaxSizeMB         int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups        int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays        int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress          bool   `mapstructure:"compress" yaml:"compress"`
}

// ClientIDFor returns the OAuth client id registered for the given runtime.
func (c *OAuthConfig) ClientIDFor(rt Runtime) (string, error) {
	var id string
	switch rt {
	case RuntimeBrowser:
		id = c.WebClientID
	case RuntimeNative:
		id = c.NativeClientID
	default:
		return "", &autherr.ConfigurationError{Runtime: string(rt), Reason: "unknown runtime"}
	}
	if strings.TrimSpace(id) == "" {
		return "", &autherr.ConfigurationError{Runtime: string(rt), Reason: "no client id configured"}
	}
	return id, nil
}

// ServerOrigin returns the public origin of the browser runtime.
func (c *ServerConfig) ServerOrigin() string {
	if c.Origin != "" {
		return strings.TrimRight(c.Origin, "/")
	}
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// InitFlags initializes command line flags (without parsing)
func InitFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a config file")
	fs.String("api.base_url", "", "Base URL of the tutor API")
	fs.String("storage.backend", "", "Token storage backend (memory|file|keyring|sqlite)")
	fs.String("logging.level", "", "Log level")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.timeout", 10*time.Second)

	v.SetDefault("oauth.scopes", []string{"profile", "email"})
	v.SetDefault("oauth.callback_path", "/oauth/google/callback")
	v.SetDefault("oauth.generic_callback_path", "/oauth/")
	v.SetDefault("oauth.native_scheme", "com.tutor.app")
	v.SetDefault("oauth.loopback_port", 8765)

	v.SetDefault("storage.backend", string(StorageFile))
	v.SetDefault("storage.path", "~/.tutor-auth/session.json")
	v.SetDefault("storage.keyring_service", "tutor-auth")

	v.SetDefault("callback.failure_delay", 2*time.Second)
	v.SetDefault("callback.success_delay", time.Second)
	v.SetDefault("callback.short_wait", 2*time.Second)
	v.SetDefault("callback.extended_wait", 3*time.Second)
	v.SetDefault("callback.login_path", "/login")
	v.SetDefault("callback.home_path", "/")
	v.SetDefault("callback.onboarding_path", "/onboarding")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 7)
}

// Load reads configuration from flags, TUTOR_AUTH_* environment variables and an optional config.yaml.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TUTOR_AUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, err
		}
	}

	explicit := v.GetString("config")
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tutor-auth")
	}

	if err := v.ReadInConfig(); err != nil {
		// The defaults are enough to run, a missing file is fine
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || explicit != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required, please adjust the config or pass --api.base_url or TUTOR_AUTH_API_BASE_URL environment variable")
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	switch c.Storage.Backend {
	case StorageMemory, StorageFile, StorageKeyring, StorageSQLite:
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	return nil
}
