package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath       = "CONFIG_PATH"
	EnvDBConnection     = "DB_CONNECTION"
	EnvJWTSecret        = "JWT_SECRET"
	EnvJWTExpiry        = "JWT_EXPIRY"
	EnvAdminEmail       = "ADMIN_EMAIL"
	EnvPort             = "PORT"
	EnvCozeAPIKey       = "COZE_API_KEY"
	EnvCozeAPIURL       = "COZE_API_URL"
	EnvDeepSeekAPIKey   = "DEEPSEEK_API_KEY"
	EnvDeepSeekAPIURL   = "DEEPSEEK_API_URL"
	EnvRedisAddr        = "REDIS_ADDR"
	EnvRedisPassword    = "REDIS_PASSWORD"
	EnvLogLevel         = "LOG_LEVEL"
	EnvPublicBaseURL    = "PUBLIC_BASE_URL"
	EnvCORSAllowOrigins = "CORS_ALLOWED_ORIGINS"
)

// Defaults applied before the config file and environment are read.
const (
	DefaultHost                = ""
	DefaultPort                = 8080
	DefaultDatabaseDSN         = "file:assistant-hub.db"
	DefaultCozeAPIURL          = "https://api.coze.cn/open_api/v2/chat"
	DefaultCozeTimeout         = 180 * time.Second
	DefaultDeepSeekAPIURL      = "https://api.deepseek.com/v1/chat/completions"
	DefaultDeepSeekModel       = "deepseek-chat"
	DefaultDeepSeekTimeout     = 30 * time.Second
	DefaultRegisterPoints      = 100
	DefaultUploadsDir          = "./uploads"
	DefaultMaxImageBytes       = 5 << 20
	DefaultAnalysisMaxFiles    = 5
	DefaultAnalysisMaxFileSize = 10 << 20
	DefaultRedisPrefix         = "assistant-hub"
	DefaultLogFile             = "./logs/assistant-hub.log"
)

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 7 * 24 * time.Hour

var (
	// ErrMissingJWTSecret indicates no signing secret was configured.
	ErrMissingJWTSecret = errors.New("missing jwt secret (set `jwt.secret` in config file or JWT_SECRET)")
	// ErrMissingDatabaseDSN indicates the database DSN resolved to an empty string.
	ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` in config file or DB_CONNECTION)")
)

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// ProviderConfig holds the default credentials and limits of one LLM vendor.
type ProviderConfig struct {
	APIKey  string        `yaml:"api-key"`
	APIURL  string        `yaml:"api-url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// ProvidersConfig groups the vendor defaults used by the provider factory.
type ProvidersConfig struct {
	Coze     ProviderConfig `yaml:"coze"`
	DeepSeek ProviderConfig `yaml:"deepseek"`
}

// PointsConfig holds points economy defaults.
type PointsConfig struct {
	Register int `yaml:"register"` // Starting balance seeded into REGISTER_POINTS.
}

// UploadsConfig controls image upload storage.
type UploadsConfig struct {
	Dir           string `yaml:"dir"`
	PublicBaseURL string `yaml:"public-base-url"`
	MaxImageBytes int64  `yaml:"max-image-bytes"`
}

// AnalysisConfig bounds file analysis requests.
type AnalysisConfig struct {
	MaxFiles     int   `yaml:"max-files"`
	MaxFileBytes int64 `yaml:"max-file-bytes"`
}

// RedisConfig configures the optional Redis backend for events and rate limits.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// LoggingConfig configures logrus output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	ToFile bool   `yaml:"to-file"`
	File   string `yaml:"file"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed-origins"`
}

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string `yaml:"-"`

	Host        string          `yaml:"host"`
	Port        int             `yaml:"port"`
	Debug       bool            `yaml:"debug"`
	DatabaseDSN string          `yaml:"database-dsn"`
	JWT         JWTConfig       `yaml:"jwt"`
	AdminEmail  string          `yaml:"admin-email"`
	Providers   ProvidersConfig `yaml:"providers"`
	Points      PointsConfig    `yaml:"points"`
	Uploads     UploadsConfig   `yaml:"uploads"`
	Analysis    AnalysisConfig  `yaml:"analysis"`
	Redis       RedisConfig     `yaml:"redis"`
	Logging     LoggingConfig   `yaml:"logging"`
	CORS        CORSConfig      `yaml:"cors"`
}

// Default returns an AppConfig populated with built-in defaults.
func Default() AppConfig {
	return AppConfig{
		Host:        DefaultHost,
		Port:        DefaultPort,
		DatabaseDSN: DefaultDatabaseDSN,
		JWT:         JWTConfig{Expiry: defaultJWTExpiry},
		Providers: ProvidersConfig{
			Coze: ProviderConfig{
				APIURL:  DefaultCozeAPIURL,
				Timeout: DefaultCozeTimeout,
			},
			DeepSeek: ProviderConfig{
				APIURL:  DefaultDeepSeekAPIURL,
				Model:   DefaultDeepSeekModel,
				Timeout: DefaultDeepSeekTimeout,
			},
		},
		Points:   PointsConfig{Register: DefaultRegisterPoints},
		Uploads:  UploadsConfig{Dir: DefaultUploadsDir, MaxImageBytes: DefaultMaxImageBytes},
		Analysis: AnalysisConfig{MaxFiles: DefaultAnalysisMaxFiles, MaxFileBytes: DefaultAnalysisMaxFileSize},
		Redis:    RedisConfig{Prefix: DefaultRedisPrefix},
		Logging:  LoggingConfig{Level: "info", File: DefaultLogFile},
	}
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads the YAML file at configPath (a missing file is not an error),
// applies environment overrides and validates the result.
func Load(configPath string) (AppConfig, error) {
	cfg := Default()
	cfg.ConfigPath = ResolveConfigPath(configPath)

	data, errRead := os.ReadFile(cfg.ConfigPath)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return AppConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return AppConfig{}, fmt.Errorf("read config file: %w", errRead)
	}

	applyEnv(&cfg)
	cfg.normalize()
	if errValidate := cfg.Validate(); errValidate != nil {
		return AppConfig{}, errValidate
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.JWT.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			cfg.JWT.Expiry = expiry
		}
	}
	if email := strings.TrimSpace(os.Getenv(EnvAdminEmail)); email != "" {
		cfg.AdminEmail = email
	}
	if portRaw := strings.TrimSpace(os.Getenv(EnvPort)); portRaw != "" {
		if port, errParse := strconv.Atoi(portRaw); errParse == nil {
			cfg.Port = port
		}
	}
	if key := strings.TrimSpace(os.Getenv(EnvCozeAPIKey)); key != "" {
		cfg.Providers.Coze.APIKey = key
	}
	if url := strings.TrimSpace(os.Getenv(EnvCozeAPIURL)); url != "" {
		cfg.Providers.Coze.APIURL = url
	}
	if key := strings.TrimSpace(os.Getenv(EnvDeepSeekAPIKey)); key != "" {
		cfg.Providers.DeepSeek.APIKey = key
	}
	if url := strings.TrimSpace(os.Getenv(EnvDeepSeekAPIURL)); url != "" {
		cfg.Providers.DeepSeek.APIURL = url
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv(EnvRedisPassword); password != "" {
		cfg.Redis.Password = password
	}
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		cfg.Logging.Level = level
	}
	if base := strings.TrimSpace(os.Getenv(EnvPublicBaseURL)); base != "" {
		cfg.Uploads.PublicBaseURL = base
	}
	if origins := strings.TrimSpace(os.Getenv(EnvCORSAllowOrigins)); origins != "" {
		cfg.CORS.AllowedOrigins = splitList(origins)
	}
}

func (c *AppConfig) normalize() {
	c.Host = strings.TrimSpace(c.Host)
	c.DatabaseDSN = strings.TrimSpace(c.DatabaseDSN)
	c.JWT.Secret = strings.TrimSpace(c.JWT.Secret)
	if c.JWT.Expiry <= 0 {
		c.JWT.Expiry = defaultJWTExpiry
	}
	c.AdminEmail = strings.ToLower(strings.TrimSpace(c.AdminEmail))

	if strings.TrimSpace(c.Providers.Coze.APIURL) == "" {
		c.Providers.Coze.APIURL = DefaultCozeAPIURL
	}
	if c.Providers.Coze.Timeout <= 0 {
		c.Providers.Coze.Timeout = DefaultCozeTimeout
	}
	if strings.TrimSpace(c.Providers.DeepSeek.APIURL) == "" {
		c.Providers.DeepSeek.APIURL = DefaultDeepSeekAPIURL
	}
	if strings.TrimSpace(c.Providers.DeepSeek.Model) == "" {
		c.Providers.DeepSeek.Model = DefaultDeepSeekModel
	}
	if c.Providers.DeepSeek.Timeout <= 0 {
		c.Providers.DeepSeek.Timeout = DefaultDeepSeekTimeout
	}

	if c.Points.Register < 0 {
		c.Points.Register = 0
	}
	if strings.TrimSpace(c.Uploads.Dir) == "" {
		c.Uploads.Dir = DefaultUploadsDir
	}
	c.Uploads.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Uploads.PublicBaseURL), "/")
	if c.Uploads.MaxImageBytes <= 0 {
		c.Uploads.MaxImageBytes = DefaultMaxImageBytes
	}
	if c.Analysis.MaxFiles <= 0 {
		c.Analysis.MaxFiles = DefaultAnalysisMaxFiles
	}
	if c.Analysis.MaxFileBytes <= 0 {
		c.Analysis.MaxFileBytes = DefaultAnalysisMaxFileSize
	}
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	c.Redis.Prefix = strings.TrimSpace(c.Redis.Prefix)
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = DefaultRedisPrefix
	}
	if c.Redis.DB < 0 {
		c.Redis.DB = 0
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Logging.File) == "" {
		c.Logging.File = DefaultLogFile
	}
}

// Validate reports configuration values the server cannot start with.
func (c AppConfig) Validate() error {
	if c.DatabaseDSN == "" {
		return ErrMissingDatabaseDSN
	}
	if c.JWT.Secret == "" {
		return ErrMissingJWTSecret
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
