package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServerAddress  string    `json:"serverAddress"`
	APIBaseURL     string    `json:"apiBaseUrl"`
	UploadsBaseURL string    `json:"uploadsBaseUrl"`
	DatabasePath   string    `json:"databasePath"`
	DatabaseURL    string    `json:"databaseUrl"`
	DisplayTZ      string    `json:"displayTimezone"`
	Upload         Upload    `json:"upload"`
	Peaks          Peaks     `json:"peaks"`
	Session        Session   `json:"session"`
	Security       Security  `json:"security"`
	Templates      Templates `json:"templates"`
	Logging        Logging   `json:"logging"`
}

// Upload configures staging of files selected in the upload wizard
type Upload struct {
	StagingPath       string   `json:"stagingPath"`
	MaxFileSizeMB     int64    `json:"maxFileSizeMB"`
	AllowedExtensions []string `json:"allowedExtensions"`
	PreviewMaxDim     int      `json:"previewMaxDim"`
}

// Peaks configures the nearby peak search
type Peaks struct {
	MaxDistanceMeters float64 `json:"maxDistanceMeters"`
	Limit             int     `json:"limit"`
	CacheTTLMinutes   int     `json:"cacheTtlMinutes"`
	RedisAddr         string  `json:"redisAddr"`
	RedisPassword     string  `json:"redisPassword"`
	RedisDB           int     `json:"redisDb"`
}

// Session configures the session cookie and lifetime
type Session struct {
	CookieName          string `json:"cookieName"`
	DurationHours       int    `json:"durationHours"`
	SecureCookie        bool   `json:"secureCookie"`
	CleanupIntervalMins int    `json:"cleanupIntervalMinutes"`
}

// Security configuration
type Security struct {
	AuthRatePerMinute int `json:"authRatePerMinute"`
	// TokenSecret encrypts API tokens in the session store; empty stores
	// them as issued
	TokenSecret string `json:"tokenSecret"`
}

// Templates configures page rendering
type Templates struct {
	// Dir, when set, loads templates from disk and reloads them on change
	Dir string `json:"dir"`
}

// Logging configuration
type Logging struct {
	Level      string `json:"level"`
	FilePath   string `json:"filePath"`
	MaxSizeMB  int    `json:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays"`
	Compress   bool   `json:"compress"`
}

// UsePostgres returns true if PostgreSQL should be used
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// UseRedis returns true if the peak cache should live in Redis
func (c *Config) UseRedis() bool {
	return c.Peaks.RedisAddr != ""
}

// SessionDuration returns the default session lifetime
func (c *Config) SessionDuration() time.Duration {
	return time.Duration(c.Session.DurationHours) * time.Hour
}

// PeakCacheTTL returns how long nearby peak results stay cached
func (c *Config) PeakCacheTTL() time.Duration {
	return time.Duration(c.Peaks.CacheTTLMinutes) * time.Minute
}

// MaxFileSizeBytes returns the upload size limit in bytes
func (c *Config) MaxFileSizeBytes() int64 {
	return c.Upload.MaxFileSizeMB * 1024 * 1024
}

// Location returns the time zone used to display capture times
func (c *Config) Location() *time.Location {
	if c.DisplayTZ == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.DisplayTZ)
	if err != nil {
		return time.Local
	}
	return loc
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress:  ":3000",
		APIBaseURL:     "http://localhost:8000/api",
		UploadsBaseURL: "http://localhost:8000/uploads/",
		DatabasePath:   "polish-peaks-web.db",
		DisplayTZ:      "Europe/Warsaw",
		Upload: Upload{
			StagingPath:   "./staging",
			MaxFileSizeMB: 25,
			AllowedExtensions: []string{
				".jpg", ".jpeg", ".png", ".heic", ".heif", ".tif", ".tiff", ".webp",
			},
			PreviewMaxDim: 800,
		},
		Peaks: Peaks{
			MaxDistanceMeters: 10000,
			Limit:             6,
			CacheTTLMinutes:   60,
		},
		Session: Session{
			CookieName:          "pp_session",
			DurationHours:       24,
			CleanupIntervalMins: 60,
		},
		Security: Security{
			AuthRatePerMinute: 20,
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load loads configuration from file or environment
func Load() (*Config, error) {
	cfg := defaultConfig()

	// Try to load from config file
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := os.MkdirAll(cfg.Upload.StagingPath, 0755); err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(cfg.Upload.StagingPath)
	if err != nil {
		return nil, err
	}
	cfg.Upload.StagingPath = absPath

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	return cfg, nil
}

// applyEnv overrides configuration from environment variables
func applyEnv(cfg *Config) {
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.ServerAddress = addr
	}
	if apiURL := os.Getenv("API_BASE_URL"); apiURL != "" {
		cfg.APIBaseURL = apiURL
	}
	if uploadsURL := os.Getenv("UPLOADS_BASE_URL"); uploadsURL != "" {
		cfg.UploadsBaseURL = uploadsURL
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if tz := os.Getenv("DISPLAY_TIMEZONE"); tz != "" {
		cfg.DisplayTZ = tz
	}
	if staging := os.Getenv("STAGING_PATH"); staging != "" {
		cfg.Upload.StagingPath = staging
	}
	if size := os.Getenv("MAX_FILE_SIZE_MB"); size != "" {
		if mb, err := strconv.ParseInt(size, 10, 64); err == nil && mb > 0 {
			cfg.Upload.MaxFileSizeMB = mb
		}
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.Peaks.RedisAddr = redisAddr
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Peaks.RedisPassword = redisPassword
	}
	if secure := os.Getenv("SESSION_SECURE_COOKIE"); secure != "" {
		cfg.Session.SecureCookie = secure == "true" || secure == "1"
	}
	if hours := os.Getenv("SESSION_DURATION_HOURS"); hours != "" {
		if h, err := strconv.Atoi(hours); err == nil && h > 0 {
			cfg.Session.DurationHours = h
		}
	}
	if secret := os.Getenv("SESSION_TOKEN_SECRET"); secret != "" {
		cfg.Security.TokenSecret = secret
	}
	if dir := os.Getenv("TEMPLATES_DIR"); dir != "" {
		cfg.Templates.Dir = dir
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.Logging.FilePath = logFile
	}
}
