// Package config loads runtime settings from the environment, an optional
// .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	MediaJetStream  = "jetstream"
	MediaCloudinary = "cloudinary"

	PolicyAny   = "any"
	PolicyOwner = "owner"
)

// Config holds all application settings.
type Config struct {
	HTTPPort            int
	PublicBaseURL       string
	MaxUploadSize       int64
	MaxImagesPerRequest int

	DBDriver    string
	DatabaseURL string

	JWTSecretKey string
	JWTIssuer    string
	JWTTokenTTL  time.Duration

	MediaBackend        string
	MediaStorageDir     string
	MediaFolder         string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	RedisAddr     string
	CacheTTL      time.Duration
	AuthRateLimit int

	TaskAccessPolicy string
	TaskStrictEnums  bool

	LogLevel string
}

var defaults = map[string]any{
	"http_port":              3000,
	"public_base_url":        "http://localhost:3000",
	"max_upload_size":        50 * 1024 * 1024,
	"max_images_per_request": 5,
	"db_driver":              DriverSQLite,
	"database_url":           "taskboard.db",
	"jwt_secret_key":         "change-me-in-production",
	"jwt_issuer":             "taskboard",
	"jwt_token_ttl":          "24h",
	"media_backend":          MediaJetStream,
	"media_storage_dir":      "/tmp/taskboard",
	"media_folder":           "tasks",
	"cloudinary_cloud_name":  "",
	"cloudinary_api_key":     "",
	"cloudinary_api_secret":  "",
	"redis_addr":             "",
	"cache_ttl":              "5m",
	"auth_rate_limit":        20,
	"task_access_policy":     PolicyAny,
	"task_strict_enums":      false,
	"log_level":              "info",
}

// Load reads configuration. Values come from, in increasing priority:
// built-in defaults, the YAML file at path (if non-empty), and environment
// variables (a .env file in the working directory is loaded first).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file loaded, using process environment")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPPort:            v.GetInt("http_port"),
		PublicBaseURL:       strings.TrimRight(v.GetString("public_base_url"), "/"),
		MaxUploadSize:       v.GetInt64("max_upload_size"),
		MaxImagesPerRequest: v.GetInt("max_images_per_request"),
		DBDriver:            strings.ToLower(v.GetString("db_driver")),
		DatabaseURL:         v.GetString("database_url"),
		JWTSecretKey:        v.GetString("jwt_secret_key"),
		JWTIssuer:           v.GetString("jwt_issuer"),
		JWTTokenTTL:         v.GetDuration("jwt_token_ttl"),
		MediaBackend:        strings.ToLower(v.GetString("media_backend")),
		MediaStorageDir:     v.GetString("media_storage_dir"),
		MediaFolder:         v.GetString("media_folder"),
		CloudinaryCloudName: v.GetString("cloudinary_cloud_name"),
		CloudinaryAPIKey:    v.GetString("cloudinary_api_key"),
		CloudinaryAPISecret: v.GetString("cloudinary_api_secret"),
		RedisAddr:           v.GetString("redis_addr"),
		CacheTTL:            v.GetDuration("cache_ttl"),
		AuthRateLimit:       v.GetInt("auth_rate_limit"),
		TaskAccessPolicy:    strings.ToLower(v.GetString("task_access_policy")),
		TaskStrictEnums:     v.GetBool("task_strict_enums"),
		LogLevel:            strings.ToLower(v.GetString("log_level")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that enumerated settings hold known values.
func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}

	switch c.MediaBackend {
	case MediaJetStream:
	case MediaCloudinary:
		if c.CloudinaryCloudName == "" || c.CloudinaryAPIKey == "" || c.CloudinaryAPISecret == "" {
			errs = append(errs, errors.New("cloudinary media backend requires CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported MEDIA_BACKEND %q", c.MediaBackend))
	}

	switch c.TaskAccessPolicy {
	case PolicyAny, PolicyOwner:
	default:
		errs = append(errs, fmt.Errorf("unsupported TASK_ACCESS_POLICY %q", c.TaskAccessPolicy))
	}

	if c.HTTPPort <= 0 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d", c.HTTPPort))
	}
	if c.JWTTokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("invalid JWT_TOKEN_TTL %s", c.JWTTokenTTL))
	}
	if c.MaxImagesPerRequest <= 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_IMAGES_PER_REQUEST %d", c.MaxImagesPerRequest))
	}

	return errors.Join(errs...)
}
