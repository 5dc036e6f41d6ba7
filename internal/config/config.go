// Package config loads server settings from an optional JSON file and the
// environment, the environment taking precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	MetadataRedis    = "redis"
	MetadataBadger   = "badger"
	MetadataDynamoDB = "dynamodb"

	ObjectsS3    = "s3"
	ObjectsLocal = "local"
)

// Duration reads "90s"-style values from both JSON and the environment.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type Config struct {
	Port          string `json:"port" env:"PORT"`
	LogLevel      string `json:"log_level" env:"LOG_LEVEL"`
	MaxUploadSize int64  `json:"max_upload_size" env:"MAX_UPLOAD_SIZE"`
	PublicURL     string `json:"public_url" env:"PUBLIC_URL"`

	MetadataBackend string   `json:"metadata_backend" env:"METADATA_BACKEND"`
	ObjectBackend   string   `json:"object_backend" env:"OBJECT_BACKEND"`
	Table           string   `json:"table" env:"IMAGES_TABLE"`
	Index           string   `json:"index" env:"IMAGES_INDEX"`
	Bucket          string   `json:"bucket" env:"IMAGES_BUCKET"`
	PresignTTL      Duration `json:"presign_ttl" env:"PRESIGN_TTL"`

	Redis  RedisConfig  `json:"redis" envPrefix:"REDIS_"`
	Badger BadgerConfig `json:"badger" envPrefix:"BADGER_"`
	Local  LocalConfig  `json:"local" envPrefix:"LOCAL_"`
	AWS    AWSConfig    `json:"aws"`
}

type RedisConfig struct {
	Addr        string   `json:"addr" env:"ADDR"`
	Password    string   `json:"password" env:"PASSWORD"`
	DB          int      `json:"db" env:"DB"`
	PoolSize    int      `json:"pool_size" env:"POOL_SIZE"`
	DialTimeout Duration `json:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	MaxRetries  int      `json:"max_retries" env:"MAX_RETRIES"`
}

type BadgerConfig struct {
	Dir string `json:"dir" env:"DIR"`
}

type LocalConfig struct {
	Dir           string `json:"dir" env:"DIR"`
	SigningSecret string `json:"signing_secret" env:"SIGNING_SECRET"`
}

type AWSConfig struct {
	Region         string   `json:"region" env:"AWS_REGION"`
	Endpoint       string   `json:"endpoint" env:"AWS_ENDPOINT"`
	AccessKey      string   `json:"access_key" env:"AWS_ACCESS_KEY_ID"`
	SecretKey      string   `json:"secret_key" env:"AWS_SECRET_ACCESS_KEY"`
	UsePathStyle   bool     `json:"use_path_style" env:"S3_USE_PATH_STYLE"`
	MaxAttempts    int      `json:"max_attempts" env:"AWS_MAX_ATTEMPTS"`
	MaxBackoff     Duration `json:"max_backoff" env:"AWS_MAX_BACKOFF"`
	ConnectTimeout Duration `json:"connect_timeout" env:"AWS_CONNECT_TIMEOUT"`
	ReadTimeout    Duration `json:"read_timeout" env:"AWS_READ_TIMEOUT"`
	RetryInterval  Duration `json:"connect_retry_interval" env:"AWS_CONNECT_RETRY_INTERVAL"`
}

func Default() Config {
	return Config{
		Port:            "8080",
		LogLevel:        "info",
		MaxUploadSize:   10 << 20,
		PublicURL:       "http://localhost:8080",
		MetadataBackend: MetadataRedis,
		ObjectBackend:   ObjectsS3,
		Table:           "images",
		Index:           "user_id-index",
		Bucket:          "image-storage-bucket",
		PresignTTL:      Duration(time.Hour),
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    10,
			DialTimeout: Duration(5 * time.Second),
			ReadTimeout: Duration(3 * time.Second),
			MaxRetries:  3,
		},
		Badger: BadgerConfig{Dir: "./data/metadata"},
		Local:  LocalConfig{Dir: "./data/objects"},
		AWS: AWSConfig{
			Region:         "us-east-1",
			MaxAttempts:    3,
			MaxBackoff:     Duration(5 * time.Second),
			ConnectTimeout: Duration(10 * time.Second),
			ReadTimeout:    Duration(30 * time.Second),
			RetryInterval:  Duration(time.Second),
		},
	}
}

// Load starts from Default, applies the JSON file at path when one is given
// and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config - read %s: %w", path, err)
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config - parse %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}

	cfg.MetadataBackend = strings.ToLower(strings.TrimSpace(cfg.MetadataBackend))
	cfg.ObjectBackend = strings.ToLower(strings.TrimSpace(cfg.ObjectBackend))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.MaxUploadSize < 0 {
		errs = append(errs, errors.New("max_upload_size must not be negative"))
	}
	if c.PresignTTL <= 0 {
		errs = append(errs, errors.New("presign_ttl must be positive"))
	}
	if c.Table == "" {
		errs = append(errs, errors.New("table is required"))
	}

	switch c.MetadataBackend {
	case MetadataRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required"))
		}
	case MetadataBadger:
		if c.Badger.Dir == "" {
			errs = append(errs, errors.New("badger.dir is required"))
		}
	case MetadataDynamoDB:
		if c.Index == "" {
			errs = append(errs, errors.New("index is required for dynamodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown metadata backend %q", c.MetadataBackend))
	}

	switch c.ObjectBackend {
	case ObjectsS3:
		if c.Bucket == "" {
			errs = append(errs, errors.New("bucket is required"))
		}
	case ObjectsLocal:
		if c.Local.Dir == "" {
			errs = append(errs, errors.New("local.dir is required"))
		}
		if c.Local.SigningSecret == "" {
			errs = append(errs, errors.New("local.signing_secret is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown object backend %q", c.ObjectBackend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config error: %w", errors.Join(errs...))
	}
	return nil
}

// UsesAWS reports whether any backend needs the AWS clients.
func (c Config) UsesAWS() bool {
	return c.MetadataBackend == MetadataDynamoDB || c.ObjectBackend == ObjectsS3
}
