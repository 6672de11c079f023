package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// MinSecretLen is the shortest HMAC secret accepted in online mode.
const MinSecretLen = 32

type Config struct {
	Mode     Mode
	HTTPAddr string
	SiteID   string

	DBDriver string
	DBDSN    string

	BlobDriver   string // fs|minio
	BlobBasePath string // for fs
	Minio        MinioConfig

	// Autosave snapshots go to Redis when RedisAddr is set, memory otherwise.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AutosaveTTL   time.Duration

	// Domain events go to RabbitMQ when AMQPURL is set.
	AMQPURL      string
	AMQPExchange string

	AuthSecret     string
	CORSOrigins    []string
	RequestTimeout time.Duration

	LogLevel string
	LogFile  string
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

var ErrWeakSecret = errors.New("auth_hmac_secret too short for online mode")

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeOffline))
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("site_id", "local")
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_dsn", "")
	v.SetDefault("blob_driver", "fs")
	v.SetDefault("blob_base_path", "./data")
	v.SetDefault("minio_endpoint", "")
	v.SetDefault("minio_access_key", "")
	v.SetDefault("minio_secret_key", "")
	v.SetDefault("minio_bucket", "quiz-assets")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("autosave_ttl", 7*24*time.Hour)
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "quiz.events")
	v.SetDefault("auth_hmac_secret", "supersecret-dev-key")
	v.SetDefault("cors_origins", "http://localhost:3000")
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "logs/quizd.log")
}

// Load reads defaults, then config.yaml from dir (if present), then the
// environment. Keys are the upper-cased environment names, e.g. HTTP_ADDR.
func Load(dir string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Mode:         Mode(strings.ToLower(v.GetString("mode"))),
		HTTPAddr:     v.GetString("http_addr"),
		SiteID:       v.GetString("site_id"),
		DBDriver:     v.GetString("db_driver"),
		DBDSN:        v.GetString("db_dsn"),
		BlobDriver:   v.GetString("blob_driver"),
		BlobBasePath: v.GetString("blob_base_path"),
		Minio: MinioConfig{
			Endpoint:  v.GetString("minio_endpoint"),
			AccessKey: v.GetString("minio_access_key"),
			SecretKey: v.GetString("minio_secret_key"),
			Bucket:    v.GetString("minio_bucket"),
			UseSSL:    v.GetBool("minio_use_ssl"),
		},
		RedisAddr:      v.GetString("redis_addr"),
		RedisPassword:  v.GetString("redis_password"),
		RedisDB:        v.GetInt("redis_db"),
		AutosaveTTL:    v.GetDuration("autosave_ttl"),
		AMQPURL:        v.GetString("amqp_url"),
		AMQPExchange:   v.GetString("amqp_exchange"),
		AuthSecret:     v.GetString("auth_hmac_secret"),
		CORSOrigins:    csv(v.GetStringSlice("cors_origins")),
		RequestTimeout: v.GetDuration("request_timeout"),
		LogLevel:       v.GetString("log_level"),
		LogFile:        v.GetString("log_file"),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeOffline, ModeOnline:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	switch c.BlobDriver {
	case "fs":
	case "minio":
		if c.Minio.Endpoint == "" {
			return errors.New("blob_driver minio needs minio_endpoint")
		}
	default:
		return fmt.Errorf("unsupported blob_driver %q", c.BlobDriver)
	}
	if c.Mode == ModeOnline && len(c.AuthSecret) < MinSecretLen {
		return ErrWeakSecret
	}
	return nil
}

// csv flattens list values that arrive comma separated from the environment.
func csv(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
