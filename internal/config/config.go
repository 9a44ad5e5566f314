package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Normalize  NormalizeConfig  `mapstructure:"normalize"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	// Driver selects the job record store backend: dynamodb, sqlite or postgres.
	Driver string `mapstructure:"driver"`

	// DynamoDB settings
	Table    string `mapstructure:"table"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"` // non-empty for local DynamoDB

	// SQLite settings
	Path string `mapstructure:"path"`

	// PostgreSQL settings
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`

	// Connection pool settings (GORM backends)
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the connection string for the configured SQL driver.
// Parameters: none.
// Returns:
//   - string: driver-specific data source name.
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	default:
		return c.Path
	}
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"` // empty for real AWS S3
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

type QueueConfig struct {
	URL             string `mapstructure:"url"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"` // non-empty for local SQS
	WaitTimeSeconds int    `mapstructure:"wait_time_seconds"`
	MaxMessages     int    `mapstructure:"max_messages"`
	Workers         int    `mapstructure:"workers"`
}

type DetectorConfig struct {
	Region        string        `mapstructure:"region"`
	MaxLabels     int           `mapstructure:"max_labels"`
	MinConfidence float64       `mapstructure:"min_confidence"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type ClassifierConfig struct {
	// Backend selects the classifier implementation: model or brightness.
	Backend  string        `mapstructure:"backend"`
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type NormalizeConfig struct {
	// DicomEnabled disables the medical-imaging decode capability when false,
	// for environments that deliberately run without it.
	DicomEnabled bool `mapstructure:"dicom_enabled"`
}

type PipelineConfig struct {
	DisplayURLTTL time.Duration `mapstructure:"display_url_ttl"`
	UploadURLTTL  time.Duration `mapstructure:"upload_url_ttl"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.table", "ImageAnalysisResults")
	v.SetDefault("database.region", "us-east-1")
	v.SetDefault("database.path", "./data/jobs.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "image-analysis-uploads")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("queue.region", "us-east-1")
	v.SetDefault("queue.wait_time_seconds", 20)
	v.SetDefault("queue.max_messages", 5)
	v.SetDefault("queue.workers", 4)
	v.SetDefault("detector.region", "us-east-1")
	v.SetDefault("detector.max_labels", 20)
	v.SetDefault("detector.min_confidence", 70)
	v.SetDefault("detector.timeout", 30*time.Second)
	v.SetDefault("classifier.backend", "brightness")
	v.SetDefault("classifier.timeout", 60*time.Second)
	v.SetDefault("normalize.dicom_enabled", true)
	v.SetDefault("pipeline.display_url_ttl", time.Hour)
	v.SetDefault("pipeline.upload_url_ttl", time.Hour)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.table", "TABLE_NAME")
	v.BindEnv("database.region", "AWS_REGION")
	v.BindEnv("database.endpoint", "DYNAMODB_ENDPOINT")
	v.BindEnv("storage.bucket", "UPLOAD_BUCKET")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "AWS_ACCESS_KEY_ID")
	v.BindEnv("storage.secret_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("storage.region", "AWS_REGION")
	v.BindEnv("queue.url", "QUEUE_URL")
	v.BindEnv("queue.region", "AWS_REGION")
	v.BindEnv("queue.endpoint", "SQS_ENDPOINT")
	v.BindEnv("detector.region", "AWS_REGION")
	v.BindEnv("classifier.endpoint", "CLASSIFIER_ENDPOINT")
	v.BindEnv("classifier.api_key", "CLASSIFIER_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
