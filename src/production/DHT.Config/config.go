package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends understood by the repository layer
const (
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendSQLite   = "sqlite"
	BackendMongo    = "mongo"
)

// Session store kinds
const (
	SessionStoreMemory = "memory"
	SessionStoreBadger = "badger"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Session configuration
	Session SessionConfig `json:"session"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `json:"rate_limit"`

	// Account configuration
	Auth AuthConfig `json:"auth"`

	// MQTT configuration
	MQTT MQTTConfig `json:"mqtt"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// CORS configuration
	CORS CORSConfig `json:"cors"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	// LegacyRoutes also mounts the handlers on the /backend/*.php paths
	// that deployed firmware and the mobile app still call.
	LegacyRoutes bool `json:"legacy_routes"`
}

// StorageConfig selects and configures the datastore behind the gateway
type StorageConfig struct {
	Backend        string         `json:"backend"`
	Bootstrap      bool           `json:"bootstrap"`
	ConnectTimeout time.Duration  `json:"connect_timeout"`
	Postgres       DatabaseConfig `json:"postgres"`
	MySQL          DatabaseConfig `json:"mysql"`
	SQLitePath     string         `json:"sqlite_path"`
	Mongo          MongoConfig    `json:"mongo"`
}

// DatabaseConfig holds relational database configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
	MinConns int    `json:"min_conns"`
}

// MongoConfig holds MongoDB configuration
type MongoConfig struct {
	URI      string `json:"uri"`
	Database string `json:"database"`
}

// SessionConfig holds client session configuration
type SessionConfig struct {
	Store           string        `json:"store"`
	BadgerPath      string        `json:"badger_path"`
	CookieName      string        `json:"cookie_name"`
	TTL             time.Duration `json:"ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
	SecureCookie    bool          `json:"secure_cookie"`
}

// RateLimitConfig holds the minimum spacing between requests of one session
type RateLimitConfig struct {
	Interval time.Duration `json:"interval"`
}

// AuthConfig holds password hashing configuration
type AuthConfig struct {
	BcryptCost int `json:"bcrypt_cost"`
}

// MQTTConfig holds MQTT-related configuration
type MQTTConfig struct {
	Enabled        bool          `json:"enabled"`
	BrokerHost     string        `json:"broker_host"`
	BrokerPort     int           `json:"broker_port"`
	BrokerUser     string        `json:"broker_user"`
	BrokerPass     string        `json:"broker_pass"`
	UseTLS         bool          `json:"use_tls"`
	CACertPath     string        `json:"ca_cert_path"`
	Topic          string        `json:"topic"`
	ThresholdTopic string        `json:"threshold_topic"`
	ErrorTopic     string        `json:"error_topic"`
	ClientID       string        `json:"client_id"`
	SharedGroup    string        `json:"shared_group"`
	KeepAlive      time.Duration `json:"keep_alive"`
	PingTimeout    time.Duration `json:"ping_timeout"`
	QueueSize      int           `json:"queue_size"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or text
	Output       string `json:"output"` // stdout or stderr
	EnableCaller bool   `json:"enable_caller"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers"`
	MaxAge         int      `json:"max_age"`
}

// Load loads configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	if err := godotenv.Load(); err != nil {
		// Variables set directly in the environment are still honoured
	}

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
			LegacyRoutes: getBool("LEGACY_ROUTES", true),
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(getEnv("STORAGE_BACKEND", BackendPostgres)),
			Bootstrap:      getBool("STORAGE_BOOTSTRAP", true),
			ConnectTimeout: getDuration("STORAGE_CONNECT_TIMEOUT", 20*time.Second),
			Postgres: DatabaseConfig{
				Host:     getEnv("POSTGRES_HOST", "localhost"),
				Port:     getInt("POSTGRES_PORT", 5432),
				User:     getEnv("POSTGRES_USER", ""),
				Password: getEnv("POSTGRES_PASSWORD", ""),
				DBName:   getEnv("POSTGRES_DB", "dht11"),
				SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
				MaxConns: getInt("POSTGRES_MAX_CONNS", 25),
				MinConns: getInt("POSTGRES_MIN_CONNS", 5),
			},
			MySQL: DatabaseConfig{
				Host:     getEnv("MYSQL_HOST", "localhost"),
				Port:     getInt("MYSQL_PORT", 3306),
				User:     getEnv("MYSQL_USER", ""),
				Password: getEnv("MYSQL_PASSWORD", ""),
				DBName:   getEnv("MYSQL_DB", "dht11"),
				MaxConns: getInt("MYSQL_MAX_CONNS", 25),
				MinConns: getInt("MYSQL_MIN_CONNS", 5),
			},
			SQLitePath: getEnv("SQLITE_PATH", "dht11.db"),
			Mongo: MongoConfig{
				URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
				Database: getEnv("MONGODB_DB", "dht11"),
			},
		},
		Session: SessionConfig{
			Store:           strings.ToLower(getEnv("SESSION_STORE", SessionStoreMemory)),
			BadgerPath:      getEnv("SESSION_BADGER_PATH", "data/sessions"),
			CookieName:      getEnv("SESSION_COOKIE_NAME", "DHTSESSID"),
			TTL:             getDuration("SESSION_TTL", 24*time.Hour),
			CleanupInterval: getDuration("SESSION_CLEANUP_INTERVAL", 10*time.Minute),
			SecureCookie:    getBool("SESSION_SECURE_COOKIE", false),
		},
		RateLimit: RateLimitConfig{
			Interval: getDuration("RATE_LIMIT_INTERVAL", 2*time.Second),
		},
		Auth: AuthConfig{
			BcryptCost: getInt("BCRYPT_COST", 10),
		},
		MQTT: MQTTConfig{
			Enabled:        getBool("MQTT_ENABLED", false),
			BrokerHost:     getEnv("BROKER_HOST", "localhost"),
			BrokerPort:     getInt("BROKER_PORT", 1883),
			BrokerUser:     getEnv("BROKER_USER", ""),
			BrokerPass:     getEnv("BROKER_PASS", ""),
			UseTLS:         getBool("BROKER_TLS", false),
			CACertPath:     getEnv("BROKER_CA_FILE", ""),
			Topic:          getEnv("MQTT_TOPIC", "dht11/+/reading"),
			ThresholdTopic: getEnv("MQTT_THRESHOLD_TOPIC", "dht11/thresholds"),
			ErrorTopic:     getEnv("MQTT_ERROR_TOPIC", "dht11/errors"),
			ClientID:       getEnv("MQTT_CLIENT_ID", "dht-gateway"),
			SharedGroup:    getEnv("MQTT_SHARED_GROUP", ""),
			KeepAlive:      getDuration("MQTT_KEEP_ALIVE", 30*time.Second),
			PingTimeout:    getDuration("MQTT_PING_TIMEOUT", 10*time.Second),
			QueueSize:      getInt("MQTT_QUEUE_SIZE", 1024),
		},
		Logging: LoggingConfig{
			Level:        getEnv("LOG_LEVEL", "info"),
			Format:       getEnv("LOG_FORMAT", "text"),
			Output:       getEnv("LOG_OUTPUT", "stdout"),
			EnableCaller: getBool("LOG_ENABLE_CALLER", false),
		},
		CORS: CORSConfig{
			AllowedOrigins: getStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}),
			MaxAge:         getInt("CORS_MAX_AGE", 43200), // 12 hours
		},
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendPostgres:
		if c.Storage.Postgres.User == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
		if c.Storage.Postgres.Password == "" {
			return fmt.Errorf("POSTGRES_PASSWORD is required")
		}
	case BackendMySQL:
		if c.Storage.MySQL.User == "" {
			return fmt.Errorf("MYSQL_USER is required")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	case BackendMongo:
		if c.Storage.Mongo.URI == "" {
			return fmt.Errorf("MONGODB_URI is required")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	switch c.Session.Store {
	case SessionStoreMemory:
	case SessionStoreBadger:
		if c.Session.BadgerPath == "" {
			return fmt.Errorf("SESSION_BADGER_PATH is required for the badger session store")
		}
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.Session.Store)
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.RateLimit.Interval < 0 {
		return fmt.Errorf("RATE_LIMIT_INTERVAL must not be negative")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	if c.MQTT.Enabled && c.MQTT.QueueSize <= 0 {
		return fmt.Errorf("MQTT_QUEUE_SIZE must be positive")
	}
	return nil
}

// GetPostgresDSN returns the PostgreSQL connection string
func (c *Config) GetPostgresDSN() string {
	db := c.Storage.Postgres
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.User, db.Password, db.DBName, db.SSLMode)
}

// GetMySQLDSN returns the MySQL connection string
func (c *Config) GetMySQLDSN() string {
	db := c.Storage.MySQL
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		db.User, db.Password, db.Host, db.Port, db.DBName)
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (c *Config) GetMQTTBrokerURL() string {
	scheme := "tcp"
	if c.MQTT.UseTLS {
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.BrokerHost, c.MQTT.BrokerPort)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return intValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "1" || value == "true" || value == "TRUE" {
		return true
	}
	if value == "0" || value == "false" || value == "FALSE" {
		return false
	}
	log.Fatalf("invalid %s: %q (expected true/false or 1/0)", key, value)
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return duration
}

func getStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
