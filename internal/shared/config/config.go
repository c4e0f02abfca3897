package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxHeaderBytes int
	CORSOrigins    []string

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// JWT configuration
	JWT JWTConfig

	// Booking / hold lifecycle
	Booking BookingConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// WebSocket fan-out
	WebSocket WebSocketConfig

	// Payment providers
	Payme PaymeConfig
	Click ClickConfig

	// Kafka booking events
	Kafka KafkaConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string
}

// BookingConfig holds hold/booking lifecycle configuration
type BookingConfig struct {
	SelectionTTL       time.Duration // hold without a booking
	ReservationTTL     time.Duration // hold backed by a PENDING booking
	MaxSeatsPerBooking int
	ExpirationInterval time.Duration
	OrphanScanEvery    int // orphan hold scan runs every N ticks
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled          bool
	WindowDuration   time.Duration
	SelectionsPerMin int
	PaymentRequests  int
	WhitelistedIPs   []string
}

// WebSocketConfig holds fan-out connection configuration
type WebSocketConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	RecoveryWindow time.Duration
	MaxMessageSize int64
	SendBufferSize int
}

// PaymeConfig holds Payme merchant configuration
type PaymeConfig struct {
	MerchantID string
	SecretKey  string
	TestKey    string
	// Payme requires webhook handlers to stay alive at least this long.
	MinTimeout time.Duration
}

// ClickConfig holds Click merchant configuration
type ClickConfig struct {
	ServiceID      string
	MerchantID     string
	MerchantUserID string
	SecretKey      string
}

// KafkaConfig holds booking event stream configuration
type KafkaConfig struct {
	Enabled            bool
	Brokers            []string
	BookingEventsTopic string
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		RequestTimeout: getDurationEnv("REQUEST_TIMEOUT", 30*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB
		CORSOrigins:    getStringSliceEnv("CORS_ORIGINS", []string{"*"}),

		// Database configuration
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "ticketon_db"),
			User:     getEnv("DB_USER", "ticketon_user"),
			Password: getEnv("DB_PASSWORD", "ticketon_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		// Redis configuration
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},

		// JWT configuration
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
		},

		// Booking lifecycle
		Booking: BookingConfig{
			SelectionTTL:       getDurationEnvSeconds("SELECTION_TTL_SECONDS", 5*time.Minute),
			ReservationTTL:     getDurationEnvSeconds("RESERVATION_TTL_SECONDS", 10*time.Minute),
			MaxSeatsPerBooking: getIntEnv("MAX_SEATS_PER_BOOKING", 10),
			ExpirationInterval: getDurationEnvSeconds("EXPIRATION_TICK_SECONDS", 30*time.Second),
			OrphanScanEvery:    getIntEnv("ORPHAN_SCAN_EVERY_TICKS", 10),
		},

		// Rate limiting
		RateLimit: RateLimitConfig{
			Enabled:          getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:   getDurationEnvSeconds("RATE_LIMIT_WINDOW_SECONDS", 60*time.Second),
			SelectionsPerMin: getIntEnv("RATE_LIMIT_SELECTIONS_PER_MIN", 10),
			PaymentRequests:  getIntEnv("RATE_LIMIT_PAYMENT_REQUESTS", 20),
			WhitelistedIPs:   getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		// WebSocket
		WebSocket: WebSocketConfig{
			PingInterval:   getDurationEnvSeconds("WS_PING_INTERVAL_SECONDS", 25*time.Second),
			PongTimeout:    getDurationEnvSeconds("WS_PONG_TIMEOUT_SECONDS", 20*time.Second),
			WriteTimeout:   getDurationEnvSeconds("WS_WRITE_TIMEOUT_SECONDS", 10*time.Second),
			RecoveryWindow: getDurationEnvSeconds("WS_RECOVERY_WINDOW_SECONDS", 120*time.Second),
			MaxMessageSize: getInt64Env("WS_MAX_MESSAGE_BYTES", 8192),
			SendBufferSize: getIntEnv("WS_SEND_BUFFER_SIZE", 64),
		},

		// Payme
		Payme: PaymeConfig{
			MerchantID: getEnv("PAYME_MERCHANT_ID", ""),
			SecretKey:  getEnv("PAYME_SECRET_KEY", ""),
			TestKey:    getEnv("PAYME_TEST_KEY", ""),
			MinTimeout: getDurationEnvSeconds("PAYME_MIN_TIMEOUT_SECONDS", 10*time.Second),
		},

		// Click
		Click: ClickConfig{
			ServiceID:      getEnv("CLICK_SERVICE_ID", ""),
			MerchantID:     getEnv("CLICK_MERCHANT_ID", ""),
			MerchantUserID: getEnv("CLICK_MERCHANT_USER_ID", ""),
			SecretKey:      getEnv("CLICK_SECRET_KEY", ""),
		},

		// Kafka
		Kafka: KafkaConfig{
			Enabled:            getBoolEnv("KAFKA_ENABLED", false),
			Brokers:            getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			BookingEventsTopic: getEnv("KAFKA_BOOKING_EVENTS_TOPIC", "booking-events"),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getInt64Env gets an int64 environment variable with a fallback value
func getInt64Env(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getDurationEnvSeconds gets an environment variable as seconds (int) and converts to time.Duration
func getDurationEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
