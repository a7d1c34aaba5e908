package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server holds the settings of the low-poly HTTP service.
type Server struct {
	HTTPAddr        string
	GRPCAddr        string
	RedisAddr       string
	DatabaseDSN     string
	CacheTTL        time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

// Client holds the settings of the command line front end.
type Client struct {
	ServerURL string
	Timeout   time.Duration
	LogLevel  string
}

// LoadServer reads the server configuration from the environment, after
// applying an optional .env file.
func LoadServer() (*Server, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	cacheTTL, err := getDuration("CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	shutdown, err := getDuration("SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	return &Server{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:        os.Getenv("GRPC_ADDR"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		DatabaseDSN:     os.Getenv("DATABASE_DSN"),
		CacheTTL:        cacheTTL,
		ShutdownTimeout: shutdown,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}, nil
}

// LoadClient reads the CLI configuration from the environment.
func LoadClient() (*Client, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	timeout, err := getDuration("LOWPOLY_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{
		ServerURL: strings.TrimRight(getEnv("LOWPOLY_SERVER_URL", "http://localhost:8080"), "/"),
		Timeout:   timeout,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
	}, nil
}

func loadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &InvalidValueError{Key: key, Value: raw, Err: err}
	}
	return d, nil
}

// InvalidValueError reports an environment variable that failed to parse.
type InvalidValueError struct {
	Key   string
	Value string
	Err   error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("config: invalid value %q for %s: %v", e.Value, e.Key, e.Err)
}

func (e *InvalidValueError) Unwrap() error { return e.Err }
