package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment
// variables. It is populated once at startup by Load and passed to
// constructors; nothing mutates it afterwards.
type Config struct {
	// NodeRPC is the JSON-RPC endpoint of the ledger node.
	NodeRPC string
	// MempoolWS is the websocket endpoint streaming decoded pending swaps.
	MempoolWS string
	// RelayRPC is the bundle-relay endpoint for atomic submission.
	RelayRPC string

	// ChainID is the chain ID of the target network.
	ChainID uint64

	// SearcherAddress is the node-held account transactions are sent from.
	SearcherAddress string
	// RouterAddress is the swap router granted token approvals.
	RouterAddress string
	// LendingPool is the flash-loan provider contract.
	LendingPool string

	// Mode is the safety switch: "live" broadcasts real transactions,
	// anything else runs the full pipeline dry.
	Mode string

	// WebhookURL is the optional notification endpoint.
	WebhookURL string

	// WebPort is the listen port for the status server.
	WebPort string

	LogLevel string

	DB DBConfig
}

// DBConfig holds PostgreSQL connection parameters for the risk state store.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Load loads configuration from environment variables. All variables except
// the optional ones are required; a missing value is a startup failure.
func Load() (Config, error) {
	log.Info().Msg("Loading application configuration from environment variables...")

	var cfg Config
	var err error

	cfg.NodeRPC, err = getEnv("NODE_RPC")
	if err != nil {
		return Config{}, err
	}

	cfg.MempoolWS, err = getEnv("MEMPOOL_WS")
	if err != nil {
		return Config{}, err
	}

	cfg.RelayRPC, err = getEnv("RELAY_RPC")
	if err != nil {
		return Config{}, err
	}

	cfg.ChainID, err = getEnvAsUint64("CHAIN_ID")
	if err != nil {
		return Config{}, err
	}

	cfg.SearcherAddress, err = getEnv("SEARCHER_ADDRESS")
	if err != nil {
		return Config{}, err
	}

	cfg.RouterAddress, err = getEnv("ROUTER_ADDRESS")
	if err != nil {
		return Config{}, err
	}

	cfg.LendingPool, err = getEnv("LENDING_POOL")
	if err != nil {
		return Config{}, err
	}

	cfg.Mode = os.Getenv("SEARCHER_MODE")
	cfg.WebhookURL = os.Getenv("WEBHOOK_URL")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")

	cfg.WebPort = os.Getenv("WEB_PORT")
	if cfg.WebPort == "" {
		cfg.WebPort = "8080"
	}

	if cfg.Mode == "live" {
		cfg.DB, err = loadDBConfig()
		if err != nil {
			return Config{}, err
		}
	}

	log.Debug().
		Uint64("ChainID", cfg.ChainID).
		Str("NodeRPC", cfg.NodeRPC).
		Str("Mode", cfg.Mode).
		Msg("Configuration loaded successfully.")

	return cfg, nil
}

// loadDBConfig reads the PostgreSQL parameters. Only required in live mode;
// dry runs use the in-memory store.
func loadDBConfig() (DBConfig, error) {
	host, err := getEnv("DB_HOST")
	if err != nil {
		return DBConfig{}, err
	}
	user, err := getEnv("DB_USER")
	if err != nil {
		return DBConfig{}, err
	}
	password, err := getEnv("DB_PASSWORD")
	if err != nil {
		return DBConfig{}, err
	}
	dbName, err := getEnv("DB_NAME")
	if err != nil {
		return DBConfig{}, err
	}

	port := 5432
	if portStr := os.Getenv("DB_PORT"); portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return DBConfig{}, errors.New("environment variable DB_PORT must be a valid int, got: " + portStr)
		}
	}

	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DBConfig{
		Host: host, Port: port,
		User: user, Password: password,
		DBName: dbName, SSLMode: sslMode,
	}, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}
