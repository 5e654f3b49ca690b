package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Ledger        LedgerConfig        `json:"ledger"`
	Registry      RegistryConfig      `json:"registry"`
	Funding       FundingConfig       `json:"funding"`
	Session       SessionConfig       `json:"session"`
	Persistence   PersistenceConfig   `json:"persistence"`
	Notifications NotificationsConfig `json:"notifications"`
	Evidence      EvidenceConfig      `json:"evidence"`
	Reconcile     ReconcileConfig     `json:"reconcile"`
	Export        ExportConfig        `json:"export"`
	AWS           AWSConfig           `json:"aws"`
	Security      SecurityConfig      `json:"security"`
	Logging       LoggingConfig       `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// Ledger modes
const (
	LedgerModeRPC       = "rpc"
	LedgerModeSimulated = "simulated"
)

// LedgerConfig selects and tunes the remote ledger client.
type LedgerConfig struct {
	Mode              string        `json:"mode"`
	RPCURL            string        `json:"rpc_url"`
	Network           string        `json:"network"`
	Timeout           time.Duration `json:"timeout"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	// SimulatedStatePath keeps simulated ledger state between CLI runs.
	SimulatedStatePath string `json:"simulated_state_path"`
	// FaucetAmount is credited to every new simulated account.
	FaucetAmount uint64 `json:"faucet_amount"`
}

// RegistryConfig holds the registry identifiers and limits.
type RegistryConfig struct {
	AppID            uint64 `json:"app_id"`
	AssetID          uint64 `json:"asset_id"`
	ValidatorAddress string `json:"validator_address"`
	MaxProjects      int    `json:"max_projects"`
	MaxListings      int    `json:"max_listings"`
}

// FundingConfig lists the amounts (in base units) sent to the registry
// account before writes that need it.
type FundingConfig struct {
	AssetCreation uint64 `json:"asset_creation"`
	ProjectRecord uint64 `json:"project_record"`
	ListingRecord uint64 `json:"listing_record"`
	IssueFees     uint64 `json:"issue_fees"`
	// FeeReserve is kept on top of a purchase price when checking a buyer's balance.
	FeeReserve uint64 `json:"fee_reserve"`
}

// SessionConfig controls how the active identity is obtained.
type SessionConfig struct {
	Demo         bool   `json:"demo"`
	KeystorePath string `json:"keystore_path"`
	Passphrase   string `json:"-"`
}

// Persistence drivers
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverDynamoDB = "dynamodb"
	DriverMongo    = "mongo"
)

// PersistenceConfig selects the key-value backend for registry identifiers.
type PersistenceConfig struct {
	Driver        string `json:"driver"`
	Path          string `json:"path"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`
	DynamoTable   string `json:"dynamo_table"`
	MongoURI      string `json:"mongo_uri"`
	MongoDatabase string `json:"mongo_database"`
}

// NotificationsConfig
type NotificationsConfig struct {
	History     bool   `json:"history"`
	SNSTopicARN string `json:"sns_topic_arn"`
	RecentLimit int    `json:"recent_limit"`
}

// EvidenceConfig
type EvidenceConfig struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
	Strict bool   `json:"strict"`
}

// ReconcileConfig
type ReconcileConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
}

// ExportConfig schedules registry exports into the evidence bucket. An
// empty schedule disables them.
type ExportConfig struct {
	Schedule string   `json:"schedule"`
	Prefix   string   `json:"prefix"`
	Formats  []string `json:"formats"`
}

// AWSConfig is shared by the S3, SNS and DynamoDB clients.
type AWSConfig struct {
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"-"`
	SecretAccessKey string `json:"-"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string `json:"-"`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	config := Default()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    os.Getenv("USER"),
			DBName:  "aarna_portal",
			SSLMode: "disable",
		},
		Ledger: LedgerConfig{
			Mode:              LedgerModeRPC,
			RPCURL:            "http://localhost:4001/rpc",
			Network:           "localnet",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 10,
			FaucetAmount:      100_000_000,
		},
		Registry: RegistryConfig{
			MaxProjects: 4,
			MaxListings: 4,
		},
		Funding: FundingConfig{
			AssetCreation: 1_000_000,
			ProjectRecord: 200_000,
			ListingRecord: 100_000,
			IssueFees:     200_000,
			FeeReserve:    2_000,
		},
		Persistence: PersistenceConfig{
			Driver:        DriverFile,
			Path:          "aarna-state.json",
			RedisAddr:     "localhost:6379",
			DynamoTable:   "aarna-settings",
			MongoDatabase: "aarna",
		},
		Notifications: NotificationsConfig{
			RecentLimit: 50,
		},
		Evidence: EvidenceConfig{
			Prefix: "evidence/",
		},
		Reconcile: ReconcileConfig{
			Enabled:  true,
			Schedule: "@every 30s",
		},
		Export: ExportConfig{
			Prefix:  "exports/",
			Formats: []string{"csv"},
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func overrideWithEnv(config *Config) error {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}

	if mode := os.Getenv("LEDGER_MODE"); mode != "" {
		config.Ledger.Mode = mode
	}
	if url := os.Getenv("LEDGER_RPC_URL"); url != "" {
		config.Ledger.RPCURL = url
	}

	// Explicit identifiers win over anything persisted locally.
	if v := os.Getenv("AARNA_APP_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid AARNA_APP_ID %q: %w", v, err)
		}
		config.Registry.AppID = id
	}
	if v := os.Getenv("AARNA_ASSET_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid AARNA_ASSET_ID %q: %w", v, err)
		}
		config.Registry.AssetID = id
	}
	if v := os.Getenv("AARNA_VALIDATOR_ADDRESS"); v != "" {
		config.Registry.ValidatorAddress = v
	}

	if v := os.Getenv("AARNA_DEMO"); v != "" {
		if demo, err := strconv.ParseBool(v); err == nil {
			config.Session.Demo = demo
		}
	}
	if v := os.Getenv("AARNA_KEYSTORE"); v != "" {
		config.Session.KeystorePath = v
	}
	if v := os.Getenv("AARNA_KEYSTORE_PASSPHRASE"); v != "" {
		config.Session.Passphrase = v
	}

	if v := os.Getenv("PERSISTENCE_DRIVER"); v != "" {
		config.Persistence.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Persistence.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Persistence.RedisPassword = v
	}
	if v := os.Getenv("DYNAMODB_TABLE"); v != "" {
		config.Persistence.DynamoTable = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		config.Persistence.MongoURI = v
	}

	if v := os.Getenv("AWS_REGION"); v != "" {
		config.AWS.Region = v
	}
	if v := os.Getenv("AWS_ENDPOINT_URL"); v != "" {
		config.AWS.Endpoint = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		config.AWS.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		config.AWS.SecretAccessKey = v
	}
	if v := os.Getenv("EVIDENCE_BUCKET"); v != "" {
		config.Evidence.Bucket = v
	}
	if v := os.Getenv("EXPORT_SCHEDULE"); v != "" {
		config.Export.Schedule = v
	}
	if v := os.Getenv("NOTIFICATIONS_SNS_TOPIC"); v != "" {
		config.Notifications.SNSTopicARN = v
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		config.Security.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	return nil
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	switch c.Ledger.Mode {
	case LedgerModeRPC, LedgerModeSimulated:
	default:
		return fmt.Errorf("unknown ledger mode %q", c.Ledger.Mode)
	}
	if c.Ledger.Mode == LedgerModeRPC && !c.Session.Demo && c.Ledger.RPCURL == "" {
		return fmt.Errorf("ledger rpc_url is required in rpc mode")
	}

	switch c.Persistence.Driver {
	case DriverMemory, DriverFile, DriverPostgres, DriverRedis, DriverDynamoDB, DriverMongo:
	default:
		return fmt.Errorf("unknown persistence driver %q", c.Persistence.Driver)
	}

	if c.Registry.MaxProjects <= 0 || c.Registry.MaxListings <= 0 {
		return fmt.Errorf("registry capacity must be positive")
	}
	return nil
}

// UseSimulatedLedger reports whether actions run against the in-process ledger.
func (c *Config) UseSimulatedLedger() bool {
	return c.Session.Demo || c.Ledger.Mode == LedgerModeSimulated
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Build creates the process logger.
func (c LoggingConfig) Build() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(c.Level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
	}

	cfg := zap.NewProductionConfig()
	if c.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
