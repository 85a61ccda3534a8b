// Package config loads beamsim.cfg.json through viper and exposes typed
// views of each section.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/beamsim/beamsim/internal/contact"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "beamsim.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. BEAMSIM_SIMULATION_TICKRATE.
const EnvPrefix = "BEAMSIM"

// SimulationConfig holds the world parameters.
type SimulationConfig struct {
	TickRate           float32
	Gravity            [3]float32
	ReplayRate         float32
	Workers            int
	MaxTicksPerAdvance int
	HardPenetration    float32
	ForceSentinel      float32
	GroundStiffness    float32
	GroundDamping      float32
	Water              bool
	WaterLevel         float32
	AirDrag            float32
	DefinitionsDir     string
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	OutputDir    string
	DumpInterval time.Duration
}

// PostgresConfig holds the connection settings of the postgres backend.
type PostgresConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
}

// DSN renders the lib/pq style connection string gorm's postgres driver
// accepts.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

// WebSocketConfig holds websocket streaming backend settings
type WebSocketConfig struct {
	URL            string
	Secret         string
	ReconnectDelay time.Duration
	AckTimeout     time.Duration
}

// RedisConfig holds redis storage backend settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// StorageConfig selects and configures the recording backend.
type StorageConfig struct {
	Type      string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	Postgres  PostgresConfig
	WebSocket WebSocketConfig
	Redis     RedisConfig
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig holds telemetry sink settings
type InfluxConfig struct {
	Enabled   bool
	Host      string
	Port      string
	Protocol  string
	Token     string
	Org       string
	Bucket    string
	BackupDir string
}

// URL returns protocol://host:port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// APIConfig holds the control API and the upload client settings.
type APIConfig struct {
	Enabled   bool
	Listen    string
	JWTSecret string
	ServerURL string
	APIKey    string
}

// MonitorConfig holds status reporting settings
type MonitorConfig struct {
	Enabled    bool
	Interval   time.Duration
	StatusFile string
}

// GraylogConfig holds GELF output settings
type GraylogConfig struct {
	Enabled bool
	Address string
}

// DebugConfig holds profiling and crash reporting settings.
type DebugConfig struct {
	Statsview     bool
	StatsviewAddr string
	SentryDSN     string
}

// GeoConfig places the local simulation frame on the globe for exports.
type GeoConfig struct {
	OriginLat float64
	OriginLon float64
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("defaultTag", "Test")
	viper.SetDefault("sessionName", "session")

	viper.SetDefault("simulation.tickRate", 500)
	viper.SetDefault("simulation.gravity", []float64{0, -9.81, 0})
	viper.SetDefault("simulation.replayRate", 20)
	viper.SetDefault("simulation.workers", 1)
	viper.SetDefault("simulation.maxTicksPerAdvance", 1000)
	viper.SetDefault("simulation.hardPenetration", 1.0)
	viper.SetDefault("simulation.forceSentinel", 1e8)
	viper.SetDefault("simulation.ground.stiffness", 2e6)
	viper.SetDefault("simulation.ground.damping", 2e4)
	viper.SetDefault("simulation.water", false)
	viper.SetDefault("simulation.waterLevel", 0.0)
	viper.SetDefault("simulation.airDrag", 0.0)
	viper.SetDefault("simulation.definitionsDir", "./definitions")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.outputDir", "./recordings")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "beamsim")
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/v1/stream")
	viper.SetDefault("storage.websocket.secret", "")
	viper.SetDefault("storage.websocket.reconnectDelay", "2s")
	viper.SetDefault("storage.websocket.ackTimeout", "10s")
	viper.SetDefault("storage.redis.addr", "localhost:6379")
	viper.SetDefault("storage.redis.password", "")
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.prefix", "beamsim")
	viper.SetDefault("storage.redis.ttl", "1h")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "beamsim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "beamsim")
	viper.SetDefault("influx.bucket", "telemetry")
	viper.SetDefault("influx.backupDir", "./influx_backup")

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.listen", ":8080")
	viper.SetDefault("api.jwtSecret", "")
	viper.SetDefault("api.serverUrl", "http://localhost:5000/api")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "1s")
	viper.SetDefault("monitor.statusFile", "status.txt")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("debug.statsview", false)
	viper.SetDefault("debug.statsviewAddr", "localhost:18066")
	viper.SetDefault("debug.sentryDsn", "")

	viper.SetDefault("geo.originLat", 0.0)
	viper.SetDefault("geo.originLon", 0.0)

	viper.SetDefault("ground.default", contact.DefaultGroundModelName)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. A .env file in the
// same directory is loaded into the environment first; BEAMSIM_ variables
// override file keys.
func Load(configDir string) error {
	setDefaults()

	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error reading .env file: %w", err)
	}
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

func getFloat32(key string) float32 {
	return float32(viper.GetFloat64(key))
}

// GetSimulationConfig returns the world parameters.
func GetSimulationConfig() SimulationConfig {
	cfg := SimulationConfig{
		TickRate:           getFloat32("simulation.tickRate"),
		ReplayRate:         getFloat32("simulation.replayRate"),
		Workers:            viper.GetInt("simulation.workers"),
		MaxTicksPerAdvance: viper.GetInt("simulation.maxTicksPerAdvance"),
		HardPenetration:    getFloat32("simulation.hardPenetration"),
		ForceSentinel:      getFloat32("simulation.forceSentinel"),
		GroundStiffness:    getFloat32("simulation.ground.stiffness"),
		GroundDamping:      getFloat32("simulation.ground.damping"),
		Water:              viper.GetBool("simulation.water"),
		WaterLevel:         getFloat32("simulation.waterLevel"),
		AirDrag:            getFloat32("simulation.airDrag"),
		DefinitionsDir:     viper.GetString("simulation.definitionsDir"),
	}
	var g []float64
	if err := viper.UnmarshalKey("simulation.gravity", &g); err == nil && len(g) == 3 {
		cfg.Gravity = [3]float32{float32(g[0]), float32(g[1]), float32(g[2])}
	}
	return cfg
}

// GetStorageConfig returns storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			OutputDir:    viper.GetString("storage.sqlite.outputDir"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
			SSLMode:  viper.GetString("storage.postgres.sslmode"),
		},
		WebSocket: WebSocketConfig{
			URL:            viper.GetString("storage.websocket.url"),
			Secret:         viper.GetString("storage.websocket.secret"),
			ReconnectDelay: viper.GetDuration("storage.websocket.reconnectDelay"),
			AckTimeout:     viper.GetDuration("storage.websocket.ackTimeout"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("storage.redis.addr"),
			Password: viper.GetString("storage.redis.password"),
			DB:       viper.GetInt("storage.redis.db"),
			Prefix:   viper.GetString("storage.redis.prefix"),
			TTL:      viper.GetDuration("storage.redis.ttl"),
		},
	}
}

// GetOTelConfig returns OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns telemetry sink settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

func GetAPIConfig() APIConfig {
	return APIConfig{
		Enabled:   viper.GetBool("api.enabled"),
		Listen:    viper.GetString("api.listen"),
		JWTSecret: viper.GetString("api.jwtSecret"),
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
	}
}

func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

func GetDebugConfig() DebugConfig {
	return DebugConfig{
		Statsview:     viper.GetBool("debug.statsview"),
		StatsviewAddr: viper.GetString("debug.statsviewAddr"),
		SentryDSN:     viper.GetString("debug.sentryDsn"),
	}
}

func GetGeoConfig() GeoConfig {
	return GeoConfig{
		OriginLat: viper.GetFloat64("geo.originLat"),
		OriginLon: viper.GetFloat64("geo.originLon"),
	}
}

// GetFrictionTable builds the ground model table from the "ground" section.
// Models listed there are merged over the built-in ones by name.
func GetFrictionTable() (*contact.FrictionTable, error) {
	var custom []contact.GroundModel
	if err := viper.UnmarshalKey("ground.models", &custom); err != nil {
		return nil, fmt.Errorf("parse ground models: %w", err)
	}
	models := contact.DefaultGroundModels()
	for _, m := range custom {
		replaced := false
		for i := range models {
			if models[i].Name == m.Name {
				models[i] = m
				replaced = true
				break
			}
		}
		if !replaced {
			models = append(models, m)
		}
	}
	t, err := contact.NewFrictionTable(models, viper.GetString("ground.default"))
	if err != nil {
		return nil, fmt.Errorf("build friction table: %w", err)
	}
	return t, nil
}
