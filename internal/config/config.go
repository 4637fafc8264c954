package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	configutil "github.com/NYCU-SDC/summer/pkg/config"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

var (
	ErrUnknownBackend      = errors.New("unknown storage backend")
	ErrDatabaseURLRequired = errors.New("storage.database_url is required for the postgres backend")
	ErrRedisURLRequired    = errors.New("storage.redis_url is required for the redis backend")
	ErrFileDirRequired     = errors.New("storage.file_dir is required for the file backend")
	ErrSQLitePathRequired  = errors.New("storage.sqlite_path is required for the sqlite backend")
	ErrUnknownCodec        = errors.New("unknown storage codec")
	ErrUnknownCompression  = errors.New("unknown storage compression")
)

type StorageConfig struct {
	Backend         string `yaml:"backend"          envconfig:"STORAGE_BACKEND"`
	Key             string `yaml:"key"              envconfig:"STORAGE_KEY"`
	FileDir         string `yaml:"file_dir"         envconfig:"STORAGE_FILE_DIR"`
	RedisURL        string `yaml:"redis_url"        envconfig:"REDIS_URL"`
	DatabaseURL     string `yaml:"database_url"     envconfig:"DATABASE_URL"`
	MigrationSource string `yaml:"migration_source" envconfig:"MIGRATION_SOURCE"`
	SQLitePath      string `yaml:"sqlite_path"      envconfig:"SQLITE_PATH"`
	Codec           string `yaml:"codec"            envconfig:"STORAGE_CODEC"`
	Compression     string `yaml:"compression"      envconfig:"STORAGE_COMPRESSION"`
}

type Config struct {
	Debug            bool          `yaml:"debug"              envconfig:"DEBUG"`
	Host             string        `yaml:"host"               envconfig:"HOST"`
	Port             string        `yaml:"port"               envconfig:"PORT"`
	AllowOrigins     []string      `yaml:"allow_origins"      envconfig:"ALLOW_ORIGINS"`
	OtelCollectorUrl string        `yaml:"otel_collector_url" envconfig:"OTEL_COLLECTOR_URL"`
	Storage          StorageConfig `yaml:"storage"`
}

type LogBuffer struct {
	buffer []logEntry
}

type logEntry struct {
	msg  string
	err  error
	meta map[string]string
}

func NewConfigLogger() *LogBuffer {
	return &LogBuffer{}
}

func (cl *LogBuffer) Warn(msg string, err error, meta map[string]string) {
	cl.buffer = append(cl.buffer, logEntry{msg: msg, err: err, meta: meta})
}

func (cl *LogBuffer) FlushToZap(logger *zap.Logger) {
	for _, e := range cl.buffer {
		var fields []zap.Field
		if e.err != nil {
			fields = append(fields, zap.Error(e.err))
		}
		for k, v := range e.meta {
			fields = append(fields, zap.String(k, v))
		}
		logger.Warn(e.msg, fields...)
	}
	cl.buffer = nil
}

func (c *Config) Validate() error {
	s := c.Storage
	switch s.Backend {
	case BackendMemory:
	case BackendFile:
		if s.FileDir == "" {
			return ErrFileDirRequired
		}
	case BackendRedis:
		if s.RedisURL == "" {
			return ErrRedisURLRequired
		}
	case BackendPostgres:
		if s.DatabaseURL == "" {
			return ErrDatabaseURLRequired
		}
	case BackendSQLite:
		if s.SQLitePath == "" {
			return ErrSQLitePathRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, s.Backend)
	}

	switch s.Codec {
	case "json", "sonic", "msgpack":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCodec, s.Codec)
	}

	switch s.Compression {
	case "none", "gzip", "zstd":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCompression, s.Compression)
	}

	return nil
}

func Default() *Config {
	return &Config{
		Debug:            false,
		Host:             "localhost",
		Port:             "8080",
		AllowOrigins:     []string{"http://localhost:5173"},
		OtelCollectorUrl: "",
		Storage: StorageConfig{
			Backend:         BackendFile,
			Key:             "workflow",
			FileDir:         "data",
			MigrationSource: "file://internal/database/migrations",
			SQLitePath:      "data/workflow.db",
			Codec:           "json",
			Compression:     "none",
		},
	}
}

func Load() (Config, *LogBuffer) {
	logger := NewConfigLogger()

	config := Default()

	var err error

	config, err = FromFile("config.yaml", config, logger)
	if err != nil {
		logger.Warn("Failed to load config from file", err, map[string]string{"path": "config.yaml"})
	}

	config, err = FromEnv(config, logger)
	if err != nil {
		logger.Warn("Failed to load config from env", err, map[string]string{"path": ".env"})
	}

	config, err = FromFlags(config)
	if err != nil {
		logger.Warn("Failed to load config from flags", err, map[string]string{"path": "flags"})
	}

	return *config, logger
}

func FromFile(filePath string, config *Config, logger *LogBuffer) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return config, err
	}
	defer func(file *os.File) {
		err := file.Close()
		if err != nil {
			logger.Warn("Failed to close config file", err, map[string]string{"path": filePath})
		}
	}(file)

	fileConfig := Config{}
	if err := yaml.NewDecoder(file).Decode(&fileConfig); err != nil {
		return config, err
	}

	return merge(config, &fileConfig)
}

func FromEnv(config *Config, logger *LogBuffer) (*Config, error) {
	if err := godotenv.Overload(); err != nil {
		if os.IsNotExist(err) {
			logger.Warn("No .env file found", err, map[string]string{"path": ".env"})
		} else {
			return nil, err
		}
	}

	envConfig := &Config{
		Debug:            os.Getenv("DEBUG") == "true",
		Host:             os.Getenv("HOST"),
		Port:             os.Getenv("PORT"),
		AllowOrigins:     splitList(os.Getenv("ALLOW_ORIGINS")),
		OtelCollectorUrl: os.Getenv("OTEL_COLLECTOR_URL"),
		Storage: StorageConfig{
			Backend:         os.Getenv("STORAGE_BACKEND"),
			Key:             os.Getenv("STORAGE_KEY"),
			FileDir:         os.Getenv("STORAGE_FILE_DIR"),
			RedisURL:        os.Getenv("REDIS_URL"),
			DatabaseURL:     os.Getenv("DATABASE_URL"),
			MigrationSource: os.Getenv("MIGRATION_SOURCE"),
			SQLitePath:      os.Getenv("SQLITE_PATH"),
			Codec:           os.Getenv("STORAGE_CODEC"),
			Compression:     os.Getenv("STORAGE_COMPRESSION"),
		},
	}

	return merge(config, envConfig)
}

func FromFlags(config *Config) (*Config, error) {
	return fromArgs(config, flag.CommandLine, os.Args[1:])
}

func fromArgs(config *Config, flags *flag.FlagSet, args []string) (*Config, error) {
	flagConfig := &Config{}
	var allowOrigins string

	flags.BoolVar(&flagConfig.Debug, "debug", false, "debug mode")
	flags.StringVar(&flagConfig.Host, "host", "", "host")
	flags.StringVar(&flagConfig.Port, "port", "", "port")
	flags.StringVar(&allowOrigins, "allow_origins", "", "comma separated CORS origins")
	flags.StringVar(&flagConfig.OtelCollectorUrl, "otel_collector_url", "", "OpenTelemetry collector URL")
	flags.StringVar(&flagConfig.Storage.Backend, "storage_backend", "", "storage backend (memory, file, redis, postgres, sqlite)")
	flags.StringVar(&flagConfig.Storage.Key, "storage_key", "", "persistence key")
	flags.StringVar(&flagConfig.Storage.FileDir, "storage_file_dir", "", "directory for the file backend")
	flags.StringVar(&flagConfig.Storage.RedisURL, "redis_url", "", "redis url")
	flags.StringVar(&flagConfig.Storage.DatabaseURL, "database_url", "", "database url")
	flags.StringVar(&flagConfig.Storage.MigrationSource, "migration_source", "", "migration source")
	flags.StringVar(&flagConfig.Storage.SQLitePath, "sqlite_path", "", "sqlite database path")
	flags.StringVar(&flagConfig.Storage.Codec, "storage_codec", "", "slot codec (json, sonic, msgpack)")
	flags.StringVar(&flagConfig.Storage.Compression, "storage_compression", "", "slot compression (none, gzip, zstd)")

	err := flags.Parse(args)
	if err != nil {
		return config, err
	}

	flagConfig.AllowOrigins = splitList(allowOrigins)

	return merge(config, flagConfig)
}

// merge applies the non-zero fields of override onto base. Merge only looks at
// top-level fields, so the nested storage section is merged on its own first.
func merge(base, override *Config) (*Config, error) {
	_, err := configutil.Merge[StorageConfig](&base.Storage, &override.Storage)
	if err != nil {
		return base, err
	}
	override.Storage = StorageConfig{}

	return configutil.Merge[Config](base, override)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
