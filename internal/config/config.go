package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string

	// Logging
	LogLevel string

	// CORS
	CORSAllowedOrigin string

	// Refresh
	RefreshInterval time.Duration
	SeedBatchSize   int
	// SeedFile が設定されている場合、seedは合成データではなくファイルの識別子を投入する
	SeedFile string

	// Redis（RedisAddrが空の場合はキャッシュ無効）
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Kafka（KafkaBrokersが空の場合はイベント配信無効）
	KafkaBrokers []string
	KafkaTopic   string
}

// CacheEnabled はRedisキャッシュが設定されているかを返す。
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

// EventsEnabled はKafkaへのイベント配信が設定されているかを返す。
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// source は環境変数と設定ファイルの値を解決する。
// 環境変数が設定されていればそちらを優先する。
type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

// Load は環境変数からConfigを読み込む。
// CONFIG_FILEが指定されている場合、そのYAMLファイルの値を環境変数の下位のデフォルトとして使用する。
// 必須項目が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = src.lookup("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = src.getString("SERVER_PORT", "8080")
	cfg.LogLevel = src.getString("LOG_LEVEL", "info")
	cfg.CORSAllowedOrigin = src.getString("CORS_ALLOWED_ORIGIN", "*")
	cfg.RefreshInterval = src.getDuration("REFRESH_INTERVAL", 5*time.Minute)
	cfg.SeedBatchSize = src.getInt("SEED_BATCH_SIZE", 10)
	cfg.SeedFile = src.getString("SEED_FILE", "")
	cfg.RedisAddr = src.getString("REDIS_ADDR", "")
	cfg.RedisPassword = src.getString("REDIS_PASSWORD", "")
	cfg.RedisDB = src.getInt("REDIS_DB", 0)
	cfg.CacheTTL = src.getDuration("CACHE_TTL", 30*time.Second)
	cfg.KafkaBrokers = splitList(src.getString("KAFKA_BROKERS", ""))
	cfg.KafkaTopic = src.getString("KAFKA_TOPIC", "overlap-snapshots")

	return cfg, nil
}

// loadFile はKEY: value形式のYAML設定ファイルを読み込む。
func loadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case []any:
			items := make([]string, 0, len(val))
			for _, item := range val {
				items = append(items, fmt.Sprint(item))
			}
			values[k] = strings.Join(items, ",")
		default:
			values[k] = fmt.Sprint(val)
		}
	}
	return values, nil
}

func splitList(v string) []string {
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func (s source) getString(key, defaultVal string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return defaultVal
}

func (s source) getInt(key string, defaultVal int) int {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func (s source) getDuration(key string, defaultVal time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
