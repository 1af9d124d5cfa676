package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/docchat.ini"
	envPrefix        = "DOCCHAT_"
)

// Defaults applied when neither a config file nor the environment sets a key.
const (
	DefaultHTTPAddress    = ":3001"
	DefaultModelBaseURL   = "http://localhost:11434"
	DefaultModel          = "llama3"
	DefaultHistoryTurns   = 10
	DefaultChallengeCount = 3
	DefaultPreviewWords   = 100
	DefaultMaxUploadBytes = 20 << 20
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Model backends.
const (
	BackendOllama   = "ollama"
	BackendLoopback = "loopback"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// Config describes runtime options for the daemon and the CLI.
type Config struct {
	Environment string
	HTTPAddress string
	LogFile     string
	LogLevel    string
	// Dated log files older than this many days are removed; 0 keeps all.
	LogRetentionDays int

	StoreDriver   string
	StoreDSN      string
	MongoDatabase string
	// Postgres pool settings
	PostgresMaxOpenConns    int
	PostgresMaxIdleConns    int
	PostgresConnMaxLifetime int // minutes
	PostgresConnMaxIdleTime int // minutes

	AsyncEnabled       bool
	AsyncBatchSize     int
	AsyncFlushInterval time.Duration
	AsyncWorkers       int

	ModelBackend string
	ModelBaseURL string
	Model        string
	ModelTimeout time.Duration
	HistoryTurns int

	ChallengeCount int
	PreviewWords   int
	MaxUploadBytes int64
	PromptsFile    string
	CORSOrigins    []string
	// Model call rate limit per client IP, in requests per minute. Zero disables it.
	ModelRateLimit int
	ModelRateBurst int

	// Optional executable receiving document events as JSON on stdin.
	HookScript  string
	HookArgs    []string
	HookTimeout time.Duration
}

// Load reads the current environment and loads the appropriate config file.
// DOCCHAT_<KEY> environment variables take precedence over both files.
func Load(root string) (Config, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return Config{}, err
	}
	if env := os.Getenv(envPrefix + "ENVIRONMENT"); strings.TrimSpace(env) != "" {
		s.Environment = strings.TrimSpace(env)
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return Config{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}
	get := func(key string, fallbacks ...string) string {
		values := append([]string{os.Getenv(envPrefix + strings.ToUpper(key)), merged[key]}, fallbacks...)
		return strings.TrimSpace(firstNonEmpty(values...))
	}

	cfg := Config{
		Environment:   s.Environment,
		HTTPAddress:   get("http_address", DefaultHTTPAddress),
		LogFile:       get("log_file"),
		LogLevel:      strings.ToLower(get("log_level", "info")),
		StoreDriver:   strings.ToLower(get("store_driver", DriverSQLite)),
		StoreDSN:      get("store_dsn"),
		MongoDatabase: get("mongo_database", "docchat"),
		AsyncEnabled:  parseOptionalBool(get("async_enabled"), true),
		ModelBackend:  strings.ToLower(get("model_backend", BackendOllama)),
		ModelBaseURL:  get("model_base_url", DefaultModelBaseURL),
		Model:         get("model", DefaultModel),
		PromptsFile:   get("prompts_file"),
		CORSOrigins:   parseCSV(get("cors_origins", "*")),
		HookScript:    get("hook_script"),
		HookArgs:      strings.Fields(get("hook_args")),
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"history_turns", DefaultHistoryTurns, &cfg.HistoryTurns},
		{"challenge_count", DefaultChallengeCount, &cfg.ChallengeCount},
		{"preview_words", DefaultPreviewWords, &cfg.PreviewWords},
		{"async_batch_size", 50, &cfg.AsyncBatchSize},
		{"async_workers", 1, &cfg.AsyncWorkers},
		{"postgres_max_open_conns", 20, &cfg.PostgresMaxOpenConns},
		{"postgres_max_idle_conns", 5, &cfg.PostgresMaxIdleConns},
		{"postgres_conn_max_lifetime", 60, &cfg.PostgresConnMaxLifetime},
		{"postgres_conn_max_idle_time", 10, &cfg.PostgresConnMaxIdleTime},
		{"model_rate_limit", 0, &cfg.ModelRateLimit},
		{"model_rate_burst", 0, &cfg.ModelRateBurst},
		{"log_retention_days", 0, &cfg.LogRetentionDays},
	}
	for _, f := range ints {
		v, err := parseInt(f.key, get(f.key), f.fallback)
		if err != nil {
			return Config{}, err
		}
		*f.dst = v
	}

	maxUpload, err := parseInt("max_upload_bytes", get("max_upload_bytes"), DefaultMaxUploadBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	if cfg.ModelTimeout, err = parseDuration("model_timeout", get("model_timeout"), 0); err != nil {
		return Config{}, err
	}
	if cfg.AsyncFlushInterval, err = parseDuration("async_flush_interval", get("async_flush_interval"), 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.HookTimeout, err = parseDuration("hook_timeout", get("hook_timeout"), 10*time.Second); err != nil {
		return Config{}, err
	}

	if cfg.StoreDSN == "" && cfg.StoreDriver == DriverSQLite {
		cfg.StoreDSN = DefaultStorePath()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite, DriverPostgres, DriverMongo:
	default:
		return fmt.Errorf("invalid store_driver %q (want sqlite, postgres or mongo)", c.StoreDriver)
	}
	if c.StoreDriver != DriverSQLite && c.StoreDSN == "" {
		return fmt.Errorf("store_dsn is required for store_driver=%s", c.StoreDriver)
	}
	switch c.ModelBackend {
	case BackendOllama, BackendLoopback:
	default:
		return fmt.Errorf("invalid model_backend %q (want ollama or loopback)", c.ModelBackend)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.ChallengeCount < 0 {
		return fmt.Errorf("challenge_count must not be negative, got %d", c.ChallengeCount)
	}
	if c.LogRetentionDays < 0 {
		return fmt.Errorf("log_retention_days must not be negative, got %d", c.LogRetentionDays)
	}
	if c.ModelRateLimit < 0 || c.ModelRateBurst < 0 {
		return fmt.Errorf("model_rate_limit and model_rate_burst must not be negative")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = strings.TrimSpace(val)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalBool(v string, fallback bool) bool {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return parseBool(v)
}

func parseInt(key, v string, fallback int) (int, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func parseDuration(key, v string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return dur, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseCSV(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// DefaultStorePath returns the fallback sqlite location under the user's home directory.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "docchat.db"
	}
	return filepath.Join(home, ".docchat", "docchat.db")
}
