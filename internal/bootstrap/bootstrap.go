package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tokligence/docchat/internal/config"
)

// InitOptions configures the bootstrap process for generating config files.
type InitOptions struct {
	Root         string
	Environment  string
	StoreDriver  string
	StoreDSN     string
	ModelBackend string
	ModelBaseURL string
	Model        string
	Force        bool
}

// Init scaffolds config/setting.ini and config/<env>/docchat.ini under Root.
func Init(opts InitOptions) error {
	applyDefaults(&opts)
	if err := Validate(opts); err != nil {
		return err
	}
	if err := ensureDir(filepath.Join(opts.Root, "config", opts.Environment)); err != nil {
		return err
	}

	settingPath := filepath.Join(opts.Root, "config", "setting.ini")
	if err := writeFile(settingPath, settingTemplate(opts), opts.Force); err != nil {
		return err
	}

	envPath := filepath.Join(opts.Root, "config", opts.Environment, "docchat.ini")
	if err := writeFile(envPath, envTemplate(opts), opts.Force); err != nil {
		return err
	}

	return nil
}

func applyDefaults(opts *InitOptions) {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "dev"
	}
	if strings.TrimSpace(opts.StoreDriver) == "" {
		opts.StoreDriver = config.DriverSQLite
	}
	if strings.TrimSpace(opts.StoreDSN) == "" && opts.StoreDriver == config.DriverSQLite {
		opts.StoreDSN = config.DefaultStorePath()
	}
	if strings.TrimSpace(opts.ModelBackend) == "" {
		opts.ModelBackend = config.BackendOllama
	}
	if strings.TrimSpace(opts.ModelBaseURL) == "" {
		opts.ModelBaseURL = config.DefaultModelBaseURL
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = config.DefaultModel
	}
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func writeFile(path, contents string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

func settingTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# docchat settings
environment=%s
log_level=info
`, opts.Environment)
}

func envTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# Environment specific overrides for %s
http_address=%s
# Dash '-' disables file output.
log_file=logs/docchatd.log
log_retention_days=14
store_driver=%s
store_dsn=%s
async_enabled=true
model_backend=%s
model_base_url=%s
model=%s
history_turns=%d
challenge_count=%d
preview_words=%d
cors_origins=*
# Model calls per minute per client IP; 0 disables the limit.
model_rate_limit=0
model_rate_burst=0
# Executable receiving document events as JSON on stdin.
#hook_script=
`, opts.Environment, config.DefaultHTTPAddress, opts.StoreDriver, opts.StoreDSN,
		opts.ModelBackend, opts.ModelBaseURL, opts.Model,
		config.DefaultHistoryTurns, config.DefaultChallengeCount, config.DefaultPreviewWords)
}

// Validate ensures the options describe a usable setup without touching files.
func Validate(opts InitOptions) error {
	applyDefaults(&opts)
	switch opts.StoreDriver {
	case config.DriverSQLite, config.DriverPostgres, config.DriverMongo:
	default:
		return fmt.Errorf("unknown store driver %q", opts.StoreDriver)
	}
	if strings.TrimSpace(opts.StoreDSN) == "" {
		return fmt.Errorf("store dsn is required for %s", opts.StoreDriver)
	}
	switch opts.ModelBackend {
	case config.BackendOllama, config.BackendLoopback:
	default:
		return fmt.Errorf("unknown model backend %q", opts.ModelBackend)
	}
	return nil
}
