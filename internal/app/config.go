package app

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	GeminiAPIKey  string `yaml:"gemini_api_key"`
	GeminiModel   string `yaml:"gemini_model"`
	GeminiBaseURL string `yaml:"gemini_base_url"`
	CalendarToken string `yaml:"calendar_token"`
	DataDir       string `yaml:"data_dir"`
	RememberMe    bool   `yaml:"remember_me"`
}

func DefaultConfig() Config {
	return Config{
		GeminiModel:   defaultGeminiModel,
		GeminiBaseURL: defaultGeminiBaseURL,
		DataDir:       DefaultDataDir(),
		RememberMe:    true,
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(&cfg)
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = defaultGeminiModel
	}
	if cfg.GeminiBaseURL == "" {
		cfg.GeminiBaseURL = defaultGeminiBaseURL
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv lets environment variables fill anything the file left empty.
func applyEnv(cfg *Config) {
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv("LIVO_GEMINI_API_KEY")
	}
	if cfg.CalendarToken == "" {
		cfg.CalendarToken = os.Getenv("LIVO_CALENDAR_TOKEN")
	}
	if v := os.Getenv("LIVO_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
}

func SaveConfig(cfg Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if path == "" {
		return errors.New("no path provided for config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "livo", "config.yml")
}

// DefaultDataDir prefers XDG data dirs and degrades to the temp dir.
func DefaultDataDir() string {
	if base := os.Getenv("XDG_DATA_HOME"); base != "" {
		return filepath.Join(base, "livo")
	}
	if base, err := os.UserHomeDir(); err == nil && base != "" {
		return filepath.Join(base, ".local", "share", "livo")
	}
	return filepath.Join(os.TempDir(), "livo")
}
