// Package config manages application configuration from an optional YAML
// file, environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const envPrefix = "DOCSITE_"

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "docsite.yaml"

// Config holds runtime configuration for the dev server and the static build.
type Config struct {
	ContentDir    string        `yaml:"content"`
	OutputDir     string        `yaml:"out"`
	AssetsDir     string        `yaml:"assets"`
	SiteTitle     string        `yaml:"title"`
	BaseURL       string        `yaml:"baseURL"`
	BasePath      string        `yaml:"basePath"`
	CodeTheme     string        `yaml:"codeTheme"`
	DiagramTheme  int64         `yaml:"diagramTheme"`
	D2Timeout     time.Duration `yaml:"d2Timeout"`
	Debounce      time.Duration `yaml:"debounce"`
	Port          int           `yaml:"port"`
	AutoOpen      bool          `yaml:"autoOpen"`
	DarkModeFirst bool          `yaml:"dark"`
	SearchIndex   bool          `yaml:"searchIndex"`
	CleanOutput   bool          `yaml:"clean"`
	Metrics       bool          `yaml:"metrics"`
	Verbose       bool          `yaml:"verbose"`
}

// Default returns ready-to-use defaults prior to file/env/flag overrides.
func Default() Config {
	return Config{
		ContentDir:    "content",
		OutputDir:     "dist",
		SiteTitle:     "Docs",
		BasePath:      "/",
		CodeTheme:     "github-dark",
		D2Timeout:     30 * time.Second,
		Debounce:      100 * time.Millisecond,
		Port:          0, // 0 = auto-select random available port
		AutoOpen:      true,
		DarkModeFirst: true,
		SearchIndex:   true,
		CleanOutput:   true,
		Metrics:       true,
	}
}

// LoadFile merges a YAML config file into cfg. A missing file is ignored
// unless required is set.
func LoadFile(path string, cfg *Config, required bool) error {
	raw, err := os.ReadFile(path) //nolint:gosec // operator supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads .env and .env.local from dir when present. Variables
// already set in the process environment win.
func LoadDotEnv(dir string) error {
	for _, name := range []string{".env", ".env.local"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// RegisterFlags attaches configuration flags to the provided FlagSet.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.ContentDir, "content", "c", cfg.ContentDir, "content directory containing markdown pages")
	fs.StringVarP(&cfg.OutputDir, "out", "o", cfg.OutputDir, "output directory for the static build")
	fs.StringVar(&cfg.AssetsDir, "assets", cfg.AssetsDir, "directory overriding the embedded frontend assets")
	fs.StringVar(&cfg.SiteTitle, "title", cfg.SiteTitle, "site title")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "absolute site URL used for canonical links")
	fs.StringVar(&cfg.BasePath, "base-path", cfg.BasePath, "path prefix the site is served under")
	fs.StringVar(&cfg.CodeTheme, "code-theme", cfg.CodeTheme, "chroma style used for code highlighting")
	fs.Int64Var(&cfg.DiagramTheme, "diagram-theme", cfg.DiagramTheme, "d2 theme id (0 = default dark theme)")
	fs.DurationVar(&cfg.D2Timeout, "d2-timeout", cfg.D2Timeout, "timeout for compiling one d2 diagram")
	fs.DurationVar(&cfg.Debounce, "debounce", cfg.Debounce, "delay grouping file changes into one rebuild")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to bind the HTTP server (0 = auto-assign)")
	fs.BoolVar(&cfg.AutoOpen, "auto-open", cfg.AutoOpen, "open the browser automatically after start")
	fs.BoolVar(&cfg.DarkModeFirst, "dark", cfg.DarkModeFirst, "enable dark theme by default")
	fs.BoolVar(&cfg.SearchIndex, "search-index", cfg.SearchIndex, "write search.json")
	fs.BoolVar(&cfg.CleanOutput, "clean", cfg.CleanOutput, "remove the output directory before building")
	fs.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "serve Prometheus metrics on /metrics")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable verbose logging")
}

// Load resolves configuration for a command: defaults, then the YAML file
// named by --config, then .env and DOCSITE_ variables, then flags the user
// set explicitly. The result is finalized.
func Load(fs *pflag.FlagSet, args []string) (Config, error) {
	parsed := Default()
	RegisterFlags(fs, &parsed)
	file := fs.String("config", DefaultFile, "YAML config file")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := LoadFile(*file, &cfg, fs.Changed("config")); err != nil {
		return Config{}, err
	}
	if err := LoadDotEnv("."); err != nil {
		return Config{}, err
	}
	ApplyEnvOverrides(&cfg)

	explicit := pflag.NewFlagSet(fs.Name(), pflag.ContinueOnError)
	RegisterFlags(explicit, &cfg)
	var setErr error
	fs.Visit(func(f *pflag.Flag) {
		if setErr != nil || explicit.Lookup(f.Name) == nil {
			return
		}
		setErr = explicit.Set(f.Name, f.Value.String())
	})
	if setErr != nil {
		return Config{}, setErr
	}

	if err := Finalize(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnvOverrides reads supported environment variables and overrides cfg in place.
func ApplyEnvOverrides(cfg *Config) {
	applyStringEnv("CONTENT", func(v string) { cfg.ContentDir = v })
	applyStringEnv("OUT", func(v string) { cfg.OutputDir = v })
	applyStringEnv("ASSETS", func(v string) { cfg.AssetsDir = v })
	applyStringEnv("TITLE", func(v string) { cfg.SiteTitle = v })
	applyStringEnv("BASE_URL", func(v string) { cfg.BaseURL = v })
	applyStringEnv("BASE_PATH", func(v string) { cfg.BasePath = v })
	applyStringEnv("CODE_THEME", func(v string) { cfg.CodeTheme = v })
	applyIntEnv("DIAGRAM_THEME", func(v int) { cfg.DiagramTheme = int64(v) })
	applyDurationEnv("D2_TIMEOUT", func(v time.Duration) { cfg.D2Timeout = v })
	applyDurationEnv("DEBOUNCE", func(v time.Duration) { cfg.Debounce = v })
	applyIntEnv("PORT", func(v int) { cfg.Port = v })
	applyBoolEnv("AUTO_OPEN", func(v bool) { cfg.AutoOpen = v })
	applyBoolEnv("DARK", func(v bool) { cfg.DarkModeFirst = v })
	applyBoolEnv("SEARCH_INDEX", func(v bool) { cfg.SearchIndex = v })
	applyBoolEnv("CLEAN", func(v bool) { cfg.CleanOutput = v })
	applyBoolEnv("METRICS", func(v bool) { cfg.Metrics = v })
	applyBoolEnv("VERBOSE", func(v bool) { cfg.Verbose = v })
}

func applyStringEnv(key string, apply func(string)) {
	if raw, ok := lookupNonEmpty(key); ok {
		apply(raw)
	}
}

func applyIntEnv(key string, apply func(int)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.Atoi(raw); err == nil {
			apply(value)
		}
	}
}

func applyBoolEnv(key string, apply func(bool)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.ParseBool(raw); err == nil {
			apply(value)
		}
	}
}

func applyDurationEnv(key string, apply func(time.Duration)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := time.ParseDuration(raw); err == nil {
			apply(value)
		}
	}
}

func lookupNonEmpty(key string) (string, bool) {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	return value, true
}

// Finalize validates and normalizes paths.
func Finalize(cfg *Config) error {
	if strings.TrimSpace(cfg.ContentDir) == "" {
		return errors.New("content directory is required")
	}
	content, err := filepath.Abs(cfg.ContentDir)
	if err != nil {
		return fmt.Errorf("resolve content directory: %w", err)
	}
	cfg.ContentDir = content

	// Allow port 0 for dynamic allocation, otherwise validate range
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.D2Timeout < 0 || cfg.Debounce < 0 {
		return errors.New("durations must not be negative")
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = "dist"
	}
	out, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}
	cfg.OutputDir = out

	if cfg.AssetsDir != "" {
		assets, err := filepath.Abs(cfg.AssetsDir)
		if err != nil {
			return fmt.Errorf("resolve assets directory: %w", err)
		}
		cfg.AssetsDir = assets
	}

	cfg.BasePath = "/" + strings.Trim(strings.TrimSpace(cfg.BasePath), "/")
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return nil
}
