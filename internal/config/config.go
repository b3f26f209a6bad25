// Package config manages YAML-based configuration with flag and environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/namsral/flag"
	"gopkg.in/yaml.v3"
)

// Modes. Mutations are only permitted in development mode.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Listing sources.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// EnvPrefix prefixes the environment variable of every flag, e.g. FILEHUB_MODE.
const EnvPrefix = "FILEHUB"

// RemoteConfig identifies the mirrored repository.
type RemoteConfig struct {
	BaseURL string        `yaml:"base_url,omitempty"`
	Owner   string        `yaml:"owner"`
	Repo    string        `yaml:"repo"`
	Branch  string        `yaml:"branch"`
	Token   string        `yaml:"token,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PreviewConfig holds preview rendering limits.
type PreviewConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// Config holds all configuration options for filehub
type Config struct {
	// WorkDir is the working root; Root is the confinement root segment
	// inside it.
	WorkDir string `yaml:"work_dir"`
	Root    string `yaml:"root"`

	Mode   string `yaml:"mode"`
	Source string `yaml:"source"`

	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Watch bool   `yaml:"watch"`

	// Manifest is the manifest file; relative paths resolve against WorkDir.
	Manifest string `yaml:"manifest,omitempty"`

	Remote  RemoteConfig  `yaml:"remote"`
	Log     LogConfig     `yaml:"log"`
	Preview PreviewConfig `yaml:"preview"`

	// Internal: path of the config file that was loaded
	configPath string
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		WorkDir: ".",
		Root:    "public",
		Mode:    ModeProduction,
		Source:  SourceLocal,
		Port:    3000,
		Watch:   true,
		Remote: RemoteConfig{
			BaseURL: "https://api.github.com",
			Branch:  "main",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Preview: PreviewConfig{
			MaxBytes: 2 << 20,
		},
	}
}

// GetConfigDir returns the config directory path
func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/filehub"
	}
	return filepath.Join(home, ".config", "filehub")
}

// GetConfigPath returns the full path to the config file
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// Load builds the configuration from defaults, the config file, and then
// flags or their FILEHUB_* environment variables. args excludes the program
// name.
func Load(args []string) (*Config, error) {
	cfg := DefaultConfig()

	// Sentinel defaults let us tell which flags were given.
	fset := flag.NewFlagSetWithEnvPrefix("filehub", EnvPrefix, flag.ContinueOnError)
	configFile := fset.String("config-file", "", "Configuration file path")
	workDir := fset.String("work-dir", "", "Working root directory")
	root := fset.String("root", "", "Confinement root directory name inside the working root")
	mode := fset.String("mode", "", "Run mode (development/production); mutations need development")
	source := fset.String("source", "", "Default listing source (local/remote)")
	host := fset.String("host", "", "HTTP listen host")
	port := fset.Int("port", 0, "HTTP server port")
	watch := fset.Bool("watch", true, "Broadcast file changes to websocket clients")
	manifest := fset.String("manifest", "", "Manifest file path")
	remoteOwner := fset.String("remote-owner", "", "Remote repository owner")
	remoteRepo := fset.String("remote-repo", "", "Remote repository name")
	remoteBranch := fset.String("remote-branch", "", "Remote repository branch")
	remoteToken := fset.String("remote-token", "", "Remote API token")
	logLevel := fset.String("log-level", "", "Log level (debug/info/warn/error)")
	logFormat := fset.String("log-format", "", "Log format (json/console)")

	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	given := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { given[f.Name] = true })

	// Determine config file path
	var cfgPath string
	if *configFile != "" {
		cfgPath = *configFile
	} else if _, err := os.Stat(GetConfigPath()); err == nil {
		cfgPath = GetConfigPath()
	} else if _, err := os.Stat("filehub.yaml"); err == nil {
		cfgPath = "filehub.yaml"
	}

	if cfgPath != "" {
		if err := cfg.loadFromFile(cfgPath); err != nil {
			return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		cfg.configPath = cfgPath
	}

	overrideString(&cfg.WorkDir, *workDir)
	overrideString(&cfg.Root, *root)
	overrideString(&cfg.Mode, *mode)
	overrideString(&cfg.Source, *source)
	overrideString(&cfg.Host, *host)
	overrideString(&cfg.Manifest, *manifest)
	overrideString(&cfg.Remote.Owner, *remoteOwner)
	overrideString(&cfg.Remote.Repo, *remoteRepo)
	overrideString(&cfg.Remote.Branch, *remoteBranch)
	overrideString(&cfg.Remote.Token, *remoteToken)
	overrideString(&cfg.Log.Level, *logLevel)
	overrideString(&cfg.Log.Format, *logFormat)
	if *port != 0 {
		cfg.Port = *port
	}
	if given["watch"] {
		cfg.Watch = *watch
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Validate checks option values.
func (c *Config) Validate() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	switch c.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		return fmt.Errorf("invalid mode %q (want %s or %s)", c.Mode, ModeDevelopment, ModeProduction)
	}
	switch c.Source {
	case SourceLocal, SourceRemote:
	default:
		return fmt.Errorf("invalid source %q (want %s or %s)", c.Source, SourceLocal, SourceRemote)
	}
	if c.Root == "" || strings.ContainsAny(c.Root, `/\`) || c.Root == "." || c.Root == ".." {
		return fmt.Errorf("root %q must be a single directory name", c.Root)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

// Writable reports whether filesystem mutations are permitted.
func (c *Config) Writable() bool {
	return c.Mode == ModeDevelopment
}

// ManifestPath returns the manifest file location.
func (c *Config) ManifestPath() string {
	if c.Manifest == "" {
		return filepath.Join(c.WorkDir, c.Root, "file-manifest.json")
	}
	if filepath.IsAbs(c.Manifest) {
		return c.Manifest
	}
	return filepath.Join(c.WorkDir, c.Manifest)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetConfigFilePath returns the path to the loaded config file, if any
func (c *Config) GetConfigFilePath() string {
	return c.configPath
}
