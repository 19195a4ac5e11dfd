// Package config resolves ratchet settings from a config file, dotenv files
// and the environment. Command line flags are applied on top by the caller.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bcomnes/ratchet"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileNames are the config files looked for, in order, in each directory.
var FileNames = []string{"ratchet.toml", "ratchet.yaml", "ratchet.yml", "ratchet.json"}

// Config is the merged configuration of one invocation.
type Config struct {
	Engine      string `toml:"engine" yaml:"engine" json:"engine"`
	DatabaseURL string `toml:"database_url" yaml:"database_url" json:"database_url"`
	Host        string `toml:"host" yaml:"host" json:"host"`
	Port        int    `toml:"port" yaml:"port" json:"port"`
	User        string `toml:"user" yaml:"user" json:"user"`
	Password    string `toml:"password" yaml:"password" json:"password"`
	Database    string `toml:"database" yaml:"database" json:"database"`

	MigrationsDir string `toml:"migrations_dir" yaml:"migrations_dir" json:"migrations_dir"`
	LedgerTable   string `toml:"ledger_table" yaml:"ledger_table" json:"ledger_table"`
	Newline       string `toml:"newline" yaml:"newline" json:"newline"`
	Layout        string `toml:"layout" yaml:"layout" json:"layout"`

	LockName string `toml:"lock_name" yaml:"lock_name" json:"lock_name"`
	// LockTimeout is a duration string such as "15s". "-1" waits forever.
	LockTimeout string `toml:"lock_timeout" yaml:"lock_timeout" json:"lock_timeout"`

	// Environment selects the .env.<environment> file.
	Environment string `toml:"environment" yaml:"environment" json:"environment"`

	ConfigFilePath string   `toml:"-" yaml:"-" json:"-"`
	DotenvPaths    []string `toml:"-" yaml:"-" json:"-"`
}

// Defaults returns a Config holding the built in defaults.
func Defaults() *Config {
	return &Config{
		MigrationsDir: ratchet.DefaultConfig.MigrationsDir,
		LedgerTable:   ratchet.DefaultConfig.LedgerTable,
		LockName:      ratchet.DefaultConfig.LockName,
		LockTimeout:   ratchet.DefaultConfig.LockTimeout.String(),
		Layout:        string(ratchet.LayoutFolder),
	}
}

// Options control Resolve.
type Options struct {
	// Dir is where the config file search starts. Defaults to the working
	// directory.
	Dir string
	// File is an explicit config file; the search is skipped.
	File string
	// NoFile disables config files altogether.
	NoFile bool
	// Environment overrides RATCHET_ENV and the config file.
	Environment string
	// Getenv reads the process environment. Defaults to os.LookupEnv.
	Getenv func(string) (string, bool)
}

// Resolve builds the configuration from defaults, the config file, dotenv
// files and the environment, each overriding the one before.
func Resolve(opts Options) (*Config, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.LookupEnv
	}
	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}

	cfg := Defaults()
	baseDir := dir
	if !opts.NoFile {
		path := opts.File
		if path == "" {
			path = Find(dir)
		}
		if path != "" {
			if err := cfg.loadFile(path); err != nil {
				return nil, err
			}
			baseDir = filepath.Dir(path)
		}
	}

	env := cfg.Environment
	if v, ok := opts.Getenv("RATCHET_ENV"); ok && v != "" {
		env = v
	}
	if opts.Environment != "" {
		env = opts.Environment
	}
	cfg.Environment = env

	if err := cfg.loadDotenv(baseDir, env); err != nil {
		return nil, err
	}
	if err := cfg.apply(opts.Getenv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}

// Find walks up from dir to the project root looking for a config file and
// returns its path, or "" when there is none.
func Find(dir string) string {
	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}

		// Check if we've reached a project boundary
		if isProjectRoot(dir) {
			return ""
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return ""
		}
		dir = parent
	}
}

// isProjectRoot checks if the directory is a project root based on common markers
func isProjectRoot(dir string) bool {
	for _, marker := range []string{".git", "go.mod", "package.json"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".json":
		err = json.Unmarshal(data, c)
	default:
		return fmt.Errorf("config file %s: unknown format, use .toml, .yaml or .json", path)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.ConfigFilePath = path

	// Relative directories in a config file are relative to the file.
	if c.MigrationsDir != "" && !filepath.IsAbs(c.MigrationsDir) {
		c.MigrationsDir = filepath.Join(filepath.Dir(path), c.MigrationsDir)
	}
	return nil
}

// Descriptor returns the connection descriptor for the configured database.
func (c *Config) Descriptor() (ratchet.ConnectionDescriptor, error) {
	desc := ratchet.ConnectionDescriptor{
		URL:      c.DatabaseURL,
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Database: c.Database,
	}
	if c.Engine != "" {
		d, err := ratchet.ParseDialect(c.Engine)
		if err != nil {
			return desc, err
		}
		desc.Dialect = d
	}
	if desc.ResolvedDialect() == "" {
		return desc, fmt.Errorf("no database configured: set --url, DATABASE_URL or database_url in ratchet.toml")
	}
	return desc, nil
}

// Ratchet returns the library configuration.
func (c *Config) Ratchet() (ratchet.Config, error) {
	timeout, err := ParseLockTimeout(c.LockTimeout)
	if err != nil {
		return ratchet.Config{}, err
	}
	return ratchet.Config{
		MigrationsDir: c.MigrationsDir,
		LedgerTable:   c.LedgerTable,
		Newline:       c.Newline,
		LockName:      c.LockName,
		LockTimeout:   timeout,
	}, nil
}

// ParseLockTimeout accepts a Go duration, a number of seconds, or a
// negative number for no limit.
func ParseLockTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ratchet.DefaultConfig.LockTimeout, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return -1, nil
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid lock timeout %q: %w", s, err)
	}
	return d, nil
}
