package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// envKeys maps environment variables to the field they set. DATABASE_URL
// is read before RATCHET_DATABASE_URL so the latter wins.
var envKeys = []struct {
	name string
	set  func(c *Config, v string) error
}{
	{"DATABASE_URL", func(c *Config, v string) error { c.DatabaseURL = v; return nil }},
	{"RATCHET_DATABASE_URL", func(c *Config, v string) error { c.DatabaseURL = v; return nil }},
	{"RATCHET_ENGINE", func(c *Config, v string) error { c.Engine = v; return nil }},
	{"RATCHET_HOST", func(c *Config, v string) error { c.Host = v; return nil }},
	{"RATCHET_PORT", func(c *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATCHET_PORT: %w", err)
		}
		c.Port = port
		return nil
	}},
	{"RATCHET_USER", func(c *Config, v string) error { c.User = v; return nil }},
	{"RATCHET_PASSWORD", func(c *Config, v string) error { c.Password = v; return nil }},
	{"RATCHET_DATABASE", func(c *Config, v string) error { c.Database = v; return nil }},
	{"RATCHET_MIGRATIONS_DIR", func(c *Config, v string) error { c.MigrationsDir = v; return nil }},
	{"RATCHET_LEDGER_TABLE", func(c *Config, v string) error { c.LedgerTable = v; return nil }},
	{"RATCHET_NEWLINE", func(c *Config, v string) error { c.Newline = v; return nil }},
	{"RATCHET_LAYOUT", func(c *Config, v string) error { c.Layout = v; return nil }},
	{"RATCHET_LOCK_NAME", func(c *Config, v string) error { c.LockName = v; return nil }},
	{"RATCHET_LOCK_TIMEOUT", func(c *Config, v string) error {
		if _, err := ParseLockTimeout(v); err != nil {
			return err
		}
		c.LockTimeout = v
		return nil
	}},
}

// apply sets every field whose variable lookup reports as set and non-empty.
func (c *Config) apply(lookup func(string) (string, bool)) error {
	for _, k := range envKeys {
		v, ok := lookup(k.name)
		if !ok || v == "" {
			continue
		}
		if err := k.set(c, v); err != nil {
			return err
		}
	}
	return nil
}

// loadDotenv reads .env and then .env.<environment> from dir. Values from
// the environment specific file win.
func (c *Config) loadDotenv(dir, environment string) error {
	names := []string{".env"}
	if environment != "" {
		names = append(names, ".env."+environment)
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to access %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		values, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := c.apply(func(key string) (string, bool) {
			v, ok := values[key]
			return v, ok
		}); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		c.DotenvPaths = append(c.DotenvPaths, path)
	}
	return nil
}
