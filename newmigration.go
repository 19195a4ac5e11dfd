package ratchet

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Layout is the on-disk shape of a new migration unit.
type Layout string

const (
	// LayoutFolder writes <seq>_<name>/up.sql and down.sql.
	LayoutFolder Layout = "folder"
	// LayoutFiles writes <seq>_<name>.up.sql and <seq>_<name>.down.sql.
	LayoutFiles Layout = "files"
	// LayoutSingle writes one <seq>_<name>.sql split by UP/DOWN markers.
	LayoutSingle Layout = "single"
)

// ParseLayout accepts a layout name and its common aliases.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "folder", "dir":
		return LayoutFolder, nil
	case "files", "split", "split-files":
		return LayoutFiles, nil
	case "single", "file":
		return LayoutSingle, nil
	}
	return "", fmt.Errorf("layout must be one of: folder, files, single")
}

// CreateMigration scaffolds a new migration unit in dir and returns the
// paths it wrote. The sequence is the UTC creation time; it is bumped by a
// second while it collides with an existing unit. When the name reads like
// "create_table_users" or "add_column_email_to_users", the scripts are
// pre-filled with matching statements for dialect.
func CreateMigration(dir, name string, layout Layout, dialect Dialect, now time.Time) ([]string, error) {
	slug := snakeCase(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name must contain letters or digits")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migration directory %s: %w", dir, err)
	}
	used, err := usedSequences(dir)
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	for used[now.Format(sequenceLayout)] {
		now = now.Add(time.Second)
	}
	key := now.Format(sequenceLayout) + "_" + slug

	up, down := sampleScripts(slug, dialect)
	header := fmt.Sprintf("-- Migration: %s\n-- Created at: %s\n", name, now.Format("2006-01-02 15:04:05"))

	files := map[string]string{}
	switch layout {
	case LayoutFolder, "":
		files[filepath.Join(dir, key, "up.sql")] = header + up + "\n"
		files[filepath.Join(dir, key, "down.sql")] = header + down + "\n"
	case LayoutFiles:
		files[filepath.Join(dir, key+".up.sql")] = header + up + "\n"
		files[filepath.Join(dir, key+".down.sql")] = header + down + "\n"
	case LayoutSingle:
		files[filepath.Join(dir, key+".sql")] = header +
			"-- ==== UP ====\n" + up + "\n\n" +
			"-- ==== DOWN ====\n" + down + "\n"
	default:
		return nil, fmt.Errorf("unknown layout %q", layout)
	}

	var paths []string
	for path := range files {
		paths = append(paths, path)
	}
	// up before down, for stable output
	if len(paths) == 2 && strings.Contains(filepath.Base(paths[0]), "down") {
		paths[0], paths[1] = paths[1], paths[0]
	}
	for _, path := range paths {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create migration directory %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(files[path]), 0o644); err != nil {
			return nil, fmt.Errorf("failed to create migration file %s: %w", path, err)
		}
	}
	return paths, nil
}

// usedSequences lists the sequences already present directly under dir.
func usedSequences(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan migration directory: %w", err)
	}
	used := map[string]bool{}
	for _, e := range entries {
		if m := unitPrefix.FindStringSubmatch(e.Name()); m != nil {
			used[m[1]] = true
		}
	}
	return used, nil
}

// snakeCase converts a string to snake_case.
func snakeCase(s string) string {
	// Lowercase and trim spaces.
	s = strings.ToLower(strings.TrimSpace(s))
	// Replace any non-alphanumeric sequence with a single underscore.
	re := regexp.MustCompile("[^a-z0-9]+")
	s = re.ReplaceAllString(s, "_")
	// Trim any underscores from the beginning or end.
	return strings.Trim(s, "_")
}

var (
	createTablePattern = regexp.MustCompile(`^(?:create|add)_?table_?([a-z0-9_]+)$`)
	dropTablePattern   = regexp.MustCompile(`^(?:remove|drop)_?table_?([a-z0-9_]+)$`)
	addColumnPattern   = regexp.MustCompile(`^(?:create|add)_?column_?([a-z0-9_]+?)_?to_?([a-z0-9_]+)$`)
	dropColumnPattern  = regexp.MustCompile(`^(?:remove|drop)_?column_?([a-z0-9_]+?)_?from_?([a-z0-9_]+)$`)
	addIndexPattern    = regexp.MustCompile(`^(?:create|add)_?index_?for_?([a-z0-9_]+?)_?on_?([a-z0-9_]+)$`)
	dropIndexPattern   = regexp.MustCompile(`^(?:remove|drop)_?index_?for_?([a-z0-9_]+?)_?on_?([a-z0-9_]+)$`)
)

// sampleScripts guesses up and down statements from a snake_case name.
func sampleScripts(slug string, dialect Dialect) (up, down string) {
	q := func(ident string) string {
		if dialect == DialectMySQL {
			return "`" + ident + "`"
		}
		return `"` + ident + `"`
	}
	createTable := func(t string) string {
		switch dialect {
		case DialectMySQL:
			return fmt.Sprintf("CREATE TABLE %s (\n\t%s INT NOT NULL AUTO_INCREMENT PRIMARY KEY\n);", q(t), q("id"))
		case DialectSQLite:
			return fmt.Sprintf("CREATE TABLE %s (\n\t%s INTEGER PRIMARY KEY AUTOINCREMENT\n);", q(t), q("id"))
		}
		return fmt.Sprintf("CREATE TABLE %s (\n\t%s SERIAL PRIMARY KEY\n);", q(t), q("id"))
	}
	dropTable := func(t string) string { return fmt.Sprintf("DROP TABLE IF EXISTS %s;", q(t)) }
	addColumn := func(t, c string) string {
		if dialect == DialectMySQL {
			return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s VARCHAR(255);", q(t), q(c))
		}
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT;", q(t), q(c))
	}
	dropColumn := func(t, c string) string {
		if dialect == DialectMySQL {
			return fmt.Sprintf("ALTER TABLE %s DROP %s;", q(t), q(c))
		}
		return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", q(t), q(c))
	}
	addIndex := func(t, c string) string {
		return fmt.Sprintf("CREATE INDEX %s ON %s (%s);", q("idx_"+t+"_"+c), q(t), q(c))
	}
	dropIndex := func(t, c string) string {
		if dialect == DialectMySQL {
			return fmt.Sprintf("DROP INDEX %s ON %s;", q("idx_"+t+"_"+c), q(t))
		}
		return fmt.Sprintf("DROP INDEX IF EXISTS %s;", q("idx_"+t+"_"+c))
	}

	if m := createTablePattern.FindStringSubmatch(slug); m != nil {
		return createTable(m[1]), dropTable(m[1])
	}
	if m := dropTablePattern.FindStringSubmatch(slug); m != nil {
		return dropTable(m[1]), createTable(m[1])
	}
	if m := addColumnPattern.FindStringSubmatch(slug); m != nil {
		return addColumn(m[2], m[1]), dropColumn(m[2], m[1])
	}
	if m := dropColumnPattern.FindStringSubmatch(slug); m != nil {
		return dropColumn(m[2], m[1]), addColumn(m[2], m[1])
	}
	if m := addIndexPattern.FindStringSubmatch(slug); m != nil {
		return addIndex(m[2], m[1]), dropIndex(m[2], m[1])
	}
	if m := dropIndexPattern.FindStringSubmatch(slug); m != nil {
		return dropIndex(m[2], m[1]), addIndex(m[2], m[1])
	}
	return "-- Your migration goes here", "-- Your revert goes here"
}
