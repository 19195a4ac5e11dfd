package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bcomnes/ratchet"
)

// TestMain triggers our helper process mode. When the environment
// variable GO_HELPER_PROCESS is set, the CLI runs instead of the tests.
func TestMain(m *testing.M) {
	if os.Getenv("GO_HELPER_PROCESS") == "1" {
		os.Exit(run())
	}
	os.Exit(m.Run())
}

// runCLI runs the current test binary as a helper process running the CLI
// in dir. Ambient ratchet settings are removed from the environment.
func runCLI(t *testing.T, dir string, args ...string) (string, int) {
	t.Helper()
	cmd := exec.Command(os.Args[0], args...)
	cmd.Dir = dir
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "RATCHET_") || strings.HasPrefix(kv, "DATABASE_URL=") {
			continue
		}
		cmd.Env = append(cmd.Env, kv)
	}
	cmd.Env = append(cmd.Env, "GO_HELPER_PROCESS=1")
	out, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(out), exitErr.ExitCode()
	}
	if err != nil {
		t.Fatalf("failed to run CLI: %v", err)
	}
	return string(out), 0
}

// project creates a project directory holding a migrations folder.
func project(t *testing.T) (dir, migrations string) {
	t.Helper()
	dir = t.TempDir()
	writeFile(t, filepath.Join(dir, "go.mod"), "module example\n")
	migrations = filepath.Join(dir, "migrations")
	writeFile(t, filepath.Join(migrations, "20240101000001_create_widgets.up.sql"), "CREATE TABLE widgets (id INTEGER PRIMARY KEY);")
	writeFile(t, filepath.Join(migrations, "20240101000001_create_widgets.down.sql"), "DROP TABLE widgets;")
	writeFile(t, filepath.Join(migrations, "20240101000002_create_gadgets.up.sql"), "CREATE TABLE gadgets (id INTEGER PRIMARY KEY);")
	writeFile(t, filepath.Join(migrations, "20240101000002_create_gadgets.down.sql"), "DROP TABLE gadgets;")
	return dir, migrations
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestCLIVersion(t *testing.T) {
	out, code := runCLI(t, t.TempDir(), "version")
	if code != 0 || !strings.Contains(out, ratchet.Version) {
		t.Errorf("expected version info, got %d:\n%s", code, out)
	}
}

func TestCLIHelp(t *testing.T) {
	out, _ := runCLI(t, t.TempDir(), "--help")
	for _, name := range []string{"create", "up", "down", "status", "interactive", "unlock"} {
		if !strings.Contains(out, name) {
			t.Errorf("expected %q in help output:\n%s", name, out)
		}
	}
}

func TestCLIUpStatusDown(t *testing.T) {
	dir, _ := project(t)
	db := filepath.Join(dir, "app.db")

	out, code := runCLI(t, dir, "--url", db, "up")
	if code != 0 {
		t.Fatalf("up failed with %d:\n%s", code, out)
	}
	if !strings.Contains(out, "20240101000001 create widgets") || !strings.Contains(out, "Applied 2 migrations and reverted 0 migrations") {
		t.Errorf("unexpected up output:\n%s", out)
	}

	out, code = runCLI(t, dir, "--url", db, "up")
	if code != 0 || !strings.Contains(out, "Nothing to do.") {
		t.Errorf("expected a second up to do nothing, got %d:\n%s", code, out)
	}

	out, code = runCLI(t, dir, "--url", db, "status")
	if code != 0 {
		t.Fatalf("status failed with %d:\n%s", code, out)
	}
	if !strings.Contains(out, "2 applied, 0 pending, 0 drifted, 0 missing") {
		t.Errorf("unexpected status output:\n%s", out)
	}

	out, code = runCLI(t, dir, "--url", db, "down")
	if code != 0 || !strings.Contains(out, "Applied 0 migrations and reverted 1 migration") {
		t.Errorf("unexpected down output %d:\n%s", code, out)
	}

	out, code = runCLI(t, dir, "--url", db, "status")
	if code != 0 || !strings.Contains(out, "1 applied, 1 pending") {
		t.Errorf("unexpected status after down %d:\n%s", code, out)
	}

	out, code = runCLI(t, dir, "--url", db, "down", "--all")
	if code != 0 || !strings.Contains(out, "reverted 1 migration") {
		t.Errorf("unexpected down --all output %d:\n%s", code, out)
	}
}

func TestCLIDryRun(t *testing.T) {
	dir, _ := project(t)
	db := filepath.Join(dir, "app.db")

	out, code := runCLI(t, dir, "--url", db, "up", "--dry-run")
	if code != 0 {
		t.Fatalf("dry run failed with %d:\n%s", code, out)
	}
	if !strings.Contains(out, "Dry run: would revert 0 migrations and apply 2 migrations.") {
		t.Errorf("unexpected dry run output:\n%s", out)
	}

	out, _ = runCLI(t, dir, "--url", db, "status")
	if !strings.Contains(out, "0 applied, 2 pending") {
		t.Errorf("dry run changed the database:\n%s", out)
	}
}

func TestCLIUpTo(t *testing.T) {
	dir, _ := project(t)
	db := filepath.Join(dir, "app.db")

	out, code := runCLI(t, dir, "--url", db, "up", "--to", "20240101000001")
	if code != 0 || !strings.Contains(out, "Applied 1 migration ") {
		t.Errorf("unexpected up --to output %d:\n%s", code, out)
	}
	out, code = runCLI(t, dir, "--url", db, "up", "1", "--to", "20240101000002")
	if code != exitGeneric || !strings.Contains(out, "either a count or --to") {
		t.Errorf("expected count and --to to conflict, got %d:\n%s", code, out)
	}
}

func TestCLIConfigFile(t *testing.T) {
	dir, _ := project(t)
	writeFile(t, filepath.Join(dir, "ratchet.toml"), `
database_url = "app.db"
migrations_dir = "migrations"
`)
	nested := filepath.Join(dir, "sub")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	out, code := runCLI(t, nested, "up")
	if code != 0 || !strings.Contains(out, "Applied 2 migrations") {
		t.Errorf("expected the config file to be found, got %d:\n%s", code, out)
	}
}

func TestCLIExitCodes(t *testing.T) {
	t.Run("no database", func(t *testing.T) {
		dir, _ := project(t)
		out, code := runCLI(t, dir, "--no-config", "up")
		if code != exitGeneric || !strings.Contains(out, "no database configured") {
			t.Errorf("expected exit %d, got %d:\n%s", exitGeneric, code, out)
		}
	})

	t.Run("definition", func(t *testing.T) {
		dir := t.TempDir()
		dup, err := filepath.Abs("../../testdata/duplicateMigrations")
		if err != nil {
			t.Fatal(err)
		}
		out, code := runCLI(t, dir, "--url", filepath.Join(dir, "app.db"), "--migrations-dir", dup, "up")
		if code != exitDefinition {
			t.Errorf("expected exit %d, got %d:\n%s", exitDefinition, code, out)
		}
	})

	t.Run("drift", func(t *testing.T) {
		dir, migrations := project(t)
		db := filepath.Join(dir, "app.db")
		if out, code := runCLI(t, dir, "--url", db, "up"); code != 0 {
			t.Fatalf("up failed with %d:\n%s", code, out)
		}
		writeFile(t, filepath.Join(migrations, "20240101000001_create_widgets.up.sql"), "CREATE TABLE widgets (id BIGINT);")

		out, code := runCLI(t, dir, "--url", db, "up")
		if code != exitDrift {
			t.Errorf("expected exit %d, got %d:\n%s", exitDrift, code, out)
		}
		out, code = runCLI(t, dir, "--url", db, "status")
		if code != 0 || !strings.Contains(out, "changed after it was applied") {
			t.Errorf("expected status to warn about drift, got %d:\n%s", code, out)
		}
	})

	t.Run("driver", func(t *testing.T) {
		dir := t.TempDir()
		fail, err := filepath.Abs("../../testdata/failMigrations")
		if err != nil {
			t.Fatal(err)
		}
		out, code := runCLI(t, dir, "--url", filepath.Join(dir, "app.db"), "--migrations-dir", fail, "up")
		if code != exitDriver || !strings.Contains(out, "✗") {
			t.Errorf("expected exit %d, got %d:\n%s", exitDriver, code, out)
		}
	})

	t.Run("irreversible", func(t *testing.T) {
		dir := t.TempDir()
		irr, err := filepath.Abs("../../testdata/irreversibleMigrations")
		if err != nil {
			t.Fatal(err)
		}
		db := filepath.Join(dir, "app.db")
		if out, code := runCLI(t, dir, "--url", db, "--migrations-dir", irr, "up"); code != 0 {
			t.Fatalf("up failed with %d:\n%s", code, out)
		}
		out, code := runCLI(t, dir, "--url", db, "--migrations-dir", irr, "down")
		if code != exitIrreversible {
			t.Errorf("expected exit %d, got %d:\n%s", exitIrreversible, code, out)
		}
	})

	t.Run("invalid count", func(t *testing.T) {
		dir, _ := project(t)
		out, code := runCLI(t, dir, "--url", filepath.Join(dir, "app.db"), "down", "abc")
		if code != exitGeneric || !strings.Contains(out, `invalid count "abc"`) {
			t.Errorf("expected an invalid count error, got %d:\n%s", code, out)
		}
	})
}

func TestCLICreate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "go.mod"), "module example\n")

	out, code := runCLI(t, dir, "--no-config", "--engine", "sqlite", "create", "create", "table", "users", "--layout", "single")
	if code != 0 || !strings.Contains(out, "Created migration:") {
		t.Fatalf("create failed with %d:\n%s", code, out)
	}
	set, err := ratchet.LoadMigrations(filepath.Join(dir, "migrations"), "")
	if err != nil {
		t.Fatalf("created migration does not load: %v", err)
	}
	if set.Len() != 1 || !strings.Contains(set.Units[0].UpScript, `CREATE TABLE "users"`) {
		t.Errorf("unexpected created unit: %+v", set.Units)
	}
	if _, ok := ratchet.SequenceTime(set.Units[0].Sequence); !ok {
		t.Errorf("expected a timestamp sequence, got %d", set.Units[0].Sequence)
	}

	out, code = runCLI(t, dir, "--no-config", "create", "x", "--layout", "zip")
	if code != exitGeneric || !strings.Contains(out, "layout must be one of") {
		t.Errorf("expected a layout error, got %d:\n%s", code, out)
	}
}

func TestCLIStatusDays(t *testing.T) {
	dir := t.TempDir()
	migrations := filepath.Join(dir, "migrations")
	recent := time.Now().UTC().AddDate(0, 0, -2).Format("20060102150405")
	writeFile(t, filepath.Join(migrations, "20000101000000_ancient.sql"), "SELECT 1;")
	writeFile(t, filepath.Join(migrations, recent+"_recent.sql"), "SELECT 1;")
	db := filepath.Join(dir, "app.db")

	out, code := runCLI(t, dir, "--url", db, "status", "--last-month")
	if code != 0 {
		t.Fatalf("status failed with %d:\n%s", code, out)
	}
	if strings.Contains(out, "ancient") || !strings.Contains(out, "recent") {
		t.Errorf("expected only the recent migration:\n%s", out)
	}

	out, code = runCLI(t, dir, "--url", db, "status", "--days", "3", "--last-month")
	if code == 0 {
		t.Errorf("expected --days and --last-month to conflict:\n%s", out)
	}
}

func TestCLIUnlock(t *testing.T) {
	dir, _ := project(t)
	out, code := runCLI(t, dir, "--url", filepath.Join(dir, "app.db"), "unlock")
	if code != 0 || !strings.Contains(out, "No lock was held.") {
		t.Errorf("unexpected unlock output %d:\n%s", code, out)
	}
}

func TestCLIMetricsFile(t *testing.T) {
	dir, _ := project(t)
	metricsFile := filepath.Join(dir, "ratchet.prom")

	out, code := runCLI(t, dir, "--url", filepath.Join(dir, "app.db"), "--metrics-file", metricsFile, "up")
	if code != 0 {
		t.Fatalf("up failed with %d:\n%s", code, out)
	}
	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	want := `ratchet_migrations_total{direction="up",engine="sqlite",outcome="success"} 2`
	if !strings.Contains(string(data), want) {
		t.Errorf("expected %s in:\n%s", want, data)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{errors.New("boom"), exitGeneric},
		{&ratchet.DefinitionError{Err: ratchet.ErrDuplicateSequence}, exitDefinition},
		{&ratchet.DriftError{Sequence: 1}, exitDrift},
		{fmt.Errorf("run: %w", ratchet.ErrLockUnavailable), exitLock},
		{&ratchet.DriverError{Op: "exec", Err: ratchet.ErrStatementFailed}, exitDriver},
		{&ratchet.IrreversibleError{Sequence: 1}, exitIrreversible},
		{fmt.Errorf("%w: interrupted", ratchet.ErrCancelled), exitCancelled},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHumanDuration(t *testing.T) {
	tests := map[time.Duration]string{
		1500 * time.Nanosecond:  "2µs",
		12345 * time.Microsecond: "12ms",
		1234 * time.Millisecond:  "1.23s",
		125 * time.Second:        "2m5s",
	}
	for in, want := range tests {
		if got := humanDuration(in); got != want {
			t.Errorf("humanDuration(%v) = %q, want %q", in, got, want)
		}
	}
}
