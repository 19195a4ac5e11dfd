package ratchet

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Unit is one versioned migration: a forward script and an optional
// reverse script sharing a sequence.
type Unit struct {
	// Sequence orders units; normally a UTC timestamp such as 20240102150405.
	Sequence int64

	// Name is the human readable part of the file name.
	Name string

	// UpScript is applied by "up". Never empty.
	UpScript string

	// DownScript is applied by "down". Empty means the unit is irreversible.
	DownScript string

	// Checksum is the hex SHA-256 of UpScript followed by DownScript.
	Checksum string

	// Path is the up file (or the unit folder for the folder layout).
	Path string

	// DownPath is the down file, if the unit has a separate one.
	DownPath string
}

// Reversible reports whether the unit has a down script.
func (u *Unit) Reversible() bool {
	return strings.TrimSpace(u.DownScript) != ""
}

// MigrationSet is the ordered, sequence-unique set of units found on disk.
type MigrationSet struct {
	Root  string
	Units []*Unit

	bySeq map[int64]*Unit
}

// Get returns the unit with the given sequence.
func (s *MigrationSet) Get(seq int64) (*Unit, bool) {
	u, ok := s.bySeq[seq]
	return u, ok
}

// Len returns the number of units.
func (s *MigrationSet) Len() int { return len(s.Units) }

func newMigrationSet(root string, units []*Unit) *MigrationSet {
	sortUnitsAsc(units)
	set := &MigrationSet{Root: root, Units: units, bySeq: make(map[int64]*Unit, len(units))}
	for _, u := range units {
		set.bySeq[u.Sequence] = u
	}
	return set
}

// sortUnitsAsc sorts units in ascending order based on sequence.
func sortUnitsAsc(units []*Unit) {
	sort.Slice(units, func(i, j int) bool {
		return units[i].Sequence < units[j].Sequence
	})
}

// sortUnitsDesc sorts units in descending order based on sequence.
func sortUnitsDesc(units []*Unit) {
	sort.Slice(units, func(i, j int) bool {
		return units[i].Sequence > units[j].Sequence
	})
}

// convertLineEnding converts all newline variations in content to the target style.
func convertLineEnding(content, lineEnding string) (string, error) {
	var target string
	switch lineEnding {
	case "LF":
		target = "\n"
	case "CR":
		target = "\r"
	case "CRLF":
		target = "\r\n"
	default:
		return "", fmt.Errorf("newline must be one of: LF, CR, CRLF")
	}
	re := regexp.MustCompile(`\r\n|\r|\n`)
	return re.ReplaceAllString(content, target), nil
}

// checksum computes the SHA-256 checksum of up followed by down, after
// converting line endings if lineEnding is set.
func checksum(up, down, lineEnding string) (string, error) {
	if lineEnding != "" {
		var err error
		if up, err = convertLineEnding(up, lineEnding); err != nil {
			return "", err
		}
		if down, err = convertLineEnding(down, lineEnding); err != nil {
			return "", err
		}
	}
	h := sha256.New()
	h.Write([]byte(up))
	h.Write([]byte(down))
	return hex.EncodeToString(h.Sum(nil)), nil
}

var (
	unitPrefix = regexp.MustCompile(`^(\d+)(.*)$`)
	upMarker   = regexp.MustCompile(`(?i) *-- *=+ *up *=+`)
	downMarker = regexp.MustCompile(`(?i) *-- *=+ *down *=+`)
)

type direction int

const (
	dirBoth direction = iota // single file, optionally split by markers
	dirUp
	dirDown
)

// classify splits a .sql path into its unit key and direction. The key is
// the "<sequence>_<name>" part shared by the files of one unit.
func classify(path string) (key string, dir direction) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch strings.ToLower(stem) {
	case "up":
		return filepath.Base(filepath.Dir(path)), dirUp
	case "down":
		return filepath.Base(filepath.Dir(path)), dirDown
	}
	lower := strings.ToLower(stem)
	for _, sep := range []string{".", "_", "-"} {
		if strings.HasSuffix(lower, sep+"up") {
			return stem[:len(stem)-3], dirUp
		}
		if strings.HasSuffix(lower, sep+"down") {
			return stem[:len(stem)-5], dirDown
		}
	}
	return stem, dirBoth
}

// parseKey extracts the sequence and display name from a unit key.
func parseKey(key string) (int64, string, bool) {
	m := unitPrefix.FindStringSubmatch(key)
	if m == nil {
		return 0, "", false
	}
	seq, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || seq <= 0 {
		return 0, "", false
	}
	name := strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(m[2])
	return seq, strings.Join(strings.Fields(name), " "), true
}

// splitScript separates a single-file unit into up and down parts using
// "-- ==== UP ====" / "-- ==== DOWN ====" markers. Without markers the whole
// file is the up script.
func splitScript(content string) (up, down string) {
	upLoc := upMarker.FindStringIndex(content)
	var downLoc []int
	if upLoc != nil {
		if loc := downMarker.FindStringIndex(content[upLoc[1]:]); loc != nil {
			downLoc = []int{loc[0] + upLoc[1], loc[1] + upLoc[1]}
		}
	} else {
		downLoc = downMarker.FindStringIndex(content)
	}

	switch {
	case upLoc != nil && downLoc != nil:
		return strings.TrimSpace(content[upLoc[1]:downLoc[0]]), strings.TrimSpace(content[downLoc[1]:])
	case upLoc != nil:
		return strings.TrimSpace(content[upLoc[1]:]), ""
	case downLoc != nil:
		return strings.TrimSpace(content[:downLoc[0]]), strings.TrimSpace(content[downLoc[1]:])
	default:
		return content, ""
	}
}

type unitFiles struct {
	key    string
	single string
	up     string
	down   string
}

// LoadMigrations walks root for .sql files and builds the migration set.
// It never touches a database. Any malformed file or duplicated sequence
// rejects the whole set.
func LoadMigrations(root, lineEnding string) (*MigrationSet, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, malformed(root, 0, "cannot read migration directory: %v", err)
	}
	if !info.IsDir() {
		return nil, malformed(root, 0, "not a directory")
	}

	found := make(map[int64]*unitFiles)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return malformed(path, 0, "cannot read: %v", err)
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".sql") {
			return nil
		}
		key, dir := classify(path)
		seq, _, ok := parseKey(key)
		if !ok {
			return malformed(path, 0, "file name must start with a numeric sequence")
		}
		uf, exists := found[seq]
		if !exists {
			uf = &unitFiles{key: key}
			found[seq] = uf
		} else if uf.key != key {
			return &DefinitionError{Path: path, Sequence: seq, Err: ErrDuplicateSequence,
				Reason: fmt.Sprintf("sequence already used by %q", uf.key)}
		}
		slot := &uf.single
		switch dir {
		case dirUp:
			slot = &uf.up
		case dirDown:
			slot = &uf.down
		}
		if *slot != "" || (dir == dirBoth && (uf.up != "" || uf.down != "")) || (dir != dirBoth && uf.single != "") {
			return &DefinitionError{Path: path, Sequence: seq, Err: ErrDuplicateSequence,
				Reason: "more than one script for the same direction"}
		}
		*slot = path
		return nil
	})
	if err != nil {
		var de *DefinitionError
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, malformed(root, 0, "%v", err)
	}

	units := make([]*Unit, 0, len(found))
	for seq, uf := range found {
		u, err := buildUnit(seq, uf, lineEnding)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return newMigrationSet(root, units), nil
}

func buildUnit(seq int64, uf *unitFiles, lineEnding string) (*Unit, error) {
	_, name, _ := parseKey(uf.key)
	u := &Unit{Sequence: seq, Name: name}

	switch {
	case uf.single != "":
		data, err := os.ReadFile(uf.single)
		if err != nil {
			return nil, malformed(uf.single, seq, "cannot read script: %v", err)
		}
		u.Path = uf.single
		u.UpScript, u.DownScript = splitScript(string(data))
	case uf.up != "":
		up, err := os.ReadFile(uf.up)
		if err != nil {
			return nil, malformed(uf.up, seq, "cannot read script: %v", err)
		}
		u.Path = uf.up
		u.UpScript = string(up)
		if uf.down != "" {
			down, err := os.ReadFile(uf.down)
			if err != nil {
				return nil, malformed(uf.down, seq, "cannot read script: %v", err)
			}
			u.DownPath = uf.down
			u.DownScript = string(down)
		}
		if filepath.Base(filepath.Dir(uf.up)) == uf.key {
			u.Path = filepath.Dir(uf.up)
		}
	default:
		return nil, malformed(uf.down, seq, "missing up script")
	}

	if strings.TrimSpace(u.UpScript) == "" {
		return nil, malformed(u.Path, seq, "up script is empty")
	}
	sum, err := checksum(u.UpScript, u.DownScript, lineEnding)
	if err != nil {
		return nil, malformed(u.Path, seq, "%v", err)
	}
	u.Checksum = sum
	return u, nil
}
