package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

var (
	ErrMigrationDuplicated = errors.New("migration version already exists with different name")
	ErrMigrationNotFound   = errors.New("migration script not found")
	ErrUpScriptMissing     = errors.New("migration has a down script but no up script")
)

// Source lists and reads migration scripts.
type Source interface {
	Available() ([]Description, error)
	Read(m Migration, dir Direction) (Script, error)
}

// FSSource reads scripts named <version>_<name>.up.sql and
// <version>_<name>.down.sql from a directory of an fs.FS. Files that do not
// follow the pattern are ignored.
type FSSource struct {
	fsys fs.FS
	dir  string
}

// NewFSSource returns a Source over dir inside fsys.
func NewFSSource(fsys fs.FS, dir string) (*FSSource, error) {
	stat, err := fs.Stat(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat migrations directory: %w", err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("migrations path %q is not a directory", dir)
	}

	return &FSSource{fsys: fsys, dir: dir}, nil
}

// Available returns every migration in the directory sorted by version.
func (s *FSSource) Available() ([]Description, error) {
	entries, err := fs.ReadDir(s.fsys, s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read contents of migrations directory: %w", err)
	}

	found := make(versionMap)
	for _, entry := range entries {
		if entry.IsDir() || !entry.Type().IsRegular() {
			continue
		}

		mig, dir, err := parseFileName(entry.Name())
		if err != nil {
			continue
		}

		if err := found.update(mig, dir); err != nil {
			return nil, fmt.Errorf("failed to parse directory entries: %w", err)
		}
	}

	result := make([]Description, 0, len(found))
	for _, entry := range found {
		if !entry.hasUp {
			return nil, fmt.Errorf("%w: %s", ErrUpScriptMissing, entry.Migration)
		}
		result = append(result, entry.Description)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})

	return result, nil
}

// Read returns the script for m in the given direction.
func (s *FSSource) Read(m Migration, dir Direction) (Script, error) {
	suffix := upSuffix
	if dir == Down {
		suffix = downSuffix
	}

	// File names keep whatever zero padding the author used, so match on the
	// parsed version rather than formatting one.
	entries, err := fs.ReadDir(s.fsys, s.dir)
	if err != nil {
		return Script{}, fmt.Errorf("failed to read contents of migrations directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		parsed, _, err := parseFileName(entry.Name())
		if err != nil || parsed != m {
			continue
		}

		raw, err := fs.ReadFile(s.fsys, path.Join(s.dir, entry.Name()))
		if err != nil {
			return Script{}, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}
		return Script{Migration: m, SQL: string(raw)}, nil
	}

	return Script{}, fmt.Errorf("%w: %s (%s)", ErrMigrationNotFound, m, dir)
}

type sourceEntry struct {
	Description
	hasUp bool
}

type versionMap map[Version]sourceEntry

func (m versionMap) update(mig Migration, dir Direction) error {
	entry, exists := m[mig.Version]

	if exists && entry.Name != mig.Name {
		return fmt.Errorf(
			"%w: migration %d is named %q and %q",
			ErrMigrationDuplicated,
			mig.Version,
			entry.Name,
			mig.Name,
		)
	}

	entry.Migration = mig
	switch dir {
	case Up:
		entry.hasUp = true
	case Down:
		entry.CanUndo = true
	}
	m[mig.Version] = entry

	return nil
}

func parseFileName(fileName string) (Migration, Direction, error) {
	var dir Direction
	var base string

	switch {
	case strings.HasSuffix(fileName, upSuffix):
		dir, base = Up, strings.TrimSuffix(fileName, upSuffix)
	case strings.HasSuffix(fileName, downSuffix):
		dir, base = Down, strings.TrimSuffix(fileName, downSuffix)
	default:
		return Migration{}, 0, fmt.Errorf("not a migration file: %s", fileName)
	}

	digits := strings.IndexFunc(base, func(r rune) bool { return !unicode.IsDigit(r) })
	if digits <= 0 {
		return Migration{}, 0, fmt.Errorf("migration file name does not start with a version: %s", fileName)
	}
	if base[digits] != '_' {
		return Migration{}, 0, fmt.Errorf("migration file is missing an underscore after version: %s", fileName)
	}

	version, err := strconv.ParseUint(base[:digits], 10, VersionBits)
	if err != nil {
		return Migration{}, 0, fmt.Errorf("migration file name does not contain a valid version: %s", fileName)
	}

	name := base[digits+1:]
	if name == "" {
		return Migration{}, 0, fmt.Errorf("migration file name has no description: %s", fileName)
	}

	return Migration{Version: Version(version), Name: name}, dir, nil
}
