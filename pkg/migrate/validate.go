package migrate

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"go.uber.org/multierr"
)

const (
	annotationUp    = "-- +goose Up"
	annotationDown  = "-- +goose Down"
	annotationBegin = "-- +goose StatementBegin"
	annotationEnd   = "-- +goose StatementEnd"
)

// Validate checks every .sql file in migrations: the filename carries a
// unique 14 digit version, Up precedes Down, and statement blocks are closed
// inside the section that opened them. All problems are reported together.
func Validate(migrations fs.FS) error {
	names, err := fs.Glob(migrations, "*.sql")
	if err != nil {
		return fmt.Errorf("migrate: list migrations: %w", err)
	}
	if len(names) == 0 {
		return errors.New("migrate: no migrations found")
	}

	var errs error
	versions := make(map[string]string, len(names))
	for _, name := range names {
		version, ok := versionOf(name)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", name))
			continue
		}
		if prev, dup := versions[version]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%s: version %s already used by %s", name, version, prev))
		}
		versions[version] = name

		if err := checkAnnotations(migrations, name); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs
}

func versionOf(name string) (string, bool) {
	base := strings.TrimSuffix(path.Base(name), ".sql")
	version, rest, ok := strings.Cut(base, "_")
	if !ok || len(version) != 14 || slugify(rest) != rest {
		return "", false
	}
	for _, r := range version {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return version, true
}

func checkAnnotations(migrations fs.FS, name string) error {
	f, err := migrations.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	var section string
	open := false
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		switch strings.TrimSpace(scanner.Text()) {
		case annotationUp:
			if section != "" {
				return fmt.Errorf("line %d: Up must come first", line)
			}
			section = "up"
		case annotationDown:
			if section != "up" {
				return fmt.Errorf("line %d: Down without Up", line)
			}
			if open {
				return fmt.Errorf("line %d: Up statement block not closed", line)
			}
			section = "down"
		case annotationBegin:
			if section == "" || open {
				return fmt.Errorf("line %d: unexpected StatementBegin", line)
			}
			open = true
		case annotationEnd:
			if !open {
				return fmt.Errorf("line %d: StatementEnd without StatementBegin", line)
			}
			open = false
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	switch {
	case section == "":
		return errors.New("missing Up annotation")
	case section == "up":
		return errors.New("missing Down annotation")
	case open:
		return errors.New("Down statement block not closed")
	}
	return nil
}
