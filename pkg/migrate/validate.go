package migrate

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

var migrationFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir lints every .sql file in dir and reports all problems at once.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	return validateFS(os.DirFS(dir))
}

func validateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var problems error
	versions := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := migrationFileRe.FindStringSubmatch(name)
		if m == nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: name must look like YYYYMMDDHHMMSS_snake_name.sql", name))
			continue
		}
		if other, dup := versions[m[1]]; dup {
			problems = multierr.Append(problems, fmt.Errorf("%s: version %s already used by %s", name, m[1], other))
			continue
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		problems = multierr.Append(problems, lintAnnotations(name, body))
	}

	if len(versions) == 0 && problems == nil {
		return errors.New("no migrations found")
	}
	return problems
}

// lintAnnotations checks the goose markers: one Up before one Down, and
// balanced StatementBegin/StatementEnd blocks inside each section.
func lintAnnotations(name string, body []byte) error {
	var (
		problems   error
		ups, downs int
		open       bool
	)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "-- +goose Up":
			ups++
		case "-- +goose Down":
			if open {
				problems = multierr.Append(problems, fmt.Errorf("%s:%d: Down marker inside an open statement block", name, line))
			}
			if ups == 0 {
				problems = multierr.Append(problems, fmt.Errorf("%s:%d: Down marker before Up", name, line))
			}
			downs++
		case "-- +goose StatementBegin":
			if open {
				problems = multierr.Append(problems, fmt.Errorf("%s:%d: nested StatementBegin", name, line))
			}
			open = true
		case "-- +goose StatementEnd":
			if !open {
				problems = multierr.Append(problems, fmt.Errorf("%s:%d: StatementEnd without StatementBegin", name, line))
			}
			open = false
		}
	}
	if err := scanner.Err(); err != nil {
		return multierr.Append(problems, fmt.Errorf("%s: %w", name, err))
	}

	if ups != 1 {
		problems = multierr.Append(problems, fmt.Errorf("%s: want exactly one \"-- +goose Up\", found %d", name, ups))
	}
	if downs != 1 {
		problems = multierr.Append(problems, fmt.Errorf("%s: want exactly one \"-- +goose Down\", found %d", name, downs))
	}
	if open {
		problems = multierr.Append(problems, fmt.Errorf("%s: StatementBegin never closed", name))
	}
	return problems
}

// Problems flattens a ValidateDir error into sorted lines for printing.
func Problems(err error) []string {
	errs := multierr.Errors(err)
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	sort.Strings(out)
	return out
}
