// Package botlist builds the optional author deny-list from the environment
// (spec §9): ETL_EXCLUDE_AUTHORS (comma-separated) and/or
// ETL_EXCLUDE_AUTHORS_FILE (one author per line). The result is a plain value
// the caller feeds into query.Builder.DenyAuthors -- botlist never reaches
// into the query package itself, and there is no package-level singleton.
package botlist

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const (
	envAuthors     = "ETL_EXCLUDE_AUTHORS"
	envAuthorsFile = "ETL_EXCLUDE_AUTHORS_FILE"
)

// Load reads both environment variables (if set) and returns the merged,
// lowercased, deduplicated set of excluded author names. A missing or empty
// environment yields an empty, non-nil set.
func Load() (map[string]struct{}, error) {
	return LoadFromEnv(os.Getenv(envAuthors), os.Getenv(envAuthorsFile))
}

// LoadFromEnv is Load with the two environment values passed explicitly, for
// testability without mutating process environment.
func LoadFromEnv(csv, filePath string) (map[string]struct{}, error) {
	set := make(map[string]struct{})

	for _, name := range strings.Split(csv, ",") {
		addNormalized(set, name)
	}

	if filePath != "" {
		if err := loadFile(set, filePath); err != nil {
			return nil, fmt.Errorf("botlist: %w", err)
		}
	}

	return set, nil
}

func loadFile(set map[string]struct{}, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		addNormalized(set, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func addNormalized(set map[string]struct{}, name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	set[name] = struct{}{}
}

// Names returns the set as a sorted-free slice, mainly for logging summaries.
func Names(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	return out
}
