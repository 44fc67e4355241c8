package store

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
)

var migrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d{4})_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Fatalf("unexpected file in migrations dir: %s", entry.Name())
		}
		version, direction := match[1], match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}
	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}

	versions := make([]string, 0, len(byVersion))
	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
		versions = append(versions, version)
	}
	sort.Strings(versions)
	if versions[0] != "0001" {
		t.Fatalf("first migration must be 0001, got %s", versions[0])
	}
}

func TestInitialMigrationDeclaresKeyConstraints(t *testing.T) {
	contents, err := os.ReadFile(filepath.Join(migrationsDir, "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read initial migration: %v", err)
	}
	schema := string(contents)
	for _, fragment := range []string{
		"slug TEXT NOT NULL UNIQUE",
		"REFERENCES posts(id) ON DELETE CASCADE",
		"CHECK (status IN ('draft', 'published'))",
		"CHECK (status IN ('pending', 'approved', 'spam', 'deleted'))",
	} {
		if !strings.Contains(schema, fragment) {
			t.Fatalf("initial migration missing %q", fragment)
		}
	}
}
