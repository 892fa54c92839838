package database

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"
)

func readMigration(t *testing.T, name string) string {
	t.Helper()
	data, err := fs.ReadFile(migrationFiles, "migrations/"+name)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name()] = true
	}
	for name := range names {
		if strings.HasSuffix(name, ".up.sql") && !names[strings.TrimSuffix(name, ".up.sql")+".down.sql"] {
			t.Errorf("%s has no down migration", name)
		}
	}
}

func TestImportTablesForeignKeys(t *testing.T) {
	sql := readMigration(t, "000002_import_tables.up.sql")

	tests := []struct {
		name    string
		pattern string
	}{
		{"violations keep their row when the submission goes", `submission_id\s+UUID\s+REFERENCES\s+submissions\(id\)\s+ON DELETE SET NULL`},
		{"import jobs carry their owner", `owner\s+VARCHAR\(255\)\s+NOT NULL`},
		{"unfinished jobs are found per owner", `ON import_jobs \(owner, status\)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !regexp.MustCompile(tt.pattern).MatchString(sql) {
				t.Errorf("migration does not match %s", tt.pattern)
			}
		})
	}

	if regexp.MustCompile(`submission_id\s+UUID\s+REFERENCES\s+submissions\(id\)\s+ON DELETE CASCADE`).MatchString(sql) {
		t.Error("deleting a submission must not delete its violations")
	}
}
