package postgres

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrations_Paired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no migrations embedded")
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}

	for v := range ups {
		if !downs[v] {
			t.Errorf("migration %s has no down file", v)
		}
	}
	for v := range downs {
		if !ups[v] {
			t.Errorf("migration %s has no up file", v)
		}
	}
}

func TestMigrations_JobsReferenceClients(t *testing.T) {
	clients, err := fs.ReadFile(migrationFS, "migrations/000001_create_clients.up.sql")
	if err != nil {
		t.Fatal(err)
	}
	jobs, err := fs.ReadFile(migrationFS, "migrations/000002_create_jobs.up.sql")
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(clients), "api_key_hash") {
		t.Error("clients table must store the api key hash")
	}
	if !strings.Contains(string(jobs), "REFERENCES clients") {
		t.Error("jobs must reference their client")
	}
}
