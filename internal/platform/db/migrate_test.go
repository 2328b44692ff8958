package db

import (
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/hypersenta/serenity/migrations"
)

func sqlFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return fsys
}

func TestLoadMigrations(t *testing.T) {
	migrator := NewMigrator(nil, sqlFS(map[string]string{
		"001_wallets.sql":  "CREATE TABLE wallets (id UUID PRIMARY KEY);",
		"002_policies.sql": "CREATE TABLE cost_sharing_policies (id UUID PRIMARY KEY);",
	}))
	migs, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	if len(migs) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migs))
	}
	if migs[0].Version != 1 || migs[0].Name != "001_wallets.sql" {
		t.Errorf("unexpected first migration: %d %s", migs[0].Version, migs[0].Name)
	}
	if migs[0].SQL != "CREATE TABLE wallets (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migs[0].SQL)
	}
	if migs[1].Version != 2 {
		t.Errorf("expected version 2, got %d", migs[1].Version)
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	migrator := NewMigrator(nil, sqlFS(map[string]string{
		"010_tables.sql": "SELECT 10;",
		"002_second.sql": "SELECT 2;",
		"001_first.sql":  "SELECT 1;",
		"005_middle.sql": "SELECT 5;",
	}))
	migs, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	expected := []int{1, 2, 5, 10}
	if len(migs) != len(expected) {
		t.Fatalf("expected %d migrations, got %d", len(expected), len(migs))
	}
	for i, v := range expected {
		if migs[i].Version != v {
			t.Errorf("migration[%d]: expected version %d, got %d", i, v, migs[i].Version)
		}
	}
}

func TestLoadMigrations_InvalidFilename(t *testing.T) {
	migrator := NewMigrator(nil, sqlFS(map[string]string{
		"001_valid.sql":      "SELECT 1;",
		"readme.sql":         "-- no version prefix",
		"notes.txt":          "not a sql file",
		"abc_invalid.sql":    "-- non-numeric prefix",
		"002_also_valid.sql": "SELECT 2;",
	}))
	migs, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migs))
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migs, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) != 0 {
		t.Errorf("expected 0 migrations, got %d", len(migs))
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	migs, err := NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) == 0 {
		t.Fatal("expected embedded migrations")
	}
	if migs[0].Version != 1 {
		t.Errorf("expected first version 1, got %d", migs[0].Version)
	}
	for _, table := range []string{"users", "organizations", "cost_sharing_policies", "wallets"} {
		found := false
		for _, m := range migs {
			if strings.Contains(m.SQL, "CREATE TABLE IF NOT EXISTS "+table+" ") {
				found = true
			}
		}
		if !found {
			t.Errorf("no migration creates table %s", table)
		}
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		version int
		ok      bool
	}{
		{"001_wallets.sql", 1, true},
		{"12_add_index.sql", 12, true},
		{"wallets.sql", 0, false},
		{"v1_wallets.sql", 0, false},
	}
	for _, tt := range tests {
		v, ok := parseVersion(tt.name)
		if v != tt.version || ok != tt.ok {
			t.Errorf("parseVersion(%q) = %d, %v; want %d, %v", tt.name, v, ok, tt.version, tt.ok)
		}
	}
}

func TestMigrationStatus_Applied(t *testing.T) {
	if (MigrationStatus{Version: 1}).Applied() {
		t.Error("expected migration without a timestamp to be pending")
	}
	now := time.Now()
	if !(MigrationStatus{Version: 1, AppliedAt: &now}).Applied() {
		t.Error("expected migration with a timestamp to be applied")
	}
}
