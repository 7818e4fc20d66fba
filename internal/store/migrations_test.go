package store

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_address_changes.sql": {Data: []byte("CREATE TABLE address_changes (id INTEGER);")},
		"m/0001_customers.sql":       {Data: []byte("CREATE TABLE customers (id TEXT);")},
		"m/001_invalid.sql":          {Data: []byte("SELECT 1;")},
		"m/0003_missing_ext":         {Data: []byte("SELECT 1;")},
		"m/README.md":                {Data: []byte("docs")},
	}

	got, err := LoadMigrations(fsys, "m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(got))
	}
	if got[0].Version != 1 || got[0].Name != "customers" {
		t.Errorf("first migration = %d %s, want 1 customers", got[0].Version, got[0].Name)
	}
	if got[1].Version != 2 || got[1].Name != "address_changes" {
		t.Errorf("second migration = %d %s, want 2 address_changes", got[1].Version, got[1].Name)
	}
	if len(got[0].Checksum) != 64 {
		t.Errorf("expected sha256 hex checksum, got %q", got[0].Checksum)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0001_a.sql": {Data: []byte("SELECT 1;")},
		"m/0001_b.sql": {Data: []byte("SELECT 2;")},
	}

	if _, err := LoadMigrations(fsys, "m"); err == nil {
		t.Fatal("expected error for duplicate version")
	}
}

func TestLoadMigrations_ChecksumConsistency(t *testing.T) {
	fsys := fstest.MapFS{
		"a/0001_x.sql": {Data: []byte("CREATE TABLE test (id INTEGER);")},
		"b/0001_x.sql": {Data: []byte("CREATE TABLE test (id INTEGER);")},
		"c/0001_x.sql": {Data: []byte("CREATE TABLE different (id INTEGER);")},
	}

	a, _ := LoadMigrations(fsys, "a")
	b, _ := LoadMigrations(fsys, "b")
	c, _ := LoadMigrations(fsys, "c")

	if a[0].Checksum != b[0].Checksum {
		t.Error("same content should produce the same checksum")
	}
	if a[0].Checksum == c[0].Checksum {
		t.Error("different content should produce different checksums")
	}
}

func TestPending(t *testing.T) {
	all := []Migration{
		{Version: 1, Filename: "0001_a.sql", Checksum: "aaa"},
		{Version: 2, Filename: "0002_b.sql", Checksum: "bbb"},
		{Version: 3, Filename: "0003_c.sql", Checksum: "ccc"},
	}

	tests := []struct {
		name     string
		applied  []AppliedMigration
		want     []int
		errMatch string
	}{
		{name: "fresh database", applied: nil, want: []int{1, 2, 3}},
		{name: "partially applied", applied: []AppliedMigration{{Version: 1, Checksum: "aaa"}}, want: []int{2, 3}},
		{name: "legacy row without checksum", applied: []AppliedMigration{{Version: 1}, {Version: 2}}, want: []int{3}},
		{name: "modified file", applied: []AppliedMigration{{Version: 2, Checksum: "zzz"}}, errMatch: "0002_b.sql"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Pending(all, tt.applied)
			if tt.errMatch != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errMatch) {
					t.Fatalf("expected error mentioning %q, got %v", tt.errMatch, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d pending, want %d", len(got), len(tt.want))
			}
			for i, v := range tt.want {
				if got[i].Version != v {
					t.Errorf("pending[%d] = %d, want %d", i, got[i].Version, v)
				}
			}
		})
	}
}
