package repository

import (
	"strings"
	"testing"
)

func TestLoadMigrations_OrderedAndVersioned(t *testing.T) {
	ms, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(ms) == 0 {
		t.Fatal("expected at least one migration")
	}
	for i := 1; i < len(ms); i++ {
		if ms[i-1].Version >= ms[i].Version {
			t.Errorf("migrations out of order: %s before %s", ms[i-1].Name, ms[i].Name)
		}
	}
}

func TestMarketplaceSchema_EnforcesUniqueness(t *testing.T) {
	ms, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	sql := ms[0].UpSQL
	for _, want := range []string{
		"UNIQUE (project_id, solver_id)",
		"applications_one_accepted_idx",
		"payments_one_pending_idx",
		"submissions_one_pending_idx",
		"project_id   UUID NOT NULL UNIQUE",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}
