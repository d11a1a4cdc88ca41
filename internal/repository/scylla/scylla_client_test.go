package scylla

import (
	"strings"
	"testing"
)

func TestSchemaKeys(t *testing.T) {
	tests := []struct {
		table string
		key   string
	}{
		{"rate_limit_entries", "PRIMARY KEY ((bucket), identity, action, scope)"},
		{"raw_submissions", "PRIMARY KEY ((resource_id, day), identity)"},
		{"daily_summaries", "PRIMARY KEY ((resource_id), day)"},
		{"comments", "PRIMARY KEY ((resource_id), created_at, comment_id)"},
	}

	for _, tt := range tests {
		found := false
		for _, stmt := range schema {
			if strings.Contains(stmt, "EXISTS "+tt.table+" (") {
				found = true
				if !strings.Contains(stmt, tt.key) {
					t.Errorf("%s: missing %q", tt.table, tt.key)
				}
			}
		}
		if !found {
			t.Errorf("no schema statement for %s", tt.table)
		}
	}
}

func TestLedgerStatementsAreConditional(t *testing.T) {
	for name, stmt := range map[string]string{
		"insert": insertLedgerEntry,
		"update": updateLedgerEntry,
		"delete": deleteLedgerEntry,
	} {
		if !strings.Contains(stmt, " IF ") {
			t.Errorf("%s statement is not a lightweight transaction", name)
		}
	}
	if !strings.Contains(upsertSummary, "USING TIMESTAMP ?") {
		t.Error("summary upsert must carry the read timestamp")
	}
}

func TestNullableString(t *testing.T) {
	if nullableString("") != nil {
		t.Error("empty string should bind as null")
	}
	if got := nullableString("slow"); got == nil || *got != "slow" {
		t.Errorf("nullableString(slow) = %v", got)
	}
}
