package sqlutil

import "testing"

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"genes", "`genes`"},
		{"biomarkers_genes", "`biomarkers_genes`"},
		{"select", "`select`"},         // reserved word
		{"first name", "`first name`"}, // space in name
		{"gene`data", "`gene``data`"},  // backtick in name
		{"a`b`c", "`a``b``c`"},
		{"", "``"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := QuoteIdentifier(tt.input)
			if result != tt.expected {
				t.Errorf("QuoteIdentifier(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestQualified(t *testing.T) {
	got := Qualified("documents_via_statements", "id")
	want := "`documents_via_statements`.`id`"
	if got != want {
		t.Errorf("Qualified() = %q, want %q", got, want)
	}
}

func TestAliasedTable(t *testing.T) {
	tests := []struct {
		table, alias, expected string
	}{
		{"therapies", "", "`therapies`"},
		{"therapies", "therapies", "`therapies`"},
		{"therapies", "therapies_direct", "`therapies` AS `therapies_direct`"},
	}

	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			if got := AliasedTable(tt.table, tt.alias); got != tt.expected {
				t.Errorf("AliasedTable(%q, %q) = %q, want %q", tt.table, tt.alias, got, tt.expected)
			}
		})
	}
}
