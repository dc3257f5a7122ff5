package sqlutil

import "testing"

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"posts", "`posts`"},
		{"owner_id", "`owner_id`"},
		{"select", "`select`"},         // reserved word
		{"first name", "`first name`"}, // space in name
		{"post`data", "`post``data`"},  // backtick in name
		{"a`b`c", "`a``b``c`"},         // multiple backticks
		{"", "``"},                     // empty string
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

func TestQualify(t *testing.T) {
	tests := []struct {
		alias    string
		column   string
		expected string
	}{
		{"q1", "id", "`q1`.`id`"},
		{"q1_owner", "email", "`q1_owner`.`email`"},
		{"", "id", "`id`"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := Qualify(tt.alias, tt.column)
			if result != tt.expected {
				t.Errorf("Qualify(%q, %q) = %q, want %q", tt.alias, tt.column, result, tt.expected)
			}
		})
	}
}
