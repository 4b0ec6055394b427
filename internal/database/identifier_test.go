package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier_Valid(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"sessions", `"sessions"`},
		{"user_sessions", `"user_sessions"`},
		{"_internal", `"_internal"`},
		{"Table2", `"Table2"`},
	}

	for _, tt := range tests {
		quoted, err := QuoteIdentifier(tt.input)
		assert.NoError(t, err)
		assert.Equal(t, tt.expected, quoted)
	}
}

func TestQuoteIdentifier_Rejected(t *testing.T) {
	inputs := []string{
		"",
		"2sessions",
		"sessions; DROP TABLE users",
		`sessions"`,
		"user-sessions",
		"sessions users",
		"sessions\n",
	}

	for _, input := range inputs {
		_, err := QuoteIdentifier(input)
		assert.Error(t, err, "identifier %q should be rejected", input)
	}
}
