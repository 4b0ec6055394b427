package database

import (
	"fmt"
	"regexp"
)

// identifierPattern is the only shape of identifier that may ever be
// interpolated into SQL text. Everything else goes through placeholders.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// QuoteIdentifier validates a SQL identifier (table or column name) and
// returns it double-quoted for safe interpolation. Used by the session
// repository, which takes its table name from configuration; all values
// still bind as parameters.
func QuoteIdentifier(name string) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("invalid SQL identifier %q", name)
	}
	return `"` + name + `"`, nil
}
