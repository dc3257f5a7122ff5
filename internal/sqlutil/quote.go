// Package sqlutil provides SQL identifier helpers for generated queries.
package sqlutil

import "strings"

// QuoteIdentifier quotes a table, column, or alias name with backticks
// and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// Qualify quotes and joins an alias and column into alias.column form.
func Qualify(alias, column string) string {
	if alias == "" {
		return QuoteIdentifier(column)
	}
	return QuoteIdentifier(alias) + "." + QuoteIdentifier(column)
}
