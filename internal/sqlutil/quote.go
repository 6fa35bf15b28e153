// Package sqlutil provides SQL utility functions.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
// Both SQLite and MySQL accept backtick-quoted identifiers.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// Qualified returns alias.column with both parts quoted.
func Qualified(alias, column string) string {
	return QuoteIdentifier(alias) + "." + QuoteIdentifier(column)
}

// AliasedTable renders "table AS alias", or just the quoted table when the
// alias equals the table name.
func AliasedTable(table, alias string) string {
	if alias == "" || alias == table {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(table) + " AS " + QuoteIdentifier(alias)
}
