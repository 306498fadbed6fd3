// Package sqlstore holds helpers shared by the SQL-backed record stores.
package sqlstore

import "strings"

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// NameKey folds a subject name into the lookup key stored next to it. Go's
// Unicode case folding is used so that non-ASCII names compare the same way in
// every backend.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern builds a LIKE pattern (escape character '\') matching keys
// that contain query.
func ContainsPattern(query string) string {
	return "%" + likeEscaper.Replace(NameKey(query)) + "%"
}
