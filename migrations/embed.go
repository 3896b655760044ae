// Package migrations holds the climate schema history: the ordered list of
// migrations and the fingerprints that recognise stores created before
// versions were recorded.
//
// DDL lives in embedded .sql files so it is compiled into the binary; steps
// that must inspect the live schema first are written in Go.
package migrations

import (
	"embed"
	"fmt"
)

//go:embed *.sql
var sqlFS embed.FS

// readSQL returns the contents of an embedded migration file.
func readSQL(name string) (string, error) {
	data, err := sqlFS.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("reading embedded %s: %w", name, err)
	}
	return string(data), nil
}
