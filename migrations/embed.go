// Package migrations embeds the SQL bodies of the catalog schema steps.
// The step ordering and guards live in internal/jukebox; the files here only
// hold statements that are safe to re-run.
package migrations

import "embed"

// FS holds the embedded step files.
//
//go:embed *.sql
var FS embed.FS

// Read returns the contents of the named step file.
func Read(name string) (string, error) {
	b, err := FS.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
