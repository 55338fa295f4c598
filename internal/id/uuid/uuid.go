// Package uuid provides export job ID generation.
package uuid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/apilog-dashboard/internal/backend"
)

var _ backend.IDGenerator = Generator{}

// Generator creates UUID v7 strings, which sort by creation time.
type Generator struct{}

// New creates a new Generator.
func New() Generator {
	return Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Valid reports whether s parses as a UUID. Job IDs arriving on URLs are
// checked with it before touching a store.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
