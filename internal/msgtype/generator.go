package msgtype

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces the unique tag for a newly defined type.
// Implemented by UUIDv7Generator (production) and SequenceGenerator (tests).
type Generator interface {
	Generate(name string) string
}

// DefaultGenerator is used by Define.
var DefaultGenerator Generator = UUIDv7Generator{}

// UUIDv7Generator tags types with time-sortable UUIDv7 strings.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a fresh hyphenated UUIDv7.
// Panics if the system random source fails.
func (UUIDv7Generator) Generate(string) string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator tags types with a stable "<prefix><n>:<name>" counter,
// so traces and golden files stay byte-identical across runs.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator whose tags start with prefix.
// An empty prefix defaults to "t".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "t"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next tag.
func (g *SequenceGenerator) Generate(name string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s%d:%s", g.prefix, g.n, name)
}
