package msgtype

import (
	"fmt"
	"sort"
	"strings"
)

// Type identifies a message kind.
// The zero Type is invalid and never produced by Define.
type Type struct {
	name string
	tag  string
}

// Name returns the symbolic name the type was defined with.
func (t Type) Name() string {
	return t.name
}

// Tag returns the unique tag assigned by the generator.
func (t Type) Tag() string {
	return t.tag
}

// IsZero reports whether t is the zero Type.
func (t Type) IsZero() bool {
	return t.tag == ""
}

// String returns the symbolic name.
func (t Type) String() string {
	if t.IsZero() {
		return "<none>"
	}
	return t.name
}

// GoString includes the tag, which is useful in test failure output.
func (t Type) GoString() string {
	return fmt.Sprintf("msgtype.Type{%s#%s}", t.name, t.tag)
}

// MarshalText encodes the symbolic name. Tags are process-local and are not
// meaningful outside the engine that minted them.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Set maps symbolic names to the types minted for them.
type Set map[string]Type

// Get returns the type registered under name.
// Panics if the name was not defined; use Lookup for untrusted input.
func (s Set) Get(name string) Type {
	t, ok := s[name]
	if !ok {
		panic(fmt.Sprintf("msgtype: %q not defined", name))
	}
	return t
}

// Lookup returns the type registered under name.
func (s Set) Lookup(name string) (Type, bool) {
	t, ok := s[name]
	return t, ok
}

// Names returns the defined names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new set holding the types of s and other.
// Types in other win on name collisions.
func (s Set) Merge(other Set) Set {
	out := make(Set, len(s)+len(other))
	for n, t := range s {
		out[n] = t
	}
	for n, t := range other {
		out[n] = t
	}
	return out
}

// Define mints one type per name using DefaultGenerator.
func Define(names ...string) Set {
	return DefineWith(DefaultGenerator, names...)
}

// DefineWith mints one type per name using gen.
//
// Names are trimmed; empty and duplicate names panic, since both indicate a
// programming error in a static message table.
func DefineWith(gen Generator, names ...string) Set {
	set := make(Set, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			panic("msgtype: empty message name")
		}
		if _, dup := set[name]; dup {
			panic(fmt.Sprintf("msgtype: duplicate message name %q", name))
		}
		set[name] = Type{name: name, tag: gen.Generate(name)}
	}
	return set
}
