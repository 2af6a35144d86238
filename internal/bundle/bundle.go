// Package bundle reads and writes the msgpack container holding decoded modules and
// scripts.
package bundle

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/text/unicode/norm"

	"movecheck/internal/binary"
)

// Schema is the container version; bump it when Bundle changes shape.
const Schema uint16 = 1

// Extension is the conventional file suffix of a bundle.
const Extension = ".mvb"

// Bundle is a set of binaries verified together.
type Bundle struct {
	Schema  uint16
	Modules []*binary.CompiledModule
	Scripts []*binary.CompiledScript
}

// New returns an empty bundle at the current schema.
func New() *Bundle {
	return &Bundle{Schema: Schema}
}

// ErrSchema is returned for bundles written with another schema.
var ErrSchema = errors.New("unsupported bundle schema")

// Encode writes b to w.
func (b *Bundle) Encode(w io.Writer) error {
	if b.Schema == 0 {
		b.Schema = Schema
	}
	return msgpack.NewEncoder(w).Encode(b)
}

// Decode reads a bundle from r and rejects malformed identifiers.
func Decode(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := msgpack.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b.Schema != Schema {
		return nil, fmt.Errorf("%w: %d (expected %d)", ErrSchema, b.Schema, Schema)
	}
	for i, m := range b.Modules {
		if m == nil {
			return nil, fmt.Errorf("module #%d is empty", i)
		}
		if err := checkIdentifiers(m.Identifiers); err != nil {
			return nil, fmt.Errorf("module #%d: %w", i, err)
		}
	}
	for i, s := range b.Scripts {
		if s == nil {
			return nil, fmt.Errorf("script #%d is empty", i)
		}
		if err := checkIdentifiers(s.Identifiers); err != nil {
			return nil, fmt.Errorf("script #%d: %w", i, err)
		}
	}
	return &b, nil
}

// Read decodes the bundle at path.
func Read(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Write stores b at path, replacing any existing file atomically.
func (b *Bundle) Write(path string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "tmp-*"+Extension)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()
	if err = b.Encode(f); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// ValidIdentifier reports whether s can name a module member: a letter or underscore
// followed by letters, digits and underscores, in NFC form.
func ValidIdentifier(s string) bool {
	if s == "" || !norm.NFC.IsNormalString(s) {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

func checkIdentifiers(ids []string) error {
	for i, id := range ids {
		if !ValidIdentifier(id) {
			return fmt.Errorf("identifier #%d %q is not a valid name", i, id)
		}
	}
	return nil
}
