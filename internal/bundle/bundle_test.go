package bundle

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"movecheck/internal/binary"
	"movecheck/internal/testkit"
)

func TestWriteRead(t *testing.T) {
	b := New()
	b.Modules = append(b.Modules, testkit.BasicModule())
	b.Scripts = append(b.Scripts, testkit.EmptyScript())

	path := filepath.Join(t.TempDir(), "nested", "app"+Extension)
	if err := b.Write(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got.Modules[0].StructDefs, b.Modules[0].StructDefs) {
		t.Fatalf("struct defs differ after round trip:\n got %+v\nwant %+v", got.Modules[0].StructDefs, b.Modules[0].StructDefs)
	}
	if len(got.Scripts) != 1 || len(got.Scripts[0].Code.Code) != 1 {
		t.Fatalf("unexpected scripts %+v", got.Scripts)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestDecodeRejectsSchema(t *testing.T) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(&Bundle{Schema: Schema + 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(&buf); !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
}

func TestDecodeRejectsIdentifiers(t *testing.T) {
	m := testkit.EmptyModule("cafe\u0301")
	var buf bytes.Buffer
	if err := (&Bundle{Modules: []*binary.CompiledModule{m}}).Encode(&buf); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(&buf); err == nil {
		t.Fatal("expected a decomposed identifier to be rejected")
	}
}

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"coin", true},
		{"_private", true},
		{"Coin2", true},
		{"caf\u00e9", true},
		{"cafe\u0301", false},
		{"", false},
		{"2fast", false},
		{"with space", false},
		{"a::b", false},
	}
	for _, tt := range tests {
		if got := ValidIdentifier(tt.in); got != tt.want {
			t.Fatalf("ValidIdentifier(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
