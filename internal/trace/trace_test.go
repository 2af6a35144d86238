package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	ring := NewRingTracer(16, LevelPhase)
	Begin(ring, ScopeModule, "0x1::m", 0).End("")
	Begin(ring, ScopePass, "bounds", 0).End("")
	Crash(ring, "depth", "double insert")

	got := ring.Snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 events (module begin/end + crash), got %d: %+v", len(got), got)
	}
	if got[2].Kind != KindCrash {
		t.Fatalf("expected crash last, got %s", got[2].Kind)
	}
}

func TestCrashBypassesErrorLevel(t *testing.T) {
	ring := NewRingTracer(4, LevelError)
	Point(ring, ScopeDriver, "ignored", "")
	Crash(ring, "bounds", "unreachable")
	if n := len(ring.Snapshot()); n != 1 {
		t.Fatalf("expected only the crash, got %d events", n)
	}
}

func TestCrashWithoutTracerWritesFallback(t *testing.T) {
	var buf bytes.Buffer
	prev := SetCrashOutput(&buf)
	defer SetCrashOutput(prev)

	Crash(Nop, "depth", "formula cache corrupted")
	if !strings.Contains(buf.String(), "formula cache corrupted") {
		t.Fatalf("expected crash text in fallback output, got %q", buf.String())
	}
}

func TestRingWraps(t *testing.T) {
	ring := NewRingTracer(3, LevelDebug)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		Point(ring, ScopeDriver, name, "")
	}
	got := ring.Snapshot()
	names := make([]string, len(got))
	for i := range got {
		names[i] = got[i].Name
	}
	if strings.Join(names, ",") != "c,d,e" {
		t.Fatalf("got %v, want [c d e]", names)
	}
}

func TestBeginCtxLinksParent(t *testing.T) {
	ring := NewRingTracer(8, LevelDetail)
	ctx := WithTracer(context.Background(), ring)
	ctx, outer := BeginCtx(ctx, ScopeModule, "0x1::m")
	_, inner := BeginCtx(ctx, ScopePass, "bounds")
	inner.End("")
	outer.End("")

	evs := ring.Snapshot()
	if len(evs) != 4 {
		t.Fatalf("expected 4 events, got %d", len(evs))
	}
	if evs[1].ParentID != outer.ID() {
		t.Fatalf("inner parent = %d, want %d", evs[1].ParentID, outer.ID())
	}
}

func TestStreamNDJSON(t *testing.T) {
	var buf bytes.Buffer
	st := NewStreamTracer(&buf, LevelDebug, FormatNDJSON)
	Begin(st, ScopePass, "dependencies", 0).With("module", "0x1::m").End("ok")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var end map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &end); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if end["kind"] != "end" || end["detail"] != "ok" {
		t.Fatalf("unexpected end event: %v", end)
	}
}

func TestNewOffIsNop(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Enabled() {
		t.Fatal("expected disabled tracer")
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
