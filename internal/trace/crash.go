package trace

import (
	"io"
	"os"
	"sync"
	"time"
)

var (
	crashMu     sync.Mutex
	crashOutput io.Writer = os.Stderr
)

// SetCrashOutput redirects crash reports emitted while no tracer is enabled and
// returns the previous writer.
func SetCrashOutput(w io.Writer) io.Writer {
	crashMu.Lock()
	defer crashMu.Unlock()
	prev := crashOutput
	crashOutput = w
	return prev
}

// Crash reports a defect in the checker. It bypasses level filtering; when t is
// disabled the report is written to the crash output instead.
func Crash(t Tracer, name, detail string) {
	ev := &Event{
		Time:   time.Now(),
		Seq:    NextSeq(),
		Kind:   KindCrash,
		Scope:  ScopeDriver,
		GID:    goroutineID(),
		Name:   name,
		Detail: detail,
	}
	if t != nil && t.Enabled() {
		t.Emit(ev)
		return
	}
	crashMu.Lock()
	defer crashMu.Unlock()
	if crashOutput != nil {
		_, _ = crashOutput.Write(FormatEvent(ev, FormatText)) //nolint:errcheck
	}
}
