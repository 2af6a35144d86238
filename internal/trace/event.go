package trace

import "time"

// Kind is the type of a trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
	// KindCrash reports a defect in the checker itself.
	KindCrash
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	case KindCrash:
		return "crash"
	default:
		return "unknown"
	}
}

// Scope is the granularity of an event; lower values are coarser.
type Scope uint8

const (
	ScopeDriver Scope = iota + 1 // CLI command, whole bundle
	ScopeModule                  // one module or script
	ScopePass                    // one pass over one unit
	ScopeStruct                  // one struct formula
)

func (s Scope) String() string {
	switch s {
	case ScopeDriver:
		return "driver"
	case ScopeModule:
		return "module"
	case ScopePass:
		return "pass"
	case ScopeStruct:
		return "struct"
	default:
		return "unknown"
	}
}

// Event is a single trace record.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64
	GID      uint64
	Name     string
	Detail   string
	Attrs    map[string]string
}

// alwaysEmitted reports whether the event bypasses level filtering.
func (ev *Event) alwaysEmitted() bool {
	return ev.Kind == KindCrash || ev.Kind == KindHeartbeat
}
