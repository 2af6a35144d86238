package verifier

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Stage is one pass of the pipeline.
type Stage string

const (
	StageBounds       Stage = "bounds"
	StageGraph        Stage = "graph"
	StageDependencies Stage = "dependencies"
	StageDepth        Stage = "depth"
)

// Stages lists the stages in pipeline order.
var Stages = []Stage{StageBounds, StageGraph, StageDependencies, StageDepth}

// Status is the state of a unit within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
	// StatusSkipped marks a unit not checked because an earlier unit failed.
	StatusSkipped Status = "skipped"
)

// Event reports progress of one unit, or of the whole run when Unit is empty.
type Event struct {
	Unit    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. It may be called from several goroutines.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

type nopSink struct{}

func (nopSink) OnEvent(Event) {}

// Timings accumulates time spent per stage across all units. It is safe for
// concurrent use.
type Timings struct {
	mu     sync.Mutex
	stages map[Stage]time.Duration
	total  time.Duration
}

// Add charges dur to stage.
func (t *Timings) Add(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
	t.stages[stage] += dur
}

// SetTotal records the wall-clock duration of the run.
func (t *Timings) SetTotal(dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.total = dur
	t.mu.Unlock()
}

// Duration returns the recorded duration for stage.
func (t *Timings) Duration(stage Stage) time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stages[stage]
}

// StageReport is the serializable form of one stage duration.
type StageReport struct {
	Stage      Stage   `json:"stage"`
	DurationMS float64 `json:"duration_ms"`
}

// TimingReport is the serializable form of Timings.
type TimingReport struct {
	TotalMS float64       `json:"total_ms"`
	Stages  []StageReport `json:"stages"`
}

// Report returns the recorded stages in pipeline order. Stage durations are summed over
// units running in parallel, so they may exceed the total.
func (t *Timings) Report() TimingReport {
	if t == nil {
		return TimingReport{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	report := TimingReport{TotalMS: durationToMillis(t.total)}
	for _, stage := range Stages {
		dur, ok := t.stages[stage]
		if !ok {
			continue
		}
		report.Stages = append(report.Stages, StageReport{Stage: stage, DurationMS: durationToMillis(dur)})
	}
	return report
}

// Summary renders the report for terminals.
func (t *Timings) Summary() string {
	report := t.Report()
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, s := range report.Stages {
		fmt.Fprintf(&sb, "  %-20s %7.2f ms\n", s.Stage, s.DurationMS)
	}
	fmt.Fprintf(&sb, "  %-20s %7.2f ms\n", "total", report.TotalMS)
	return sb.String()
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
