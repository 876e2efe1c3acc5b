package downloader

// ProgressSink receives per-segment lifecycle events. The downloader delivers
// every event from a single goroutine, but implementations shared between runs
// must still tolerate concurrent calls.
type ProgressSink interface {
	// Restore announces a segment's total planned length and the bytes it
	// already holds on disk.
	Restore(segment int, total, done int64)
	// Update reports bytes just written to the segment's part file.
	Update(segment int, n int64)
	// Complete is called exactly once when the segment succeeds, including the
	// already-complete short circuit.
	Complete(segment int)
	// Fail is called exactly once when the segment gives up.
	Fail(segment int, err error)
}

type NopSink struct{}

func (NopSink) Restore(int, int64, int64) {}
func (NopSink) Update(int, int64)         {}
func (NopSink) Complete(int)              {}
func (NopSink) Fail(int, error)           {}

type eventKind int

const (
	eventRestore eventKind = iota
	eventUpdate
	eventComplete
	eventFail
)

type event struct {
	kind    eventKind
	segment int
	total   int64
	n       int64
	err     error
}

// pump forwards worker events to the sink until events is closed.
func pump(events <-chan event, sink ProgressSink, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		switch ev.kind {
		case eventRestore:
			sink.Restore(ev.segment, ev.total, ev.n)
		case eventUpdate:
			sink.Update(ev.segment, ev.n)
		case eventComplete:
			sink.Complete(ev.segment)
		case eventFail:
			sink.Fail(ev.segment, ev.err)
		}
	}
}
