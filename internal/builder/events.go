package builder

// EventKind tags the variant of a build progress Event (§9 "Progress
// emission" — a sink accepting a tagged event, not a runtime-specific
// callback).
type EventKind string

const (
	StageStart    EventKind = "StageStart"
	StepStart     EventKind = "StepStart"
	StepComplete  EventKind = "StepComplete"
	StageComplete EventKind = "StageComplete"
	BuildComplete EventKind = "BuildComplete"
	EventError    EventKind = "Error"
	EventWarning  EventKind = "Warning"
)

// Event is emitted in strict program order to a single Sink for the
// duration of one build (spec.md §5 ordering guarantee).
type Event struct {
	Kind EventKind

	StageIndex int
	StageName  string
	BaseRef    string // "base_image:base_tag|latest"

	InstructionDebug string
	LayerID          string // short id, empty if this step produced no layer

	ImageID string // set on BuildComplete
	Message string // set on Error/Warning
}

// Sink receives build Events. Implementers choose the concrete transport
// (in-process channel, remote log, discard); the builder has no opinion.
type Sink interface {
	Emit(Event)
}

// DiscardSink drops every event; useful for tests and dry runs.
type DiscardSink struct{}

func (DiscardSink) Emit(Event) {}

// ChanSink emits events onto a buffered channel, the shape a caller streams
// to an HTTP response or CLI progress bar.
type ChanSink struct {
	C chan Event
}

func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{C: make(chan Event, buffer)}
}

func (s *ChanSink) Emit(e Event) {
	s.C <- e
}

func (s *ChanSink) Close() {
	close(s.C)
}
