package pipeline

import "fmt"

// State is the visible pipeline state. Ready is both initial and the state
// every run ends in.
type State int

const (
	StateReady State = iota
	StateCapturing
	StateProcessing
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateCapturing:
		return "capturing"
	case StateProcessing:
		return "processing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is published to subscribers on every transition.
type Status struct {
	State     State
	CharCount int    // StateSucceeded only
	Reason    string // StateFailed only
}

// Label is a short human-readable rendering for tooltips.
func (s Status) Label() string {
	switch s.State {
	case StateCapturing:
		return "Capturing..."
	case StateProcessing:
		return "Recognizing text..."
	case StateSucceeded:
		return fmt.Sprintf("Copied %d characters", s.CharCount)
	case StateFailed:
		return "Failed: " + s.Reason
	default:
		return "Ready"
	}
}

// NoticeKind is the single user-visible outcome of a run.
type NoticeKind int

const (
	NoticeCopied NoticeKind = iota
	NoticeDeferred
	NoticeNoText
	NoticeFailed
	NoticeCancelled
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeCopied:
		return "copied"
	case NoticeDeferred:
		return "deferred"
	case NoticeNoText:
		return "no_text"
	case NoticeFailed:
		return "failed"
	case NoticeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type Notice struct {
	Kind    NoticeKind
	Title   string
	Message string
}

// Notifier renders notices; the pipeline does not care how.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}
