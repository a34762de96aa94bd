package domain

import "context"

// Classifier maps a text to a verdict and a 0-100 confidence.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Speaker reads an utterance aloud. Fire-and-forget.
type Speaker interface {
	Speak(utterance string)
}

// Recognizer captures at most one transcript per call.
type Recognizer interface {
	// Supported reports whether capture can start at all.
	Supported() bool
	Listen(ctx context.Context) (string, error)
}

// Severity of a user notification
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notice is a modal shown to the user
type Notice struct {
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Text     string   `json:"text"`
}

// Notifier displays notices. Fire-and-forget.
type Notifier interface {
	Notify(n Notice)
}

// UI is the surface the session drives while it works. Implementations must
// not call back into the session from these methods.
type UI interface {
	SetBusy(busy bool)
	ClearInput()
	SetInput(text string)
	Render(snap Snapshot)
}

// SessionState is a state of the classification session
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateSubmitting SessionState = "submitting"
	StateSuccess    SessionState = "success"
	StateFailure    SessionState = "failure"
)

// Snapshot is a consistent copy of everything a front-end displays
type Snapshot struct {
	State    SessionState  `json:"state"`
	Messages []Message     `json:"messages"`
	Sidebar  []SidebarItem `json:"sidebar"`

	// View changes every time Messages is replaced rather than extended.
	View uint64 `json:"view"`
}
