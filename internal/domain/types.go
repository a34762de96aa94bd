package domain

// Entry is one committed classification exchange
type Entry struct {
	ID         string  `json:"id,omitempty"`
	Text       string  `json:"texto"`
	Verdict    string  `json:"resultado"`
	Confidence float64 `json:"confianza"`
	Timestamp  string  `json:"fecha"`
}

// Role identifies who authored a chat line
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one renderable chat line
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`

	// Verdict and Confidence are only set on assistant messages that carry a
	// classification. A non-nil Confidence means a chart is attached.
	Verdict    string   `json:"verdict,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// SidebarItem indexes a past entry for re-selection
type SidebarItem struct {
	EntryID    string `json:"entry_id,omitempty"`
	Title      string `json:"title"`
	Timestamp  string `json:"timestamp"`
	SourceText string `json:"source_text"`
}

// Result is what the classifier returns for one text
type Result struct {
	Verdict    string  `json:"resultado"`
	Confidence float64 `json:"confianza"`
}
