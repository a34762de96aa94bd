// Package conversation holds the in-memory, displayable projection of the
// history log.
package conversation

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pbaille/newschat/internal/domain"
)

// NoResult is shown when a selected past text has no entry in the log.
const NoResult = "Sin resultado"

// Lookup resolves a past text against the durable log.
type Lookup interface {
	FindFirst(ctx context.Context, text string) (domain.Entry, bool, error)
}

// View is an ordered list of messages. Messages are never reordered;
// Rebuild and the Append methods are the only mutators.
type View struct {
	lookup Lookup
	msgs   []domain.Message
}

// New creates an empty View that resolves past selections through lookup.
func New(lookup Lookup) *View {
	return &View{lookup: lookup}
}

// Messages returns a copy of the displayed messages.
func (v *View) Messages() []domain.Message {
	out := make([]domain.Message, len(v.msgs))
	copy(out, v.msgs)
	return out
}

// Len returns the number of displayed messages.
func (v *View) Len() int {
	return len(v.msgs)
}

// Rebuild replaces the display with one exchange per entry, in order.
func (v *View) Rebuild(entries []domain.Entry) {
	msgs := make([]domain.Message, 0, 2*len(entries))
	for _, e := range entries {
		msgs = append(msgs, userMessage(e.Text), assistantMessage(e.Verdict, e.Confidence))
	}
	v.msgs = msgs
}

// AppendUser appends the user's message.
func (v *View) AppendUser(text string) {
	v.msgs = append(v.msgs, userMessage(text))
}

// AppendAssistant appends a classification result with its confidence chart.
func (v *View) AppendAssistant(verdict string, confidence float64) {
	v.msgs = append(v.msgs, assistantMessage(verdict, confidence))
}

// AppendExchange appends a user message followed by its result.
func (v *View) AppendExchange(userText, verdict string, confidence float64) {
	v.AppendUser(userText)
	v.AppendAssistant(verdict, confidence)
}

// SelectPast replaces the display with the exchange recorded for sourceText.
// With several entries for the same text the earliest one wins. On a lookup
// error the display is left as it was.
func (v *View) SelectPast(ctx context.Context, sourceText string) error {
	e, ok, err := v.lookup.FindFirst(ctx, sourceText)
	if err != nil {
		return fmt.Errorf("look up %q: %w", sourceText, err)
	}

	if !ok {
		v.msgs = []domain.Message{
			userMessage(sourceText),
			{Role: domain.RoleAssistant, Text: NoResult},
		}
		return nil
	}

	v.msgs = nil
	v.AppendExchange(e.Text, e.Verdict, e.Confidence)
	return nil
}

// FormatResult renders a verdict as an assistant chat line.
func FormatResult(verdict string, confidence float64) string {
	return fmt.Sprintf("Resultado: %s (%s%% confianza)", verdict, FormatConfidence(confidence))
}

// FormatConfidence prints confidence without trailing zeros.
func FormatConfidence(confidence float64) string {
	return strconv.FormatFloat(confidence, 'f', -1, 64)
}

func userMessage(text string) domain.Message {
	return domain.Message{Role: domain.RoleUser, Text: text}
}

func assistantMessage(verdict string, confidence float64) domain.Message {
	c := confidence
	return domain.Message{
		Role:       domain.RoleAssistant,
		Text:       FormatResult(verdict, confidence),
		Verdict:    verdict,
		Confidence: &c,
	}
}
