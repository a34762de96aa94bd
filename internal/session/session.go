// Package session runs the classification state machine and owns the
// history log, the conversation view and the sidebar index.
//
// Every mutation happens under one mutex, so the session behaves as a single
// logical thread no matter how many goroutines call it. The classifier call
// and speech capture run outside the lock; they are the only suspension points.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pbaille/newschat/internal/conversation"
	"github.com/pbaille/newschat/internal/domain"
	"github.com/pbaille/newschat/internal/history"
	"github.com/pbaille/newschat/internal/sidebar"
)

// DefaultPositiveVerdict is the verdict announced as a success.
const DefaultPositiveVerdict = "Verdadera"

// Deps are the external collaborators. Nil fields are replaced by no-ops,
// except Classifier which is required.
type Deps struct {
	Classifier domain.Classifier
	Speaker    domain.Speaker
	Notifier   domain.Notifier
	Recognizer domain.Recognizer
	UI         domain.UI
}

// Options tune presentation details.
type Options struct {
	TitleLength     int
	PositiveVerdict string
}

// Session is the classification session controller.
type Session struct {
	mu    sync.Mutex
	state domain.SessionState
	// epoch changes on every history clear; responses carrying an older
	// epoch are dropped.
	epoch uint64
	// display changes whenever the view is replaced wholesale; a response
	// whose user message is no longer on screen is committed but not shown.
	display uint64

	history *history.Store
	view    *conversation.View
	sidebar *sidebar.Index

	classifier domain.Classifier
	speaker    domain.Speaker
	notifier   domain.Notifier
	recognizer domain.Recognizer
	ui         domain.UI

	positiveVerdict string
	log             *slog.Logger
}

// New wires a Session around the history log h.
func New(h *history.Store, deps Deps, opts Options, log *slog.Logger) *Session {
	s := &Session{
		state:           domain.StateIdle,
		history:         h,
		classifier:      deps.Classifier,
		speaker:         deps.Speaker,
		notifier:        deps.Notifier,
		recognizer:      deps.Recognizer,
		ui:              deps.UI,
		positiveVerdict: opts.PositiveVerdict,
		log:             log.With("component", "session"),
	}
	if s.speaker == nil {
		s.speaker = nopSpeaker{}
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.recognizer == nil {
		s.recognizer = unsupportedRecognizer{}
	}
	if s.ui == nil {
		s.ui = nopUI{}
	}
	if s.positiveVerdict == "" {
		s.positiveVerdict = DefaultPositiveVerdict
	}

	s.view = conversation.New(h)
	s.sidebar = sidebar.New(s.view, opts.TitleLength)
	return s
}

// State returns the current state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a consistent copy of the displayed state.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Load rebuilds the view and the sidebar from the durable log.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.history.LoadAll(ctx)
	if err != nil {
		s.log.Error("failed to load history", "error", err)
		s.notifyError("No se pudo cargar el historial.")
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	s.view.Rebuild(entries)
	s.sidebar.Rebuild(entries)
	s.display++
	s.log.Info("history loaded", "entries", len(entries))
	s.render()
	return nil
}

// Submit classifies raw and records the exchange. Whitespace-only input is
// ignored. The user's message is displayed before the classifier is called.
//
// Failures are notified to the user before Submit returns; the returned
// error is informational and the session is Idle again either way.
func (s *Session) Submit(ctx context.Context, raw string) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.state != domain.StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.setState(domain.StateSubmitting)
	epoch := s.epoch
	s.ui.SetBusy(true)
	s.view.AppendUser(text)
	display := s.display
	s.ui.ClearInput()
	s.render()
	s.mu.Unlock()

	res, err := s.classifier.Classify(ctx, text)
	if err == nil {
		err = validate(res)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.setState(domain.StateIdle)

	if err != nil {
		s.setState(domain.StateFailure)
		s.ui.SetBusy(false)
		s.log.Warn("classification failed", "error", err)
		s.notifyError("No se pudo clasificar la noticia.")
		return fmt.Errorf("%w: %v", ErrRemoteCall, err)
	}

	if epoch != s.epoch {
		s.ui.SetBusy(false)
		s.log.Info("dropping response for cleared history", "verdict", res.Verdict)
		return ErrStale
	}

	entry, err := s.history.Append(ctx, domain.Entry{
		Text:       text,
		Verdict:    res.Verdict,
		Confidence: res.Confidence,
	})
	if err != nil {
		s.setState(domain.StateFailure)
		s.ui.SetBusy(false)
		s.log.Error("failed to commit entry", "error", err)
		s.notifyError("No se pudo guardar el historial.")
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	s.setState(domain.StateSuccess)
	if display == s.display {
		s.view.AppendAssistant(entry.Verdict, entry.Confidence)
	} else {
		s.log.Info("display replaced during classification, result kept in history only", "entry_id", entry.ID)
	}
	s.sidebar.Append(entry)
	s.speaker.Speak(Utterance(entry.Verdict, entry.Confidence))
	s.notifier.Notify(s.resultNotice(entry))
	s.ui.SetBusy(false)
	s.render()

	s.log.Info("entry committed", "entry_id", entry.ID, "verdict", entry.Verdict, "confidence", entry.Confidence)
	return nil
}

// ClearHistory empties the log, the view and the sidebar together. If the
// log cannot be cleared nothing else changes.
func (s *Session) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.history.Clear(ctx); err != nil {
		s.log.Error("failed to clear history", "error", err)
		s.notifyError("No se pudo borrar el historial.")
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	s.view.Rebuild(nil)
	s.sidebar.Clear()
	s.epoch++
	s.display++
	s.log.Info("history cleared")
	s.render()
	return nil
}

// SelectPast displays the recorded exchange for sourceText.
func (s *Session) SelectPast(ctx context.Context, sourceText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.view.SelectPast(ctx, sourceText); err != nil {
		s.log.Error("failed to select past entry", "error", err)
		s.notifyError("No se pudo recuperar la noticia.")
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	s.display++
	s.render()
	return nil
}

// ActivateSidebarItem displays the exchange behind the i-th sidebar item.
func (s *Session) ActivateSidebarItem(ctx context.Context, i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sidebar.Activate(ctx, i); err != nil {
		s.log.Warn("sidebar activation failed", "index", i, "error", err)
		if errors.Is(err, sidebar.ErrNoSuchItem) {
			return err
		}
		s.notifyError("No se pudo recuperar la noticia.")
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	s.display++
	s.render()
	return nil
}

// Dictate captures one transcript and places it in the input buffer.
func (s *Session) Dictate(ctx context.Context) (string, error) {
	if !s.recognizer.Supported() {
		s.notifyError("El reconocimiento de voz no está disponible.")
		return "", ErrUnsupported
	}

	transcript, err := s.recognizer.Listen(ctx)
	if err != nil {
		s.log.Warn("speech capture failed", "error", err)
		s.notifier.Notify(domain.Notice{
			Severity: domain.SeverityWarning,
			Title:    "Micrófono",
			Text:     "No se pudo reconocer la voz.",
		})
		return "", fmt.Errorf("listen: %w", err)
	}

	transcript = strings.TrimSpace(transcript)
	s.mu.Lock()
	s.ui.SetInput(transcript)
	s.mu.Unlock()
	return transcript, nil
}

// Utterance is the sentence spoken after a classification.
func Utterance(verdict string, confidence float64) string {
	return fmt.Sprintf("La noticia es %s, con %s por ciento de confianza", verdict, conversation.FormatConfidence(confidence))
}

func (s *Session) resultNotice(e domain.Entry) domain.Notice {
	n := domain.Notice{
		Severity: domain.SeverityWarning,
		Title:    "🚫 Noticia falsa",
		Text:     fmt.Sprintf("Confianza: %s%%", conversation.FormatConfidence(e.Confidence)),
	}
	if e.Verdict == s.positiveVerdict {
		n.Severity = domain.SeveritySuccess
		n.Title = "✅ Noticia verdadera"
	}
	return n
}

func (s *Session) notifyError(text string) {
	s.notifier.Notify(domain.Notice{Severity: domain.SeverityError, Title: "Error", Text: text})
}

func (s *Session) setState(st domain.SessionState) {
	if s.state == st {
		return
	}
	s.log.Debug("state transition", "from", s.state, "to", st)
	s.state = st
}

func (s *Session) snapshot() domain.Snapshot {
	return domain.Snapshot{
		State:    s.state,
		Messages: s.view.Messages(),
		Sidebar:  s.sidebar.Items(),
		View:     s.display,
	}
}

func (s *Session) render() {
	s.ui.Render(s.snapshot())
}

func validate(res domain.Result) error {
	if strings.TrimSpace(res.Verdict) == "" {
		return errors.New("empty verdict")
	}
	if res.Confidence < 0 || res.Confidence > 100 {
		return fmt.Errorf("confidence %v out of range", res.Confidence)
	}
	return nil
}

type nopSpeaker struct{}

func (nopSpeaker) Speak(string) {}

type nopNotifier struct{}

func (nopNotifier) Notify(domain.Notice) {}

type unsupportedRecognizer struct{}

func (unsupportedRecognizer) Supported() bool { return false }

func (unsupportedRecognizer) Listen(context.Context) (string, error) { return "", ErrUnsupported }

type nopUI struct{}

func (nopUI) SetBusy(bool)           {}
func (nopUI) ClearInput()            {}
func (nopUI) SetInput(string)        {}
func (nopUI) Render(domain.Snapshot) {}
