// Package history keeps the durable, append-only log of classification
// exchanges. The whole log is stored as one JSON array under a single key.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pbaille/newschat/internal/domain"
	"github.com/pbaille/newschat/internal/store"
)

const (
	DefaultKey = "historial"

	// DefaultTimeLayout matches the es-ES locale date format.
	DefaultTimeLayout = "2/1/2006, 15:04:05"

	corruptSuffix = ".corrupt"
)

// ErrInvalidEntry is returned by Append for entries that can never be committed.
var ErrInvalidEntry = errors.New("invalid entry")

// legacyResult matches verdicts saved as a formatted chat line.
var legacyResult = regexp.MustCompile(`^Resultado:\s*(.+?)\s*\((\d+(?:[.,]\d+)?)%\s*confianza\)\s*$`)

// Store is the durable history log.
type Store struct {
	kv     store.KV
	key    string
	layout string
	now    func() time.Time
	newID  func() string
	log    *slog.Logger

	// mu makes the read-modify-write in Append atomic for callers.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithKey sets the storage key the log lives under.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithTimeLayout sets the layout used for entry timestamps.
func WithTimeLayout(layout string) Option {
	return func(s *Store) { s.layout = layout }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over kv.
func New(kv store.KV, log *slog.Logger, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		key:    DefaultKey,
		layout: DefaultTimeLayout,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		log:    log.With("component", "history"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the storage key of the log.
func (s *Store) Key() string {
	return s.key
}

// CorruptKey returns the key a corrupt log is preserved under.
func (s *Store) CorruptKey() string {
	return s.key + corruptSuffix
}

// Append stamps e with an ID and timestamp and commits it at the end of the log.
// Nothing is written when an error is returned.
func (s *Store) Append(ctx context.Context, e domain.Entry) (domain.Entry, error) {
	e.Text = strings.TrimSpace(e.Text)
	if e.Text == "" {
		return domain.Entry{}, fmt.Errorf("%w: empty text", ErrInvalidEntry)
	}
	if e.Confidence < 0 || e.Confidence > 100 {
		return domain.Entry{}, fmt.Errorf("%w: confidence %v out of range", ErrInvalidEntry, e.Confidence)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, raw, corrupt, err := s.load(ctx)
	if err != nil {
		return domain.Entry{}, err
	}

	if corrupt {
		if err := s.kv.Set(ctx, s.CorruptKey(), raw); err != nil {
			return domain.Entry{}, fmt.Errorf("preserve corrupt history: %w", err)
		}
		s.log.Warn("corrupt history preserved before overwrite", "backup_key", s.CorruptKey())
		entries = nil
	}

	if e.ID == "" {
		e.ID = s.newID()
	}
	e.Timestamp = s.now().Format(s.layout)

	data, err := json.Marshal(append(entries, e))
	if err != nil {
		return domain.Entry{}, fmt.Errorf("encode history: %w", err)
	}

	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		return domain.Entry{}, fmt.Errorf("write history: %w", err)
	}

	s.log.Debug("entry appended", "entry_id", e.ID, "count", len(entries)+1)
	return e, nil
}

// LoadAll returns every entry in insertion order. A missing or corrupt log
// yields an empty slice; only storage failures are returned as errors.
func (s *Store) LoadAll(ctx context.Context) ([]domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, _, corrupt, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if corrupt {
		s.log.Warn("stored history is not valid, treating as empty", "key", s.key)
	}
	if entries == nil {
		entries = []domain.Entry{}
	}
	return entries, nil
}

// FindFirst returns the earliest entry whose text equals text exactly.
func (s *Store) FindFirst(ctx context.Context, text string) (domain.Entry, bool, error) {
	entries, err := s.LoadAll(ctx)
	if err != nil {
		return domain.Entry{}, false, err
	}
	for _, e := range entries {
		if e.Text == text {
			return e, true, nil
		}
	}
	return domain.Entry{}, false, nil
}

// Clear removes the whole log. A preserved corrupt value is kept.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context) (entries []domain.Entry, raw string, corrupt bool, err error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, "", false, fmt.Errorf("read history: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, raw, false, nil
	}

	entries, err = decode(raw)
	if err != nil {
		return nil, raw, true, nil
	}
	return entries, raw, false, nil
}

type storedEntry struct {
	ID         string   `json:"id"`
	Text       string   `json:"texto"`
	Verdict    string   `json:"resultado"`
	Confidence *float64 `json:"confianza"`
	Timestamp  string   `json:"fecha"`
}

func decode(raw string) ([]domain.Entry, error) {
	var stored []storedEntry
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, err
	}

	entries := make([]domain.Entry, 0, len(stored))
	for _, se := range stored {
		e := domain.Entry{
			ID:        se.ID,
			Text:      se.Text,
			Verdict:   se.Verdict,
			Timestamp: se.Timestamp,
		}
		if se.Confidence != nil {
			e.Confidence = *se.Confidence
		} else {
			e.Verdict, e.Confidence = parseLegacy(se.Verdict)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// parseLegacy recovers verdict and confidence from "Resultado: X (N% confianza)".
func parseLegacy(result string) (string, float64) {
	m := legacyResult.FindStringSubmatch(result)
	if m == nil {
		return result, 0
	}
	conf, err := strconv.ParseFloat(strings.Replace(m[2], ",", ".", 1), 64)
	if err != nil {
		return result, 0
	}
	return m[1], conf
}
