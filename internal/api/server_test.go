package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/newschat/internal/domain"
	"github.com/pbaille/newschat/internal/history"
	"github.com/pbaille/newschat/internal/session"
	"github.com/pbaille/newschat/internal/sidebar"
	"github.com/pbaille/newschat/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type classifierFunc func(ctx context.Context, text string) (domain.Result, error)

func (f classifierFunc) Classify(ctx context.Context, text string) (domain.Result, error) {
	return f(ctx, text)
}

func fixedClassifier(verdict string, confidence float64) classifierFunc {
	return func(context.Context, string) (domain.Result, error) {
		return domain.Result{Verdict: verdict, Confidence: confidence}, nil
	}
}

type fixture struct {
	session *session.Session
	hub     *Hub
	server  *Server
	handler http.Handler
}

func newFixture(t *testing.T, c domain.Classifier) *fixture {
	t.Helper()
	log := discardLogger()
	clock := func() time.Time { return time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC) }

	h := history.New(store.NewMemory(), log, history.WithClock(clock))
	hub := NewHub([]string{"*"}, log)
	sess := session.New(h, session.Deps{
		Classifier: c,
		Speaker:    hub,
		Notifier:   hub,
		UI:         hub,
	}, session.Options{TitleLength: 10}, log)
	require.NoError(t, sess.Load(context.Background()))

	srv := New(sess, hub, []string{"http://localhost:3000"}, log)
	return &fixture{session: sess, hub: hub, server: srv, handler: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, fixedClassifier("Verdadera", 90))
	w := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth_ReportsBackendFailure(t *testing.T) {
	f := newFixture(t, fixedClassifier("Verdadera", 90))
	f.server.SetHealthCheck(func(context.Context) error { return errors.New("database is locked") })
	f.handler = f.server.Handler()

	w := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", decode[map[string]string](t, w)["status"])

	f.server.SetHealthCheck(func(context.Context) error { return nil })
	w = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClassify_CommitsAndRenders(t *testing.T) {
	f := newFixture(t, fixedClassifier("Verdadera", 92))

	w := f.do(t, http.MethodPost, "/api/classify", `{"texto":"  El cielo es azul  "}`)
	require.Equal(t, http.StatusOK, w.Code)

	snap := decode[domain.Snapshot](t, w)
	assert.Equal(t, domain.StateIdle, snap.State)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "El cielo es azul", snap.Messages[0].Text)
	assert.Equal(t, "Resultado: Verdadera (92% confianza)", snap.Messages[1].Text)

	w = f.do(t, http.MethodGet, "/api/sidebar", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Items []domain.SidebarItem `json:"items"`
	}](t, w)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "El cielo e...", body.Items[0].Title)
	assert.Equal(t, "19/10/2026, 09:30:00", body.Items[0].Timestamp)
}

func TestClassify_EmptyInput(t *testing.T) {
	calls := 0
	f := newFixture(t, classifierFunc(func(context.Context, string) (domain.Result, error) {
		calls++
		return domain.Result{Verdict: "Falsa", Confidence: 60}, nil
	}))

	w := f.do(t, http.MethodPost, "/api/classify", `{"texto":"   "}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, calls)
	assert.Empty(t, f.session.Snapshot().Messages)
}

func TestClassify_BadBody(t *testing.T) {
	f := newFixture(t, fixedClassifier("Verdadera", 90))
	w := f.do(t, http.MethodPost, "/api/classify", `{texto`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassify_RemoteFailure(t *testing.T) {
	f := newFixture(t, classifierFunc(func(context.Context, string) (domain.Result, error) {
		return domain.Result{}, errors.New("connection refused")
	}))

	w := f.do(t, http.MethodPost, "/api/classify", `{"texto":"Algo pasó"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = f.do(t, http.MethodGet, "/api/conversation", "")
	body := decode[struct {
		State    domain.SessionState `json:"state"`
		Messages []domain.Message    `json:"messages"`
	}](t, w)
	assert.Equal(t, domain.StateIdle, body.State)
	require.Len(t, body.Messages, 1, "the optimistic user message stays")
	assert.Empty(t, f.session.Snapshot().Sidebar)
}

func TestSelectSidebarItem(t *testing.T) {
	f := newFixture(t, fixedClassifier("Falsa", 71))
	f.do(t, http.MethodPost, "/api/classify", `{"texto":"Noticia uno"}`)
	f.do(t, http.MethodPost, "/api/classify", `{"texto":"Noticia dos"}`)

	w := f.do(t, http.MethodPost, "/api/sidebar/0/select", "")
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[domain.Snapshot](t, w)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Noticia uno", snap.Messages[0].Text)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/sidebar/7/select", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/sidebar/abc/select", "").Code)
}

func TestSelectPast_NoMatchShowsPlaceholder(t *testing.T) {
	f := newFixture(t, fixedClassifier("Falsa", 71))

	w := f.do(t, http.MethodPost, "/api/select", `{"texto":"nunca vista"}`)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[domain.Snapshot](t, w)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Sin resultado", snap.Messages[1].Text)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/select", `{"texto":""}`).Code)
}

func TestClearHistory(t *testing.T) {
	f := newFixture(t, fixedClassifier("Verdadera", 80))
	f.do(t, http.MethodPost, "/api/classify", `{"texto":"Noticia"}`)

	w := f.do(t, http.MethodDelete, "/api/history", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	snap := f.session.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.Sidebar)
}

func TestDictate_Unsupported(t *testing.T) {
	f := newFixture(t, fixedClassifier("Verdadera", 80))
	w := f.do(t, http.MethodPost, "/api/dictate", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, fixedClassifier("Verdadera", 80))

	req := httptest.NewRequest(http.MethodOptions, "/api/classify", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/sidebar", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrBusy, http.StatusConflict},
		{session.ErrStale, http.StatusConflict},
		{fmt.Errorf("%w: timeout", session.ErrRemoteCall), http.StatusBadGateway},
		{fmt.Errorf("%w: disk full", session.ErrPersist), http.StatusInternalServerError},
		{sidebar.ErrNoSuchItem, http.StatusNotFound},
		{session.ErrUnsupported, http.StatusNotImplemented},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"*"}, OriginPatterns([]string{"http://a.test", "*"}))
	assert.Equal(t, []string{"localhost:3000", "news.example"},
		OriginPatterns([]string{"http://localhost:3000", "https://news.example"}))
}

func TestEvents_StreamSessionUpdates(t *testing.T) {
	f := newFixture(t, fixedClassifier("Verdadera", 92))
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// A new client first receives the last render.
	first := readEvent(ctx, t, conn)
	assert.Equal(t, EventRender, first.Type)

	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, f.session.Submit(ctx, "El cielo es azul"))

	seen := map[string]json.RawMessage{}
	for len(seen) < 5 {
		ev := readEvent(ctx, t, conn)
		seen[ev.Type] = ev.Data
	}

	assert.Contains(t, seen, EventBusy)
	assert.Contains(t, seen, EventRender)
	assert.Contains(t, seen, EventNotice)
	assert.JSONEq(t, `""`, string(seen[EventInput]))
	assert.JSONEq(t, `"La noticia es Verdadera, con 92 por ciento de confianza"`, string(seen[EventSpeak]))
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub([]string{"*"}, discardLogger())
	ts := httptest.NewServer(hub)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	hub.Close()
	assert.Zero(t, hub.Clients())

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

type rawEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readEvent(ctx context.Context, t *testing.T, conn *websocket.Conn) rawEvent {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev rawEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}
