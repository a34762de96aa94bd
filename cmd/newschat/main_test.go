package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/newschat/internal/config"
	"github.com/pbaille/newschat/internal/domain"
	"github.com/pbaille/newschat/internal/logging"
	"github.com/pbaille/newschat/internal/session"
	"github.com/pbaille/newschat/internal/term"
)

func testConfig(t *testing.T) {
	t.Helper()
	cfg = &config.Config{
		Storage:    config.StorageConfig{HistoryKey: "historial", TimeLayout: "2/1/2006, 15:04:05"},
		Classifier: config.ClassifierConfig{Timeout: time.Second, PositiveVerdict: "Verdadera"},
		Display:    config.DisplayConfig{TitleLength: 25, BarWidth: 10},
		Server:     config.ServerConfig{Addr: ":0"},
	}
	log = logging.Discard()
}

func TestRunChat(t *testing.T) {
	testConfig(t)

	var out bytes.Buffer
	tm := term.New(&out, 10)
	a, err := openApp(session.Deps{Notifier: tm, UI: tm})
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.session.Load(ctx))

	input := strings.Join([]string{
		"Noticia uno",
		"/historial",
		"/abrir 1",
		"/borrar",
		"/salir",
		"never read",
	}, "\n")
	require.NoError(t, runChat(ctx, a.session, tm, strings.NewReader(input)))

	s := out.String()
	assert.Contains(t, s, "> Noticia uno")
	assert.Contains(t, s, "Resultado: ")
	assert.Contains(t, s, "  1  Noticia uno")
	assert.NotContains(t, s, "never read")

	snap := a.session.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.Sidebar)
}

func TestRunChat_EmptyLineSendsDictation(t *testing.T) {
	testConfig(t)

	var out bytes.Buffer
	tm := term.New(&out, 10)
	a, err := openApp(session.Deps{Notifier: tm, UI: tm})
	require.NoError(t, err)
	defer a.Close()

	tm.SetInput("Texto dictado")
	require.NoError(t, runChat(context.Background(), a.session, tm, strings.NewReader("\n")))

	msgs := a.session.Snapshot().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "Texto dictado", msgs[0].Text)
}

func TestOpenItem_BadIndex(t *testing.T) {
	testConfig(t)
	a, err := openApp(session.Deps{})
	require.NoError(t, err)
	defer a.Close()

	assert.ErrorIs(t, openItem(context.Background(), a.session, "x"), errBadIndex)
	assert.Error(t, openItem(context.Background(), a.session, "3"))
}

func TestNewClassifier_MockUsesConfiguredVerdict(t *testing.T) {
	testConfig(t)
	cfg.Classifier.PositiveVerdict = "Real"

	c, err := newClassifier()
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, text := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		res, err := c.Classify(context.Background(), text)
		require.NoError(t, err)
		seen[res.Verdict] = true
	}
	assert.NotContains(t, seen, "Verdadera")
}

func TestNewClassifier_RejectsBadURL(t *testing.T) {
	testConfig(t)
	cfg.Classifier.URL = "not a url"

	_, err := newClassifier()
	assert.Error(t, err)
}

type countingSpeaker struct{ n int }

func (c *countingSpeaker) Speak(string) { c.n++ }

func TestSpeakers(t *testing.T) {
	a, b := &countingSpeaker{}, &countingSpeaker{}
	var s domain.Speaker = speakers{a, b}
	s.Speak("hola")
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
}

func TestOpenApp_SQLiteExposesHealthCheck(t *testing.T) {
	testConfig(t)
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "newschat.db")

	a, err := openApp(session.Deps{})
	require.NoError(t, err)
	require.NotNil(t, a.ping)
	assert.NoError(t, a.ping(context.Background()))

	require.NoError(t, a.Close())
	assert.Error(t, a.ping(context.Background()))
}

func TestOpenApp_MemoryHasNoHealthCheck(t *testing.T) {
	testConfig(t)
	a, err := openApp(session.Deps{})
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.ping)
}

type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) {
	for i := range p {
		if i%2 == 0 {
			p[i] = 'x'
		} else {
			p[i] = '\n'
		}
	}
	return len(p) - len(p)%2, nil
}

func TestReadLines_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lines := readLines(ctx, endlessReader{})

	assert.Equal(t, "x", <-lines)
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("line reader kept running after cancellation")
		}
	}
}

func TestRunChat_SelectingDisplayedEntryReprints(t *testing.T) {
	testConfig(t)

	var out bytes.Buffer
	tm := term.New(&out, 10)
	a, err := openApp(session.Deps{Notifier: tm, UI: tm})
	require.NoError(t, err)
	defer a.Close()

	input := "Noticia uno\n/buscar Noticia uno\n/buscar Noticia uno\n"
	require.NoError(t, runChat(context.Background(), a.session, tm, strings.NewReader(input)))

	assert.Equal(t, 3, strings.Count(out.String(), "> Noticia uno"))
}
