package main

import (
	"context"

	"github.com/pbaille/newschat/internal/classifier"
	"github.com/pbaille/newschat/internal/domain"
	"github.com/pbaille/newschat/internal/fetcher"
	"github.com/pbaille/newschat/internal/history"
	"github.com/pbaille/newschat/internal/session"
	"github.com/pbaille/newschat/internal/store"
)

// app bundles what every command needs.
type app struct {
	session *session.Session
	close   func() error
	// ping is nil for the in-memory store.
	ping func(context.Context) error
}

func (a *app) Close() error {
	return a.close()
}

// openApp opens the history store and builds a session around deps. The
// classifier is always taken from the configuration.
func openApp(deps session.Deps) (*app, error) {
	kv, closeKV, ping, err := openKV()
	if err != nil {
		return nil, err
	}

	c, err := newClassifier()
	if err != nil {
		closeKV()
		return nil, err
	}
	deps.Classifier = c

	h := history.New(kv, log,
		history.WithKey(cfg.Storage.HistoryKey),
		history.WithTimeLayout(cfg.Storage.TimeLayout),
	)
	sess := session.New(h, deps, session.Options{
		TitleLength:     cfg.Display.TitleLength,
		PositiveVerdict: cfg.Classifier.PositiveVerdict,
	}, log)

	return &app{session: sess, close: closeKV, ping: ping}, nil
}

func openKV() (store.KV, func() error, func(context.Context) error, error) {
	if cfg.Storage.DBPath == "" {
		log.Warn("history is kept in memory and lost on exit")
		return store.NewMemory(), func() error { return nil }, nil, nil
	}

	s, err := store.New(cfg.Storage.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Debug("history store opened", "path", cfg.Storage.DBPath)
	return s, s.Close, s.Ping, nil
}

func newClassifier() (domain.Classifier, error) {
	var c domain.Classifier
	if cfg.UseMockClassifier() {
		log.Warn("no classifier URL configured, using the offline mock")
		m := classifier.NewMock()
		m.Positive = cfg.Classifier.PositiveVerdict
		c = m
	} else {
		h, err := classifier.NewHTTP(cfg.Classifier.URL, cfg.Classifier.Timeout)
		if err != nil {
			return nil, err
		}
		c = h
	}

	if cfg.Classifier.FetchArticles {
		c = classifier.NewWithArticles(c, fetcher.New(cfg.Classifier.Timeout, cfg.Classifier.ArticleMaxRunes))
	}
	return c, nil
}

// speakers fans one utterance out to several speakers.
type speakers []domain.Speaker

func (s speakers) Speak(utterance string) {
	for _, sp := range s {
		sp.Speak(utterance)
	}
}
