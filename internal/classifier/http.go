package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pbaille/newschat/internal/domain"
)

// maxResponseBytes bounds how much of a classifier response is read.
const maxResponseBytes = 1 << 20

// HTTP calls a remote classifier that takes {"texto"} and answers
// {"resultado", "confianza"}.
type HTTP struct {
	endpoint string
	client   *http.Client
}

// NewHTTP creates a classifier client for endpoint
func NewHTTP(endpoint string, timeout time.Duration) (*HTTP, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid classifier URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported classifier URL scheme: %q", u.Scheme)
	}

	return &HTTP{
		endpoint: u.String(),
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type predictRequest struct {
	Text string `json:"texto"`
}

type predictResponse struct {
	Verdict    string   `json:"resultado"`
	Confidence *float64 `json:"confianza"`
	Error      string   `json:"error,omitempty"`
}

// Classify sends text to the remote classifier
func (c *HTTP) Classify(ctx context.Context, text string) (domain.Result, error) {
	jsonBody, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return domain.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return domain.Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Result{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Result{}, fmt.Errorf("classifier error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return parseResponse(body)
}

func parseResponse(body []byte) (domain.Result, error) {
	var pr predictResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return domain.Result{}, fmt.Errorf("parse json: %w (response: %s)", err, body)
	}

	if pr.Error != "" {
		return domain.Result{}, fmt.Errorf("classifier error: %s", pr.Error)
	}
	if strings.TrimSpace(pr.Verdict) == "" {
		return domain.Result{}, errors.New("response has no resultado")
	}
	if pr.Confidence == nil {
		return domain.Result{}, errors.New("response has no confianza")
	}
	if *pr.Confidence < 0 || *pr.Confidence > 100 {
		return domain.Result{}, fmt.Errorf("confianza %v outside 0-100", *pr.Confidence)
	}

	return domain.Result{Verdict: pr.Verdict, Confidence: *pr.Confidence}, nil
}
