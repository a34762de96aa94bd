// Package classifier holds the clients that turn a news text into a verdict.
package classifier

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/pbaille/newschat/internal/domain"
)

// Mock is an offline classifier for local runs. The same text always gets
// the same verdict.
type Mock struct {
	Positive string
	Negative string
}

func NewMock() *Mock {
	return &Mock{Positive: "Verdadera", Negative: "Falsa"}
}

func (m *Mock) Classify(ctx context.Context, text string) (domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}

	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(text))))
	sum := h.Sum32()

	verdict := m.Positive
	if sum%2 == 1 {
		verdict = m.Negative
	}
	// 50.0 - 99.9, one decimal
	confidence := 50 + float64(sum%500)/10

	return domain.Result{Verdict: verdict, Confidence: confidence}, nil
}
