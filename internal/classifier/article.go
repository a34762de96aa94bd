package classifier

import (
	"context"
	"fmt"

	"github.com/pbaille/newschat/internal/domain"
	"github.com/pbaille/newschat/internal/fetcher"
)

// ArticleFetcher downloads the text behind a link.
type ArticleFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// WithArticles classifies the article behind a link instead of the link
// itself. Plain text is passed through unchanged.
type WithArticles struct {
	next    domain.Classifier
	fetcher ArticleFetcher
}

func NewWithArticles(next domain.Classifier, f ArticleFetcher) *WithArticles {
	return &WithArticles{next: next, fetcher: f}
}

func (c *WithArticles) Classify(ctx context.Context, text string) (domain.Result, error) {
	if !fetcher.IsURL(text) {
		return c.next.Classify(ctx, text)
	}

	article, err := c.fetcher.Fetch(ctx, text)
	if err != nil {
		return domain.Result{}, fmt.Errorf("fetch article: %w", err)
	}
	return c.next.Classify(ctx, article)
}
