// Package sidebar indexes past entries by a short title so they can be
// re-selected.
package sidebar

import (
	"context"
	"errors"
	"fmt"

	"github.com/pbaille/newschat/internal/domain"
)

// DefaultTitleLength is the number of runes of the text kept as a title.
const DefaultTitleLength = 25

// ErrNoSuchItem is returned when activating an index outside the list.
var ErrNoSuchItem = errors.New("no such sidebar item")

// Selector displays a past exchange given its full source text.
type Selector interface {
	SelectPast(ctx context.Context, sourceText string) error
}

// Index is the ordered list of sidebar items.
type Index struct {
	selector    Selector
	titleLength int
	items       []domain.SidebarItem
}

// New creates an empty Index. titleLength <= 0 uses DefaultTitleLength.
func New(selector Selector, titleLength int) *Index {
	if titleLength <= 0 {
		titleLength = DefaultTitleLength
	}
	return &Index{selector: selector, titleLength: titleLength}
}

// Items returns a copy of the items in insertion order.
func (x *Index) Items() []domain.SidebarItem {
	out := make([]domain.SidebarItem, len(x.items))
	copy(out, x.items)
	return out
}

// Len returns the number of items.
func (x *Index) Len() int {
	return len(x.items)
}

// Rebuild replaces the items with one per entry.
func (x *Index) Rebuild(entries []domain.Entry) {
	items := make([]domain.SidebarItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, x.item(e))
	}
	x.items = items
}

// Append adds one item at the end.
func (x *Index) Append(e domain.Entry) {
	x.items = append(x.items, x.item(e))
}

// Clear removes every item.
func (x *Index) Clear() {
	x.items = nil
}

// Activate selects the i-th item, looking it up by its full source text.
func (x *Index) Activate(ctx context.Context, i int) error {
	if i < 0 || i >= len(x.items) {
		return fmt.Errorf("%w: %d", ErrNoSuchItem, i)
	}
	return x.selector.SelectPast(ctx, x.items[i].SourceText)
}

func (x *Index) item(e domain.Entry) domain.SidebarItem {
	return domain.SidebarItem{
		EntryID:    e.ID,
		Title:      Truncate(e.Text, x.titleLength),
		Timestamp:  e.Timestamp,
		SourceText: e.Text,
	}
}

// Truncate keeps the first n runes of s, marking a cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
