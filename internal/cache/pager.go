package cache

// Pager accumulates the pages of a paginated list into a de-duplicated
// union keyed by identity. It lives in memory only.
type Pager[E any] struct {
	id       func(E) string
	items    []E
	index    map[string]int
	lastPage int
	total    int
}

// NewPager creates an empty Pager.
func NewPager[E any](id func(E) string) *Pager[E] {
	return &Pager[E]{id: id, index: make(map[string]int)}
}

// Merge folds one fetched page into the union. An element already present
// is replaced in place; new elements are appended in page order. totalPages
// is the server-reported page count, or 0 if unknown.
func (p *Pager[E]) Merge(page, totalPages int, items []E) {
	for _, it := range items {
		k := p.id(it)
		if i, ok := p.index[k]; ok {
			p.items[i] = it
			continue
		}
		p.index[k] = len(p.items)
		p.items = append(p.items, it)
	}
	if page > p.lastPage {
		p.lastPage = page
	}
	if totalPages > 0 {
		p.total = totalPages
	}
}

// Items returns the merged elements.
func (p *Pager[E]) Items() []E {
	out := make([]E, len(p.items))
	copy(out, p.items)
	return out
}

// LastPage is the highest page merged so far (0 before the first page).
func (p *Pager[E]) LastPage() int { return p.lastPage }

// NextPage is the page a "load more" request should fetch.
func (p *Pager[E]) NextPage() int { return p.lastPage + 1 }

// HasMore reports whether the server said more pages exist. Without a
// server-reported count it assumes there are.
func (p *Pager[E]) HasMore() bool {
	return p.total == 0 || p.lastPage < p.total
}

// Reset forgets every page, as on pull-to-refresh.
func (p *Pager[E]) Reset() {
	p.items = nil
	p.index = make(map[string]int)
	p.lastPage = 0
	p.total = 0
}
