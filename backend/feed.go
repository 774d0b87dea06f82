package backend

import (
	"context"
	"fmt"
	"sync"

	log "gopkg.in/inconshreveable/log15.v2"
)

type LoaderState int

const (
	LoaderIdle LoaderState = iota
	LoaderLoading
	LoaderExhausted
)

func (s LoaderState) String() string {
	switch s {
	case LoaderIdle:
		return "idle"
	case LoaderLoading:
		return "loading"
	case LoaderExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

func (s LoaderState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LoaderState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = LoaderIdle
	case "loading":
		*s = LoaderLoading
	case "exhausted":
		*s = LoaderExhausted
	default:
		return fmt.Errorf("unknown loader state: %q", text)
	}
	return nil
}

// FeedState is the accumulated product feed of a single view.
type FeedState struct {
	Products      []Product
	Cursor        int // index of the last loaded page
	Loaded        int
	MoreAvailable bool
	Loading       bool
}

// LoaderState derives the incremental loader state from s.
func (s *FeedState) LoaderState() LoaderState {
	switch {
	case s.Loading:
		return LoaderLoading
	case s.MoreAvailable:
		return LoaderIdle
	default:
		return LoaderExhausted
	}
}

// Feed loads products page by page from a ProductSource. At most one page fetch is in flight at a time;
// requests made while one is in flight are dropped.
type Feed struct {
	source   ProductSource
	pageSize int
	maxItems int
	logger   log.Logger

	mutex      sync.Mutex
	state      FeedState
	started    bool
	generation int
}

// NewFeed creates a Feed. maxItems of 0 disables the cap on loaded items.
func NewFeed(source ProductSource, pageSize, maxItems int, logger log.Logger) *Feed {
	return &Feed{
		source:   source,
		pageSize: pageSize,
		maxItems: maxItems,
		logger:   logger,
		state:    FeedState{MoreAvailable: true},
	}
}

// windowLimit is the number of items to request when loaded items are already present.
func (f *Feed) windowLimit(loaded int) int {
	if f.maxItems == 0 {
		return f.pageSize
	}
	remaining := f.maxItems - loaded
	if remaining < f.pageSize {
		return remaining
	}
	return f.pageSize
}

func (f *Feed) belowCap(loaded int) bool {
	return f.maxItems == 0 || loaded < f.maxItems
}

// LoadFirstPage replaces the state with the first page. On failure the previous state is kept.
func (f *Feed) LoadFirstPage(ctx context.Context) {
	f.mutex.Lock()
	if f.state.Loading {
		f.mutex.Unlock()
		return
	}
	f.state.Loading = true
	limit := f.windowLimit(0)
	generation := f.generation
	f.mutex.Unlock()

	products, err := f.source.ListProducts(ctx, 0, limit)

	f.mutex.Lock()
	defer f.mutex.Unlock()
	if generation != f.generation {
		return
	}
	f.state.Loading = false

	if err != nil {
		f.logger.Error("Error fetching products", "offset", 0, "limit", limit, "error", err)
		return
	}

	f.state = FeedState{
		Products:      products,
		Cursor:        0,
		Loaded:        len(products),
		MoreAvailable: len(products) == limit && f.belowCap(len(products)),
	}
	f.started = true
}

// LoadNextPage appends the next page. It does nothing while a load is in flight, before the first page
// has been loaded or after the feed is exhausted.
func (f *Feed) LoadNextPage(ctx context.Context) {
	f.mutex.Lock()
	if f.state.Loading || !f.state.MoreAvailable || !f.started {
		f.mutex.Unlock()
		return
	}
	f.state.Loading = true
	offset := (f.state.Cursor + 1) * f.pageSize
	limit := f.windowLimit(f.state.Loaded)
	generation := f.generation
	f.mutex.Unlock()

	products, err := f.source.ListProducts(ctx, offset, limit)

	f.mutex.Lock()
	defer f.mutex.Unlock()
	if generation != f.generation {
		return
	}
	f.state.Loading = false

	if err != nil {
		f.logger.Error("Error loading more products", "offset", offset, "limit", limit, "error", err)
		return
	}

	if len(products) == 0 {
		f.state.MoreAvailable = false
		return
	}

	f.state.Products = append(f.state.Products, products...)
	f.state.Cursor++
	f.state.Loaded += len(products)
	f.state.MoreAvailable = len(products) == limit && f.belowCap(f.state.Loaded)
}

// Sentinel returns the ID of the last loaded product. Visibility signals are only honoured for this ID.
func (f *Feed) Sentinel() (int32, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.sentinel()
}

func (f *Feed) sentinel() (int32, bool) {
	if len(f.state.Products) == 0 {
		return 0, false
	}
	return f.state.Products[len(f.state.Products)-1].ID, true
}

// OnSentinelVisible is called when the product with productID scrolls into view. It loads the next page
// when productID is the current sentinel. Signals for any other product come from a stale observer and are
// ignored. It reports whether a load was attempted.
func (f *Feed) OnSentinelVisible(ctx context.Context, productID int32) bool {
	f.mutex.Lock()
	id, ok := f.sentinel()
	armed := ok && id == productID && f.state.MoreAvailable && !f.state.Loading
	f.mutex.Unlock()

	if !armed {
		return false
	}

	f.LoadNextPage(ctx)
	return true
}

// Products returns the loaded products. The returned slice must not be modified.
func (f *Feed) Products() []Product {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.state.Products
}

// State returns a copy of the feed state.
func (f *Feed) State() FeedState {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	state := f.state
	state.Products = make([]Product, len(f.state.Products))
	copy(state.Products, f.state.Products)
	return state
}

// Reset discards all loaded products. Fetches in flight when Reset is called are discarded on completion.
func (f *Feed) Reset() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.generation++
	f.state = FeedState{MoreAvailable: true}
	f.started = false
}
