package backend

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/winprodai/winprod/backend/data"
	log "gopkg.in/inconshreveable/log15.v2"
)

type FeedConfig struct {
	PageSize      int
	MaxItems      int // 0 means no cap
	GateThreshold int
	ViewTTL       time.Duration
	MaxViews      int // 0 means no limit
}

var DefaultFeedConfig = FeedConfig{
	PageSize:      5,
	MaxItems:      22,
	GateThreshold: 20,
	ViewTTL:       30 * time.Minute,
	MaxViews:      1000,
}

// FeedView is the server side state of one visitor browsing the product feed: the loaded feed, the saved
// set and the release countdowns. Its countdown ticker runs until Close.
type FeedView struct {
	ID string

	feed      *Feed
	saved     *SavedItems
	countdown *Countdown
	gate      VisibilityGate
	maxItems  int

	cancel context.CancelFunc
	done   chan struct{}

	logger log.Logger

	mutex      sync.Mutex
	lastAccess time.Time

	savedMutex sync.Mutex
	savedFor   int32 // user whose saved set is loaded, 0 for none
}

type ViewProduct struct {
	Product
	CoverImage      string         `json:"coverImage"`
	Upcoming        bool           `json:"upcoming"`
	ReleasesIn      *TimeRemaining `json:"releasesIn,omitempty"`
	Saved           bool           `json:"saved"`
	PartiallyHidden bool           `json:"partiallyHidden"`
}

type ViewSnapshot struct {
	ID               string            `json:"id"`
	State            LoaderState       `json:"state"`
	Products         []ViewProduct     `json:"products"`
	Loaded           int               `json:"loaded"`
	MoreAvailable    bool              `json:"moreAvailable"`
	Sentinel         *int32            `json:"sentinel,omitempty"`
	Authenticated    bool              `json:"authenticated"`
	SubscriptionTier string            `json:"subscriptionTier,omitempty"`
	ShowOverlay      bool              `json:"showOverlay"`
	NextRelease      *ReleaseCountdown `json:"nextRelease,omitempty"`
}

func newFeedView(id string, source ProductSource, config FeedConfig, logger log.Logger) *FeedView {
	logger = logger.New("view", id)

	v := &FeedView{
		ID:       id,
		feed:     NewFeed(source, config.PageSize, config.MaxItems, logger),
		saved:    NewSavedItems(source, logger),
		gate:     VisibilityGate{Threshold: config.GateThreshold},
		maxItems: config.MaxItems,
		done:     make(chan struct{}),
		logger:   logger,
	}
	v.countdown = NewCountdown(source, v.feed.Products, logger)

	return v
}

// open loads the first page, the saved set and the next release, then starts the countdown ticker.
func (v *FeedView) open(ctx context.Context, user *data.User, now time.Time) {
	v.touch(now)
	v.feed.LoadFirstPage(ctx)
	v.savedMutex.Lock()
	v.ensureSaved(ctx, user)
	v.savedMutex.Unlock()
	v.countdown.RefreshTarget(ctx, now)
	v.countdown.Tick(ctx, now)

	tickerCtx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	go func() {
		defer close(v.done)
		v.countdown.Run(tickerCtx)
	}()
}

// Close stops the countdown ticker and waits for it to exit.
func (v *FeedView) Close() {
	if v.cancel == nil {
		return
	}
	v.cancel()
	<-v.done
}

func (v *FeedView) touch(now time.Time) {
	v.mutex.Lock()
	v.lastAccess = now
	v.mutex.Unlock()
}

func (v *FeedView) idleSince(now time.Time) time.Duration {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return now.Sub(v.lastAccess)
}

// ensureSaved makes sure the saved set belongs to user and reports whether it does. A failed load keeps the
// previous owner so the next call tries again. savedMutex must be held.
func (v *FeedView) ensureSaved(ctx context.Context, user *data.User) bool {
	if user == nil {
		return false
	}

	if v.savedFor == user.ID.Int32 {
		return true
	}

	if err := v.saved.Load(ctx, user.ID.Int32); err != nil {
		return false
	}
	v.savedFor = user.ID.Int32
	return true
}

// SentinelVisible forwards a visibility signal for productID to the loader.
func (v *FeedView) SentinelVisible(ctx context.Context, productID int32) bool {
	return v.feed.OnSentinelVisible(ctx, productID)
}

// ToggleSaved toggles the saved state of productID for user. When user's saved set cannot be loaded the toggle
// is skipped and productID is reported as not saved.
func (v *FeedView) ToggleSaved(ctx context.Context, user *data.User, productID int32) (bool, error) {
	v.savedMutex.Lock()
	defer v.savedMutex.Unlock()

	if user != nil && !v.ensureSaved(ctx, user) {
		v.logger.Warn("Saved set unavailable, toggle skipped", "userID", user.ID.Int32, "productID", productID)
		return false, nil
	}
	return v.saved.Toggle(ctx, user, productID)
}

// Snapshot renders the view as seen by user at now. The saved set is loaded for user first if the view holds
// another user's set.
func (v *FeedView) Snapshot(ctx context.Context, user *data.User, now time.Time) *ViewSnapshot {
	authenticated := user != nil

	var savedIDs map[int32]struct{}
	v.savedMutex.Lock()
	if v.ensureSaved(ctx, user) {
		savedIDs = make(map[int32]struct{})
		for _, id := range v.saved.IDs() {
			savedIDs[id] = struct{}{}
		}
	}
	v.savedMutex.Unlock()

	state := v.feed.State()
	productTimes := v.countdown.ProductTimes()

	s := &ViewSnapshot{
		ID:            v.ID,
		State:         state.LoaderState(),
		Products:      make([]ViewProduct, len(state.Products)),
		Loaded:        state.Loaded,
		MoreAvailable: state.MoreAvailable,
		Authenticated: authenticated,
		ShowOverlay:   v.gate.ShowOverlay(authenticated, state.Loaded),
	}
	if authenticated {
		s.SubscriptionTier = user.SubscriptionTier.String
	}

	if id, ok := v.feed.Sentinel(); ok && s.State != LoaderExhausted {
		s.Sentinel = &id
	}

	if rc, ok := v.countdown.Release(); ok {
		s.NextRelease = &rc
	}

	for i, p := range state.Products {
		_, saved := savedIDs[p.ID]
		vp := ViewProduct{
			Product:         p,
			CoverImage:      p.CoverImage(),
			Upcoming:        p.IsUpcoming(now),
			Saved:           saved,
			PartiallyHidden: v.gate.IsPartiallyHidden(s.ShowOverlay, i, v.maxItems),
		}
		if tr, ok := productTimes[p.ID]; ok && vp.Upcoming {
			tr := tr
			vp.ReleasesIn = &tr
		}
		s.Products[i] = vp
	}

	return s
}

// ViewRegistry owns the open feed views. Views that are not accessed for longer than the configured TTL are
// closed by KeepClean.
type ViewRegistry struct {
	source ProductSource
	config FeedConfig
	logger log.Logger

	mutex sync.Mutex
	views map[string]*FeedView
}

func NewViewRegistry(source ProductSource, config FeedConfig, logger log.Logger) *ViewRegistry {
	return &ViewRegistry{
		source: source,
		config: config,
		logger: logger,
		views:  make(map[string]*FeedView),
	}
}

func genViewID() (string, error) {
	b := make([]byte, 12)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Open creates and registers a new view with its first page loaded. When more than MaxViews views are open
// the least recently accessed one is closed.
func (r *ViewRegistry) Open(ctx context.Context, user *data.User) (*FeedView, error) {
	id, err := genViewID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	v := newFeedView(id, r.source, r.config, r.logger)
	v.open(ctx, user, now)

	var evicted *FeedView
	r.mutex.Lock()
	r.views[id] = v
	if r.config.MaxViews > 0 && len(r.views) > r.config.MaxViews {
		evicted = r.leastRecentlyUsed(now, id)
		delete(r.views, evicted.ID)
	}
	n := len(r.views)
	r.mutex.Unlock()

	if evicted != nil {
		evicted.Close()
		r.logger.Info("Evicted feed view", "id", evicted.ID)
	}

	r.logger.Debug("Opened feed view", "id", id, "open", n)
	return v, nil
}

// leastRecentlyUsed returns the open view other than except that has been idle longest. r.mutex must be held.
func (r *ViewRegistry) leastRecentlyUsed(now time.Time, except string) *FeedView {
	var lru *FeedView
	var lruIdle time.Duration
	for id, v := range r.views {
		if id == except {
			continue
		}
		if idle := v.idleSince(now); lru == nil || idle > lruIdle {
			lru, lruIdle = v, idle
		}
	}
	return lru
}

// Get returns the view with id and marks it as accessed.
func (r *ViewRegistry) Get(id string) (*FeedView, bool) {
	r.mutex.Lock()
	v, ok := r.views[id]
	r.mutex.Unlock()

	if ok {
		v.touch(time.Now())
	}
	return v, ok
}

// Close tears down the view with id. It reports whether the view existed.
func (r *ViewRegistry) Close(id string) bool {
	r.mutex.Lock()
	v, ok := r.views[id]
	delete(r.views, id)
	r.mutex.Unlock()

	if ok {
		v.Close()
	}
	return ok
}

// Reap closes views idle for longer than the TTL and returns how many were closed.
func (r *ViewRegistry) Reap(now time.Time) int {
	var stale []*FeedView

	r.mutex.Lock()
	for id, v := range r.views {
		if v.idleSince(now) > r.config.ViewTTL {
			stale = append(stale, v)
			delete(r.views, id)
		}
	}
	r.mutex.Unlock()

	for _, v := range stale {
		v.Close()
	}
	return len(stale)
}

// KeepClean reaps idle views every minute until ctx is canceled, then closes all remaining views.
func (r *ViewRegistry) KeepClean(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return
		case t := <-ticker.C:
			if n := r.Reap(t); n > 0 {
				r.logger.Info("Reaped idle feed views", "n", n)
			}
		}
	}
}

func (r *ViewRegistry) CloseAll() {
	r.mutex.Lock()
	views := r.views
	r.views = make(map[string]*FeedView)
	r.mutex.Unlock()

	for _, v := range views {
		v.Close()
	}
}

func (r *ViewRegistry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.views)
}
