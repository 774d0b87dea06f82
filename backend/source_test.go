package backend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/winprodai/winprod/backend/data"
	log "gopkg.in/inconshreveable/log15.v2"
)

func testLogger() log.Logger {
	logger := log.New()
	logger.SetHandler(log.DiscardHandler())
	return logger
}

func testUser(id int32) *data.User {
	return &data.User{
		ID:               pgtype.Int4{Int32: id, Valid: true},
		Name:             pgtype.Text{String: "jane", Valid: true},
		SubscriptionTier: pgtype.Text{String: "pro", Valid: true},
	}
}

type listCall struct {
	offset int
	limit  int
}

// testSource wraps a MemoryProductSource with call recording and failure injection.
type testSource struct {
	*MemoryProductSource

	mutex     sync.Mutex
	listCalls []listCall
	listErr   error
	nextCalls int
	nextErr   error
	saveCalls int
	saveErr   error
	savedErr  error

	// When listGate is set ListProducts signals on listing and then blocks until listGate is closed.
	listGate chan struct{}
	listing  chan struct{}
}

func newTestSource() *testSource {
	return &testSource{MemoryProductSource: NewMemoryProductSource()}
}

// seed adds n products created one minute apart and returns their IDs in feed order.
func (s *testSource) seed(n int) []int32 {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]int32, n)
	for i := 0; i < n; i++ {
		ids[n-1-i] = s.AddProduct(Product{
			Name:         "Product",
			Images:       []string{"https://example.com/p.png"},
			CreationTime: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return ids
}

func (s *testSource) gateList() {
	s.mutex.Lock()
	s.listGate = make(chan struct{})
	s.listing = make(chan struct{}, 1)
	s.mutex.Unlock()
}

func (s *testSource) ListProducts(ctx context.Context, offset, limit int) ([]Product, error) {
	s.mutex.Lock()
	s.listCalls = append(s.listCalls, listCall{offset: offset, limit: limit})
	err := s.listErr
	gate, listing := s.listGate, s.listing
	s.mutex.Unlock()

	if gate != nil {
		listing <- struct{}{}
		<-gate
	}

	if err != nil {
		return nil, err
	}
	return s.MemoryProductSource.ListProducts(ctx, offset, limit)
}

func (s *testSource) ListCalls() []listCall {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]listCall(nil), s.listCalls...)
}

func (s *testSource) setListErr(err error) {
	s.mutex.Lock()
	s.listErr = err
	s.mutex.Unlock()
}

func (s *testSource) NextReleaseTime(ctx context.Context, after time.Time) (time.Time, bool, error) {
	s.mutex.Lock()
	s.nextCalls++
	err := s.nextErr
	s.mutex.Unlock()

	if err != nil {
		return time.Time{}, false, err
	}
	return s.MemoryProductSource.NextReleaseTime(ctx, after)
}

func (s *testSource) NextCalls() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.nextCalls
}

func (s *testSource) setNextErr(err error) {
	s.mutex.Lock()
	s.nextErr = err
	s.mutex.Unlock()
}

func (s *testSource) SavedProductIDs(ctx context.Context, userID int32) ([]int32, error) {
	s.mutex.Lock()
	err := s.savedErr
	s.mutex.Unlock()

	if err != nil {
		return nil, err
	}
	return s.MemoryProductSource.SavedProductIDs(ctx, userID)
}

func (s *testSource) setSavedErr(err error) {
	s.mutex.Lock()
	s.savedErr = err
	s.mutex.Unlock()
}

func (s *testSource) InsertSavedProduct(ctx context.Context, userID, productID int32) error {
	s.mutex.Lock()
	s.saveCalls++
	err := s.saveErr
	s.mutex.Unlock()

	if err != nil {
		return err
	}
	return s.MemoryProductSource.InsertSavedProduct(ctx, userID, productID)
}

func (s *testSource) DeleteSavedProduct(ctx context.Context, userID, productID int32) error {
	s.mutex.Lock()
	s.saveCalls++
	err := s.saveErr
	s.mutex.Unlock()

	if err != nil {
		return err
	}
	return s.MemoryProductSource.DeleteSavedProduct(ctx, userID, productID)
}

func TestProductCoverImage(t *testing.T) {
	tests := []struct {
		images []string
		cover  string
	}{
		{nil, "/placeholder.svg"},
		{[]string{""}, "/placeholder.svg"},
		{[]string{"a.png", "b.png"}, "a.png"},
	}

	for i, tt := range tests {
		p := Product{Images: tt.images}
		if cover := p.CoverImage(); cover != tt.cover {
			t.Errorf("%d. expected %q, got %q", i, tt.cover, cover)
		}
	}
}

func TestProductIsUpcoming(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	if (&Product{}).IsUpcoming(now) {
		t.Error("product without release time should not be upcoming")
	}
	if !(&Product{ReleaseTime: &later}).IsUpcoming(now) {
		t.Error("product releasing later should be upcoming")
	}
	if (&Product{ReleaseTime: &earlier}).IsUpcoming(now) {
		t.Error("released product should not be upcoming")
	}
	if (&Product{ReleaseTime: &now}).IsUpcoming(now) {
		t.Error("product releasing now should not be upcoming")
	}
}
