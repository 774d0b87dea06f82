package backend

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/winprodai/winprod/backend/data"
)

type int32Seq struct {
	current int32
	mutex   sync.Mutex
}

func (s *int32Seq) next() int32 {
	s.mutex.Lock()
	s.current++
	n := s.current
	s.mutex.Unlock()
	return n
}

// MemoryProductSource is a ProductSource held entirely in memory. It orders products the same way the
// database does: newest first with ties broken by descending ID.
type MemoryProductSource struct {
	idSeq int32Seq

	mutex    sync.Mutex
	products []Product
	saved    map[int32]map[int32]struct{}
}

func NewMemoryProductSource() *MemoryProductSource {
	return &MemoryProductSource{saved: make(map[int32]map[int32]struct{})}
}

// AddProduct stores p with a newly assigned ID and returns the ID. A zero CreationTime is set to now.
func (s *MemoryProductSource) AddProduct(p Product) int32 {
	p.ID = s.idSeq.next()
	if p.CreationTime.IsZero() {
		p.CreationTime = time.Now()
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.products = append(s.products, p)
	sort.SliceStable(s.products, func(i, j int) bool {
		a, b := s.products[i], s.products[j]
		if a.CreationTime.Equal(b.CreationTime) {
			return a.ID > b.ID
		}
		return a.CreationTime.After(b.CreationTime)
	})

	return p.ID
}

func (s *MemoryProductSource) ListProducts(ctx context.Context, offset, limit int) ([]Product, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if offset >= len(s.products) {
		return []Product{}, nil
	}
	end := offset + limit
	if end > len(s.products) {
		end = len(s.products)
	}

	products := make([]Product, end-offset)
	copy(products, s.products[offset:end])
	return products, nil
}

func (s *MemoryProductSource) NextReleaseTime(ctx context.Context, after time.Time) (time.Time, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var next time.Time
	found := false
	for _, p := range s.products {
		if p.ReleaseTime == nil || !p.ReleaseTime.After(after) {
			continue
		}
		if !found || p.ReleaseTime.Before(next) {
			next = *p.ReleaseTime
			found = true
		}
	}

	return next, found, nil
}

func (s *MemoryProductSource) hasProduct(id int32) bool {
	for _, p := range s.products {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *MemoryProductSource) SavedProductIDs(ctx context.Context, userID int32) ([]int32, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ids := make([]int32, 0, len(s.saved[userID]))
	for id := range s.saved[userID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

func (s *MemoryProductSource) InsertSavedProduct(ctx context.Context, userID, productID int32) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.hasProduct(productID) {
		return data.ErrNotFound
	}

	set, ok := s.saved[userID]
	if !ok {
		set = make(map[int32]struct{})
		s.saved[userID] = set
	}
	if _, ok := set[productID]; ok {
		return data.DuplicationError{Field: "product_id"}
	}
	set[productID] = struct{}{}

	return nil
}

func (s *MemoryProductSource) DeleteSavedProduct(ctx context.Context, userID, productID int32) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.saved[userID][productID]; !ok {
		return data.ErrNotFound
	}
	delete(s.saved[userID], productID)

	return nil
}
