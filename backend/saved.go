package backend

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/winprodai/winprod/backend/data"
	log "gopkg.in/inconshreveable/log15.v2"
)

var ErrLoginRequired = errors.New("login required")

// SavedItems is the local set of bookmarked product IDs of a view. The local set only changes after the
// remote store accepted the change.
type SavedItems struct {
	source ProductSource
	logger log.Logger

	toggleMutex sync.Mutex // serializes Toggle
	mutex       sync.Mutex
	ids         map[int32]struct{}
}

func NewSavedItems(source ProductSource, logger log.Logger) *SavedItems {
	return &SavedItems{
		source: source,
		logger: logger,
		ids:    make(map[int32]struct{}),
	}
}

// Load replaces the local set with the saved products of userID. On failure the set is left unchanged.
func (s *SavedItems) Load(ctx context.Context, userID int32) error {
	ids, err := s.source.SavedProductIDs(ctx, userID)
	if err != nil {
		s.logger.Error("Error fetching saved products", "userID", userID, "error", err)
		return err
	}

	set := make(map[int32]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	s.mutex.Lock()
	s.ids = set
	s.mutex.Unlock()
	return nil
}

func (s *SavedItems) Has(productID int32) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, ok := s.ids[productID]
	return ok
}

// IDs returns the saved product IDs in ascending order.
func (s *SavedItems) IDs() []int32 {
	s.mutex.Lock()
	ids := make([]int32, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	s.mutex.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Toggle saves productID when it is not saved and unsaves it otherwise. It returns whether the product is
// saved afterwards. A nil user gets ErrLoginRequired. Remote failures are logged and leave the set as it was.
func (s *SavedItems) Toggle(ctx context.Context, user *data.User, productID int32) (bool, error) {
	if user == nil {
		return false, ErrLoginRequired
	}
	userID := user.ID.Int32

	s.toggleMutex.Lock()
	defer s.toggleMutex.Unlock()

	if s.Has(productID) {
		err := s.source.DeleteSavedProduct(ctx, userID, productID)
		if err != nil {
			s.logger.Warn("DeleteSavedProduct failed", "userID", userID, "productID", productID, "error", err)
			return true, nil
		}

		s.mutex.Lock()
		delete(s.ids, productID)
		s.mutex.Unlock()
		return false, nil
	}

	err := s.source.InsertSavedProduct(ctx, userID, productID)
	if err != nil {
		s.logger.Warn("InsertSavedProduct failed", "userID", userID, "productID", productID, "error", err)
		return false, nil
	}

	s.mutex.Lock()
	s.ids[productID] = struct{}{}
	s.mutex.Unlock()
	return true, nil
}
