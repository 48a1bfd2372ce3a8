package internal

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// recentEnvelopes remembers the ids of the last broadcast envelopes so seen
// receipts for unknown ids can be dropped. A nil cache accepts every id.
type recentEnvelopes struct {
	cache *lru.Cache[string, struct{}]
}

func newRecentEnvelopes(size int) (*recentEnvelopes, error) {
	if size <= 0 {
		return nil, nil
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &recentEnvelopes{cache: cache}, nil
}

func (r *recentEnvelopes) remember(id string) {
	if r == nil {
		return
	}
	r.cache.Add(id, struct{}{})
}

func (r *recentEnvelopes) known(id string) bool {
	if r == nil {
		return true
	}
	return r.cache.Contains(id)
}
