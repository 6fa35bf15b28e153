package resolver

import (
	"context"
	"sync"
	"sync/atomic"

	"moalmanac-api/internal/schema"
)

// batchState is the request-scoped record cache. Every (entity, id) is
// fetched at most once per request, and relation links are resolved once per
// parent.
type batchState struct {
	mu sync.Mutex
	// rows holds every loaded record by entity and id.
	rows map[schema.Entity]map[int64]Row
	// links holds many-to-many child ids by relation key and parent id.
	links map[string]map[int64][]int64
	// groups holds has-many child ids by target column and matched value.
	groups map[string]map[int64][]int64
	// expanded marks records whose relations have been walked.
	expanded    map[schema.Entity]map[int64]struct{}
	cacheHits   int32
	cacheMisses int32
}

type batchStateKey struct{}

func newBatchState() *batchState {
	return &batchState{
		rows:     make(map[schema.Entity]map[int64]Row),
		links:    make(map[string]map[int64][]int64),
		groups:   make(map[string]map[int64][]int64),
		expanded: make(map[schema.Entity]map[int64]struct{}),
	}
}

// NewBatchingContext injects a request-scoped batch state, shared by every
// Load issued with the returned context.
func NewBatchingContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, batchStateKey{}, newBatchState())
}

func getBatchState(ctx context.Context) (*batchState, bool) {
	if ctx == nil {
		return nil, false
	}
	state, ok := ctx.Value(batchStateKey{}).(*batchState)
	return state, ok
}

func stateForContext(ctx context.Context) *batchState {
	if state, ok := getBatchState(ctx); ok {
		return state
	}
	return newBatchState()
}

func (s *batchState) putRows(entity schema.Entity, rows []Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.rows[entity]
	if byID == nil {
		byID = make(map[int64]Row)
		s.rows[entity] = byID
	}
	for _, row := range rows {
		if id, ok := row.ID(); ok {
			if _, exists := byID[id]; !exists {
				byID[id] = row
			}
		}
	}
}

func (s *batchState) row(entity schema.Entity, id int64) (Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[entity][id]
	return row, ok
}

// missing returns the ids not yet cached for entity, counting hits and misses.
func (s *batchState) missing(entity schema.Entity, ids []int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []int64
	for _, id := range ids {
		if _, ok := s.rows[entity][id]; ok {
			s.IncrementCacheHit()
			continue
		}
		s.IncrementCacheMiss()
		out = append(out, id)
	}
	return out
}

func (s *batchState) setLinks(key string, parents []int64, pairs [][2]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byParent := s.links[key]
	if byParent == nil {
		byParent = make(map[int64][]int64)
		s.links[key] = byParent
	}
	for _, p := range parents {
		if _, ok := byParent[p]; !ok {
			byParent[p] = []int64{}
		}
	}
	for _, pair := range pairs {
		byParent[pair[0]] = append(byParent[pair[0]], pair[1])
	}
}

func (s *batchState) linked(key string, parent int64) ([]int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.links[key][parent]
	return ids, ok
}

func (s *batchState) setGroups(key string, values []int64, members map[int64][]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byValue := s.groups[key]
	if byValue == nil {
		byValue = make(map[int64][]int64)
		s.groups[key] = byValue
	}
	for _, v := range values {
		if _, ok := byValue[v]; !ok {
			byValue[v] = members[v]
		}
	}
}

func (s *batchState) grouped(key string, value int64) ([]int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.groups[key][value]
	return ids, ok
}

// expand returns the rows of entity not yet walked and marks them walked.
func (s *batchState) expand(entity schema.Entity, rows []Row) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	done := s.expanded[entity]
	if done == nil {
		done = make(map[int64]struct{})
		s.expanded[entity] = done
	}
	var out []Row
	for _, row := range rows {
		id, ok := row.ID()
		if !ok {
			continue
		}
		if _, seen := done[id]; seen {
			continue
		}
		done[id] = struct{}{}
		out = append(out, row)
	}
	return out
}

// IncrementCacheHit increments the cache hit counter.
func (s *batchState) IncrementCacheHit() {
	atomic.AddInt32(&s.cacheHits, 1)
}

// IncrementCacheMiss increments the cache miss counter.
func (s *batchState) IncrementCacheMiss() {
	atomic.AddInt32(&s.cacheMisses, 1)
}

// GetCacheHits returns the current cache hit count.
func (s *batchState) GetCacheHits() int32 {
	return atomic.LoadInt32(&s.cacheHits)
}

// GetCacheMisses returns the current cache miss count.
func (s *batchState) GetCacheMisses() int32 {
	return atomic.LoadInt32(&s.cacheMisses)
}
