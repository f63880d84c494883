package cache

import (
	"sync"
	"time"

	"tagroute/internal/domain"
	"tagroute/internal/port"
	"tagroute/internal/telemetry"
)

type kind uint8

const (
	kindFriends kind = iota
	kindPTable
	kindTGraphArcs
	kindTGraphNode
	kindIndexArcs
)

type cacheKey struct {
	kind kind
	addr domain.Addr
	tag  domain.Tag
	node domain.Node
}

type cacheEntry struct {
	value     any
	timestamp time.Time
	gen       uint64
}

// QueryCache is a size-bounded LRU with a TTL. Invalidate drops every entry.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*cacheEntry
	order   []cacheKey
	maxSize int
	ttl     time.Duration
	gen     uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[cacheKey]*cacheEntry),
		order:   make([]cacheKey, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func (c *QueryCache) get(key cacheKey) (any, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	currentGen := c.gen
	c.mu.RUnlock()

	if !exists {
		telemetry.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}

	if time.Since(entry.timestamp) > c.ttl || entry.gen != currentGen {
		c.mu.Lock()
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.mu.Unlock()
		telemetry.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}

	c.mu.Lock()
	c.moveToEnd(key)
	c.mu.Unlock()

	telemetry.CacheRequests.WithLabelValues("hit").Inc()
	return entry.value, true
}

func (c *QueryCache) put(key cacheKey, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry{value: value, timestamp: time.Now(), gen: c.gen}
	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = entry
	c.order = append(c.order, key)
}

func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[cacheKey]*cacheEntry)
	c.order = c.order[:0]
	c.gen++
}

func (c *QueryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *QueryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *QueryCache) moveToEnd(key cacheKey) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key cacheKey) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

type nodeAttr struct {
	weight  domain.Probability
	present bool
}

// CachedStore answers repeated store calls from a QueryCache. Errors are
// never cached.
type CachedStore struct {
	store port.StoreControl
	cache *QueryCache
}

var _ port.StoreControl = (*CachedStore)(nil)

func NewCachedStore(store port.StoreControl, cache *QueryCache) *CachedStore {
	return &CachedStore{
		store: store,
		cache: cache,
	}
}

func (s *CachedStore) GetFriends(id domain.Addr) (map[domain.Addr]domain.Probability, error) {
	key := cacheKey{kind: kindFriends, addr: id}
	if v, hit := s.cache.get(key); hit {
		return cloneMap(v.(map[domain.Addr]domain.Probability)), nil
	}
	out, err := s.store.GetFriends(id)
	if err != nil {
		return nil, err
	}
	s.cache.put(key, cloneMap(out))
	return out, nil
}

func (s *CachedStore) GetPTable(id domain.Addr) (domain.PTable[domain.Probability], error) {
	key := cacheKey{kind: kindPTable, addr: id}
	if v, hit := s.cache.get(key); hit {
		pt := v.(domain.PTable[domain.Probability])
		return domain.PTable[domain.Probability]{TGraphs: cloneMap(pt.TGraphs), Indexes: cloneMap(pt.Indexes)}, nil
	}
	out, err := s.store.GetPTable(id)
	if err != nil {
		return out, err
	}
	s.cache.put(key, domain.PTable[domain.Probability]{TGraphs: cloneMap(out.TGraphs), Indexes: cloneMap(out.Indexes)})
	return out, nil
}

func (s *CachedStore) GetTGraphOutgoing(addr domain.Addr, tag domain.Tag) (domain.TGraphArcs, error) {
	key := cacheKey{kind: kindTGraphArcs, addr: addr, tag: tag}
	if v, hit := s.cache.get(key); hit {
		return cloneSplit(v.(domain.TGraphArcs)), nil
	}
	out, err := s.store.GetTGraphOutgoing(addr, tag)
	if err != nil {
		return out, err
	}
	s.cache.put(key, cloneSplit(out))
	return out, nil
}

func (s *CachedStore) GetTGraphNodeAttr(addr domain.Addr, node domain.Node) (domain.Probability, bool, error) {
	key := cacheKey{kind: kindTGraphNode, addr: addr, node: node}
	if v, hit := s.cache.get(key); hit {
		a := v.(nodeAttr)
		return a.weight, a.present, nil
	}
	w, ok, err := s.store.GetTGraphNodeAttr(addr, node)
	if err != nil {
		return w, ok, err
	}
	s.cache.put(key, nodeAttr{weight: w, present: ok})
	return w, ok, nil
}

func (s *CachedStore) GetIndexOutgoing(addr domain.Addr, tag domain.Tag) (domain.IndexArcs, error) {
	key := cacheKey{kind: kindIndexArcs, addr: addr, tag: tag}
	if v, hit := s.cache.get(key); hit {
		return cloneSplit(v.(domain.IndexArcs)), nil
	}
	out, err := s.store.GetIndexOutgoing(addr, tag)
	if err != nil {
		return out, err
	}
	s.cache.put(key, cloneSplit(out))
	return out, nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// cloneSplit keeps a nil map nil, since nil means "not present".
func cloneSplit[K0, K1 comparable, V any](m domain.SplitMap[K0, K1, V]) domain.SplitMap[K0, K1, V] {
	if m.IsNil() {
		return m
	}
	return m.Clone()
}
