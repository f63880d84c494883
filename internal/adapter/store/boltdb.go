package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"tagroute/internal/domain"
	"tagroute/internal/port"
)

var (
	bucketFriends     = []byte("friends")
	bucketPTables     = []byte("ptables")
	bucketTGraphs     = []byte("tgraphs")
	bucketTGraphNodes = []byte("tgraph_nodes")
	bucketTGraphArcs  = []byte("tgraph_arcs")
	bucketIndexes     = []byte("indexes")
	bucketIndexArcs   = []byte("index_arcs")
	bucketStats       = []byte("stats")

	// registry values are a single byte; bolt does not tell an empty value
	// from a missing key reliably
	present = []byte{1}

	dataBuckets = [][]byte{bucketFriends, bucketPTables, bucketTGraphs, bucketTGraphNodes, bucketTGraphArcs, bucketIndexes, bucketIndexArcs}
)

// BoltStore is a persistent raw store. Tag-graphs and indexes are
// registered by address so that a missing structure can be told apart from
// a missing tag or node inside it.
type BoltStore struct {
	db *bbolt.DB
}

var _ port.RawStore = (*BoltStore)(nil)

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range append(dataBuckets, bucketStats) {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func addrKey(a domain.Addr) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(a))
	return k
}

func addrFromKey(k []byte) domain.Addr {
	return domain.Addr(binary.BigEndian.Uint64(k[:8]))
}

// tagKey is addr ++ tag.
func tagKey(a domain.Addr, tag domain.Tag) []byte {
	return append(addrKey(a), string(tag)...)
}

// nodeKey is addr ++ 't' ++ tag for a tag node, addr ++ 'g' ++ addr for a
// tag-graph node.
func nodeKey(a domain.Addr, n domain.Node) []byte {
	k := addrKey(a)
	if n.Is0() {
		k = append(k, 't')
		return append(k, string(n.Must0())...)
	}
	k = append(k, 'g')
	return append(k, addrKey(n.Must1())...)
}

type ptableRecord struct {
	TGraphs map[domain.Addr]float64 `json:"tgraphs"`
	Indexes map[domain.Addr]float64 `json:"indexes"`
}

type tgraphArcsRecord struct {
	Tags    map[domain.Tag]float64  `json:"tags,omitempty"`
	TGraphs map[domain.Addr]float64 `json:"tgraphs,omitempty"`
}

type indexArcsRecord struct {
	Docs    map[domain.Addr]float64 `json:"docs,omitempty"`
	Indexes map[domain.Addr]float64 `json:"indexes,omitempty"`
}

// Batch writes network data inside one bolt transaction.
type Batch struct {
	tx *bbolt.Tx
}

// Batch runs fn in a single read-write transaction.
func (s *BoltStore) Batch(fn func(*Batch) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&Batch{tx: tx})
	})
}

func (b *Batch) put(bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.tx.Bucket(bucket).Put(key, data)
}

func (b *Batch) PutFriends(id domain.Addr, friends map[domain.Addr]float64) error {
	if friends == nil {
		friends = map[domain.Addr]float64{}
	}
	return b.put(bucketFriends, addrKey(id), friends)
}

func (b *Batch) PutPTable(id domain.Addr, pt domain.PTable[float64]) error {
	return b.put(bucketPTables, addrKey(id), ptableRecord{TGraphs: pt.TGraphs, Indexes: pt.Indexes})
}

// PutTGraph registers an empty tag-graph at addr.
func (b *Batch) PutTGraph(addr domain.Addr) error {
	return b.tx.Bucket(bucketTGraphs).Put(addrKey(addr), present)
}

func (b *Batch) PutTGraphNode(addr domain.Addr, node domain.Node, w float64) error {
	if err := b.PutTGraph(addr); err != nil {
		return err
	}
	return b.put(bucketTGraphNodes, nodeKey(addr, node), w)
}

func (b *Batch) PutTGraphArcs(addr domain.Addr, tag domain.Tag, out domain.SplitMap[domain.Tag, domain.Addr, float64]) error {
	if err := b.PutTGraph(addr); err != nil {
		return err
	}
	return b.put(bucketTGraphArcs, tagKey(addr, tag), tgraphArcsRecord{Tags: out.M0, TGraphs: out.M1})
}

// PutIndex registers an empty index at addr.
func (b *Batch) PutIndex(addr domain.Addr) error {
	return b.tx.Bucket(bucketIndexes).Put(addrKey(addr), present)
}

func (b *Batch) PutIndexArcs(addr domain.Addr, tag domain.Tag, out domain.SplitMap[domain.Addr, domain.Addr, float64]) error {
	if err := b.PutIndex(addr); err != nil {
		return err
	}
	return b.put(bucketIndexArcs, tagKey(addr, tag), indexArcsRecord{Docs: out.M0, Indexes: out.M1})
}

func (s *BoltStore) GetFriends(id domain.Addr) (map[domain.Addr]float64, error) {
	var out map[domain.Addr]float64
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketFriends).Get(addrKey(id))
		if data == nil {
			return fmt.Errorf("friend-list %w for: %d", port.ErrNotAvailable, id)
		}
		return json.Unmarshal(data, &out)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = map[domain.Addr]float64{}
	}
	return out, nil
}

func (s *BoltStore) GetPTable(id domain.Addr) (domain.PTable[float64], error) {
	var rec ptableRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPTables).Get(addrKey(id))
		if data == nil {
			return fmt.Errorf("ptable %w for: %d", port.ErrNotAvailable, id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return domain.PTable[float64]{}, err
	}
	pt := domain.NewPTable[float64]()
	for k, v := range rec.TGraphs {
		pt.TGraphs[k] = v
	}
	for k, v := range rec.Indexes {
		pt.Indexes[k] = v
	}
	return pt, nil
}

func (s *BoltStore) GetTGraphOutgoing(addr domain.Addr, tag domain.Tag) (domain.SplitMap[domain.Tag, domain.Addr, float64], error) {
	var out domain.SplitMap[domain.Tag, domain.Addr, float64]
	err := s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketTGraphs).Get(addrKey(addr)) == nil {
			return fmt.Errorf("tgraph %w for: %d", port.ErrNotAvailable, addr)
		}
		if tx.Bucket(bucketTGraphNodes).Get(nodeKey(addr, domain.TagNode(tag))) == nil {
			return nil
		}
		out = domain.NodeMap[float64]()
		data := tx.Bucket(bucketTGraphArcs).Get(tagKey(addr, tag))
		if data == nil {
			return nil
		}
		var rec tgraphArcsRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to decode arcs of %q in tgraph %d: %w", tag, addr, err)
		}
		for t, w := range rec.Tags {
			out.M0[t] = w
		}
		for a, w := range rec.TGraphs {
			out.M1[a] = w
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) GetTGraphNodeAttr(addr domain.Addr, node domain.Node) (float64, bool, error) {
	var w float64
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketTGraphs).Get(addrKey(addr)) == nil {
			return fmt.Errorf("tgraph %w for: %d", port.ErrNotAvailable, addr)
		}
		data := tx.Bucket(bucketTGraphNodes).Get(nodeKey(addr, node))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &w)
	})
	return w, ok, err
}

func (s *BoltStore) GetIndexOutgoing(addr domain.Addr, tag domain.Tag) (domain.SplitMap[domain.Addr, domain.Addr, float64], error) {
	var out domain.SplitMap[domain.Addr, domain.Addr, float64]
	err := s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketIndexes).Get(addrKey(addr)) == nil {
			return fmt.Errorf("index %w for: %d", port.ErrNotAvailable, addr)
		}
		data := tx.Bucket(bucketIndexArcs).Get(tagKey(addr, tag))
		if data == nil {
			return nil
		}
		var rec indexArcsRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to decode arcs of %q in index %d: %w", tag, addr, err)
		}
		out = domain.TargetMap[float64]()
		for d, w := range rec.Docs {
			out.M0[d] = w
		}
		for h, w := range rec.Indexes {
			out.M1[h] = w
		}
		return nil
	})
	return out, err
}

// Counts is the number of records per kind.
type Counts struct {
	Friends int
	PTables int
	TGraphs int
	Indexes int
	Nodes   int
	Arcs    int
}

func (s *BoltStore) Counts() (Counts, error) {
	var c Counts
	err := s.db.View(func(tx *bbolt.Tx) error {
		c.Friends = tx.Bucket(bucketFriends).Stats().KeyN
		c.PTables = tx.Bucket(bucketPTables).Stats().KeyN
		c.TGraphs = tx.Bucket(bucketTGraphs).Stats().KeyN
		c.Indexes = tx.Bucket(bucketIndexes).Stats().KeyN
		c.Nodes = tx.Bucket(bucketTGraphNodes).Stats().KeyN
		c.Arcs = tx.Bucket(bucketTGraphArcs).Stats().KeyN + tx.Bucket(bucketIndexArcs).Stats().KeyN
		return nil
	})
	return c, err
}

// ListIdentities returns the addresses with a friend list.
func (s *BoltStore) ListIdentities() ([]domain.Addr, error) {
	var out []domain.Addr
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFriends).ForEach(func(k, _ []byte) error {
			out = append(out, addrFromKey(k))
			return nil
		})
	})
	return out, err
}
