package port

import (
	"errors"

	"tagroute/internal/domain"
)

// ErrNotAvailable is wrapped by every store error caused by missing or
// unreadable remote data.
var ErrNotAvailable = errors.New("not available")

// Store is the boundary between the query engine and a backing network of
// peers. S is the weight type the backend speaks.
//
// A nil map from GetTGraphOutgoing or GetIndexOutgoing means the tag is not
// present in the remote structure. GetTGraphNodeAttr reports present=false
// for a node the remote tag-graph does not contain.
type Store[S any] interface {
	GetFriends(id domain.Addr) (map[domain.Addr]S, error)

	GetPTable(id domain.Addr) (domain.PTable[S], error)

	GetTGraphOutgoing(addr domain.Addr, tag domain.Tag) (domain.SplitMap[domain.Tag, domain.Addr, S], error)

	GetTGraphNodeAttr(addr domain.Addr, node domain.Node) (weight S, present bool, err error)

	GetIndexOutgoing(addr domain.Addr, tag domain.Tag) (domain.SplitMap[domain.Addr, domain.Addr, S], error)
}

// StoreControl is the validated store the engine consumes.
type StoreControl = Store[domain.Probability]

// RawStore is a backend that hands out unvalidated float weights.
type RawStore = Store[float64]
