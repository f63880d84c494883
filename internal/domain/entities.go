package domain

import "fmt"

// Tag is a topic identifier, the primary routing key.
type Tag string

// Addr identifies a remote peer, tag-graph, index or document.
type Addr int64

type Arc[S, D comparable] struct {
	Src S
	Dst D
}

func (a Arc[S, D]) String() string {
	return fmt.Sprintf("%v->%v", a.Src, a.Dst)
}

// Node is a tag-graph node: a tag (variant 0) or a tag-graph address (variant 1).
type Node = U2[Tag, Addr]

// Target is an index arc destination: a document (variant 0) or another
// index (variant 1).
type Target = U2[Addr, Addr]

func TagNode(t Tag) Node { return Make0[Tag, Addr](t) }
func TGraphNode(a Addr) Node { return Make1[Tag, Addr](a) }
func DocTarget(a Addr) Target { return Make0[Addr, Addr](a) }
func IndexTarget(a Addr) Target { return Make1[Addr, Addr](a) }
func NodeMap[V any]() SplitMap[Tag, Addr, V] { return NewSplitMap[Tag, Addr, V]() }
func TargetMap[V any]() SplitMap[Addr, Addr, V] { return NewSplitMap[Addr, Addr, V]() }

// TGraphArcs maps the out-neighbours of one tag to arc weights. A nil map
// (IsNil) means the tag is not present in the tag-graph.
type TGraphArcs = SplitMap[Tag, Addr, Probability]

// IndexArcs maps the documents and indexes one tag points to in an index.
type IndexArcs = SplitMap[Addr, Addr, Probability]

// Results holds scored documents (M0) and scored indexes (M1).
type Results = SplitMap[Addr, Addr, Probability]

// Lookup names one tag in one remote tag-graph or index.
type Lookup struct {
	Source Addr
	Tag    Tag
}

func (l Lookup) String() string {
	return fmt.Sprintf("(%d: %s)", l.Source, l.Tag)
}

// NodeLookup names one node in one remote tag-graph.
type NodeLookup struct {
	Source Addr
	Node   Node
}

func (l NodeLookup) String() string {
	return fmt.Sprintf("(%d: %s)", l.Source, l.Node)
}

// NodeAttr is the result of a node lookup; Present is false when the remote
// tag-graph does not contain the node.
type NodeAttr struct {
	Weight  Probability
	Present bool
}

// PTable is a peer's recommendation table, split into recommended
// tag-graphs and recommended indexes.
type PTable[S any] struct {
	TGraphs map[Addr]S
	Indexes map[Addr]S
}

func NewPTable[S any]() PTable[S] {
	return PTable[S]{
		TGraphs: make(map[Addr]S),
		Indexes: make(map[Addr]S),
	}
}
