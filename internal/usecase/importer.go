package usecase

import (
	"fmt"
	"sort"

	"tagroute/internal/adapter/filestore"
	"tagroute/internal/adapter/store"
	"tagroute/internal/domain"
)

// ImportUseCase copies a file network into a bolt store.
type ImportUseCase struct {
	store *store.BoltStore
	files *filestore.FileStore

	// OnFile is called after each file, imported or not.
	OnFile func(kind filestore.Kind, addr domain.Addr)
}

func NewImportUseCase(store *store.BoltStore, files *filestore.FileStore) *ImportUseCase {
	return &ImportUseCase{store: store, files: files}
}

// ImportResult contains the results of an import.
type ImportResult struct {
	Friends int
	PTables int
	TGraphs int
	Indexes int
	Errors  []string
}

func (r *ImportResult) Total() int {
	return r.Friends + r.PTables + r.TGraphs + r.Indexes
}

var importKinds = []filestore.Kind{filestore.KindFriends, filestore.KindPTable, filestore.KindTGraph, filestore.KindIndex}

// Files returns the number of data files an import will visit.
func (u *ImportUseCase) Files() int {
	n := 0
	for _, k := range importKinds {
		n += len(u.files.List(k))
	}
	return n
}

// Import replaces the store's contents with the file network. A file that
// fails to parse is reported in the result and skipped.
func (u *ImportUseCase) Import() (*ImportResult, error) {
	if err := u.store.Clear(); err != nil {
		return nil, fmt.Errorf("failed to clear store: %w", err)
	}

	result := &ImportResult{}
	for _, kind := range importKinds {
		addrs := u.files.List(kind)
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

		for _, addr := range addrs {
			err := u.importFile(kind, addr)
			if u.OnFile != nil {
				u.OnFile(kind, addr)
			}
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			switch kind {
			case filestore.KindFriends:
				result.Friends++
			case filestore.KindPTable:
				result.PTables++
			case filestore.KindTGraph:
				result.TGraphs++
			case filestore.KindIndex:
				result.Indexes++
			}
		}
	}
	return result, nil
}

func (u *ImportUseCase) importFile(kind filestore.Kind, addr domain.Addr) error {
	switch kind {
	case filestore.KindFriends:
		f, err := u.files.LoadFriends(addr)
		if err != nil {
			return err
		}
		return u.store.Batch(func(b *store.Batch) error {
			return b.PutFriends(addr, f.Friends)
		})

	case filestore.KindPTable:
		f, err := u.files.LoadPTable(addr)
		if err != nil {
			return err
		}
		return u.store.Batch(func(b *store.Batch) error {
			return b.PutPTable(addr, f.PTable())
		})

	case filestore.KindTGraph:
		f, err := u.files.LoadTGraph(addr)
		if err != nil {
			return err
		}
		return u.store.Batch(func(b *store.Batch) error {
			if err := b.PutTGraph(addr); err != nil {
				return err
			}
			for tag, w := range f.Tags {
				if err := b.PutTGraphNode(addr, domain.TagNode(tag), w); err != nil {
					return err
				}
			}
			for g, w := range f.TGraphs {
				if err := b.PutTGraphNode(addr, domain.TGraphNode(g), w); err != nil {
					return err
				}
			}
			for tag := range f.Arcs {
				out := f.Outgoing(tag)
				if out.IsNil() {
					return fmt.Errorf("tgraph %d: arcs from %q which is not a node", addr, tag)
				}
				if err := b.PutTGraphArcs(addr, tag, out); err != nil {
					return err
				}
			}
			return nil
		})

	default:
		f, err := u.files.LoadIndex(addr)
		if err != nil {
			return err
		}
		return u.store.Batch(func(b *store.Batch) error {
			if err := b.PutIndex(addr); err != nil {
				return err
			}
			for tag := range f.Arcs {
				if err := b.PutIndexArcs(addr, tag, f.Outgoing(tag)); err != nil {
					return err
				}
			}
			return nil
		})
	}
}
