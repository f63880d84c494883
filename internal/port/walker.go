package port

// FileWalker lists the data files under a root directory.
type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string // relative to the walk root
	ModTime int64
	Size    int64
}
