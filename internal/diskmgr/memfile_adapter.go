package diskmgr

import "github.com/dsnet/golib/memfile"

// memFileAdapter lets an in-memory memfile.File satisfy DataFile (it has no
// notion of fsync since there's no backing device to flush).
type memFileAdapter struct {
	*memfile.File
}

func (memFileAdapter) Sync() error { return nil }

// NewMemBackedForTest builds a Manager over a fresh in-memory file, for unit
// tests that want disk-manager semantics without touching the filesystem.
func NewMemBackedForTest() (*Manager, error) {
	return OpenWith(memFileAdapter{memfile.New(nil)}, false, nil)
}
