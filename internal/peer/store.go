package peer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	PageSize      = 256
	PagesPerBlock = 64
	BlockSize     = PageSize * PagesPerBlock

	// SystemBlock is served by the freemap command.
	SystemBlock uint8 = 255
)

// BlockStore keeps block images as files named "%02x.blk" in one
// directory of an afero filesystem.  The serve command backs it with
// the OS filesystem; tests use afero.NewMemMapFs.
type BlockStore struct {
	fs  afero.Fs
	dir string
}

// NewBlockStore returns a store rooted at dir on fs.
func NewBlockStore(fs afero.Fs, dir string) *BlockStore {
	return &BlockStore{fs: fs, dir: dir}
}

// Path returns the file that holds block id.
func (b *BlockStore) Path(id uint8) string {
	return filepath.Join(b.dir, fmt.Sprintf("%02x.blk", id))
}

// Exists reports whether block id has an image.
func (b *BlockStore) Exists(id uint8) bool {
	ok, err := afero.Exists(b.fs, b.Path(id))
	return ok && err == nil
}

// Put stores data as block id.  Data beyond one block is rejected.
func (b *BlockStore) Put(id uint8, data []byte) error {
	if len(data) > BlockSize {
		return fmt.Errorf("block $%02X: %d bytes exceeds %d", id, len(data), BlockSize)
	}
	if err := b.fs.MkdirAll(b.dir, 0o755); err != nil {
		return err
	}
	return afero.WriteFile(b.fs, b.Path(id), data, 0o644)
}

// Pages returns block id split into pages, the last one zero-padded.
// A missing block has no pages.  Images longer than a block are cut
// at 64 pages.
func (b *BlockStore) Pages(id uint8) ([][]byte, error) {
	data, err := afero.ReadFile(b.fs, b.Path(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read block $%02X: %w", id, err)
	}
	return paginate(data), nil
}

// FreeMap returns the pages served for the system block: its image if
// one exists, else a single page where byte i is $00 if block i is in
// use and $FF if it is free.
func (b *BlockStore) FreeMap() ([][]byte, error) {
	if b.Exists(SystemBlock) {
		return b.Pages(SystemBlock)
	}
	page := make([]byte, PageSize)
	for i := range page {
		if !b.Exists(uint8(i)) {
			page[i] = 0xFF
		}
	}
	return [][]byte{page}, nil
}

func paginate(data []byte) [][]byte {
	n := (len(data) + PageSize - 1) / PageSize
	if n > PagesPerBlock {
		n = PagesPerBlock
	}
	pages := make([][]byte, n)
	for i := range pages {
		p := make([]byte, PageSize)
		copy(p, data[i*PageSize:])
		pages[i] = p
	}
	return pages
}
