package littlefs

import (
	"encoding/binary"
	"io"

	"t01node.dev/errs"
)

// File is an open handle to a flat file. Content is buffered in memory
// for the lifetime of the handle and committed to the block chain on
// Close — the filesystem has no partial-write durability guarantee
// beyond that point, matching the core's "sync is a command-boundary
// no-op" contract.
type File struct {
	fs       *FS
	entryIdx int
	data     []byte
	pos      int
	dirty    bool
	closed   bool
}

// Create allocates a new, empty file named name. Returns ErrExists if
// the name is already present.
func (fs *FS) Create(name string) (*File, error) {
	if len(name) == 0 || len(name) > MaxNameLen {
		return nil, errs.New(errs.InvalidArgument, "littlefs: invalid name length")
	}
	if fs.findEntry(name) != -1 {
		return nil, ErrExists
	}
	idx := fs.findFreeEntry()
	if idx == -1 {
		return nil, ErrNoSpace
	}
	fs.dir[idx] = dirEntry{used: true, name: name, firstBlock: chainEnd, size: 0}
	if err := fs.flushDirEntry(idx); err != nil {
		return nil, err
	}
	if err := fs.flushMetadata(); err != nil {
		return nil, err
	}
	return &File{fs: fs, entryIdx: idx}, nil
}

// Open opens an existing file for reading and appending. Returns
// ErrNotFound if name does not exist.
func (fs *FS) Open(name string) (*File, error) {
	idx := fs.findEntry(name)
	if idx == -1 {
		return nil, ErrNotFound
	}
	e := fs.dir[idx]
	data, err := fs.readChain(e.firstBlock, int(e.size))
	if err != nil {
		return nil, err
	}
	return &File{fs: fs, entryIdx: idx, data: data}, nil
}

// Remove deletes a file and frees its block chain.
func (fs *FS) Remove(name string) error {
	idx := fs.findEntry(name)
	if idx == -1 {
		return ErrNotFound
	}
	e := fs.dir[idx]
	if err := fs.freeChain(e.firstBlock); err != nil {
		return err
	}
	fs.dir[idx] = dirEntry{}
	if err := fs.flushDirEntry(idx); err != nil {
		return err
	}
	return fs.flushMetadata()
}

// Write appends b to the file's content. Committed to flash on Close.
func (f *File) Write(b []byte) (int, error) {
	if f.closed {
		return 0, errs.New(errs.InvalidArgument, "littlefs: write on closed file")
	}
	f.data = append(f.data, b...)
	f.dirty = true
	return len(b), nil
}

// Read fills buf from the current read position, advancing it. Returns
// io.EOF once the end of the file's content is reached.
func (f *File) Read(buf []byte) (int, error) {
	if f.pos >= len(f.data) {
		return 0, io.EOF
	}
	n := copy(buf, f.data[f.pos:])
	f.pos += n
	return n, nil
}

// Size returns the file's current content length.
func (f *File) Size() int {
	return len(f.data)
}

// Close commits any buffered writes to the block chain and persists
// the updated directory entry.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if !f.dirty {
		return nil
	}
	old := f.fs.dir[f.entryIdx]
	if old.firstBlock != chainEnd {
		if err := f.fs.freeChain(old.firstBlock); err != nil {
			return err
		}
	}
	first, err := f.fs.writeChain(f.data)
	if err != nil {
		return err
	}
	f.fs.dir[f.entryIdx] = dirEntry{
		used:       true,
		name:       old.name,
		firstBlock: first,
		size:       uint32(len(f.data)),
	}
	if err := f.fs.flushDirEntry(f.entryIdx); err != nil {
		return err
	}
	return f.fs.flushMetadata()
}

// readChain reads size bytes starting at the first block of a chain.
func (fs *FS) readChain(first uint32, size int) ([]byte, error) {
	out := make([]byte, 0, size)
	b := first
	chunkLen := fs.chainDataLen()
	for b != chainEnd && len(out) < size {
		buf := make([]byte, chunkLen+4)
		if err := fs.dev.ReadAt(int(b), 0, buf); err != nil {
			return nil, errs.Wrap(err, errs.FsIo, "littlefs: read_chain")
		}
		remaining := size - len(out)
		take := chunkLen
		if take > remaining {
			take = remaining
		}
		out = append(out, buf[:take]...)
		b = binary.LittleEndian.Uint32(buf[chunkLen:])
	}
	return out, nil
}

// writeChain commits data as a new block chain, returning its first
// block. An empty data slice yields chainEnd (no blocks allocated).
func (fs *FS) writeChain(data []byte) (uint32, error) {
	if len(data) == 0 {
		return chainEnd, nil
	}
	chunkLen := fs.chainDataLen()
	var blocks []int
	for off := 0; off < len(data); off += chunkLen {
		b, err := fs.allocBlock()
		if err != nil {
			for _, prev := range blocks {
				fs.setFree(prev)
			}
			return 0, err
		}
		blocks = append(blocks, b)
	}
	for i, b := range blocks {
		off := i * chunkLen
		end := off + chunkLen
		if end > len(data) {
			end = len(data)
		}
		if err := fs.dev.ProgAt(b, 0, data[off:end]); err != nil {
			return 0, errs.Wrap(err, errs.FsIo, "littlefs: write_chain data")
		}
		next := uint32(chainEnd)
		if i+1 < len(blocks) {
			next = uint32(blocks[i+1])
		}
		nb := make([]byte, 4)
		binary.LittleEndian.PutUint32(nb, next)
		if err := fs.dev.ProgAt(b, chunkLen, nb); err != nil {
			return 0, errs.Wrap(err, errs.FsIo, "littlefs: write_chain next")
		}
	}
	return uint32(blocks[0]), nil
}
