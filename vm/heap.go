package vm

import "encoding/binary"

// heapBase is the offset of the first block header. Offsets below it are
// never handed out, so handle 0 always means null (or the empty string).
const heapBase = 4

// Heap is an arena of explicitly allocated blocks. There is no collector:
// blocks live until Reset. Each block is preceded by a 4-byte size header and
// addressed by the offset of its first data byte.
type Heap struct {
	arena []byte
	top   int
	max   int
}

// NewHeap creates a heap that faults when it would grow past max bytes.
func NewHeap(max int) *Heap {
	return &Heap{arena: make([]byte, 4096), top: heapBase, max: max}
}

// Used returns the number of arena bytes handed out so far.
func (h *Heap) Used() int {
	return h.top
}

// Reset releases every block.
func (h *Heap) Reset() {
	h.top = heapBase
}

func align4(n int) int {
	return (n + 3) &^ 3
}

func (h *Heap) ensure(n int) {
	if n <= len(h.arena) {
		return
	}
	if h.max > 0 && n > h.max {
		raise(FaultHeapOverflow, "heap exceeds %d bytes", h.max)
	}
	size := len(h.arena) * 2
	for size < n {
		size *= 2
	}
	if h.max > 0 && size > h.max {
		size = h.max
	}
	grown := make([]byte, size)
	copy(grown, h.arena[:h.top])
	h.arena = grown
}

// Allocate reserves a zeroed block of size bytes and returns its handle.
func (h *Heap) Allocate(size int) uint32 {
	if size < 0 {
		raise(FaultHeapOverflow, "negative allocation size %d", size)
	}
	need := h.top + 4 + align4(size)
	h.ensure(need)
	binary.LittleEndian.PutUint32(h.arena[h.top:], uint32(size))
	handle := h.top + 4
	clear(h.arena[handle:need])
	h.top = need
	return uint32(handle)
}

// Size returns the data size of the block at handle.
func (h *Heap) Size(handle uint32) int {
	h.check(handle)
	return int(binary.LittleEndian.Uint32(h.arena[handle-4:]))
}

func (h *Heap) check(handle uint32) {
	if handle == 0 {
		raise(FaultNullReference, "null handle")
	}
	if int(handle) < heapBase+4 || int(handle) > h.top {
		raise(FaultNullReference, "invalid handle %d", handle)
	}
}

// Bytes returns the data of the block at handle. The slice is invalidated by
// any later allocation.
func (h *Heap) Bytes(handle uint32) []byte {
	n := h.Size(handle)
	return h.arena[handle : int(handle)+n]
}

// Read returns n bytes at offset off within the block at handle.
func (h *Heap) Read(handle uint32, off, n int) []byte {
	b := h.Bytes(handle)
	if off < 0 || off+n > len(b) {
		raise(FaultIndexOutOfRange, "read of %d bytes at %d in block of %d", n, off, len(b))
	}
	return b[off : off+n]
}

// Write copies data into the block at handle starting at offset off.
func (h *Heap) Write(handle uint32, off int, data []byte) {
	copy(h.Read(handle, off, len(data)), data)
}

// Span returns n arena bytes starting at an absolute address, as produced by
// element and field references into blocks.
func (h *Heap) Span(addr uint32, n int) []byte {
	if addr == 0 {
		raise(FaultNullReference, "null reference")
	}
	if int(addr) < heapBase+4 || int(addr)+n > h.top {
		raise(FaultIndexOutOfRange, "reference %d outside heap", addr)
	}
	return h.arena[addr : int(addr)+n]
}

// Resize changes the size of a block. A block at the end of the arena grows
// in place; any other block is copied to a new allocation. The handle to use
// afterwards is returned. Resizing handle 0 allocates.
func (h *Heap) Resize(handle uint32, size int) uint32 {
	if handle == 0 {
		return h.Allocate(size)
	}
	old := h.Size(handle)
	if int(handle)+align4(old) == h.top {
		need := int(handle) + align4(size)
		h.ensure(need)
		if size > old {
			clear(h.arena[int(handle)+old : need])
		}
		binary.LittleEndian.PutUint32(h.arena[handle-4:], uint32(size))
		h.top = need
		return handle
	}
	moved := h.Allocate(size)
	copy(h.arena[moved:int(moved)+size], h.arena[handle:int(handle)+min(old, size)])
	return moved
}

// AllocString stores s and returns its handle. The empty string is handle 0.
func (h *Heap) AllocString(s string) uint32 {
	if s == "" {
		return 0
	}
	handle := h.Allocate(len(s))
	copy(h.arena[handle:], s)
	return handle
}

// String decodes the string at handle.
func (h *Heap) String(handle uint32) string {
	if handle == 0 {
		return ""
	}
	return string(h.Bytes(handle))
}
