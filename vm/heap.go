package glulx

// Heap implements the malloc/mfree opcodes: a small first-fit allocator
// carved out of RAM above endmem, growing the memory image via
// SetMemSize as needed. glulxe's own heap.c (the block that tracks
// allocated/free spans for save-file purposes) was not part of the
// retrieved reference material for this build; this allocator is a
// documented reconstruction grounded only in osdepend.c's thin
// glulx_malloc/glulx_realloc/glulx_free wrappers around the host's malloc,
// generalized into an explicit free list since a Glulx heap must survive
// being serialized into a save file (spec.md §4.11) rather than live in
// host process memory.
type Heap struct {
	mem    *Memory
	base   uint32
	blocks []heapBlock
	active bool
}

type heapBlock struct {
	addr uint32
	size uint32
	free bool
}

func newHeap(mem *Memory) *Heap {
	return &Heap{mem: mem}
}

// Active reports whether the heap has ever been used; the first malloc
// starts it, and mfree is a no-op on a heap nobody has started (matching
// glulxe's "heap doesn't exist until first malloc" behavior, relevant to
// save-file format).
func (h *Heap) Active() bool { return h.active }

// Alloc implements malloc: find or create a free block of at least size
// bytes, mark it used, and return its address, or 0 on failure.
func (h *Heap) Alloc(size uint32) uint32 {
	if size == 0 {
		return 0
	}
	if !h.active {
		h.base = h.mem.Len()
		h.active = true
	}

	for i, b := range h.blocks {
		if b.free && b.size >= size {
			h.blocks[i].free = false
			if b.size > size {
				h.blocks = append(h.blocks, heapBlock{})
				copy(h.blocks[i+2:], h.blocks[i+1:])
				h.blocks[i+1] = heapBlock{addr: b.addr + size, size: b.size - size, free: true}
			}
			h.blocks[i].size = size
			return b.addr
		}
	}

	addr := h.mem.Len()
	newEnd := addr + size
	if ok := h.mem.SetMemSize(roundUp256(newEnd)); !ok {
		return 0
	}
	h.blocks = append(h.blocks, heapBlock{addr: addr, size: size, free: false})
	return addr
}

// Free implements mfree: mark the block at addr free, coalescing with
// neighbors so the allocator doesn't fragment under repeated alloc/free.
func (h *Heap) Free(addr uint32) {
	for i, b := range h.blocks {
		if b.addr == addr {
			h.blocks[i].free = true
			h.coalesce()
			return
		}
	}
}

func (h *Heap) coalesce() {
	merged := true
	for merged {
		merged = false
		for i := 0; i+1 < len(h.blocks); i++ {
			a, b := h.blocks[i], h.blocks[i+1]
			if a.free && b.free && a.addr+a.size == b.addr {
				h.blocks[i].size = a.size + b.size
				h.blocks = append(h.blocks[:i+1], h.blocks[i+2:]...)
				merged = true
				break
			}
		}
	}
}

func roundUp256(v uint32) uint32 {
	if v%256 == 0 {
		return v
	}
	return v + (256 - v%256)
}
