package storage

import (
	"sync"

	"github.com/dsg-go/stowdb/common"
)

// numSlotsForTuple computes N = floor((pageSize*8) / (tupleSize*8 + 1)),
// the maximum number of fixed-size tuples (plus their one-bit header
// entries) that fit in a page of the given size.
func numSlotsForTuple(pageSize, tupleSize int) int {
	return (pageSize * 8) / (tupleSize*8 + 1)
}

// headerBytesForSlots returns ceil(n/8).
func headerBytesForSlots(n int) int {
	return (n + 7) / 8
}

// HeapPage is a fixed-size slotted page: a header bitmap followed by an
// array of fixed-width tuple slots.
type HeapPage struct {
	mu sync.Mutex

	pid     common.PageID
	desc    *TupleDesc
	numSlot int
	header  int // header byte count

	bytes []byte

	dirtyTid *common.TransactionID
}

// NewHeapPage parses a page image of exactly common.PageSize bytes for
// the given schema. It does not validate the tuple bytes of occupied
// slots; those are only interpreted by Iterator/Tuple(slot).
func NewHeapPage(pid common.PageID, desc *TupleDesc, data []byte) *HeapPage {
	common.Assert(len(data) == common.PageSize, "NewHeapPage: expected %d bytes, got %d", common.PageSize, len(data))
	n := numSlotsForTuple(common.PageSize, desc.Size())
	common.Assert(n > 0, "tuple of size %d does not fit in a page of size %d", desc.Size(), common.PageSize)
	hp := &HeapPage{
		pid:     pid,
		desc:    desc,
		numSlot: n,
		header:  headerBytesForSlots(n),
		bytes:   append([]byte(nil), data...),
	}
	return hp
}

// EmptyPageData returns an all-zero page image of common.PageSize bytes.
func EmptyPageData() []byte {
	return make([]byte, common.PageSize)
}

// PageID returns the page's identity.
func (p *HeapPage) PageID() common.PageID {
	return p.pid
}

// NumSlots returns N, the maximum tuples this page can hold.
func (p *HeapPage) NumSlots() int {
	return p.numSlot
}

func (p *HeapPage) bitmap() slotBitmap {
	return newSlotBitmap(p.bytes[:p.header], p.numSlot)
}

func (p *HeapPage) slotBytes(slot int) []byte {
	off := p.header + slot*p.desc.Size()
	return p.bytes[off : off+p.desc.Size()]
}

// IsSlotUsed reports whether slot i is occupied.
func (p *HeapPage) IsSlotUsed(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bitmap().isSet(i)
}

// MarkSlotUsed sets or clears the occupancy bit for slot i.
func (p *HeapPage) MarkSlotUsed(i int, used bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bitmap().set(i, used)
}

// NumEmptySlots returns the count of cleared bits in the header.
func (p *HeapPage) NumEmptySlots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numSlot - p.bitmap().countSet()
}

// PageData serializes the page to exactly common.PageSize bytes. Unused
// slots round-trip as zero bytes, so two pages with equal logical content
// produce equal images.
func (p *HeapPage) PageData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, common.PageSize)
	copy(out, p.bytes)
	return out
}

// InsertTuple places t in the lowest free slot. On success, t's RecordID
// is set to (p.pid, slot). Fails with SchemaMismatchError if t's TupleDesc
// does not equal the page's, or PageFullError if no slot is free.
func (p *HeapPage) InsertTuple(t *Tuple) error {
	if !t.TupleDesc().Equals(p.desc) {
		return common.NewError(common.SchemaMismatchError, "tuple schema does not match page schema")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	slot := p.bitmap().firstClear()
	if slot == -1 {
		return common.NewError(common.PageFullError, "page %s has no free slot", p.pid)
	}

	t.writeTo(p.slotBytes(slot))
	p.bitmap().set(slot, true)
	t.setRecordID(common.RecordID{PageID: p.pid, Slot: slot})
	return nil
}

// DeleteTuple removes t from its slot. Requires t.RecordID().PageID ==
// p.pid and that the slot is currently occupied; otherwise fails with
// NotFoundError.
func (p *HeapPage) DeleteTuple(t *Tuple) error {
	rid, ok := t.RecordID()
	if !ok || rid.PageID != p.pid {
		return common.NewError(common.NotFoundError, "tuple does not belong to page %s", p.pid)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if rid.Slot < 0 || rid.Slot >= p.numSlot || !p.bitmap().isSet(rid.Slot) {
		return common.NewError(common.NotFoundError, "slot %d is not occupied on page %s", rid.Slot, p.pid)
	}

	p.bitmap().set(rid.Slot, false)
	clearSlot(p.slotBytes(rid.Slot))
	t.clearRecordID()
	return nil
}

func clearSlot(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Tuple reads the tuple currently occupying slot. The caller must have
// confirmed IsSlotUsed(slot).
func (p *HeapPage) Tuple(slot int) *Tuple {
	p.mu.Lock()
	defer p.mu.Unlock()
	return readTuple(p.desc, p.slotBytes(slot), common.RecordID{PageID: p.pid, Slot: slot})
}

// Iterator returns the occupied tuples in ascending slot order. It is a
// snapshot taken at call time: finite, and not restartable -- a caller
// that wants a fresh pass re-invokes Iterator.
func (p *HeapPage) Iterator() []*Tuple {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Tuple, 0, p.numSlot)
	bm := p.bitmap()
	for i := 0; i < p.numSlot; i++ {
		if bm.isSet(i) {
			out = append(out, readTuple(p.desc, p.slotBytes(i), common.RecordID{PageID: p.pid, Slot: i}))
		}
	}
	return out
}

// MarkDirty records that transaction tid dirtied this page, or clears the
// dirty bit when dirty is false.
func (p *HeapPage) MarkDirty(dirty bool, tid common.TransactionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if dirty {
		t := tid
		p.dirtyTid = &t
	} else {
		p.dirtyTid = nil
	}
}

// IsDirty returns the dirtying transaction id, and whether the page is
// dirty at all.
func (p *HeapPage) IsDirty() (common.TransactionID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dirtyTid == nil {
		return 0, false
	}
	return *p.dirtyTid, true
}
