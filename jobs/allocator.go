// Package jobs implements the lock-free bitmask job allocator used by the
// ray pipeline to distribute fixed-size work slots across parallel
// invocations. Every word is manipulated only through compare-and-swap
// retry loops; the same shape the WGSL side uses with atomicCompareExchangeWeak.
package jobs

import (
	"math/bits"
	"sync/atomic"
)

// BitsPerWord is the slot capacity of one bitmask word.
const BitsPerWord = 32

// NoJob is returned when a word has no bit to claim or release.
const NoJob int32 = -1

// Allocator tracks slot occupancy with one bit per slot. A set bit means
// the slot is claimed. The zero state (all words clear) is fully free;
// the caller resets the words once per dispatch.
type Allocator struct {
	words []atomic.Uint32
	slots int
}

// NewAllocator sizes a pool of slots; capacity rounds up to whole words.
func NewAllocator(slots int) *Allocator {
	nWords := (slots + BitsPerWord - 1) / BitsPerWord
	return &Allocator{
		words: make([]atomic.Uint32, nWords),
		slots: slots,
	}
}

// Slots returns the pool capacity.
func (a *Allocator) Slots() int {
	return a.slots
}

// Words returns the word count of the bitmask.
func (a *Allocator) Words() int {
	return len(a.words)
}

// Reset clears every word. Not safe against concurrent claims; callers
// reset between dispatches, never inside one.
func (a *Allocator) Reset() {
	for i := range a.words {
		a.words[i].Store(0)
	}
}

// InsertJobIndex claims one free slot in word w and returns its bit
// position, or NoJob if the word is fully allocated. The CAS retry loop
// guarantees no two concurrent claims observe the same bit.
func (a *Allocator) InsertJobIndex(w int) int32 {
	for {
		old := a.words[w].Load()
		free := ^old & a.wordMask(w)
		if free == 0 {
			return NoJob
		}
		bit := uint32(bits.TrailingZeros32(free))
		if a.words[w].CompareAndSwap(old, old|1<<bit) {
			return int32(bit)
		}
	}
}

// ExtractJobIndex returns one claimed slot of word w to the pool and
// reports its bit position, or NoJob if the word is fully returned.
func (a *Allocator) ExtractJobIndex(w int) int32 {
	for {
		old := a.words[w].Load()
		if old == 0 {
			return NoJob
		}
		bit := uint32(bits.TrailingZeros32(old))
		if a.words[w].CompareAndSwap(old, old&^(1<<bit)) {
			return int32(bit)
		}
	}
}

// ReinsertJob unconditionally re-claims a known-free bit of word w, used
// to hand a specific slot back into use without racing a scan.
func (a *Allocator) ReinsertJob(w int, bit uint32) {
	for {
		old := a.words[w].Load()
		if a.words[w].CompareAndSwap(old, old|1<<bit) {
			return
		}
	}
}

// FindEmptyAtomic scans for a word with spare capacity and claims one bit
// in it, returning the global slot index, or NoJob when the pool is
// exhausted. Linear scan; the accepted contention ceiling of the design.
func (a *Allocator) FindEmptyAtomic() int32 {
	for w := range a.words {
		if bit := a.InsertJobIndex(w); bit != NoJob {
			return int32(w)*BitsPerWord + bit
		}
	}
	return NoJob
}

// FindBusyAtomic scans for a word with claimed slots and releases one,
// returning the global slot index, or NoJob when the pool is fully free.
func (a *Allocator) FindBusyAtomic() int32 {
	for w := range a.words {
		if bit := a.ExtractJobIndex(w); bit != NoJob {
			return int32(w)*BitsPerWord + bit
		}
	}
	return NoJob
}

// Release frees a specific global slot index.
func (a *Allocator) Release(slot int32) {
	w := int(slot) / BitsPerWord
	bit := uint32(slot) % BitsPerWord
	for {
		old := a.words[w].Load()
		if a.words[w].CompareAndSwap(old, old&^(1<<bit)) {
			return
		}
	}
}

// Free counts currently unclaimed slots. Approximate under concurrency.
func (a *Allocator) Free() int {
	free := 0
	for w := range a.words {
		used := bits.OnesCount32(a.words[w].Load() & a.wordMask(w))
		capacity := BitsPerWord
		if w == len(a.words)-1 && a.slots%BitsPerWord != 0 {
			capacity = a.slots % BitsPerWord
		}
		free += capacity - used
	}
	return free
}

// ToBytes serializes the bitmask words for upload as the GPU-side
// allocator buffer.
func (a *Allocator) ToBytes() []byte {
	buf := make([]byte, len(a.words)*4)
	for i := range a.words {
		v := a.words[i].Load()
		buf[i*4] = byte(v)
		buf[i*4+1] = byte(v >> 8)
		buf[i*4+2] = byte(v >> 16)
		buf[i*4+3] = byte(v >> 24)
	}
	return buf
}

// ToBytesSealed serializes the words with every bit past the pool size
// pre-claimed. The GPU claim loop scans whole words without a tail mask,
// so the upload must make out-of-range slots look busy.
func (a *Allocator) ToBytesSealed() []byte {
	buf := a.ToBytes()
	if len(a.words) == 0 {
		return buf
	}
	w := len(a.words) - 1
	v := a.words[w].Load() | ^a.wordMask(w)
	buf[w*4] = byte(v)
	buf[w*4+1] = byte(v >> 8)
	buf[w*4+2] = byte(v >> 16)
	buf[w*4+3] = byte(v >> 24)
	return buf
}

// wordMask masks off bits beyond the pool size in the last word.
func (a *Allocator) wordMask(w int) uint32 {
	if w == len(a.words)-1 {
		if r := a.slots % BitsPerWord; r != 0 {
			return 1<<r - 1
		}
	}
	return 0xFFFFFFFF
}
