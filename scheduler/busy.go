package scheduler

import "sync/atomic"

// BusyTokens is a lock-free set of per-chunk busy flags. A chunk is busy
// while a Lease on it is held.
type BusyTokens struct {
	words []atomic.Uint64
	count int
}

func NewBusyTokens(chunkCount int) *BusyTokens {
	return &BusyTokens{
		words: make([]atomic.Uint64, (chunkCount+63)/64),
		count: chunkCount,
	}
}

// TryAcquire marks the chunk busy. It returns false when the chunk is already
// busy or out of range.
func (b *BusyTokens) TryAcquire(chunk int) (*Lease, bool) {
	if chunk < 0 || chunk >= b.count {
		return nil, false
	}

	word := &b.words[chunk/64]
	mask := uint64(1) << (chunk % 64)

	for {
		old := word.Load()
		if old&mask != 0 {
			return nil, false
		}
		if word.CompareAndSwap(old, old|mask) {
			return &Lease{tokens: b, chunk: chunk}, true
		}
	}
}

// IsBusy reports whether the chunk is leased. Out of range chunks are busy.
func (b *BusyTokens) IsBusy(chunk int) bool {
	if chunk < 0 || chunk >= b.count {
		return true
	}
	return b.words[chunk/64].Load()&(uint64(1)<<(chunk%64)) != 0
}

// BusyCount returns the number of leased chunks.
func (b *BusyTokens) BusyCount() int {
	var n int
	for i := 0; i < b.count; i++ {
		if b.IsBusy(i) {
			n++
		}
	}
	return n
}

func (b *BusyTokens) clear(chunk int) {
	word := &b.words[chunk/64]
	mask := uint64(1) << (chunk % 64)

	for {
		old := word.Load()
		if word.CompareAndSwap(old, old&^mask) {
			return
		}
	}
}

// Lease is the right to edit a chunk. Releasing it more than once has no
// effect.
type Lease struct {
	tokens   *BusyTokens
	chunk    int
	released atomic.Bool
}

func (l *Lease) Chunk() int {
	return l.chunk
}

func (l *Lease) Release() {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	l.tokens.clear(l.chunk)
}
