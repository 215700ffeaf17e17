package ringbuf

import (
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
)

const (
	MinNumBufs   = 2
	MaxNumBufs   = 32
	MinBlockSize = 16
	MaxBlockSize = 8192
)

// Slot selects a buffer of the ring, or none at all.
type Slot struct {
	idx int
	set bool
}

// Empty is the slot that selects no buffer.
var Empty = Slot{}

// At returns the slot selecting buffer i.
func At(i int) Slot {
	return Slot{idx: i, set: true}
}

// Index returns the selected buffer, if any.
func (s Slot) Index() (int, bool) {
	return s.idx, s.set
}

func (s Slot) IsEmpty() bool {
	return !s.set
}

// Policy controls when the consumer side of a ring starts to see data.
type Policy int

const (
	// Immediate hands out every buffer as soon as it is committed.
	Immediate Policy = iota
	// WhenFull holds the consumer off until every buffer of the ring is committed,
	// and again each time the ring drains completely.
	WhenFull
)

// Ring is a ring of fixed-size blocks. The producer fills the block selected by in,
// the consumer drains the block selected by out. in is Empty when every block is
// waiting for the consumer, out is Empty when no block is ready.
type Ring[T any] struct {
	blocks    [][]T
	lens      []int
	readPos   int
	in, out   Slot
	blockSize int
	policy    Policy
	held      bool
}

// NewRing allocates a ring of numBufs blocks of blockSize elements each.
func NewRing[T any](blockSize, numBufs int) (*Ring[T], error) {
	r := &Ring[T]{}
	if err := r.Resize(blockSize, numBufs); err != nil {
		return nil, err
	}
	return r, nil
}

func validate(blockSize, numBufs int) error {
	if numBufs < MinNumBufs || numBufs > MaxNumBufs {
		return errors.ErrInvalidArgf("number of buffers %d out of range [%d, %d]", numBufs, MinNumBufs, MaxNumBufs)
	}
	if blockSize < MinBlockSize || blockSize > MaxBlockSize {
		return errors.ErrInvalidArgf("block size %d out of range [%d, %d]", blockSize, MinBlockSize, MaxBlockSize)
	}
	return nil
}

// Resize replaces the backing storage and resets all indices. Buffered data is discarded.
func (r *Ring[T]) Resize(blockSize, numBufs int) error {
	if err := validate(blockSize, numBufs); err != nil {
		return err
	}
	store := make([]T, blockSize*numBufs)
	blocks := make([][]T, numBufs)
	for i := range blocks {
		blocks[i] = store[i*blockSize : (i+1)*blockSize : (i+1)*blockSize]
	}
	r.blocks = blocks
	r.lens = make([]int, numBufs)
	r.blockSize = blockSize
	r.reset()
	return nil
}

func (r *Ring[T]) reset() {
	clear(r.lens)
	r.readPos = 0
	r.in = At(0)
	r.out = Empty
	r.held = r.policy == WhenFull
}

// Flush drops all buffered data, keeping the storage.
func (r *Ring[T]) Flush() {
	r.reset()
}

func (r *Ring[T]) SetPolicy(p Policy) {
	r.policy = p
	r.held = p == WhenFull && !r.in.IsEmpty()
}

func (r *Ring[T]) Policy() Policy {
	return r.policy
}

func (r *Ring[T]) BlockSize() int {
	return r.blockSize
}

func (r *Ring[T]) NumBufs() int {
	return len(r.blocks)
}

func (r *Ring[T]) In() Slot {
	return r.in
}

func (r *Ring[T]) Out() Slot {
	if r.held {
		return Empty
	}
	return r.out
}

// Full reports whether every block is waiting for the consumer.
func (r *Ring[T]) Full() bool {
	return r.in.IsEmpty()
}

// Held reports whether the WhenFull policy is keeping the consumer off.
func (r *Ring[T]) Held() bool {
	return r.held
}

// Ready returns the number of committed blocks not yet fully drained.
func (r *Ring[T]) Ready() int {
	o, ok := r.out.Index()
	if !ok {
		return 0
	}
	if i, ok := r.in.Index(); ok {
		return (i - o + len(r.blocks)) % len(r.blocks)
	}
	return len(r.blocks)
}

// Len returns the number of elements written and not yet read, including the
// uncommitted part of the producer block.
func (r *Ring[T]) Len() int {
	n := r.Pending()
	o, ok := r.out.Index()
	if !ok {
		return n
	}
	for k := 0; k < r.Ready(); k++ {
		n += r.lens[(o+k)%len(r.blocks)]
	}
	return n - r.readPos
}

// Pending returns the number of elements in the producer block.
func (r *Ring[T]) Pending() int {
	i, ok := r.in.Index()
	if !ok {
		return 0
	}
	return r.lens[i]
}

// Room returns free space in the producer block.
func (r *Ring[T]) Room() int {
	if r.in.IsEmpty() {
		return 0
	}
	return r.blockSize - r.Pending()
}

// Fill copies as much of p as fits into the producer block.
func (r *Ring[T]) Fill(p []T) int {
	i, ok := r.in.Index()
	if !ok {
		return 0
	}
	n := copy(r.blocks[i][r.lens[i]:r.blockSize], p)
	r.lens[i] += n
	return n
}

// Put appends a single element to the producer block.
func (r *Ring[T]) Put(v T) bool {
	i, ok := r.in.Index()
	if !ok || r.lens[i] >= r.blockSize {
		return false
	}
	r.blocks[i][r.lens[i]] = v
	r.lens[i]++
	return true
}

// InBlock returns the filled part of the producer block.
func (r *Ring[T]) InBlock() []T {
	i, ok := r.in.Index()
	if !ok {
		return nil
	}
	return r.blocks[i][:r.lens[i]]
}

// Discard drops the uncommitted content of the producer block.
func (r *Ring[T]) Discard() {
	if i, ok := r.in.Index(); ok {
		r.lens[i] = 0
	}
}

// Truncate shortens the producer block to n elements.
func (r *Ring[T]) Truncate(n int) {
	if i, ok := r.in.Index(); ok && n < r.lens[i] {
		r.lens[i] = max(n, 0)
	}
}

// Commit hands the producer block to the consumer. Empty blocks are not committed.
// It returns false if there was nothing to commit.
func (r *Ring[T]) Commit() bool {
	i, ok := r.in.Index()
	if !ok || r.lens[i] == 0 {
		return false
	}
	if r.out.IsEmpty() {
		r.out = At(i)
		r.readPos = 0
	}
	next := (i + 1) % len(r.blocks)
	if o, _ := r.out.Index(); next == o {
		r.in = Empty
		r.held = false
	} else {
		r.in = At(next)
		r.lens[next] = 0
	}
	if r.policy == Immediate {
		r.held = false
	}
	return true
}

// OutBlock returns the unread part of the consumer block.
func (r *Ring[T]) OutBlock() []T {
	o, ok := r.Out().Index()
	if !ok {
		return nil
	}
	return r.blocks[o][r.readPos:r.lens[o]]
}

// Consume marks n elements of the consumer block as read.
// It returns true when the block was finished and released to the producer.
func (r *Ring[T]) Consume(n int) bool {
	o, ok := r.Out().Index()
	if !ok {
		return false
	}
	r.readPos += n
	if r.readPos < r.lens[o] {
		return false
	}
	r.lens[o] = 0
	r.readPos = 0
	if r.in.IsEmpty() {
		r.in = At(o)
	}
	next := (o + 1) % len(r.blocks)
	if i, _ := r.in.Index(); next == i {
		r.out = Empty
		if r.policy == WhenFull {
			r.held = true
		}
	} else {
		r.out = At(next)
	}
	return true
}

// Drain copies up to len(p) elements out of the consumer block. It never crosses a block boundary.
func (r *Ring[T]) Drain(p []T) (int, bool) {
	n := copy(p, r.OutBlock())
	if n == 0 {
		return 0, false
	}
	return n, r.Consume(n)
}
