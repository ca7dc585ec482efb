package aggregator

// Ring is a fixed-capacity circular buffer of candles keyed by bucket start
// (unix seconds). Slots never move, so the key map stays valid across evictions.
type Ring struct {
	slots []Candle
	keys  []int64
	index map[int64]int
	head  int // slot of the oldest candle
	size  int
}

// NewRing allocates a ring holding at most capacity candles.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		slots: make([]Candle, capacity),
		keys:  make([]int64, capacity),
		index: make(map[int64]int, capacity),
	}
}

// Len returns the number of candles held.
func (r *Ring) Len() int { return r.size }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.slots) }

// Get returns a pointer to the candle stored under key, if present.
func (r *Ring) Get(key int64) (*Candle, bool) {
	slot, ok := r.index[key]
	if !ok {
		return nil, false
	}
	return &r.slots[slot], true
}

// Append stores c under key as the newest candle. When the ring is full the
// oldest candle is evicted and true is returned.
func (r *Ring) Append(key int64, c Candle) (evicted bool) {
	capacity := len(r.slots)
	var slot int
	if r.size < capacity {
		slot = (r.head + r.size) % capacity
		r.size++
	} else {
		slot = r.head
		delete(r.index, r.keys[slot])
		r.head = (r.head + 1) % capacity
		evicted = true
	}
	r.slots[slot] = c
	r.keys[slot] = key
	r.index[key] = slot
	return evicted
}

// Snapshot copies the candles in insertion order, oldest first.
func (r *Ring) Snapshot() []Candle {
	out := make([]Candle, r.size)
	capacity := len(r.slots)
	for i := 0; i < r.size; i++ {
		out[i] = r.slots[(r.head+i)%capacity]
	}
	return out
}

// Clear drops every candle; the backing storage is reused.
func (r *Ring) Clear() {
	clear(r.index)
	r.head = 0
	r.size = 0
}
