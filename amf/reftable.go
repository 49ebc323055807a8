package amf

// RefTable assigns dense indices, starting at 0, to keys in first-seen order.
type RefTable[K comparable] struct {
	index   map[K]int
	entries []refEntry[K]
}

type refEntry[K comparable] struct {
	key   K
	keyed bool
}

// NewRefTable returns an empty table.
func NewRefTable[K comparable]() *RefTable[K] {
	return &RefTable[K]{index: make(map[K]int)}
}

// Lookup returns the index assigned to k.
func (t *RefTable[K]) Lookup(k K) (int, bool) {
	i, ok := t.index[k]
	return i, ok
}

// Add assigns the next index to k unless it already has one.
func (t *RefTable[K]) Add(k K) int {
	if i, ok := t.index[k]; ok {
		return i
	}
	i := len(t.entries)
	t.index[k] = i
	t.entries = append(t.entries, refEntry[K]{key: k, keyed: true})
	return i
}

// Reserve consumes the next index without a key. Used for values that occupy a slot in
// the peer's table but can never be referenced again by this side.
func (t *RefTable[K]) Reserve() int {
	t.entries = append(t.entries, refEntry[K]{})
	return len(t.entries) - 1
}

// Len returns the number of indices handed out.
func (t *RefTable[K]) Len() int {
	return len(t.entries)
}

// Truncate forgets every index at or above n. An encoder uses it to drop the entries
// added by a value that failed to encode and was never sent.
func (t *RefTable[K]) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	for i := n; i < len(t.entries); i++ {
		if t.entries[i].keyed {
			delete(t.index, t.entries[i].key)
		}
	}
	if n < len(t.entries) {
		t.entries = t.entries[:n]
	}
}
