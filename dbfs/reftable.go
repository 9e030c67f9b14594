package dbfs

// refTable maps kernel-visible identifiers to values with a reference
// count. It does no locking; Session serializes access.
type refTable[K comparable, V any] struct {
	entries map[K]*refEntry[V]
}

type refEntry[V any] struct {
	val  V
	refs uint64
}

func newRefTable[K comparable, V any]() refTable[K, V] {
	return refTable[K, V]{entries: make(map[K]*refEntry[V])}
}

// insert adds k with a refcount of one. An existing entry is replaced.
func (t refTable[K, V]) insert(k K, v V) {
	t.entries[k] = &refEntry[V]{val: v, refs: 1}
}

func (t refTable[K, V]) get(k K) (V, bool) {
	e, ok := t.entries[k]
	if !ok {
		var zero V
		return zero, false
	}
	return e.val, true
}

// retain adds n references to k and reports whether k was present.
func (t refTable[K, V]) retain(k K, n uint64) bool {
	e, ok := t.entries[k]
	if ok {
		e.refs += n
	}
	return ok
}

// release drops n references from k. The entry is evicted when the count
// reaches zero. Dropping more references than k holds also evicts it and
// reports ErrRefcountUnderflow.
func (t refTable[K, V]) release(k K, n uint64) (v V, evicted bool, err error) {
	e, ok := t.entries[k]
	if !ok {
		return v, false, ErrStale
	}
	if n > e.refs {
		delete(t.entries, k)
		return e.val, true, ErrRefcountUnderflow
	}
	e.refs -= n
	if e.refs == 0 {
		delete(t.entries, k)
		return e.val, true, nil
	}
	return e.val, false, nil
}

func (t refTable[K, V]) refs(k K) uint64 {
	if e, ok := t.entries[k]; ok {
		return e.refs
	}
	return 0
}

func (t refTable[K, V]) len() int { return len(t.entries) }
