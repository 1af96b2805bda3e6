package core

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/btree"
)

// indexItem is the btree.Item stored for each key: the key itself orders
// the item, loc is its current physical location.
type indexItem struct {
	key []byte
	loc Location
}

func (it *indexItem) Less(other btree.Item) bool {
	return bytes.Compare(it.key, other.(*indexItem).key) < 0
}

// index is the in-memory key to location map. The underlying btree is not
// safe for concurrent use, so every method takes the index's own RWMutex; this
// mirrors the teacher's plain map guarded by db.rw sync.RWMutex, substituting
// an ordered B-tree for the original skip list per spec.md's explicitly
// sanctioned substitute.
type index struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

func newIndex() *index {
	return &index{tree: btree.New(32)}
}

// put inserts or overwrites key's location, returning the location it
// displaced, if any.
func (x *index) put(key []byte, loc Location) (Location, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	prev := x.tree.ReplaceOrInsert(&indexItem{key: key, loc: loc})
	if prev == nil {
		return Location{}, false
	}
	return prev.(*indexItem).loc, true
}

func (x *index) get(key []byte) (Location, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	item := x.tree.Get(&indexItem{key: key})
	if item == nil {
		return Location{}, false
	}
	return item.(*indexItem).loc, true
}

func (x *index) delete(key []byte) (Location, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	item := x.tree.Delete(&indexItem{key: key})
	if item == nil {
		return Location{}, false
	}
	return item.(*indexItem).loc, true
}

func (x *index) len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.tree.Len()
}

// compareAndSwap replaces key's location with next only if its current
// location equals prev. Used by merge to patch the index without clobbering
// a concurrent write that landed after the merge copy was taken.
func (x *index) compareAndSwap(key []byte, prev, next Location) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	item := x.tree.Get(&indexItem{key: key})
	if item == nil || item.(*indexItem).loc != prev {
		return false
	}
	x.tree.ReplaceOrInsert(&indexItem{key: key, loc: next})
	return true
}

// forEach calls fn for every (key, location) pair under a single read lock.
// fn must not call back into the index.
func (x *index) forEach(fn func(key []byte, loc Location)) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	x.tree.Ascend(func(item btree.Item) bool {
		it := item.(*indexItem)
		fn(it.key, it.loc)
		return true
	})
}

func (x *index) listKeys() [][]byte {
	x.mu.RLock()
	defer x.mu.RUnlock()
	keys := make([][]byte, 0, x.tree.Len())
	x.tree.Ascend(func(item btree.Item) bool {
		keys = append(keys, item.(*indexItem).key)
		return true
	})
	return keys
}

// iterator walks a stable, sorted copy of (key, location) pairs matching
// opts, taken by index.iterator under a single read lock. It is immune to
// subsequent mutation of the index, matching the copy-at-construction
// semantics of the original skip-list iterator.
type iterator struct {
	items   []indexItem
	reverse bool
	pos     int
}

func (x *index) iterator(opts IteratorOptions) *iterator {
	x.mu.RLock()
	defer x.mu.RUnlock()

	items := make([]indexItem, 0, x.tree.Len())
	x.tree.Ascend(func(bi btree.Item) bool {
		it := bi.(*indexItem)
		if len(opts.Prefix) == 0 || bytes.HasPrefix(it.key, opts.Prefix) {
			items = append(items, indexItem{key: it.key, loc: it.loc})
		}
		return true
	})

	if opts.Reverse {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}

	return &iterator{items: items, reverse: opts.Reverse}
}

func (it *iterator) rewind() {
	it.pos = 0
}

// seek positions the iterator at the first key >= target (or, in reverse
// order, the first key <= target).
func (it *iterator) seek(target []byte) {
	if it.reverse {
		it.pos = sort.Search(len(it.items), func(i int) bool {
			return bytes.Compare(it.items[i].key, target) <= 0
		})
		return
	}
	it.pos = sort.Search(len(it.items), func(i int) bool {
		return bytes.Compare(it.items[i].key, target) >= 0
	})
}

func (it *iterator) valid() bool {
	return it.pos < len(it.items)
}

func (it *iterator) next() {
	it.pos++
}

func (it *iterator) key() []byte {
	return it.items[it.pos].key
}

func (it *iterator) location() Location {
	return it.items[it.pos].loc
}

func (it *iterator) close() {
	it.items = nil
}
