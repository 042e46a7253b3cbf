package cuckoo

import (
	"fmt"
	"math/bits"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"
)

const (
	// defaultTableBase is the size exponent of a table built without
	// a capacity hint: 2^9 = 512 buckets.
	defaultTableBase = 9
	// minTableBase is the floor for the size exponent. The table
	// never shrinks and is never built smaller than 2^4 buckets.
	minTableBase = 4
	// maxPathDepth bounds the BFS displacement search. A search that
	// cannot reach a free slot within this depth declares the table
	// too full and triggers a grow.
	maxPathDepth = 128
	// maxSearchEntries bounds the BFS arena. Every expanded bucket
	// enqueues at most bucketSlots alternates.
	maxSearchEntries = bucketSlots * maxPathDepth
)

// cuckooStatus is the internal outcome of one insert step. It is
// never surfaced to callers; the public operations return booleans.
type cuckooStatus uint8

const (
	// statusOK: the step applied.
	statusOK cuckooStatus = iota
	// statusDuplicate: an equal key is already present.
	statusDuplicate
	// statusFull: both candidate buckets are packed; a displacement
	// path is needed.
	statusFull
	// statusMaxstep: the displacement search ran out of depth or
	// drained its frontier without reaching a free slot.
	statusMaxstep
	// statusRace: the table generation changed under a held lock, or
	// a path step failed revalidation. Recovered by releasing and
	// restarting the insert.
	statusRace
)

// Map is a concurrent bucketized cuckoo hash table. It maps unique
// keys to values and is safe for use by multiple goroutines without
// additional locking or coordination.
//
// Every key has exactly two candidate buckets derived from its hash,
// so a lookup probes at most two buckets regardless of table size.
// Inserts that find both candidates full run a breadth-first search
// over the bucket graph for a chain of displacements ending in a free
// slot, then replay that chain under pairwise bucket locks. When no
// chain exists within the depth budget the table doubles.
//
// Buckets are guarded by an array of cache-line padded spinlocks, one
// per bucket. Multi-bucket critical sections always acquire locks in
// ascending index order. The table generation (its size exponent) is
// re-checked after every lock acquisition, so operations racing a
// grow simply release and retry against the new table.
//
// A Map must be created by New or NewWithHasher and must not be
// copied after first use.
type Map[K comparable, V any] struct {
	//lint:ignore U1000 prevents false sharing
	pad [(CacheLineSize - unsafe.Sizeof(struct {
		_            noCopy
		table        unsafe.Pointer
		base         atomic.Uint32
		totalGrowths atomic.Uint32
		resizeMu     sync.Mutex
		seed         uintptr
		keyHash      hashFunc
		keyEqual     equalFunc
	}{})%CacheLineSize) % CacheLineSize]byte

	_            noCopy
	table        atomic.Pointer[table[K, V]]
	base         atomic.Uint32 // published generation, mirrors table.base
	totalGrowths atomic.Uint32
	resizeMu     sync.Mutex // serializes growers
	seed         uintptr
	keyHash      hashFunc
	keyEqual     equalFunc
}

// Config defines configurable Map options.
type Config struct {
	sizeHint int
}

// WithPresize configures a new Map instance with capacity enough to
// hold sizeHint entries. If sizeHint is zero or negative, the value
// is ignored and the default table size is used.
func WithPresize(sizeHint int) func(*Config) {
	return func(c *Config) {
		c.sizeHint = sizeHint
	}
}

// New creates a Map keyed and compared with Go's built-in hash and
// equality for K.
func New[K comparable, V any](options ...func(*Config)) *Map[K, V] {
	return NewWithHasher[K, V](nil, nil, options...)
}

// NewWithHasher creates a Map with custom hashing and key equality.
//
// Parameters:
//   - keyHash: nil uses the built-in hasher
//   - keyEqual: nil uses the built-in comparison
//   - WithPresize option for initial capacity
func NewWithHasher[K comparable, V any](
	keyHash func(key K, seed uintptr) uintptr,
	keyEqual func(a, b K) bool,
	options ...func(*Config),
) *Map[K, V] {
	var hs hashFunc
	var eq equalFunc
	if keyHash != nil {
		hs = func(pointer unsafe.Pointer, seed uintptr) uintptr {
			return keyHash(*(*K)(pointer), seed)
		}
	}
	if keyEqual != nil {
		eq = func(a unsafe.Pointer, b unsafe.Pointer) bool {
			return keyEqual(*(*K)(a), *(*K)(b))
		}
	}
	m := &Map[K, V]{}
	m.init(hs, eq, options...)
	return m
}

func (m *Map[K, V]) init(hs hashFunc, eq equalFunc, options ...func(*Config)) {
	c := &Config{}
	for _, o := range options {
		o(c)
	}

	m.seed = uintptr(rand.Uint64())
	m.keyHash, m.keyEqual = defaultHasher[K]()
	if hs != nil {
		m.keyHash = hs
	}
	if eq != nil {
		m.keyEqual = eq
	}

	t := newTable[K, V](calcTableBase(c.sizeHint))
	m.table.Store(t)
	m.base.Store(t.base)
}

// calcTableBase computes the size exponent for a capacity hint.
func calcTableBase(sizeHint int) uint32 {
	if sizeHint <= 0 {
		return defaultTableBase
	}
	buckets := nextPowOf2((sizeHint + bucketSlots - 1) / bucketSlots)
	base := uint32(bits.TrailingZeros(uint(buckets)))
	if base < minTableBase {
		base = minTableBase
	}
	return base
}

// Load returns the value stored for key and whether it is present.
func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	h := m.keyHash(noescape(unsafe.Pointer(&key)), m.seed)
	tag := partialTag(h)
	for {
		t := m.table.Load()
		i1 := indexOff(h, t.mask)
		i2 := altOff(tag, i1, t.mask)
		t.lockPair(i1, i2)
		if m.base.Load() != t.base {
			// The table grew while we waited for the locks; these
			// locks no longer guard current buckets.
			t.unlockPair(i1, i2)
			continue
		}
		b := &t.buckets[i1]
		s := b.findSlot(tag, &key, m.keyEqual)
		if s < 0 && i2 != i1 {
			b = &t.buckets[i2]
			s = b.findSlot(tag, &key, m.keyEqual)
		}
		if s >= 0 {
			value, ok = b.vals[s], true
		}
		t.unlockPair(i1, i2)
		return
	}
}

// Lookup reports whether key is present.
func (m *Map[K, V]) Lookup(key K) bool {
	_, ok := m.Load(key)
	return ok
}

// Insert adds the key-value pair and returns true, or returns false
// if an equal key is already present. Concurrent inserts of equal
// keys see exactly one winner.
func (m *Map[K, V]) Insert(key K, value V) bool {
	h := m.keyHash(noescape(unsafe.Pointer(&key)), m.seed)
	tag := partialTag(h)
	for {
		t := m.table.Load()
		i1 := indexOff(h, t.mask)
		i2 := altOff(tag, i1, t.mask)
		switch m.insertAttempt(t, i1, i2, tag, &key, &value) {
		case statusOK:
			return true
		case statusDuplicate:
			return false
		case statusRace:
			continue
		}
		// Both candidate buckets are packed. The displacement search
		// must not run under the pair lock, so it starts from scratch
		// against the same table snapshot.
		if m.makeRoom(t, i1, i2) == statusMaxstep {
			m.grow(t)
		}
		// On statusOK the head bucket has room now; on statusRace the
		// table grew or a path step failed revalidation. Either way,
		// take it from the top:
		// the retried attempt re-checks duplicates, which keeps racing
		// inserts of equal keys at-most-once.
	}
}

// insertAttempt is the fast path: both candidate buckets locked, a
// duplicate scan, then a first-empty install.
func (m *Map[K, V]) insertAttempt(
	t *table[K, V], i1, i2 uintptr, tag uint8, key *K, value *V,
) cuckooStatus {
	t.lockPair(i1, i2)
	if m.base.Load() != t.base {
		t.unlockPair(i1, i2)
		return statusRace
	}
	b1 := &t.buckets[i1]
	if b1.findSlot(tag, key, m.keyEqual) >= 0 {
		t.unlockPair(i1, i2)
		return statusDuplicate
	}
	b2 := &t.buckets[i2]
	if i2 != i1 && b2.findSlot(tag, key, m.keyEqual) >= 0 {
		t.unlockPair(i1, i2)
		return statusDuplicate
	}
	if s := b1.freeSlot(); s >= 0 {
		b1.install(s, tag, *key, *value)
		t.addSize(i1, 1)
		t.unlockPair(i1, i2)
		return statusOK
	}
	if i2 != i1 {
		if s := b2.freeSlot(); s >= 0 {
			b2.install(s, tag, *key, *value)
			t.addSize(i2, 1)
			t.unlockPair(i1, i2)
			return statusOK
		}
	}
	t.unlockPair(i1, i2)
	return statusFull
}

// pathNode is one record of the BFS arena. The arena doubles as the
// visited set and as the parent tree the final path is read from, so
// the search allocates once per call and never per step.
type pathNode struct {
	bucket uintptr
	parent int32 // arena index of the predecessor, -1 for seeds
	slot   int8  // slot in the parent bucket whose occupant moves here
	tag    uint8 // that occupant's tag, for revalidation during replay
	depth  int16
}

// makeRoom searches for a displacement path from the candidate
// buckets to a free slot and replays it. On statusOK one of the
// candidates has a free slot (momentarily, at least).
func (m *Map[K, V]) makeRoom(t *table[K, V], i1, i2 uintptr) cuckooStatus {
	arena, found, st := m.findPath(t, i1, i2)
	if st != statusOK {
		return st
	}
	return m.executePath(t, arena, found)
}

// findPath runs a breadth-first search over the bucket graph: the
// nodes are buckets, the edges lead from a bucket to the alternate
// bucket of one of its occupants. It returns the arena and the index
// of the first node whose bucket has a free slot.
//
// Expansion locks only the bucket being read; tags are snapshotted
// under that lock and the lock is dropped before enqueueing. The
// snapshot may go stale immediately, which is fine: the replay
// revalidates every step.
func (m *Map[K, V]) findPath(
	t *table[K, V], i1, i2 uintptr,
) ([]pathNode, int, cuckooStatus) {
	arena := make([]pathNode, 0, maxSearchEntries)
	arena = append(arena, pathNode{bucket: i1, parent: -1})
	if i2 != i1 {
		arena = append(arena, pathNode{bucket: i2, parent: -1})
	}
	for head := 0; head < len(arena); head++ {
		n := arena[head]
		lk := &t.locks[n.bucket]
		lk.lock()
		if m.base.Load() != t.base {
			lk.unlock()
			return nil, 0, statusRace
		}
		b := &t.buckets[n.bucket]
		if b.freeSlot() >= 0 {
			lk.unlock()
			return arena, head, statusOK
		}
		var tags [bucketSlots]uint8
		for s := range tags {
			tags[s] = b.tagAt(s)
		}
		lk.unlock()
		if int(n.depth) >= maxPathDepth {
			continue
		}
		for s, tg := range tags {
			alt := altOff(tg, n.bucket, t.mask)
			if pathSeen(arena, alt) || len(arena) == cap(arena) {
				continue
			}
			arena = append(arena, pathNode{
				bucket: alt,
				parent: int32(head),
				slot:   int8(s),
				tag:    tg,
				depth:  n.depth + 1,
			})
		}
	}
	// Frontier drained (or the arena filled) without reaching a free
	// slot: the table is too full around these buckets.
	return nil, 0, statusMaxstep
}

func pathSeen(arena []pathNode, bucket uintptr) bool {
	for i := range arena {
		if arena[i].bucket == bucket {
			return true
		}
	}
	return false
}

// executePath replays a displacement path from its tail toward its
// head, shifting each occupant into its alternate bucket and thereby
// vacating a slot in the head bucket. Each step holds exactly the two
// bucket locks it touches and revalidates before moving: the source
// slot must still carry the recorded tag and the destination must
// still have room. Tag equality is sufficient for placement legality
// because the alternate index depends only on the tag and the bucket
// position, never on the key itself.
func (m *Map[K, V]) executePath(
	t *table[K, V], arena []pathNode, found int,
) cuckooStatus {
	var chain [maxPathDepth + 1]int32
	length := 0
	for n := int32(found); n >= 0; n = arena[n].parent {
		chain[length] = n
		length++
	}
	// chain[length-1] is a seed bucket, chain[0] the bucket with the
	// free slot. Walk from the free end back toward the seed.
	for k := 0; k < length-1; k++ {
		dst := arena[chain[k]]
		src := arena[chain[k+1]]
		t.lockPair(src.bucket, dst.bucket)
		if m.base.Load() != t.base {
			t.unlockPair(src.bucket, dst.bucket)
			return statusRace
		}
		sb := &t.buckets[src.bucket]
		db := &t.buckets[dst.bucket]
		if sb.tagAt(int(dst.slot)) != dst.tag {
			// The slot changed since the search saw it.
			t.unlockPair(src.bucket, dst.bucket)
			return statusRace
		}
		fs := db.freeSlot()
		if fs < 0 {
			t.unlockPair(src.bucket, dst.bucket)
			return statusRace
		}
		db.install(fs, dst.tag, sb.keys[dst.slot], sb.vals[dst.slot])
		sb.clear(int(dst.slot))
		t.unlockPair(src.bucket, dst.bucket)
	}
	return statusOK
}

// grow doubles the table. Growers serialize on resizeMu; the winner
// acquires every bucket lock of the old table in ascending order,
// re-places all occupants into a fresh table, publishes the table
// pointer and then the generation, and finally releases everything.
// Readers that loaded the old generation still hold valid (old) locks
// and discover the change on their generation re-check. The old table
// and its lock array become garbage once no goroutine references
// them; reclamation is the collector's job.
func (m *Map[K, V]) grow(old *table[K, V]) {
	m.resizeMu.Lock()
	if m.base.Load() != old.base {
		// Another thread already grew the table.
		m.resizeMu.Unlock()
		return
	}
	old.lockAll()
	newBase := old.base + 1
	var nt *table[K, V]
	for {
		nt = newTable[K, V](newBase)
		if m.rehashInto(old, nt) {
			break
		}
		// A failed re-place is vanishingly rare since the load factor
		// halves on every doubling. Double again.
		newBase++
	}
	m.table.Store(nt)
	m.base.Store(newBase)
	m.totalGrowths.Add(1)
	old.unlockAll()
	m.resizeMu.Unlock()
}

// rehashInto re-places every occupied slot of old into nt. The caller
// owns both tables exclusively.
func (m *Map[K, V]) rehashInto(old, nt *table[K, V]) bool {
	for i := range old.buckets {
		b := &old.buckets[i]
		for s := 0; s < bucketSlots; s++ {
			tag := b.tagAt(s)
			if tag == 0 {
				continue
			}
			h := m.keyHash(noescape(unsafe.Pointer(&b.keys[s])), m.seed)
			if !nt.place(tag, h, b.keys[s], b.vals[s]) {
				return false
			}
		}
	}
	return true
}

// place inserts during rehash: primary bucket, else alternate, else a
// bounded displacement walk. No locks are involved; the caller is the
// table's only owner.
func (t *table[K, V]) place(tag uint8, h uintptr, key K, val V) bool {
	i1 := indexOff(h, t.mask)
	i2 := altOff(tag, i1, t.mask)
	t.addSizePlain(i1, 1)
	if s := t.buckets[i1].freeSlot(); s >= 0 {
		t.buckets[i1].install(s, tag, key, val)
		return true
	}
	if s := t.buckets[i2].freeSlot(); s >= 0 {
		t.buckets[i2].install(s, tag, key, val)
		return true
	}
	cur := i2
	for d := 0; d < maxPathDepth; d++ {
		victim := d % bucketSlots
		b := &t.buckets[cur]
		vtag, vkey, vval := b.tagAt(victim), b.keys[victim], b.vals[victim]
		b.clear(victim)
		b.install(victim, tag, key, val)
		tag, key, val = vtag, vkey, vval
		cur = altOff(tag, cur, t.mask)
		if s := t.buckets[cur].freeSlot(); s >= 0 {
			t.buckets[cur].install(s, tag, key, val)
			return true
		}
	}
	t.addSizePlain(i1, -1)
	return false
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.table.Load().sumSize()
}

// Size returns the number of buckets in the current table, 2^base.
// Note that this is the table capacity in buckets, not the element
// count; use Len for the latter.
func (m *Map[K, V]) Size() int {
	return len(m.table.Load().buckets)
}

// MapStats is Map statistics.
type MapStats struct {
	// Buckets is the number of buckets in the table.
	Buckets int
	// Capacity is the number of cells the table can hold.
	Capacity int
	// Size is the number of occupied cells counted by a table walk.
	Size int
	// Counter is the number of entries according to the striped
	// counter.
	Counter int
	// CounterLen is the number of counter stripes.
	CounterLen int
	// MinEntries is the minimum number of entries per bucket.
	MinEntries int
	// MaxEntries is the maximum number of entries per bucket.
	MaxEntries int
	// TotalGrowths is the number of times the hash table grew.
	TotalGrowths uint32
}

// ToString returns string representation of map stats.
func (s *MapStats) ToString() string {
	var sb strings.Builder
	sb.WriteString("MapStats{\n")
	sb.WriteString(fmt.Sprintf("Buckets:      %d\n", s.Buckets))
	sb.WriteString(fmt.Sprintf("Capacity:     %d\n", s.Capacity))
	sb.WriteString(fmt.Sprintf("Size:         %d\n", s.Size))
	sb.WriteString(fmt.Sprintf("Counter:      %d\n", s.Counter))
	sb.WriteString(fmt.Sprintf("CounterLen:   %d\n", s.CounterLen))
	sb.WriteString(fmt.Sprintf("MinEntries:   %d\n", s.MinEntries))
	sb.WriteString(fmt.Sprintf("MaxEntries:   %d\n", s.MaxEntries))
	sb.WriteString(fmt.Sprintf("TotalGrowths: %d\n", s.TotalGrowths))
	sb.WriteString("}\n")
	return sb.String()
}

// Stats returns statistics for the Map. Just like other map methods,
// this one is thread-safe. Yet it's an O(N) operation, so it should
// be used only for diagnostics or debugging purposes.
func (m *Map[K, V]) Stats() MapStats {
	stats := MapStats{
		TotalGrowths: m.totalGrowths.Load(),
		MinEntries:   bucketSlots + 1,
	}
	t := m.table.Load()
	stats.Buckets = len(t.buckets)
	stats.Capacity = len(t.buckets) * bucketSlots
	stats.Counter = t.sumSize()
	stats.CounterLen = len(t.size)
	for i := range t.buckets {
		t.locks[i].lock()
		nentries := 0
		for s := 0; s < bucketSlots; s++ {
			if t.buckets[i].tagAt(s) != 0 {
				nentries++
			}
		}
		t.locks[i].unlock()
		stats.Size += nentries
		if nentries < stats.MinEntries {
			stats.MinEntries = nentries
		}
		if nentries > stats.MaxEntries {
			stats.MaxEntries = nentries
		}
	}
	return stats
}
