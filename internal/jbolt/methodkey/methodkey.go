// Package methodkey implements the symbolic method identity that survives
// across dump/load runs: a triple of {class, method, signature} strings,
// interned so that identical triples share a single backing allocation.
package methodkey

import "sync"

// MethodKey is the triple method identity: class, method name, and JVM
// signature. Class is in slash form ("java/lang/Object"), matching the
// order-file grammar.
type MethodKey struct {
	Class     string
	Method    string
	Signature string
}

// Hash is the 31-multiplier fold over the three fields, in field order. It
// is used as a cheap pre-filter before the full triple-equality compare in
// the call-graph store's linear scans.
func (k MethodKey) Hash() uint64 {
	h := uint64(0)
	for _, s := range [...]string{k.Class, k.Method, k.Signature} {
		for i := 0; i < len(s); i++ {
			h = h*31 + uint64(s[i])
		}
	}
	return h
}

// Equal reports whether two keys have identical class, method, and
// signature. Equality for MethodKey is always triple equality.
func (k MethodKey) Equal(other MethodKey) bool {
	return k.Class == other.Class && k.Method == other.Method && k.Signature == other.Signature
}

// Sentinel is the empty MethodKey emitted in the HFSort order stream to
// mark cluster boundaries.
var Sentinel = MethodKey{}

// IsSentinel reports whether k is the empty boundary key.
func (k MethodKey) IsSentinel() bool {
	return k == Sentinel
}

// entry is one interned key plus its reference count.
type entry struct {
	key MethodKey
	rc  int
}

// Interner hands out refcounted *MethodKey values so that two calls with
// equal triples share the same backing entry. A FuncId holds a reference for
// as long as it exists in a CallGraph; the graph releases it on teardown.
//
// Interner is safe for concurrent use; callers in the sample ingestor path
// may run on multiple sampler threads.
type Interner struct {
	mu      sync.Mutex
	entries map[MethodKey]*entry
}

// NewInterner returns an empty Interner.
func NewInterner() *Interner {
	return &Interner{entries: make(map[MethodKey]*entry)}
}

// Intern returns the shared *MethodKey for k, incrementing its reference
// count. The returned pointer is stable for the lifetime of the reference.
func (in *Interner) Intern(k MethodKey) *MethodKey {
	in.mu.Lock()
	defer in.mu.Unlock()
	e, ok := in.entries[k]
	if !ok {
		e = &entry{key: k}
		in.entries[k] = e
	}
	e.rc++
	return &e.key
}

// Release drops a reference previously obtained from Intern. When the
// reference count reaches zero the entry is evicted from the interner.
func (in *Interner) Release(k MethodKey) {
	in.mu.Lock()
	defer in.mu.Unlock()
	e, ok := in.entries[k]
	if !ok {
		return
	}
	e.rc--
	if e.rc <= 0 {
		delete(in.entries, k)
	}
}

// Len returns the number of distinct keys currently interned. Intended for
// tests and diagnostics.
func (in *Interner) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.entries)
}

// RefCount returns the current reference count for k, or 0 if not interned.
func (in *Interner) RefCount(k MethodKey) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	if e, ok := in.entries[k]; ok {
		return e.rc
	}
	return 0
}
