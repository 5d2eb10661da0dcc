package kcv

// Key is an immutable, opaque byte sequence. It is backed by a string so
// it can be compared structurally and used as a map key without copying.
type Key string

// KeyOf copies b into a Key.
func KeyOf(b []byte) Key {
	return Key(b)
}

// Bytes returns a copy of the key's raw bytes.
func (k Key) Bytes() []byte {
	return []byte(k)
}

// IsEmpty reports whether the key holds no bytes.
func (k Key) IsEmpty() bool {
	return len(k) == 0
}

// entryOverhead approximates the bookkeeping cost of one entry beyond
// its column and value payload (two string headers plus struct padding).
const entryOverhead = 40

// Entry is a single column/value pair for some key.
type Entry struct {
	Column Key
	Value  Key
}

// ByteSize estimates the in-memory footprint of the entry.
func (e Entry) ByteSize() int {
	return entryOverhead + len(e.Column) + len(e.Value)
}

// EntryList is an ordered sequence of entries, sorted by column. Lists
// returned by a Store must not be mutated afterwards; the cache hands
// the same backing array to every reader.
type EntryList []Entry

// ByteSize estimates the in-memory footprint of the whole list. Callers
// that need the value repeatedly (the cache weigher) compute it once at
// insertion time.
func (l EntryList) ByteSize() int {
	size := 0
	for _, e := range l {
		size += e.ByteSize()
	}
	return size
}
