package kcv

// SliceQuery selects a column range for a key. Start is inclusive and
// End is exclusive; an empty End means the range is unbounded above.
// Limit caps the number of returned entries; zero or negative means no
// limit.
type SliceQuery struct {
	Start Key
	End   Key
	Limit int
}

// Contains reports whether col falls inside the query's column range.
// The limit is not considered.
func (q SliceQuery) Contains(col Key) bool {
	if col < q.Start {
		return false
	}
	return q.End.IsEmpty() || col < q.End
}

// Unlimited reports whether the query carries no result limit.
func (q SliceQuery) Unlimited() bool {
	return q.Limit <= 0
}

// ForKey binds the slice query to a single key.
func (q SliceQuery) ForKey(key Key) KeySliceQuery {
	return KeySliceQuery{Key: key, Slice: q}
}

// KeySliceQuery identifies a single-key slice read. It is comparable and
// serves as the exact-match cache key; two queries are equal only when
// key, bounds and limit all match.
type KeySliceQuery struct {
	Key   Key
	Slice SliceQuery
}
