package tuple

import "bytes"

// Subspace is a value-typed wrapper around a byte-string prefix, delimiting
// a logical region of the KV key space (spec.md §4.1).
type Subspace struct {
	prefix []byte
}

// NewSubspace returns a Subspace rooted at prefix.
func NewSubspace(prefix []byte) Subspace {
	cp := make([]byte, len(prefix))
	copy(cp, prefix)
	return Subspace{prefix: cp}
}

// Bytes returns the subspace's raw prefix.
func (s Subspace) Bytes() []byte {
	cp := make([]byte, len(s.prefix))
	copy(cp, s.prefix)
	return cp
}

// Pack encodes t and prepends the subspace prefix.
func (s Subspace) Pack(t Tuple) []byte {
	packed := Pack(t)
	out := make([]byte, 0, len(s.prefix)+len(packed))
	out = append(out, s.prefix...)
	out = append(out, packed...)
	return out
}

// Unpack strips the subspace prefix from key and decodes the remainder as a
// Tuple. It fails if key does not begin with the subspace's prefix.
func (s Subspace) Unpack(key []byte) (Tuple, error) {
	if !bytes.HasPrefix(key, s.prefix) {
		return nil, errPrefixMismatch{prefix: s.prefix, key: key}
	}
	return Unpack(key[len(s.prefix):])
}

// Range returns the right-open [begin, end) byte range covering every key
// with this subspace's prefix.
func (s Subspace) Range() (begin, end []byte) {
	begin = s.Bytes()
	end = strinc(s.prefix)
	return begin, end
}

// Sub returns a child Subspace nested by appending the packed tuple of elems
// to this subspace's prefix.
func (s Subspace) Sub(elems ...Element) Subspace {
	return NewSubspace(s.Pack(Tuple(elems)))
}

// strinc returns the smallest byte string that is strictly greater than
// every string with prefix p, by incrementing the last byte that is not
// already 0xFF and truncating any trailing 0xFF bytes. Used to build the
// right-open end key for a prefix range scan.
func strinc(p []byte) []byte {
	cp := make([]byte, len(p))
	copy(cp, p)
	for i := len(cp) - 1; i >= 0; i-- {
		if cp[i] != 0xFF {
			cp[i]++
			return cp[:i+1]
		}
	}
	// all 0xFF (or empty): there is no finite successor; a nil end key is
	// read by the KV backends as unbounded, so the scan runs to the end of
	// the keyspace.
	return nil
}

type errPrefixMismatch struct {
	prefix []byte
	key    []byte
}

func (e errPrefixMismatch) Error() string {
	return "tuple: key does not match subspace prefix"
}
