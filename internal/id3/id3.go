// Package id3 carries ID3v2 tag data as an opaque byte blob between a
// Source and any ID3-capable Sink. Frame layout is never parsed or
// interpreted — the blob is retrieved, stored and re-emitted byte for byte.
package id3

// Blob is an opaque ID3v2 tag payload.
type Blob []byte

// Present reports whether the blob carries any bytes.
func (b Blob) Present() bool { return len(b) > 0 }

// entry is a sparse slot in a Store: present distinguishes "explicitly set
// to empty" from "never set".
type entry struct {
	present bool
	data    Blob
}

// Store is a sparse, index-keyed collection of per-track ID3 blobs. Growth
// is monotone; a slot may be cleared back to absent but the backing array
// never shrinks — the same sparse-array discipline the DSDIFF engine uses
// for its own per-track ID3 chunks.
type Store struct {
	entries []entry
}

// Set stores blob at index, growing the backing array if needed.
func (s *Store) Set(index int, blob Blob) {
	s.grow(index + 1)
	s.entries[index] = entry{present: true, data: blob}
}

// Clear marks index absent without shrinking the array.
func (s *Store) Clear(index int) {
	if index >= 0 && index < len(s.entries) {
		s.entries[index] = entry{}
	}
}

// Get returns the blob at index and whether it was present.
func (s *Store) Get(index int) (Blob, bool) {
	if index < 0 || index >= len(s.entries) || !s.entries[index].present {
		return nil, false
	}
	return s.entries[index].data, true
}

// Len returns the current backing-array length (not the count of present
// entries).
func (s *Store) Len() int { return len(s.entries) }

func (s *Store) grow(n int) {
	if len(s.entries) >= n {
		return
	}
	grown := make([]entry, n)
	copy(grown, s.entries)
	s.entries = grown
}
