package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	Key interface {
		~int | ~int64
	}

	// Bits is a dense bitmap over small non-negative integer keys.
	// The zero value is an empty set.
	Bits[K Key] struct {
		b  []uint64
		b0 [2]uint64
	}
)

func Make[K Key]() Bits[K] {
	s := Bits[K]{}
	s.b = s.b0[:]

	return s
}

func (s Bits[K]) Copy() Bits[K] {
	c := Make[K]()

	c.grow(len(s.b) - 1)
	copy(c.b, s.b)

	return c
}

func (s *Bits[K]) Set(k K) {
	i, j := ij(k)

	s.grow(i)

	s.b[i] |= 1 << j
}

func (s *Bits[K]) SetAll(ks ...K) {
	for _, k := range ks {
		s.Set(k)
	}
}

// Fill sets all keys in [0, n).
func (s *Bits[K]) Fill(n K) {
	for k := K(0); k < n; k++ {
		s.Set(k)
	}
}

func (s Bits[K]) Clear(k K) {
	i, j := ij(k)

	if i >= len(s.b) {
		return
	}

	s.b[i] &^= 1 << j
}

func (s Bits[K]) IsSet(k K) bool {
	i, j := ij(k)

	if i >= len(s.b) {
		return false
	}

	return s.b[i]&(1<<j) != 0
}

func (s *Bits[K]) Merge(x Bits[K]) {
	s.grow(len(x.b) - 1)

	for i, w := range x.b {
		s.b[i] |= w
	}
}

func (s Bits[K]) Intersect(x Bits[K]) {
	n := len(s.b)
	if m := len(x.b); m < n {
		n = m
	}

	for i := range s.b {
		if i < n {
			s.b[i] &= x.b[i]
		} else {
			s.b[i] = 0
		}
	}
}

func (s Bits[K]) Subtract(x Bits[K]) {
	n := len(s.b)
	if m := len(x.b); m < n {
		n = m
	}

	for i, w := range x.b[:n] {
		s.b[i] &^= w
	}
}

func (s Bits[K]) Equal(x Bits[K]) bool {
	n := len(s.b)
	if m := len(x.b); m > n {
		n = m
	}

	for i := 0; i < n; i++ {
		var a, b uint64

		if i < len(s.b) {
			a = s.b[i]
		}
		if i < len(x.b) {
			b = x.b[i]
		}

		if a != b {
			return false
		}
	}

	return true
}

func (s Bits[K]) Size() (r int) {
	for _, w := range s.b {
		r += bits.OnesCount64(w)
	}

	return r
}

func (s Bits[K]) First() K {
	for i, w := range s.b {
		if w == 0 {
			continue
		}

		return K(i*64 + bits.TrailingZeros64(w))
	}

	return -1
}

func (s Bits[K]) Range(f func(k K) bool) {
	for i, w := range s.b {
		if w == 0 {
			continue
		}

		for j := bits.TrailingZeros64(w); j < bits.Len64(w); j++ {
			if w&(1<<j) == 0 {
				continue
			}

			if !f(K(i*64 + j)) {
				return
			}
		}
	}
}

func (s *Bits[K]) Reset() {
	for i := range s.b {
		s.b[i] = 0
	}
}

func (s Bits[K]) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if s.b == nil {
		return e.AppendNil(b)
	}

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(k K) bool {
		b = e.AppendInt(b, int(k))

		return true
	})

	b = e.AppendBreak(b)

	return b
}

func ij[K Key](k K) (i, j int) {
	p := int(k)

	return p / 64, p % 64
}

func (s *Bits[K]) grow(i int) {
	if s.b == nil {
		s.b = s.b0[:]
	}

	for i >= cap(s.b) {
		s.b = append(s.b[:cap(s.b)], 0)
	}

	s.b = s.b[:cap(s.b)]
}
