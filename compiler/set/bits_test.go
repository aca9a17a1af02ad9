package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitsBasic(t *testing.T) {
	s := Make[int]()

	s.SetAll(1, 3, 200)

	assert.True(t, s.IsSet(1))
	assert.True(t, s.IsSet(200))
	assert.False(t, s.IsSet(2))
	assert.Equal(t, 3, s.Size())

	s.Clear(3)
	assert.False(t, s.IsSet(3))
	assert.Equal(t, 2, s.Size())
}

func TestBitsOps(t *testing.T) {
	a := Make[int]()
	a.SetAll(1, 2, 3)

	b := Make[int]()
	b.SetAll(2, 3, 4)

	u := a.Copy()
	u.Merge(b)
	assert.Equal(t, 4, u.Size())

	i := a.Copy()
	i.Intersect(b)
	assert.Equal(t, 2, i.Size())
	assert.True(t, i.IsSet(2) && i.IsSet(3))

	d := a.Copy()
	d.Subtract(b)
	assert.Equal(t, 1, d.Size())
	assert.True(t, d.IsSet(1))
}

func TestBitsEqual(t *testing.T) {
	a := Make[int]()
	b := Make[int]()

	assert.True(t, a.Equal(b))

	a.Set(100)
	assert.False(t, a.Equal(b))

	b.Set(100)
	assert.True(t, a.Equal(b))

	// trailing zero words do not break equality
	a.Set(500)
	a.Clear(500)
	assert.True(t, a.Equal(b))
}

func TestBitsRange(t *testing.T) {
	s := Make[int]()
	s.SetAll(0, 63, 64, 130)

	var got []int

	s.Range(func(k int) bool {
		got = append(got, k)
		return true
	})

	assert.Equal(t, []int{0, 63, 64, 130}, got)
	assert.Equal(t, 0, s.First())
}

func TestBitsFill(t *testing.T) {
	s := Make[int]()
	s.Fill(70)

	assert.Equal(t, 70, s.Size())
	assert.True(t, s.IsSet(69))
	assert.False(t, s.IsSet(70))
}
