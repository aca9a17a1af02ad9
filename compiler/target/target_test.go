package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArch(t *testing.T) {
	a, err := ParseArch("amd64")
	require.NoError(t, err)
	assert.Equal(t, AMD64, a)

	a, err = ParseArch("arm64")
	require.NoError(t, err)
	assert.Equal(t, ARM64, a)

	_, err = ParseArch("mips")
	assert.Error(t, err)
}

func TestRegisterLookup(t *testing.T) {
	d, err := New(AMD64)
	require.NoError(t, err)

	r, ok := d.Register("rax")
	require.True(t, ok)
	assert.Equal(t, GP, r.Class)
	assert.Equal(t, 64, r.Bits)

	_, ok = d.Register("nosuch")
	assert.False(t, ok)
}

func TestClassFilter(t *testing.T) {
	for _, arch := range []Arch{AMD64, ARM64} {
		d, err := New(arch)
		require.NoError(t, err)

		for _, r := range d.Class(GP) {
			assert.Equal(t, GP, r.Class, "%v %v", arch, r.Name)
		}
	}
}

func TestAllocatableExcludesReserved(t *testing.T) {
	for _, arch := range []Arch{AMD64, ARM64} {
		d, err := New(arch)
		require.NoError(t, err)

		for _, r := range d.Allocatable(GP) {
			assert.False(t, r.Reserved, "%v %v", arch, r.Name)
		}

		// scratch registers are kept out of the allocatable pool
		for _, s := range d.Scratch {
			for _, r := range d.Allocatable(GP) {
				assert.NotEqual(t, s, r.Name, "%v", arch)
			}
		}
	}
}

func TestConventions(t *testing.T) {
	d, err := New(AMD64)
	require.NoError(t, err)

	assert.Equal(t, 8, d.PointerSize())
	assert.Equal(t, "rax", d.Ret)
	assert.Equal(t, []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}, d.Args)
	assert.Equal(t, "rbp", d.FP)

	d, err = New(ARM64)
	require.NoError(t, err)

	assert.Equal(t, "x0", d.Ret)
	assert.Equal(t, "x29", d.FP)
	assert.Len(t, d.Args, 8)
}

func TestCallerCalleeSplit(t *testing.T) {
	d, err := New(ARM64)
	require.NoError(t, err)

	r, ok := d.Register("x19")
	require.True(t, ok)
	assert.True(t, r.CalleeSaved)
	assert.False(t, r.CallerSaved)

	r, ok = d.Register("x1")
	require.True(t, ok)
	assert.True(t, r.CallerSaved)
}
