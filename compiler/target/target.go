// Package target is a static catalog of physical registers and calling
// convention roles per supported architecture. Architectures are a
// closed set of tagged variants, each backed by a table.
package target

import (
	"tlog.app/go/errors"
)

type (
	Arch int

	Class int

	Register struct {
		Name  string
		Class Class
		Bits  int

		CallerSaved bool
		CalleeSaved bool

		// Reserved registers (stack/frame pointer, platform and
		// scratch registers) are never handed to the allocator.
		Reserved bool
	}

	Desc struct {
		Arch    Arch
		PtrSize int

		Regs []Register

		// calling convention roles
		Ret     string
		Args    []string
		FP      string
		Scratch []string // reserved for spill loads and stores

		byName map[string]int
	}
)

const (
	AMD64 Arch = iota
	ARM64
)

const (
	GP Class = iota
	FP
	Vector
)

func (a Arch) String() string {
	switch a {
	case AMD64:
		return "amd64"
	case ARM64:
		return "arm64"
	}

	return "unknown"
}

// ParseArch maps an architecture name to its tag.
func ParseArch(name string) (Arch, error) {
	switch name {
	case "amd64", "x86-64", "x86_64":
		return AMD64, nil
	case "arm64", "aarch64":
		return ARM64, nil
	}

	return 0, errors.New("unsupported architecture: %v", name)
}

func New(a Arch) (*Desc, error) {
	var d *Desc

	switch a {
	case AMD64:
		d = amd64()
	case ARM64:
		d = arm64()
	default:
		return nil, errors.New("unsupported architecture: %v", a)
	}

	d.byName = make(map[string]int, len(d.Regs))

	for i, r := range d.Regs {
		d.byName[r.Name] = i
	}

	return d, nil
}

func (d *Desc) Register(name string) (Register, bool) {
	i, ok := d.byName[name]
	if !ok {
		return Register{}, false
	}

	return d.Regs[i], true
}

// Class returns all registers of the class, table order.
func (d *Desc) Class(c Class) []Register {
	var r []Register

	for _, reg := range d.Regs {
		if reg.Class == c {
			r = append(r, reg)
		}
	}

	return r
}

// Allocatable returns the registers of the class the allocator may
// assign: class members minus reserved ones.
func (d *Desc) Allocatable(c Class) []Register {
	var r []Register

	for _, reg := range d.Regs {
		if reg.Class == c && !reg.Reserved {
			r = append(r, reg)
		}
	}

	return r
}

func (d *Desc) PointerSize() int { return d.PtrSize }

func gp(name string, callerSaved bool) Register {
	return Register{Name: name, Class: GP, Bits: 64, CallerSaved: callerSaved, CalleeSaved: !callerSaved}
}

func reserved(name string) Register {
	r := gp(name, false)
	r.Reserved = true

	return r
}

func fp128(name string, callerSaved bool) Register {
	return Register{Name: name, Class: FP, Bits: 128, CallerSaved: callerSaved, CalleeSaved: !callerSaved}
}

func amd64() *Desc {
	scratch := []Register{gp("r10", true), gp("r11", true)}
	scratch[0].Reserved = true
	scratch[1].Reserved = true

	regs := []Register{
		gp("rax", true),
		gp("rbx", false),
		gp("rcx", true),
		gp("rdx", true),
		gp("rsi", true),
		gp("rdi", true),
		gp("r8", true),
		gp("r9", true),
		scratch[0],
		scratch[1],
		gp("r12", false),
		gp("r13", false),
		gp("r14", false),
		gp("r15", false),
		reserved("rbp"),
		reserved("rsp"),

		fp128("xmm0", true),
		fp128("xmm1", true),
		fp128("xmm2", false),
		fp128("xmm3", false),
	}

	return &Desc{
		Arch:    AMD64,
		PtrSize: 8,
		Regs:    regs,

		Ret:     "rax",
		Args:    []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"},
		FP:      "rbp",
		Scratch: []string{"r10", "r11"},
	}
}

func arm64() *Desc {
	regs := make([]Register, 0, 32)

	for i := 0; i <= 15; i++ {
		regs = append(regs, gp(xname(i), true))
	}

	// x16, x17 are the intra-procedure scratch pair, x18 the
	// platform register.
	regs = append(regs, reserved("x16"), reserved("x17"), reserved("x18"))

	for i := 19; i <= 28; i++ {
		regs = append(regs, gp(xname(i), false))
	}

	regs = append(regs,
		reserved("x29"), // frame pointer
		reserved("x30"), // link register
		reserved("sp"),
	)

	return &Desc{
		Arch:    ARM64,
		PtrSize: 8,
		Regs:    regs,

		Ret:     "x0",
		Args:    []string{"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7"},
		FP:      "x29",
		Scratch: []string{"x16", "x17"},
	}
}

func xname(i int) string {
	const digits = "0123456789"

	if i < 10 {
		return "x" + digits[i:i+1]
	}

	return "x" + digits[i/10:i/10+1] + digits[i%10:i%10+1]
}
