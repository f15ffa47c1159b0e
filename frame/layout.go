// Copyright (C) 2026 The weft authors. All Rights Reserved.

package frame

import "fmt"

// A Field is one named bit-field of a payload layout.
type Field struct {
	Name string
	Bits int
}

// A Layout describes the payload word of a packet stream as an ordered list
// of fields. Fields are packed LSB-first: the first field occupies the lowest
// bits of the word, the next field the bits above it, and so on.
type Layout []Field

// DataLayout returns a layout with a single "data" field of the given width.
// This is the layout of a plain word-multiplexed channel.
func DataLayout(bits int) Layout {
	return Layout{{Name: "data", Bits: bits}}
}

// Bits reports the total width in bits of all fields of l.
func (l Layout) Bits() int {
	var n int
	for _, f := range l {
		n += f.Bits
	}
	return n
}

// WordBytes reports the word width in bytes of a link carrying l: the total
// field width rounded up to whole bytes, but never less than [MinWordBytes]
// so the preamble and header words fit.
func (l Layout) WordBytes() int {
	return max((l.Bits()+7)/8, MinWordBytes)
}

// Check reports whether l is a usable layout: at least one field, every field
// between 1 and 64 bits with a unique non-empty name, and a total width of at
// most 64 bits.
func (l Layout) Check() error {
	if len(l) == 0 {
		return fmt.Errorf("layout has no fields")
	}
	seen := make(map[string]bool, len(l))
	for i, f := range l {
		if f.Name == "" {
			return fmt.Errorf("field %d: empty name", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("field %d: duplicate name %q", i, f.Name)
		}
		seen[f.Name] = true
		if f.Bits < 1 || f.Bits > 64 {
			return fmt.Errorf("field %q: invalid width %d", f.Name, f.Bits)
		}
	}
	if n := l.Bits(); n > 64 {
		return fmt.Errorf("layout is %d bits, exceeds 64", n)
	}
	return nil
}

// Pack packs the field values vals, given in layout order, into a single
// word. Values wider than their field are truncated to the field width.
// Pack panics if len(vals) != len(l).
func (l Layout) Pack(vals []Word) Word {
	if len(vals) != len(l) {
		panic(fmt.Sprintf("layout has %d fields, got %d values", len(l), len(vals)))
	}
	var w Word
	shift := 0
	for i, f := range l {
		w |= (vals[i] & mask(f.Bits)) << shift
		shift += f.Bits
	}
	return w
}

// Unpack splits w into its field values, in layout order.
func (l Layout) Unpack(w Word) []Word {
	vals := make([]Word, len(l))
	shift := 0
	for i, f := range l {
		vals[i] = (w >> shift) & mask(f.Bits)
		shift += f.Bits
	}
	return vals
}

// Index reports the position of the named field in l, or -1 if no such field
// exists.
func (l Layout) Index(name string) int {
	for i, f := range l {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func mask(bits int) Word {
	if bits >= 64 {
		return ^Word(0)
	}
	return Word(1)<<bits - 1
}
