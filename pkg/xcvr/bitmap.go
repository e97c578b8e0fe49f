package xcvr

import "math/bits"

// Bitmap is a presence bitmap indexed by port. It grows as bits are set.
type Bitmap []uint64

// NewBitmap returns a bitmap able to hold n bits without growing.
func NewBitmap(n int) Bitmap {
	return make(Bitmap, (n+63)/64)
}

// Set sets bit i.
func (b *Bitmap) Set(i int) {
	w := i / 64
	for len(*b) <= w {
		*b = append(*b, 0)
	}
	(*b)[w] |= 1 << (uint(i) % 64)
}

// Clear clears bit i.
func (b Bitmap) Clear(i int) {
	if w := i / 64; w < len(b) {
		b[w] &^= 1 << (uint(i) % 64)
	}
}

// Put sets or clears bit i.
func (b *Bitmap) Put(i int, v bool) {
	if v {
		b.Set(i)
	} else {
		b.Clear(i)
	}
}

// Test reports whether bit i is set.
func (b Bitmap) Test(i int) bool {
	if i < 0 {
		return false
	}
	w := i / 64
	return w < len(b) && b[w]&(1<<(uint(i)%64)) != 0
}

// Xor returns b XOR o.
func (b Bitmap) Xor(o Bitmap) Bitmap {
	n := max(len(b), len(o))
	out := make(Bitmap, n)
	for i := range out {
		var x, y uint64
		if i < len(b) {
			x = b[i]
		}
		if i < len(o) {
			y = o[i]
		}
		out[i] = x ^ y
	}
	return out
}

// Empty reports whether no bit is set.
func (b Bitmap) Empty() bool {
	for _, w := range b {
		if w != 0 {
			return false
		}
	}
	return true
}

// Equal reports whether b and o have the same bits set.
func (b Bitmap) Equal(o Bitmap) bool {
	return b.Xor(o).Empty()
}

// Clone returns a copy of b.
func (b Bitmap) Clone() Bitmap {
	if b == nil {
		return nil
	}
	return append(Bitmap(nil), b...)
}

// ForeachSetBit calls fn with the index of every set bit in ascending order.
func (b Bitmap) ForeachSetBit(fn func(i int)) {
	for w, word := range b {
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			fn(w*64 + bit)
			word &= word - 1
		}
	}
}

// Ones returns the indices of all set bits.
func (b Bitmap) Ones() []int {
	var out []int
	b.ForeachSetBit(func(i int) { out = append(out, i) })
	return out
}
