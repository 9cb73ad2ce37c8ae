package utils

// Bitset is a fixed size bit array packed in a byte slice, 8 bits per byte.
type Bitset []byte

// NewBitset returns a Bitset able to hold size bits, all cleared.
func NewBitset(size int) Bitset {
	if size < 0 {
		size = 0
	}
	return make(Bitset, (size+7)/8)
}

// Size returns the number of bits the Bitset holds.
func (self Bitset) Size() int {
	return 8 * len(self)
}

// SetBit sets the bit at pos to 1.
// It errors if pos is out of range.
func (self Bitset) SetBit(pos int) error {
	byteIdx, mask, err := self.locate(pos)
	if nil != err {
		return err
	}
	self[byteIdx] |= mask
	return nil
}

// ClearBit sets the bit at pos to 0.
// It errors if pos is out of range.
func (self Bitset) ClearBit(pos int) error {
	byteIdx, mask, err := self.locate(pos)
	if nil != err {
		return err
	}
	self[byteIdx] &^= mask
	return nil
}

// GetBit returns the bit at pos.
// It errors if pos is out of range.
func (self Bitset) GetBit(pos int) (bool, error) {
	byteIdx, mask, err := self.locate(pos)
	if nil != err {
		return false, err
	}
	return 0 != self[byteIdx]&mask, nil
}

// Reset clears all bits.
func (self Bitset) Reset() {
	clear(self)
}

func (self Bitset) locate(pos int) (int, byte, error) {
	if pos < 0 || pos >= 8*len(self) {
		return 0, 0, newError("bit index %d out of range", pos)
	}
	return pos / 8, byte(1) << (7 - pos%8), nil
}
