// Package packet implements the Message Packet wire codec.
//
// A Packet is encoded as three length prefixed fields in fixed order:
//
//	u32be len | ciphertext | u32be len | iv | u32be len | signature
//
// Decoding validates each declared length against the remaining buffer before reading it.
package packet

import (
	"encoding/binary"
)

const (
	// lenSize is the byte length of a field length prefix.
	lenSize = 4

	// MaxFieldSize bounds each field of a decoded Packet.
	MaxFieldSize = 1 << 24
)

// Packet is the wire form of an encrypted & signed message.
type Packet struct {
	Ciphertext []byte
	IV         []byte
	Signature  []byte
}

// Size returns the byte length of self encoding.
func (self Packet) Size() int {
	return 3*lenSize + len(self.Ciphertext) + len(self.IV) + len(self.Signature)
}

// MarshalBinary implements encoding.BinaryMarshaler.
// It errors if a field exceeds MaxFieldSize.
func (self Packet) MarshalBinary() ([]byte, error) {
	return self.AppendBinary(make([]byte, 0, self.Size()))
}

// AppendBinary implements encoding.BinaryAppender.
func (self Packet) AppendBinary(dst []byte) ([]byte, error) {
	for _, field := range [][]byte{self.Ciphertext, self.IV, self.Signature} {
		if len(field) > MaxFieldSize {
			return nil, newError(Error, "field size %d exceeds %d", len(field), MaxFieldSize)
		}
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(field)))
		dst = append(dst, field...)
	}
	return dst, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
// It errors with ErrMalformed if data is truncated, declares a field larger than the
// remaining bytes or MaxFieldSize, or has bytes after the signature field.
// Decoded fields are copies, data may be reused afterward.
func (self *Packet) UnmarshalBinary(data []byte) error {
	var fields [3][]byte
	rest := data
	for pos := range fields {
		if len(rest) < lenSize {
			return newError(ErrMalformed, "truncated length of field #%d", pos)
		}
		size := binary.BigEndian.Uint32(rest)
		rest = rest[lenSize:]
		if size > MaxFieldSize || uint64(size) > uint64(len(rest)) {
			return newError(ErrMalformed, "field #%d declares %d bytes, %d remaining", pos, size, len(rest))
		}
		fields[pos] = append([]byte{}, rest[:size]...)
		rest = rest[size:]
	}
	if len(rest) > 0 {
		return newError(ErrMalformed, "%d trailing bytes", len(rest))
	}

	self.Ciphertext = fields[0]
	self.IV = fields[1]
	self.Signature = fields[2]

	return nil
}

// Decode returns the Packet encoded in data.
func Decode(data []byte) (Packet, error) {
	var pkt Packet
	err := pkt.UnmarshalBinary(data)
	return pkt, err
}
