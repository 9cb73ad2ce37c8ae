// Package transport carries opaque frames between secure channel peers.
//
// It is the boundary with the untrusted network: it provides no confidentiality nor
// integrity, those are brought by the Message Packets it carries.
package transport

import (
	"encoding/binary"
	"io"
)

// MaxFrameSize bounds the frames read & written by RWTransport.
const MaxFrameSize = 1 << 24

type Transport interface {
	ReadBytes() ([]byte, error)
	WriteBytes(data []byte) error
}

// T aliases Transport
type T = Transport

// MessageTransport read/write messages to inner Transport after converting them to bytes
type MessageTransport struct {
	Transport
	S Serializer // Convert messages to bytes and bytes to messages.
}

// WriteMessage converts msg to bytes and writes msg bytes to inner Transport.
// RawMsg are written as is.
func (self MessageTransport) WriteMessage(msg any) error {
	var srzmsg []byte
	var err error

	switch v := msg.(type) {
	case RawMsg:
		srzmsg = []byte(v)
	default:
		srzmsg, err = self.S.Marshal(msg)
		if nil != err {
			return wrapError(err, "failed marshalling msg")
		}
	}

	err = self.WriteBytes(srzmsg)

	return wrapError(err, "failed writing msg") // nil if err is nil ...
}

// ReadMessage reads msg bytes from inner Transport and deserializes them to msg.
func (self MessageTransport) ReadMessage(msg any) error {
	srzmsg, err := self.ReadBytes()
	if nil != err {
		return wrapError(err, "failed reading message bytes")
	}

	switch v := msg.(type) {
	case *RawMsg:
		*v = RawMsg(srzmsg)
	default:
		err = self.S.Unmarshal(srzmsg, msg)
	}

	return wrapError(err, "failed unmarshaling message") // nil if err is nil
}

// RawMsg is a "marker" type used to disable serialization
type RawMsg []byte

// RWTransport frames data with a u32be length prefix.
type RWTransport struct {
	R io.Reader // source from which messages are read.
	W io.Writer // destination to which messages are written.
}

func (self RWTransport) ReadBytes() ([]byte, error) {
	// read size
	psb := make([]byte, 4)
	_, err := io.ReadFull(self.R, psb)
	if nil != err {
		return nil, wrapError(err, "failed reading data size")
	}
	psz := binary.BigEndian.Uint32(psb)
	if psz > MaxFrameSize {
		return nil, newError(ErrFrameSize, "peer announced %d bytes", psz)
	}

	// read data
	data := make([]byte, int(psz))
	_, err = io.ReadFull(self.R, data)
	if nil != err {
		return nil, wrapError(err, "failed reading data")
	}

	return data, nil
}

func (self RWTransport) WriteBytes(data []byte) error {
	if len(data) > MaxFrameSize {
		return newError(ErrFrameSize, "data larger than %d", MaxFrameSize)
	}

	// prefix data with uint32 length
	pdata := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(pdata, uint32(len(data)))
	copy(pdata[4:], data)

	_, err := self.W.Write(pdata)

	return wrapError(err, "failed writing data") // nil if err is nil
}

var _ Transport = RWTransport{}
