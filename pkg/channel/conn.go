package channel

import (
	"golang.org/x/sync/errgroup"

	"code.securecomm.org/golang/internal/transport"
)

// HelloVersion is the Hello protocol version sent by Conn.
const HelloVersion = 1

// Hello is the handshake message exchanged by Conn peers.
type Hello struct {
	Version   uint16 `cbor:"1,keyasint"`
	PublicKey []byte `cbor:"2,keyasint"`
}

// Check implements transport.Checker.
func (self Hello) Check() error {
	if HelloVersion != self.Version {
		return newError(Error, "unsupported Hello version %d", self.Version)
	}
	if len(self.PublicKey) == 0 {
		return newError(Error, "empty Hello public key")
	}
	return nil
}

// Conn binds a Channel to a transport.Transport.
// The Transport frames are Hello messages then serialized Message Packets.
type Conn struct {
	ch *Channel
	mt transport.MessageTransport
}

// NewConn returns a Conn exchanging ch messages over t.
func NewConn(ch *Channel, t transport.Transport) *Conn {
	return &Conn{
		ch: ch,
		mt: transport.MessageTransport{
			Transport: t,
			S:         transport.WrapInSafeSerializer(transport.CBORSerializer{}),
		},
	}
}

// Channel returns the Conn Channel.
func (self *Conn) Channel() *Channel {
	return self.ch
}

// Handshake initializes the Channel, exchanges Hello messages with the peer and completes
// the Channel handshake. Hello messages are sent & received concurrently, so that both peers
// may call Handshake on synchronous transports.
// It errors with ErrHandshake if the peer public key is refused; the Channel then stays in KeyExchanged.
func (self *Conn) Handshake() error {
	pub, err := self.ch.Initialize()
	if nil != err {
		return err
	}

	var peer Hello
	var g errgroup.Group
	g.Go(func() error {
		return self.mt.WriteMessage(Hello{Version: HelloVersion, PublicKey: pub})
	})
	g.Go(func() error {
		return self.mt.ReadMessage(&peer)
	})
	err = g.Wait()
	if nil != err {
		return wrapError(err, ErrHandshake, "failed Hello exchange")
	}

	if !self.ch.CompleteHandshake(peer.PublicKey) {
		return newError(ErrHandshake, "peer public key refused")
	}

	return nil
}

// Send encrypts plaintext and writes the Message Packet to the transport.
func (self *Conn) Send(plaintext []byte) error {
	srz, err := self.ch.EncryptMessage(plaintext)
	if nil != err {
		return err
	}
	return wrapError(self.mt.WriteMessage(transport.RawMsg(srz)), Error, "failed sending packet")
}

// Receive reads the next Message Packet from the transport and returns its plaintext.
// A refused packet errors with ErrRejected, the Conn remains usable.
func (self *Conn) Receive() ([]byte, error) {
	var srz transport.RawMsg
	err := self.mt.ReadMessage(&srz)
	if nil != err {
		return nil, wrapError(err, Error, "failed receiving packet")
	}
	return self.ch.DecryptMessage(srz)
}

// ReceiveRaw returns the next transport frame undecoded, for relays & tests.
func (self *Conn) ReceiveRaw() ([]byte, error) {
	var srz transport.RawMsg
	err := self.mt.ReadMessage(&srz)
	return srz, wrapError(err, Error, "failed receiving frame") // nil if err is nil
}

// SendRaw writes data as a transport frame without processing it.
func (self *Conn) SendRaw(data []byte) error {
	return wrapError(self.mt.WriteMessage(transport.RawMsg(data)), Error, "failed sending frame")
}
