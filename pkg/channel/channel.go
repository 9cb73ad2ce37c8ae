// Package channel implements the Secure Channel state machine.
//
// A Channel moves Uninitialized -> KeyExchanged -> Ready. Initialize returns the local
// identity public key, CompleteHandshake consumes the peer public key and derives the
// session key, after which EncryptMessage & DecryptMessage exchange Message Packets.
// Reset returns to Uninitialized from any state.
//
// Each payload is framed as u64be seq || payload. The frame is encrypted with the session
// key and signed with the identity key; the receiver verifies the signature with the peer
// public key then checks seq against a sliding replay window.
//
// The replay window lives in memory and restarts with each handshake. The session key only
// depends on the 2 identity keys, so a packet captured in an earlier session between the
// same peers is accepted again after Reset and a new handshake, or by a new Channel.
package channel

import (
	"crypto/ecdsa"
	"encoding/binary"
	"math"
	"sync"

	"github.com/google/uuid"

	"code.securecomm.org/golang/internal/observability"
	"code.securecomm.org/golang/pkg/engine"
	"code.securecomm.org/golang/pkg/packet"
)

const seqSize = 8

// Channel is safe for concurrent use, its state transitions are serialized.
type Channel struct {
	mut        sync.Mutex
	id         uuid.UUID
	eng        *engine.Engine
	st         sessionState
	windowSize int
	obs        *observability.Observability
}

// Option configures a Channel.
type Option func(*Channel) error

// WithReplayWindow sets the number of out of order sequence numbers accepted below the highest one.
func WithReplayWindow(size int) Option {
	return func(c *Channel) error {
		if size < 8 {
			return newError(Error, "replay window %d < 8", size)
		}
		c.windowSize = size
		return nil
	}
}

// WithObservability sets the Channel Logger & Metrics.
func WithObservability(obs *observability.Observability) Option {
	return func(c *Channel) error {
		c.obs = obs
		return nil
	}
}

// New returns an Uninitialized Channel using eng for its cryptographic operations.
func New(eng *engine.Engine, opts ...Option) (*Channel, error) {
	if nil == eng {
		return nil, newError(Error, "nil Engine")
	}
	c := &Channel{
		id:         uuid.New(),
		eng:        eng,
		st:         uninitialized{},
		windowSize: DefaultReplayWindow,
	}
	for _, opt := range opts {
		if err := opt(c); nil != err {
			return nil, err
		}
	}
	c.obs = c.obs.With("channel", c.id.String())

	return c, nil
}

// ID returns the Channel identifier used in logs.
func (self *Channel) ID() uuid.UUID {
	return self.id
}

// State returns the current Channel State.
func (self *Channel) State() State {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.st.state()
}

// IsReady reports whether the handshake completed.
func (self *Channel) IsReady() bool {
	return Ready == self.State()
}

// Initialize loads the identity key pair and returns its X.509 SubjectPublicKeyInfo encoding.
// It moves the Channel to KeyExchanged, discarding any previous session.
// It errors with engine.ErrPlatform if the identity key can not be obtained, leaving the State unchanged.
func (self *Channel) Initialize() ([]byte, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	kp, err := self.eng.IdentityKeyPair()
	if nil != err {
		return nil, wrapError(err, Error, "failed loading identity key pair")
	}
	self.discard()
	self.st = &keyExchanged{local: kp}
	self.obs.Log().Debug("channel initialized", "state", KeyExchanged)

	return kp.PublicBytes, nil
}

// CompleteHandshake parses remote, agrees on a shared secret and derives the session key.
// It returns true once the Channel is Ready. On any failure it returns false and the
// Channel stays in KeyExchanged, so that the caller may retry with another key.
// It returns false without change if the Channel is not in KeyExchanged.
func (self *Channel) CompleteHandshake(remote []byte) bool {
	self.mut.Lock()
	defer self.mut.Unlock()

	kx, ok := self.st.(*keyExchanged)
	if !ok {
		self.obs.Log().Debug("handshake refused", "state", self.st.state())
		self.obs.Stats().Handshake("state")
		return false
	}

	rdy, err := self.handshake(kx, remote)
	if nil != err {
		self.obs.Log().Debug("handshake failed", "error", err)
		self.obs.Stats().Handshake("failed")
		return false
	}
	self.st = rdy
	self.obs.Log().Info("channel ready")
	self.obs.Stats().Handshake("ok")

	return true
}

func (self *Channel) handshake(kx *keyExchanged, remote []byte) (*ready, error) {
	peer, err := self.eng.ParsePublicKey(remote)
	if nil != err {
		return nil, err
	}
	secret, err := self.eng.Agree(kx.local.Private, peer)
	if nil != err {
		return nil, err
	}
	defer clear(secret)
	session, err := self.eng.DeriveSessionKey(secret)
	if nil != err {
		return nil, err
	}

	return &ready{
		local:   kx.local,
		peer:    peer,
		session: session,
		window:  newReplayWindow(self.windowSize),
	}, nil
}

// PeerPublicKey returns the peer identity key once Ready, nil otherwise.
func (self *Channel) PeerPublicKey() *ecdsa.PublicKey {
	self.mut.Lock()
	defer self.mut.Unlock()
	if rdy, ok := self.st.(*ready); ok {
		return rdy.peer
	}
	return nil
}

// EncryptMessage returns the serialized Message Packet carrying plaintext.
// It errors with ErrState if the Channel is not Ready, and with engine.ErrPlatform
// if encryption or signature fails.
func (self *Channel) EncryptMessage(plaintext []byte) ([]byte, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	rdy, ok := self.st.(*ready)
	if !ok {
		return nil, newError(ErrState, "EncryptMessage called in state %s", self.st.state())
	}
	if math.MaxUint64 == rdy.sendSeq {
		return nil, newError(ErrState, "sequence numbers exhausted, handshake again")
	}

	frame := make([]byte, seqSize, seqSize+len(plaintext))
	binary.BigEndian.PutUint64(frame, rdy.sendSeq+1)
	frame = append(frame, plaintext...)
	defer clear(frame)

	ct, iv, err := self.eng.Encrypt(frame, rdy.session)
	if nil != err {
		self.obs.Stats().Packet("out", "error")
		return nil, wrapError(err, Error, "failed encrypting message")
	}
	sig, err := self.eng.SignWith(rdy.local.Private, frame)
	if nil != err {
		self.obs.Stats().Packet("out", "error")
		return nil, wrapError(err, Error, "failed signing message")
	}
	srz, err := packet.Packet{Ciphertext: ct, IV: iv, Signature: sig}.MarshalBinary()
	if nil != err {
		self.obs.Stats().Packet("out", "error")
		return nil, wrapError(err, Error, "failed encoding packet")
	}
	rdy.sendSeq += 1
	self.obs.Stats().Packet("out", "ok")

	return srz, nil
}

// DecryptMessage returns the plaintext carried by the serialized Message Packet data.
// It errors with ErrState if the Channel is not Ready. Any malformed, tampered,
// wrongly signed or replayed packet errors with ErrRejected, whatever the reason.
func (self *Channel) DecryptMessage(data []byte) ([]byte, error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	rdy, ok := self.st.(*ready)
	if !ok {
		return nil, newError(ErrState, "DecryptMessage called in state %s", self.st.state())
	}

	plaintext, reason := self.open(rdy, data)
	if "" != reason {
		self.obs.Log().Debug("packet rejected", "reason", reason)
		self.obs.Stats().Packet("in", "rejected")
		return nil, newError(ErrRejected, "packet rejected")
	}
	self.obs.Stats().Packet("in", "ok")

	return plaintext, nil
}

// open returns the plaintext of data, or a non empty rejection reason.
func (self *Channel) open(rdy *ready, data []byte) ([]byte, string) {
	pkt, err := packet.Decode(data)
	if nil != err {
		return nil, "malformed"
	}
	frame, err := self.eng.Decrypt(pkt.Ciphertext, rdy.session, pkt.IV)
	if nil != err {
		return nil, "authentication"
	}
	defer clear(frame)
	if len(frame) < seqSize {
		return nil, "short frame"
	}
	if !self.eng.VerifyWith(rdy.peer, frame, pkt.Signature) {
		return nil, "signature"
	}
	seq := binary.BigEndian.Uint64(frame)
	if !rdy.window.check(seq) {
		return nil, "replay"
	}
	rdy.window.accept(seq)

	return append([]byte{}, frame[seqSize:]...), ""
}

// Reset discards the session key and the cached identity key and returns to Uninitialized.
// It is safe to call in any state. The replay window is discarded too: after a new handshake
// with the same peer, packets of the previous session decrypt again.
func (self *Channel) Reset() {
	self.mut.Lock()
	defer self.mut.Unlock()

	self.discard()
	self.st = uninitialized{}
	self.obs.Log().Debug("channel reset")
}

func (self *Channel) discard() {
	if rdy, ok := self.st.(*ready); ok {
		rdy.destroy()
	}
}
