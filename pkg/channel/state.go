package channel

import (
	"crypto/ecdsa"

	"code.securecomm.org/golang/pkg/engine"
)

// State enumerates the Channel lifecycle stages.
type State int

const (
	Uninitialized State = iota
	KeyExchanged
	Ready
)

func (self State) String() string {
	switch self {
	case Uninitialized:
		return "Uninitialized"
	case KeyExchanged:
		return "KeyExchanged"
	case Ready:
		return "Ready"
	default:
		return "State(?)"
	}
}

// sessionState is a sealed interface holding the material available at each State.
//
// Variants:
//   - [uninitialized]: no key material.
//   - [keyExchanged]:  the local identity key pair, waiting for the peer public key.
//   - [ready]:         local & peer keys, the session key and the sequence counters.
type sessionState interface {
	state() State
}

type uninitialized struct{}

func (self uninitialized) state() State { return Uninitialized }

type keyExchanged struct {
	local engine.KeyPair
}

func (self *keyExchanged) state() State { return KeyExchanged }

type ready struct {
	local   engine.KeyPair
	peer    *ecdsa.PublicKey
	session *engine.SessionKey
	sendSeq uint64
	window  *replayWindow
}

func (self *ready) state() State { return Ready }

// destroy zeroes the session key.
func (self *ready) destroy() {
	self.session.Destroy()
	self.window = nil
}
