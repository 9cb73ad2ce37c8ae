package main

import (
	"errors"
	"fmt"
	"io"
	"net"

	"code.securecomm.org/golang/internal/transport"
	"code.securecomm.org/golang/pkg/channel"
	"code.securecomm.org/golang/pkg/keystore"
)

// Demo connects a channel using App keys with a channel using fresh in memory keys,
// sends "ping" then replays the same packet.
func (self *App) Demo(out io.Writer) error {
	alice, err := self.Channel(self.Keys)
	if nil != err {
		return err
	}
	bob, err := self.Channel(keystore.NewMemKeyStore())
	if nil != err {
		return err
	}

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	aconn := channel.NewConn(alice, transport.RWTransport{R: c1, W: c1})
	bconn := channel.NewConn(bob, transport.RWTransport{R: c2, W: c2})

	errc := make(chan error, 1)
	go func() {
		errc <- bconn.Handshake()
	}()
	err = aconn.Handshake()
	if nil != err {
		c1.Close() // unblocks bob
	}
	if berr := <-errc; nil == err {
		err = berr
	}
	if nil != err {
		return err
	}
	fmt.Fprintf(out, "handshake completed, alice %s bob %s\n", alice.State(), bob.State())

	srz, err := alice.EncryptMessage([]byte("ping"))
	if nil != err {
		return err
	}
	go func() {
		errc <- errors.Join(aconn.SendRaw(srz), aconn.SendRaw(srz))
	}()

	msg, err := bconn.Receive()
	if nil != err {
		return err
	}
	fmt.Fprintf(out, "bob received %q (%d bytes packet)\n", msg, len(srz))

	_, err = bconn.Receive()
	switch {
	case errors.Is(err, channel.ErrRejected):
		fmt.Fprintln(out, "bob rejected replayed packet")
	case nil == err:
		return fmt.Errorf("replayed packet accepted")
	default:
		return err
	}

	return <-errc
}
