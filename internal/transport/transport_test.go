package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

type Dummy struct {
	X       int    `cbor:"1,keyasint,omitzero"`
	Y       int    `cbor:"2,keyasint,omitzero"`
	Name    string `cbor:"3,keyasint,omitempty"`
	Payload []byte `cbor:"4,keyasint,omitempty"`
}

func (_ Dummy) Check() error {
	return nil
}

type InvalidDummy struct {
	*Dummy
}

func (_ InvalidDummy) Check() error {
	return errors.New("InvalidDummy is always Invalid")
}

var serializers = map[string]Serializer{
	"cbor": CBORSerializer{},
	"safe": WrapInSafeSerializer(CBORSerializer{}),
}

func TestTransportLoopback(t *testing.T) {
	for name, s := range serializers {
		t.Run(name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			mt := MessageTransport{Transport: RWTransport{R: buf, W: buf}, S: s}

			msg1 := Dummy{X: 10, Y: 20, Name: "Hope", Payload: []byte{1, 2, 3, 4}}
			err := mt.WriteMessage(msg1)
			if nil != err {
				t.Fatalf("failed writing msg1, got error %v", err)
			}
			srzmsg := buf.Bytes()
			t.Logf("msg1 prefix -> % X", srzmsg[:4])
			if int(binary.BigEndian.Uint32(srzmsg)) != len(srzmsg)-4 {
				t.Fatalf("invalid length prefix % X", srzmsg[:4])
			}

			msg2 := Dummy{}
			err = mt.ReadMessage(&msg2)
			if nil != err {
				t.Fatalf("failed reading msg2, got error %v", err)
			}
			if !reflect.DeepEqual(msg1, msg2) {
				t.Fatalf("failed recovering msg1\n%+v\n!=\n%+v", msg1, msg2)
			}

			msg3 := RawMsg([]byte{1, 2, 3, 4, 5})
			err = mt.WriteMessage(msg3)
			if nil != err {
				t.Fatalf("failed writing msg3, got error %v", err)
			}
			msg4 := RawMsg{}
			err = mt.ReadMessage(&msg4)
			if nil != err {
				t.Fatalf("failed reading msg4, got error %v", err)
			}
			if !reflect.DeepEqual(msg3, msg4) {
				t.Fatalf("failed recovering msg3\n% X\n!=\n% X", msg3, msg4)
			}
		})
	}
}

func TestRWTransportLargeFrame(t *testing.T) {
	buf := new(bytes.Buffer)
	rw := RWTransport{R: buf, W: buf}

	// larger than the former u16 prefix limit
	data := bytes.Repeat([]byte{0x42}, 0x10000+1)
	err := rw.WriteBytes(data)
	if nil != err {
		t.Fatalf("failed WriteBytes, got error %v", err)
	}
	got, err := rw.ReadBytes()
	if nil != err {
		t.Fatalf("failed ReadBytes, got error %v", err)
	}
	if !bytes.Equal(data, got) {
		t.Error("failed recovering large frame")
	}
}

func TestRWTransportFrameSize(t *testing.T) {
	buf := new(bytes.Buffer)
	rw := RWTransport{R: buf, W: buf}

	err := rw.WriteBytes(make([]byte, MaxFrameSize+1))
	if !errors.Is(err, ErrFrameSize) {
		t.Errorf("failed WriteBytes, expected ErrFrameSize, got %v", err)
	}

	buf.Write(binary.BigEndian.AppendUint32(nil, MaxFrameSize+1))
	_, err = rw.ReadBytes()
	if !errors.Is(err, ErrFrameSize) {
		t.Errorf("failed ReadBytes, expected ErrFrameSize, got %v", err)
	}
}

func TestRWTransportTruncated(t *testing.T) {
	testcases := [][]byte{
		{0, 0},
		{0, 0, 0, 5, 1, 2},
	}
	for pos, data := range testcases {
		t.Run(fmt.Sprintf("case#%d", pos), func(t *testing.T) {
			rw := RWTransport{R: bytes.NewReader(data)}
			_, err := rw.ReadBytes()
			if nil == err {
				t.Error("truncated frame accepted")
			}
		})
	}
}

func TestTransportFailReadMessageSerialization(t *testing.T) {
	buf := new(bytes.Buffer)

	// put invalid data in buf
	data := "12345"
	buf.Write([]byte{0, 0, 0, 5}) // length prefix
	buf.Write([]byte(data))

	mt := MessageTransport{Transport: RWTransport{R: buf, W: buf}, S: WrapInSafeSerializer(CBORSerializer{})}

	msg := Dummy{}
	err := mt.ReadMessage(&msg)
	if !errors.Is(err, SerializationError) {
		t.Errorf("failed not a SerializationError, err is %v", err)
	}
}

func TestTransportFailReadMessageValidation(t *testing.T) {
	buf := new(bytes.Buffer)
	mt := MessageTransport{Transport: RWTransport{R: buf, W: buf}, S: WrapInSafeSerializer(CBORSerializer{})}

	msg := Dummy{X: 10, Y: 20, Name: "Hope", Payload: []byte{1, 2, 3, 4}}
	err := mt.WriteMessage(msg)
	if nil != err {
		t.Fatalf("failed WriteMessage, got error %v", err)
	}

	readmsg := InvalidDummy{Dummy: &Dummy{}} // same fields as Dummy{}
	err = mt.ReadMessage(&readmsg)
	if !errors.Is(err, ValidationError) {
		t.Errorf("failed not a ValidationError, err is %v", err)
	}
}

func TestTransportFailWriteMessageValidation(t *testing.T) {
	buf := new(bytes.Buffer)
	mt := MessageTransport{Transport: RWTransport{R: buf, W: buf}, S: WrapInSafeSerializer(CBORSerializer{})}

	msg := Dummy{X: 10, Y: 20, Name: "Hope", Payload: []byte{1, 2, 3, 4}}
	err := mt.WriteMessage(InvalidDummy{Dummy: &msg})
	if !errors.Is(err, ValidationError) {
		t.Errorf("failed not a ValidationError, err is %v", err)
	}
	if 0 != buf.Len() {
		t.Error("invalid message was written")
	}
}

func TestWrapInSafeSerializer(t *testing.T) {
	s := WrapInSafeSerializer(CBORSerializer{})
	if !reflect.DeepEqual(s, WrapInSafeSerializer(s)) {
		t.Error("SafeSerializer wrapped twice")
	}
}
