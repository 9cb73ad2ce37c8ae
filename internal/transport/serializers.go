package transport

import (
	"github.com/fxamacker/cbor/v2"
)

// Serializer is an interface that provides methods to Marshal/Unmarshal messages.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// CBORSerializer provides a Serializer that uses default cbor Marshal/Unmarshal
type CBORSerializer struct{}

// Marshal wraps cbor.Marshal
func (self CBORSerializer) Marshal(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

// Unmarshal wraps cbor.Unmarshal
func (self CBORSerializer) Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

var _ Serializer = CBORSerializer{}

// A SafeSerializer wraps a Serializer ensuring that marshaled/unmarshaled messages are validated.
type SafeSerializer struct {
	Serializer
}

// WrapInSafeSerializer returns a SafeSerializer wrapping s.
func WrapInSafeSerializer(s Serializer) SafeSerializer {
	if c, isSafeSerializer := s.(SafeSerializer); isSafeSerializer {
		return c
	}

	return SafeSerializer{Serializer: s}
}

// Marshal errors with ValidationError if v has a Check method that fails,
// and with SerializationError if the wrapped Serializer fails.
func (self SafeSerializer) Marshal(v any) ([]byte, error) {
	if c, validate := v.(Checker); validate {
		if err := c.Check(); nil != err {
			return nil, newError(ValidationError, "invalid, Check returned %v", err)
		}
	}

	srzmsg, err := self.Serializer.Marshal(v)
	if nil != err {
		return nil, newError(SerializationError, "failed marshalling msg, got error %v", err)
	}

	return srzmsg, nil
}

// Unmarshal errors with SerializationError if the wrapped Serializer fails,
// and with ValidationError if v has a Check method that fails.
func (self SafeSerializer) Unmarshal(data []byte, v any) error {
	err := self.Serializer.Unmarshal(data, v)
	if nil != err {
		return newError(SerializationError, "failed unmarshaling message, got error %v", err)
	}

	if c, checkable := v.(Checker); checkable {
		if err = c.Check(); nil != err {
			return newError(ValidationError, "invalid, Check returned %v", err)
		}
	}

	return nil
}

var _ Serializer = SafeSerializer{}

// Checker is an interface that provides a method Check to validate messages.
type Checker interface {
	Check() error
}
