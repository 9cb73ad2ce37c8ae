package utils

import (
	"fmt"
	"path"
	"runtime"
)

// RaisedErr is the error type returned by the securecomm packages.
// It records the source location where the error was emitted.
//
// Packages declare a private flag type with a few exported flag constants. Assigning
// a Flag to a RaisedErr lets callers classify it with errors.Is without parsing messages.
type RaisedErr struct {
	// Flag groups related errors.
	Flag error

	// Cause is the error that triggered this one, if any.
	Cause error

	// Msg describes what happened.
	Msg string

	// Filename is the source file that emitted the error.
	Filename string

	// Line is the line in Filename that emitted the error.
	Line int
}

// Error implements the error interface.
func (self RaisedErr) Error() string {
	if nil == self.Cause {
		return fmt.Sprintf("%s: %s\n  file: %s line: %d", path.Dir(self.Filename), self.Msg, self.Filename, self.Line)
	}
	return fmt.Sprintf("%s: %s\n  file: %s line: %d\n%v", path.Dir(self.Filename), self.Msg, self.Filename, self.Line, self.Cause)
}

// Unwrap returns the Flag and the Cause of the RaisedErr.
func (self RaisedErr) Unwrap() []error {
	rv := make([]error, 0, 2)
	if nil != self.Flag {
		rv = append(rv, self.Flag)
	}
	if nil != self.Cause {
		rv = append(rv, self.Cause)
	}
	return rv
}

// NewError returns a RaisedErr{} holding file & line of its caller.
//
// skip controls Caller frame resolution: 0 when calling NewError directly,
// 1 when calling it through a package level newError helper...
func NewError(skip int, flag error, msg string, args ...any) error {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	err := RaisedErr{Flag: flag, Msg: msg}
	addCallerFileLine(skip, &err)
	return err
}

// WrapError returns a RaisedErr{} holding cause and file & line of its caller.
// It returns nil if cause is nil.
//
// skip has the same meaning as in NewError.
func WrapError(cause error, skip int, flag error, msg string, args ...any) error {
	if nil == cause {
		return nil
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	err := RaisedErr{Flag: flag, Cause: cause, Msg: msg}
	addCallerFileLine(skip, &err)
	return err
}

func addCallerFileLine(skip int, err *RaisedErr) {
	_, filename, line, ok := runtime.Caller(2 + skip)
	dirname, filename := path.Split(filename)
	if ok {
		err.Filename = path.Join(path.Base(dirname), filename)
		err.Line = line
	}
}

// errorFlag is the flag type used by the utils package itself.
type errorFlag string

const (
	// Error is wrapped by all utils package errors.
	Error   = errorFlag("utils: error")
	noError = errorFlag("")
)

func (self errorFlag) Error() string {
	return string(self)
}

func (self errorFlag) Unwrap() error {
	if Error == self || noError == self {
		return nil
	}
	return Error
}

func newError(msg string, args ...any) error {
	return NewError(1, Error, msg, args...)
}
