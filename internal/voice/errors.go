package voice

import (
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

// CloseSessionNoLongerValid is the voice websocket close code that shows up
// when the voice server drops a session mid-handshake. Reconnecting fixes it.
const CloseSessionNoLongerValid = 4006

type Class int

const (
	Transient Class = iota
	Fatal
)

func (c Class) String() string {
	if c == Fatal {
		return "fatal"
	}
	return "transient"
}

// CloseCoder is implemented by errors that carry a websocket close code.
type CloseCoder interface {
	CloseCode() int
}

// ConnectError is a failed join attempt tagged with its classification.
type ConnectError struct {
	Class   Class
	Code    int // websocket close code, 0 if the failure was not a close
	Attempt int
	Err     error
}

func (e *ConnectError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("voice connect attempt %d: closed with %d: %v", e.Attempt, e.Code, e.Err)
	}
	return fmt.Sprintf("voice connect attempt %d: %v", e.Attempt, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// CloseCode extracts a websocket close code from err. ok is false when err is
// not a close.
func CloseCode(err error) (code int, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	var cc CloseCoder
	if errors.As(err, &cc) {
		return cc.CloseCode(), true
	}
	return 0, false
}

// Classify decides whether a join failure may be retried. A close with
// CloseSessionNoLongerValid is transient, any other close is fatal, and
// everything that is not a close (timeouts, REST failures) is transient.
func Classify(err error) Class {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Class
	}
	code, ok := CloseCode(err)
	if !ok || code == CloseSessionNoLongerValid {
		return Transient
	}
	return Fatal
}
