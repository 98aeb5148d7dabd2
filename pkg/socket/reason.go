package socket

import (
	"errors"

	"github.com/gorilla/websocket"
)

// Reason classifies why an established connection ended.
type Reason int

const (
	// ReasonTransportError covers network failures and abnormal closes. Retried.
	ReasonTransportError Reason = iota
	// ReasonServerClose is a deliberate close by the far end. Not retried.
	ReasonServerClose
	// ReasonTransportRejected is a protocol-level rejection. Not retried.
	ReasonTransportRejected
)

func (r Reason) String() string {
	switch r {
	case ReasonServerClose:
		return "server close"
	case ReasonTransportRejected:
		return "transport rejected"
	default:
		return "transport error"
	}
}

// Retryable reports whether a reconnect should be scheduled.
func (r Reason) Retryable() bool {
	return r == ReasonTransportError
}

// Classify maps the error that ended ReadEvent to a Reason.
func Classify(err error) Reason {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return ReasonTransportError
	}

	switch ce.Code {
	case websocket.CloseNormalClosure, websocket.ClosePolicyViolation:
		return ReasonServerClose
	case websocket.CloseProtocolError, websocket.CloseUnsupportedData,
		websocket.CloseInvalidFramePayloadData, websocket.CloseMessageTooBig:
		return ReasonTransportRejected
	}

	// 4000-4999 are application codes the service uses for deliberate closes.
	if ce.Code >= 4000 && ce.Code <= 4999 {
		return ReasonServerClose
	}

	return ReasonTransportError
}
