package common

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dNet/lib/framing"
)

// Error kinds of the transport
var (
	ErrAddressResolution = errors.New("address resolution failed")
	ErrSocketCreate      = errors.New("socket creation failed")
	ErrConnectFailed     = errors.New("connect failed")
	ErrThreadStart       = errors.New("receive worker start failed")
	ErrSendFailed        = errors.New("send failed")
	ErrPeerClosed        = errors.New("connection closed by peer")
	ErrMalformedFrame    = framing.ErrMalformedFrame

	ErrNotConnected   = errors.New("not connected")
	ErrAlreadyStarted = errors.New("transport already started")
)

// WrapError attaches an error kind to a cause, keeping both matchable with errors.Is.
// A nil cause returns the kind itself.
func WrapError(kind error, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}
