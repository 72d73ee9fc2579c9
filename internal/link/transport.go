package link

import "errors"

// ErrNotConnected is returned when a send is attempted with no usable
// transport. Nothing is written; the user has to re-establish the link.
var ErrNotConnected = errors.New("transport not connected")

// Transport carries whole drive frames to the laser head. Write must be
// atomic per call: either the full packet goes out or an error comes back
// with nothing on the wire that the device would act on.
type Transport interface {
	Write(p []byte) error
	Connected() bool
	Close() error
}
