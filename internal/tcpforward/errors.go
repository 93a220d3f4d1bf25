package tcpforward

import "errors"

// ErrBindFailed is returned when the listener could not bind, distinguishing
// address-in-use from permission-denied for the caller's error reporting.
var ErrBindFailed = errors.New("bind failed")
