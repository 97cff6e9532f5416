package messaging

import "errors"

var ErrTransportClosed = errors.New("transport closed")
