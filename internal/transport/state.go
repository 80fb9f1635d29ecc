package transport

import "errors"

// State состояние realtime соединения
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

var (
	// ErrIdleTimeout means no message arrived for the idle timeout
	ErrIdleTimeout = errors.New("connection idle timeout")

	// ErrAlreadyRunning is returned by Connect while the connection loop runs
	ErrAlreadyRunning = errors.New("transport already running")
)
