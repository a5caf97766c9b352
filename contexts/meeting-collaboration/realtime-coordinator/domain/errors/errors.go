package errors

import "errors"

var (
	ErrNotJoined         = errors.New("connection has not joined a meeting channel")
	ErrNotAuthenticated  = errors.New("connection is not authenticated")
	ErrUnknownConnection = errors.New("connection is not registered")
	ErrAlreadyRegistered = errors.New("connection is already registered")
	ErrInvalidRequest    = errors.New("invalid realtime request")
	ErrSlowConsumer      = errors.New("connection send queue is full")
	ErrConnectionClosed  = errors.New("connection is closed")
	ErrRateLimited       = errors.New("connection exceeded its message rate")
	ErrCoordinatorClosed = errors.New("coordinator is closed")
)
