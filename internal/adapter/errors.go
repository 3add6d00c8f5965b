package adapter

import "errors"

// Sentinel errors for adapter operations.
// Wrap with fmt.Errorf("%w: detail", Err...) to add context.
var (
	// ErrNotConnected indicates an operation was attempted before the
	// transport established a connection, or after it was lost.
	ErrNotConnected = errors.New("adapter: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("adapter: connection failed")

	// ErrTimeout indicates an operation did not complete within its deadline.
	ErrTimeout = errors.New("adapter: operation timed out")

	// ErrPublishFailed indicates a message could not be delivered.
	ErrPublishFailed = errors.New("adapter: publish failed")

	// ErrSubscribeFailed indicates a subscription could not be established.
	ErrSubscribeFailed = errors.New("adapter: subscribe failed")

	// ErrUnsubscribeFailed indicates a subscription could not be removed.
	ErrUnsubscribeFailed = errors.New("adapter: unsubscribe failed")

	// ErrInvalidTopic indicates an empty or malformed topic.
	ErrInvalidTopic = errors.New("adapter: invalid topic")

	// ErrInvalidQoS indicates a QoS level outside 0-2.
	ErrInvalidQoS = errors.New("adapter: invalid qos level")

	// ErrUnsupportedProtocol indicates no transport exists for the
	// requested protocol.
	ErrUnsupportedProtocol = errors.New("adapter: unsupported protocol")

	// ErrNotBound indicates an inbound binding operation before Bind.
	ErrNotBound = errors.New("adapter: binding not established")
)
