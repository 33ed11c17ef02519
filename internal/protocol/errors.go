package protocol

import "errors"

var (
	// ErrTruncatedFrame is returned when the stream ends inside a length prefix or payload
	ErrTruncatedFrame = errors.New("truncated frame")

	// ErrFrameTooLarge is returned when a length prefix exceeds the configured limit
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrMalformedPayload is returned when a payload cannot be decoded
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrUnknownKind is returned for a message tag outside the known set
	ErrUnknownKind = errors.New("unknown message kind")

	// ErrInvalidMessage is returned when a known kind lacks a required field
	ErrInvalidMessage = errors.New("invalid message")

	// ErrUnknownCodec is returned by CodecByName for unsupported names
	ErrUnknownCodec = errors.New("unknown codec")
)
