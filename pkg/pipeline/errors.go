package pipeline

import "errors"

// Custom error types for better error discrimination
var (
	// ErrAcquisition is returned when the microphone device cannot be acquired
	ErrAcquisition = errors.New("audio input device acquisition failed")

	// ErrConnection is returned when a transcription or channel connection cannot be established
	ErrConnection = errors.New("streaming connection setup failed")

	// ErrSynthesis is returned when text-to-speech conversion fails
	ErrSynthesis = errors.New("text-to-speech synthesis failed")

	// ErrPlayback is returned when an audio unit cannot be decoded or started
	ErrPlayback = errors.New("audio playback failed")

	// ErrProtocol is returned when an inbound message cannot be parsed
	ErrProtocol = errors.New("malformed inbound message")

	// ErrChannelClosed is returned when sending on a closed server channel
	ErrChannelClosed = errors.New("server channel is closed")
)
