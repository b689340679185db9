// Package audio defines the frame type flowing between the caller-facing
// websocket and the speech model peer, plus the small PCM utilities the
// relay needs for format conversion and level metering.
package audio

import "time"

// AudioFrame represents a single frame of audio data flowing through the
// relay. Frames are the atomic unit of transport — received from the caller
// connection, converted to the model's format, and forwarded, and vice
// versa on the way back.
type AudioFrame struct {
	// PCM audio data, little-endian int16 samples.
	Data []byte

	// SampleRate in Hz (e.g., 48000 from a browser capture, 24000 for the
	// speech model).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}
