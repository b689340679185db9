package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// Format is a sample rate and channel count, the two axes the relay has to
// reconcile between a browser capture and the speech model.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatConverter normalises AudioFrames to a target format. A frame already
// in the target format passes through untouched. The converter keeps a
// little state for one-shot log warnings, so use one per stream and do not
// share it across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns the frame in the target format. Matching frames are
// returned as-is without copying. Frames whose byte count is not a whole
// number of int16 samples are dropped (returned with nil Data): a torn
// websocket read would otherwise shift every later sample by one byte.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"sampleRate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		return AudioFrame{
			Data:       nil,
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
			Timestamp:  frame.Timestamp,
		}
	}

	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := frame.Data

	// Resample before touching channels: when downmixing 48kHz stereo to a
	// mono target there is no point interpolating twice as many samples.
	if frame.SampleRate != c.Target.SampleRate {
		switch frame.Channels {
		case 1:
			pcm = ResampleMono16(pcm, frame.SampleRate, c.Target.SampleRate)
		default:
			pcm = ResampleStereo16(pcm, frame.SampleRate, c.Target.SampleRate)
		}
	}

	switch {
	case frame.Channels == 1 && c.Target.Channels == 2:
		pcm = MonoToStereo(pcm)
	case frame.Channels == 2 && c.Target.Channels == 1:
		pcm = StereoToMono(pcm)
	}

	return AudioFrame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream converts every frame arriving on in to the target format and
// forwards it on the returned channel, which closes when in closes. The
// output channel inherits in's buffer size. Dropped frames (nil Data after a
// failed conversion) are not forwarded.
func ConvertStream(in <-chan AudioFrame, target Format) <-chan AudioFrame {
	out := make(chan AudioFrame, cap(in))
	go func() {
		defer close(out)
		conv := FormatConverter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// MonoToStereo writes each mono int16 sample into both channels of a stereo
// frame. Input is little-endian int16 PCM.
func MonoToStereo(pcm []byte) []byte {
	samples := len(pcm) / 2
	out := make([]byte, samples*4)
	for i := range samples {
		s := readSample(pcm, i)
		writeSample(out, i*2, s)
		writeSample(out, i*2+1, s)
	}
	return out
}

// StereoToMono mixes each L+R pair down to a single sample. The sum runs in
// int32 so opposite-phase extremes cannot wrap, and the average is clamped
// back to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		avg := (int32(readSample(pcm, i*2)) + int32(readSample(pcm, i*2+1))) / 2
		writeSample(out, i, clamp16(avg))
	}
	return out
}

// ResampleMono16 converts little-endian int16 mono PCM from srcRate to
// dstRate by linear interpolation. Input shorter than one sample, equal
// rates, or a non-positive rate all return the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	return resample16(pcm, 1, srcRate, dstRate)
}

// ResampleStereo16 is ResampleMono16 for interleaved L+R stereo: both
// channels are interpolated independently within each 4-byte frame.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	return resample16(pcm, 2, srcRate, dstRate)
}

// resample16 linearly interpolates int16 PCM with the given number of
// interleaved channels. The last source frame is held when the interpolation
// window runs past the end of the input.
func resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	stride := channels * 2
	srcFrames := len(pcm) / stride
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*stride)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		nextIdx := srcIdx + 1
		if nextIdx >= srcFrames {
			nextIdx = srcIdx
		}

		for ch := range channels {
			s0 := readSample(pcm, srcIdx*channels+ch)
			s1 := readSample(pcm, nextIdx*channels+ch)
			mixed := int16(float64(s0)*(1-frac) + float64(s1)*frac)
			writeSample(out, i*channels+ch, mixed)
		}
	}
	return out
}

func readSample(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}

func writeSample(pcm []byte, i int, s int16) {
	binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// formatString renders a format for log output, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
