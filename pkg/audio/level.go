package audio

import "math"

// Level returns the normalised RMS level of little-endian int16 PCM data in
// [0, 1]. Empty or odd-length data reports 0. The relay emits this per
// forwarded chunk so UIs can render live meters without touching the raw
// audio.
func Level(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < samples*2; i += 2 {
		s := float64(int16(pcm[i]) | int16(pcm[i+1])<<8)
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(samples))
	return math.Min(rms/32768, 1)
}
