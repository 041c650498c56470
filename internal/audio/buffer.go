package audio

import (
	goaudio "github.com/go-audio/audio"
)

// Buffer holds decoded audio as one float sample slice per channel.
// Sample values are nominally in [-1, 1]. Buffers are treated as immutable
// by every function in this package; transforms return new buffers.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// NewMono wraps a single channel of samples.
func NewMono(samples []float32, sampleRate int) Buffer {
	return Buffer{Channels: [][]float32{samples}, SampleRate: sampleRate}
}

// NumChannels returns the channel count.
func (b Buffer) NumChannels() int { return len(b.Channels) }

// Frames returns the frame count, i.e. the length of the longest channel.
func (b Buffer) Frames() int {
	n := 0
	for _, ch := range b.Channels {
		if len(ch) > n {
			n = len(ch)
		}
	}
	return n
}

// Duration returns the buffer length in seconds, or 0 when the sample rate is unset.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Interleave lays the channels out frame by frame:
// frame0[ch0, ch1, ...], frame1[ch0, ch1, ...], ...
// A channel shorter than the others is padded with silence.
func Interleave(b Buffer) *goaudio.Float32Buffer {
	channels := b.NumChannels()
	frames := b.Frames()

	data := make([]float32, frames*channels)
	for c, ch := range b.Channels {
		for i, s := range ch {
			data[i*channels+c] = s
		}
	}

	return &goaudio.Float32Buffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: b.SampleRate, NumChannels: channels},
		SourceBitDepth: BitDepth,
	}
}

// Deinterleave splits frame-major samples into per-channel slices.
// Trailing samples that do not fill a whole frame are dropped.
func Deinterleave(data []float32, channels, sampleRate int) Buffer {
	if channels < 1 {
		return Buffer{SampleRate: sampleRate}
	}

	frames := len(data) / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for i := range frames {
		base := i * channels
		for c := range channels {
			out[c][i] = data[base+c]
		}
	}

	return Buffer{Channels: out, SampleRate: sampleRate}
}
