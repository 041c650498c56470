package audio

import "math"

// Hook transforms a buffer. Hooks never modify their input in place.
type Hook func(Buffer) Buffer

// ApplyHooks runs hooks in order, feeding each the previous result.
func ApplyHooks(b Buffer, hooks ...Hook) Buffer {
	out := b
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// DownmixMono averages all channels into a single channel.
func DownmixMono(b Buffer) Buffer {
	channels := b.NumChannels()
	if channels <= 1 {
		return b
	}

	frames := b.Frames()
	mono := make([]float32, frames)
	inv := 1 / float32(channels)
	for _, ch := range b.Channels {
		for i, s := range ch {
			mono[i] += s * inv
		}
	}

	return NewMono(mono, b.SampleRate)
}

// PeakNormalize scales all channels by the same gain so the absolute peak
// reaches 1.0. Silence is returned unchanged.
func PeakNormalize(b Buffer) Buffer {
	var peak float32
	for _, ch := range b.Channels {
		for _, s := range ch {
			if a := float32(math.Abs(float64(s))); a > peak {
				peak = a
			}
		}
	}
	if peak == 0 {
		return b
	}

	gain := 1 / peak
	out := make([][]float32, len(b.Channels))
	for c, ch := range b.Channels {
		out[c] = make([]float32, len(ch))
		for i, s := range ch {
			out[c][i] = s * gain
		}
	}

	return Buffer{Channels: out, SampleRate: b.SampleRate}
}

// Resample converts b to rate using linear interpolation. It returns b
// unchanged when the rates already match or either rate is not positive.
// A non-empty channel always keeps at least one sample.
func Resample(b Buffer, rate int) Buffer {
	if rate <= 0 || b.SampleRate <= 0 || rate == b.SampleRate {
		return b
	}

	ratio := float64(b.SampleRate) / float64(rate)
	out := make([][]float32, len(b.Channels))
	for c, ch := range b.Channels {
		n := int(math.Round(float64(len(ch)) / ratio))
		if len(ch) > 0 {
			n = max(n, 1)
		}
		dst := make([]float32, n)
		for i := range dst {
			pos := float64(i) * ratio
			j := int(pos)
			if j >= len(ch)-1 {
				dst[i] = ch[len(ch)-1]
				continue
			}
			frac := float32(pos - float64(j))
			dst[i] = ch[j] + (ch[j+1]-ch[j])*frac
		}
		out[c] = dst
	}

	return Buffer{Channels: out, SampleRate: rate}
}

// Resampler returns Resample bound to rate, for use with ApplyHooks.
func Resampler(rate int) Hook {
	return func(b Buffer) Buffer { return Resample(b, rate) }
}
