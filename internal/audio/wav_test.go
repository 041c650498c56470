package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// makeWAV builds a minimal WAV file from parameters for testing.
func makeWAV(sampleRate uint32, numChannels uint16, audioFormat uint16, bitDepth uint16, payload []byte) []byte {
	blockAlign := numChannels * bitDepth / 8
	byteRate := sampleRate * uint32(blockAlign)
	dataSize := uint32(len(payload))
	riffSize := 4 + (8 + 16) + (8 + dataSize)

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")

	// fmt chunk
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16)) // chunk size
	_ = binary.Write(buf, binary.LittleEndian, audioFormat)
	_ = binary.Write(buf, binary.LittleEndian, numChannels)
	_ = binary.Write(buf, binary.LittleEndian, sampleRate)
	_ = binary.Write(buf, binary.LittleEndian, byteRate)
	_ = binary.Write(buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(buf, binary.LittleEndian, bitDepth)

	// data chunk
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	buf.Write(payload)

	return buf.Bytes()
}

func pcm16At(t *testing.T, data []byte, i int) int16 {
	t.Helper()
	off := HeaderSize + i*2
	if off+2 > len(data) {
		t.Fatalf("sample %d out of range (len %d)", i, len(data))
	}
	return int16(binary.LittleEndian.Uint16(data[off:]))
}

func TestFloatToPCM16(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16383},
		{"full scale positive", 1.0, 32767},
		{"full scale negative", -1.0, -32768},
		{"negative half", -0.5, -16384},
		{"truncates toward zero", -0.3, -9830},
		{"clamps above one", 2.0, 32767},
		{"clamps below minus one", -5.0, -32768},
		{"NaN is silence", float32(math.NaN()), 0},
		{"positive infinity clamps", float32(math.Inf(1)), 32767},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FloatToPCM16(tt.in); got != tt.want {
				t.Errorf("FloatToPCM16(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeWAV(t *testing.T) {
	t.Run("mono example", func(t *testing.T) {
		data := EncodeWAV(NewMono([]float32{0.0, 0.5, -1.0}, 8000))

		if len(data) != HeaderSize+6 {
			t.Fatalf("len = %d, want %d", len(data), HeaderSize+6)
		}
		if got := binary.LittleEndian.Uint32(data[40:44]); got != 6 {
			t.Errorf("dataLength = %d, want 6", got)
		}
		want := []int16{0, 16383, -32768}
		for i, w := range want {
			if got := pcm16At(t, data, i); got != w {
				t.Errorf("sample[%d] = %d, want %d", i, got, w)
			}
		}
	})

	t.Run("header tags and fields", func(t *testing.T) {
		b := Buffer{
			Channels:   [][]float32{make([]float32, 10), make([]float32, 10)},
			SampleRate: 44100,
		}
		data := EncodeWAV(b)

		tags := map[int]string{0: "RIFF", 8: "WAVE", 12: "fmt ", 36: "data"}
		for off, tag := range tags {
			if got := string(data[off : off+4]); got != tag {
				t.Errorf("bytes %d-%d = %q, want %q", off, off+3, got, tag)
			}
		}

		dataLen := uint32(10 * 2 * 2)
		checks := []struct {
			name string
			got  uint32
			want uint32
		}{
			{"riff size", binary.LittleEndian.Uint32(data[4:8]), 36 + dataLen},
			{"fmt size", binary.LittleEndian.Uint32(data[16:20]), 16},
			{"format", uint32(binary.LittleEndian.Uint16(data[20:22])), 1},
			{"channels", uint32(binary.LittleEndian.Uint16(data[22:24])), 2},
			{"sample rate", binary.LittleEndian.Uint32(data[24:28]), 44100},
			{"byte rate", binary.LittleEndian.Uint32(data[28:32]), 44100 * 2 * 2},
			{"block align", uint32(binary.LittleEndian.Uint16(data[32:34])), 4},
			{"bits per sample", uint32(binary.LittleEndian.Uint16(data[34:36])), 16},
			{"data size", binary.LittleEndian.Uint32(data[40:44]), dataLen},
		}
		for _, c := range checks {
			if c.got != c.want {
				t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
			}
		}
	})

	t.Run("output length formula", func(t *testing.T) {
		for _, channels := range []int{1, 2, 3, 6} {
			for _, frames := range []int{0, 1, 7, 480} {
				b := Buffer{SampleRate: 16000}
				for range channels {
					b.Channels = append(b.Channels, make([]float32, frames))
				}
				data := EncodeWAV(b)
				if want := HeaderSize + 2*frames*channels; len(data) != want {
					t.Errorf("channels=%d frames=%d: len = %d, want %d", channels, frames, len(data), want)
				}
			}
		}
	})

	t.Run("interleaves frame by frame", func(t *testing.T) {
		b := Buffer{
			Channels: [][]float32{
				{1.0, 0.0},
				{-1.0, 0.5},
			},
			SampleRate: 8000,
		}
		data := EncodeWAV(b)

		want := []int16{32767, -32768, 0, 16383}
		for i, w := range want {
			if got := pcm16At(t, data, i); got != w {
				t.Errorf("sample[%d] = %d, want %d", i, got, w)
			}
		}
	})

	t.Run("clamping matches full scale", func(t *testing.T) {
		over := EncodeWAV(NewMono([]float32{2.0, -5.0}, 8000))
		full := EncodeWAV(NewMono([]float32{1.0, -1.0}, 8000))
		if !bytes.Equal(over, full) {
			t.Errorf("clamped output differs from full scale output")
		}
		if got := pcm16At(t, over, 0); got != 32767 {
			t.Errorf("2.0 encoded as %d, want 32767", got)
		}
		if got := pcm16At(t, over, 1); got != -32768 {
			t.Errorf("-5.0 encoded as %d, want -32768", got)
		}
	})

	t.Run("empty and zero channel input", func(t *testing.T) {
		data := EncodeWAV(Buffer{SampleRate: 8000})
		if len(data) != HeaderSize {
			t.Fatalf("len = %d, want %d", len(data), HeaderSize)
		}
		if got := binary.LittleEndian.Uint16(data[22:24]); got != 0 {
			t.Errorf("channels = %d, want 0", got)
		}
	})
}

func TestWriteWAV_MatchesEncodeWAV(t *testing.T) {
	samples := make([]float32, 20000)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) * 0.01))
	}
	b := Buffer{Channels: [][]float32{samples, samples[:19000]}, SampleRate: 22050}

	var buf bytes.Buffer
	n, err := WriteWAV(&buf, b)
	if err != nil {
		t.Fatalf("WriteWAV error: %v", err)
	}

	want := EncodeWAV(b)
	if n != len(want) {
		t.Errorf("wrote %d bytes; want %d", n, len(want))
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Error("WriteWAV output differs from EncodeWAV")
	}
}

type failingWriter struct{ after int }

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("disk full")
	}
	f.after--
	return len(p), nil
}

func TestWriteWAV_PropagatesWriteErrors(t *testing.T) {
	b := NewMono(make([]float32, 100), 8000)

	if _, err := WriteWAV(&failingWriter{after: 0}, b); err == nil {
		t.Error("expected header write error")
	}
	n, err := WriteWAV(&failingWriter{after: 1}, b)
	if err == nil {
		t.Fatal("expected sample write error")
	}
	if n != HeaderSize {
		t.Errorf("wrote %d bytes before failing; want %d", n, HeaderSize)
	}
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	original := Buffer{
		Channels: [][]float32{
			{0.0, 0.5, -0.5, 1.0, -1.0, 0.25},
			{0.1, -0.1, 0.75, -0.75, 0.0, 0.9},
		},
		SampleRate: 48000,
	}

	decoded, err := DecodeWAV(EncodeWAV(original))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if decoded.SampleRate != original.SampleRate {
		t.Errorf("sample rate = %d, want %d", decoded.SampleRate, original.SampleRate)
	}
	if decoded.NumChannels() != original.NumChannels() {
		t.Fatalf("channels = %d, want %d", decoded.NumChannels(), original.NumChannels())
	}

	// 16-bit quantization introduces error up to ~1/32768.
	const tolerance = 1.0 / 32768.0 * 2
	for c, ch := range original.Channels {
		if len(decoded.Channels[c]) != len(ch) {
			t.Fatalf("channel %d: got %d samples, want %d", c, len(decoded.Channels[c]), len(ch))
		}
		for i, want := range ch {
			got := decoded.Channels[c][i]
			if math.Abs(float64(got-want)) > tolerance {
				t.Errorf("ch%d sample[%d] = %f, want %f (tolerance %f)", c, i, got, want, tolerance)
			}
		}
	}
}

func TestEncodeSamples(t *testing.T) {
	chans := [][]float32{{0.5}, {-0.5}}
	if !bytes.Equal(EncodeSamples(chans, 16000), EncodeWAV(Buffer{Channels: chans, SampleRate: 16000})) {
		t.Error("EncodeSamples differs from EncodeWAV")
	}
}
