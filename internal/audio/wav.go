package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Fixed properties of the WAV files produced by this package.
const (
	HeaderSize     = 44
	BitDepth       = 16
	bytesPerSample = BitDepth / 8
	formatPCM      = 1
	fmtChunkSize   = 16
)

// FloatToPCM16 converts a float sample to a signed 16-bit value.
// The sample is clamped to [-1, 1]; negative values scale by 32768 and
// non-negative values by 32767, truncating toward zero. NaN maps to 0.
func FloatToPCM16(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	clamped := math.Max(-1.0, math.Min(1.0, v))
	if clamped < 0 {
		return int16(clamped * 32768)
	}
	return int16(clamped * 32767)
}

// DataLength returns the size in bytes of the PCM payload for b.
func DataLength(b Buffer) int {
	return b.Frames() * b.NumChannels() * bytesPerSample
}

// EncodeWAV encodes b as a canonical 44-byte-header RIFF/WAVE file with
// 16-bit little-endian PCM samples. The output length is always
// HeaderSize + DataLength(b). Inputs are not validated: a zero-channel or
// empty buffer yields a header-only file.
func EncodeWAV(b Buffer) []byte {
	interleaved := Interleave(b)
	dataLen := len(interleaved.Data) * bytesPerSample

	out := make([]byte, HeaderSize+dataLen)
	putHeader(out[:HeaderSize], b.NumChannels(), b.SampleRate, dataLen)
	putSamples(out[HeaderSize:], interleaved.Data)

	return out
}

// EncodeSamples is EncodeWAV for callers holding raw per-channel slices.
func EncodeSamples(channels [][]float32, sampleRate int) []byte {
	return EncodeWAV(Buffer{Channels: channels, SampleRate: sampleRate})
}

// WriteWAV writes the same bytes as EncodeWAV to w without materialising
// the whole file, converting samples in fixed-size blocks.
func WriteWAV(w io.Writer, b Buffer) (int, error) {
	interleaved := Interleave(b)
	dataLen := len(interleaved.Data) * bytesPerSample

	var hdr [HeaderSize]byte
	putHeader(hdr[:], b.NumChannels(), b.SampleRate, dataLen)

	written, err := w.Write(hdr[:])
	if err != nil {
		return written, fmt.Errorf("write WAV header: %w", err)
	}

	const blockSamples = 8192
	block := make([]byte, min(len(interleaved.Data), blockSamples)*bytesPerSample)
	for i := 0; i < len(interleaved.Data); i += blockSamples {
		end := min(i+blockSamples, len(interleaved.Data))
		chunk := block[:(end-i)*bytesPerSample]
		putSamples(chunk, interleaved.Data[i:end])

		n, err := w.Write(chunk)
		written += n
		if err != nil {
			return written, fmt.Errorf("write WAV samples: %w", err)
		}
	}

	return written, nil
}

func putHeader(hdr []byte, channels, sampleRate, dataLen int) {
	byteRate := sampleRate * channels * bytesPerSample
	blockAlign := channels * bytesPerSample

	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+dataLen))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], fmtChunkSize)
	binary.LittleEndian.PutUint16(hdr[20:22], formatPCM)
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], BitDepth)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(dataLen))
}

func putSamples(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(FloatToPCM16(s)))
	}
}
