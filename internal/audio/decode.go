package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cwbudde/wav"
	"github.com/youpy/go-riff"
	"github.com/zaf/g711"
)

// WAV format codes found in the fmt chunk.
const (
	FormatPCM        = 1
	FormatIEEEFloat  = 3
	FormatALaw       = 6
	FormatMuLaw      = 7
	FormatExtensible = 0xFFFE
)

var (
	// ErrEmptyInput is returned when there are no bytes to decode.
	ErrEmptyInput = errors.New("empty audio input")
	// ErrInvalidWAV is returned when the RIFF/WAVE structure cannot be parsed.
	ErrInvalidWAV = errors.New("invalid WAV file")
	// ErrUnsupportedEncoding is returned for WAV payload encodings that cannot be decoded.
	ErrUnsupportedEncoding = errors.New("unsupported WAV encoding")
)

// Format describes the fmt chunk of a WAV file plus the size of its data chunk.
type Format struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataSize      uint32
}

// Inspect walks the RIFF chunks of data and returns the fmt fields and
// data chunk size. Chunks may appear in any order.
func Inspect(data []byte) (Format, error) {
	f, _, err := readWAVChunks(data, false)
	return f, err
}

func readWAVChunks(data []byte, withPayload bool) (Format, []byte, error) {
	if len(data) == 0 {
		return Format{}, nil, ErrEmptyInput
	}

	root, err := riff.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return Format{}, nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if string(root.FileType) != "WAVE" {
		return Format{}, nil, fmt.Errorf("%w: RIFF type %q", ErrInvalidWAV, string(root.FileType))
	}

	var (
		f       Format
		payload []byte
		haveFmt bool
		haveDat bool
	)
	// go-riff reports padded sizes, so the true sizes are read from data
	// at the running offset.
	off := 12
	for _, ch := range root.Chunks {
		size := ch.ChunkSize
		if off+8 <= len(data) {
			size = binary.LittleEndian.Uint32(data[off+4 : off+8])
		}

		switch string(ch.ChunkID) {
		case "fmt ":
			if size < fmtChunkSize {
				return Format{}, nil, fmt.Errorf("%w: fmt chunk is %d bytes", ErrInvalidWAV, size)
			}
			raw := make([]byte, fmtChunkSize)
			if _, err := io.ReadFull(ch, raw); err != nil {
				return Format{}, nil, fmt.Errorf("%w: read fmt chunk: %v", ErrInvalidWAV, err)
			}
			f.AudioFormat = binary.LittleEndian.Uint16(raw[0:2])
			f.NumChannels = binary.LittleEndian.Uint16(raw[2:4])
			f.SampleRate = binary.LittleEndian.Uint32(raw[4:8])
			f.ByteRate = binary.LittleEndian.Uint32(raw[8:12])
			f.BlockAlign = binary.LittleEndian.Uint16(raw[12:14])
			f.BitsPerSample = binary.LittleEndian.Uint16(raw[14:16])
			haveFmt = true
		case "data":
			f.DataSize = size
			payload = chunkBody(data, off, size)
			haveDat = true
		}
		off += 8 + int(ch.ChunkSize)
	}

	// go-riff stops walking before a trailing chunk with an empty body,
	// which is how a zero-frame file ends.
	if !haveDat && off+8 <= len(data) && string(data[off:off+4]) == "data" {
		f.DataSize = binary.LittleEndian.Uint32(data[off+4 : off+8])
		payload = chunkBody(data, off, f.DataSize)
		haveDat = true
	}

	if !haveFmt {
		return Format{}, nil, fmt.Errorf("%w: fmt chunk not found", ErrInvalidWAV)
	}
	if !haveDat {
		return Format{}, nil, fmt.Errorf("%w: data chunk not found", ErrInvalidWAV)
	}

	if !withPayload {
		payload = nil
	}
	return f, payload, nil
}

// chunkBody returns the body of the chunk whose header starts at off,
// clipped to the bytes actually present.
func chunkBody(data []byte, off int, size uint32) []byte {
	start := min(off+8, len(data))
	end := min(start+int(size), len(data))
	return data[start:end]
}

// DecodeWAV decodes a WAV file into per-channel float samples.
// Integer PCM is read with the cwbudde/wav decoder; G.711 A-law and
// mu-law payloads are expanded to 16-bit first.
func DecodeWAV(data []byte) (Buffer, error) {
	f, err := Inspect(data)
	if err != nil {
		return Buffer{}, err
	}

	switch f.AudioFormat {
	case FormatALaw, FormatMuLaw:
		return decodeG711(data)
	case FormatPCM, FormatExtensible:
	default:
		return Buffer{}, fmt.Errorf("%w: format code %d", ErrUnsupportedEncoding, f.AudioFormat)
	}

	if f.DataSize == 0 {
		channels := make([][]float32, f.NumChannels)
		for c := range channels {
			channels[c] = []float32{}
		}
		return Buffer{Channels: channels, SampleRate: int(f.SampleRate)}, nil
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Buffer{}, ErrInvalidWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("reading PCM data: %w", err)
	}

	return Deinterleave(buf.Data, int(dec.NumChans), int(dec.SampleRate)), nil
}

func decodeG711(data []byte) (Buffer, error) {
	f, payload, err := readWAVChunks(data, true)
	if err != nil {
		return Buffer{}, err
	}
	if f.BitsPerSample != 8 {
		return Buffer{}, fmt.Errorf("%w: G.711 with %d bits per sample", ErrUnsupportedEncoding, f.BitsPerSample)
	}

	samples := make([]float32, len(payload))
	for i, b := range payload {
		var v int16
		if f.AudioFormat == FormatALaw {
			v = g711.DecodeAlawFrame(b)
		} else {
			v = g711.DecodeUlawFrame(b)
		}
		samples[i] = float32(v) / 32768
	}

	return Deinterleave(samples, int(f.NumChannels), int(f.SampleRate)), nil
}
