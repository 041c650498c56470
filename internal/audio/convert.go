package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/go-audio/aiff"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// ErrUnsupportedFormat is returned by Decode for container formats it does not know.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// DecodeFunc turns an encoded file into a Buffer.
type DecodeFunc func(r io.Reader) (Buffer, error)

var decoders = map[string]DecodeFunc{
	"wav":  decodeWAVReader,
	"mp3":  DecodeMP3,
	"ogg":  DecodeOgg,
	"flac": DecodeFLAC,
	"aiff": DecodeAIFF,
	"aif":  DecodeAIFF,
}

// SupportedFormats lists the extensions Decode understands.
func SupportedFormats() []string {
	return []string{"wav", "mp3", "ogg", "flac"}
}

// Decodable lists every extension Decode has a decoder for, including
// formats that are not accepted by default.
func Decodable() []string {
	out := make([]string, 0, len(decoders))
	for ext := range decoders {
		out = append(out, ext)
	}
	slices.Sort(out)
	return out
}

// Decode decodes data according to format, a file extension with or
// without a leading dot, compared case-insensitively.
func Decode(format string, data []byte) (Buffer, error) {
	key := strings.ToLower(strings.TrimPrefix(format, "."))
	fn, ok := decoders[key]
	if !ok {
		return Buffer{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if len(data) == 0 {
		return Buffer{}, ErrEmptyInput
	}
	return fn(bytes.NewReader(data))
}

func decodeWAVReader(r io.Reader) (Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Buffer{}, fmt.Errorf("read WAV: %w", err)
	}
	return DecodeWAV(data)
}

// DecodeMP3 decodes an MPEG-1/2 layer III stream. go-mp3 always yields
// 16-bit little-endian stereo.
func DecodeMP3(r io.Reader) (Buffer, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return Buffer{}, fmt.Errorf("open mp3: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return Buffer{}, fmt.Errorf("decode mp3: %w", err)
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		samples[i] = float32(v) / 32768
	}

	const mp3Channels = 2
	return Deinterleave(samples, mp3Channels, dec.SampleRate()), nil
}

// DecodeOgg decodes an Ogg Vorbis stream.
func DecodeOgg(r io.Reader) (Buffer, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return Buffer{}, fmt.Errorf("decode ogg: %w", err)
	}
	return Deinterleave(samples, format.Channels, format.SampleRate), nil
}

// DecodeFLAC decodes a FLAC stream frame by frame.
func DecodeFLAC(r io.Reader) (Buffer, error) {
	stream, err := flac.New(r)
	if err != nil {
		return Buffer{}, fmt.Errorf("open flac: %w", err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	bits := int(stream.Info.BitsPerSample)
	if bits < 1 {
		bits = BitDepth
	}
	scale := float32(int64(1) << (bits - 1))

	out := make([][]float32, channels)
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Buffer{}, fmt.Errorf("decode flac frame: %w", err)
		}
		for c := 0; c < channels && c < len(frame.Subframes); c++ {
			for _, s := range frame.Subframes[c].Samples {
				out[c] = append(out[c], float32(s)/scale)
			}
		}
	}

	return Buffer{Channels: out, SampleRate: int(stream.Info.SampleRate)}, nil
}

// DecodeAIFF decodes an uncompressed AIFF file.
func DecodeAIFF(r io.Reader) (Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Buffer{}, fmt.Errorf("read aiff: %w", err)
	}

	dec := aiff.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Buffer{}, errors.New("decode aiff: not a valid AIFF file")
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("decode aiff: %w", err)
	}
	if pcm.Format == nil || pcm.Format.NumChannels < 1 {
		return Buffer{}, errors.New("decode aiff: missing format")
	}

	bits := int(dec.BitDepth)
	if bits < 1 {
		bits = BitDepth
	}
	scale := float32(int64(1) << (bits - 1))

	samples := make([]float32, len(pcm.Data))
	for i, v := range pcm.Data {
		samples[i] = float32(v) / scale
	}

	return Deinterleave(samples, pcm.Format.NumChannels, pcm.Format.SampleRate), nil
}
