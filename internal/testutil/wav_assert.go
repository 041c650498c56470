package testutil

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
)

// pcmHeader is the subset of a RIFF/WAVE file the assertions look at.
type pcmHeader struct {
	riffSize   uint32
	format     uint16
	channels   uint16
	sampleRate uint32
	blockAlign uint16
	bitDepth   uint16
	dataSize   uint32
}

// parsePCMHeader reads the RIFF header, the leading fmt chunk and the size
// of the first data chunk, skipping any chunks in between.
func parsePCMHeader(data []byte) (pcmHeader, error) {
	var h pcmHeader
	if len(data) < 44 {
		return h, fmt.Errorf("data too short: %d bytes", len(data))
	}
	if tag := string(data[0:4]); tag != "RIFF" {
		return h, fmt.Errorf("missing RIFF header (got %q)", tag)
	}
	if tag := string(data[8:12]); tag != "WAVE" {
		return h, fmt.Errorf("missing WAVE marker (got %q)", tag)
	}
	if tag := string(data[12:16]); tag != "fmt " {
		return h, fmt.Errorf("missing fmt chunk (got %q)", tag)
	}

	le := binary.LittleEndian
	h.riffSize = le.Uint32(data[4:8])
	h.format = le.Uint16(data[20:22])
	h.channels = le.Uint16(data[22:24])
	h.sampleRate = le.Uint32(data[24:28])
	h.blockAlign = le.Uint16(data[32:34])
	h.bitDepth = le.Uint16(data[34:36])

	for off := 12; off+8 <= len(data); {
		size := le.Uint32(data[off+4 : off+8])
		if string(data[off:off+4]) == "data" {
			h.dataSize = size
			return h, nil
		}
		// Chunks are word aligned.
		off += 8 + int(size) + int(size&1)
	}
	return h, errors.New("data chunk not found")
}

// AssertValidWAV checks that data is a 16-bit PCM WAV file with the given
// channel count and sample rate and at least one sample frame.
func AssertValidWAV(tb testing.TB, data []byte, channels int, sampleRate int) {
	tb.Helper()

	h, err := parsePCMHeader(data)
	if err != nil {
		tb.Fatalf("WAV: %v", err)
	}

	switch {
	case int(h.riffSize) != len(data)-8:
		tb.Fatalf("WAV: RIFF size %d does not match file length %d", h.riffSize, len(data))
	case h.format != 1:
		tb.Fatalf("WAV: expected PCM format (1), got %d", h.format)
	case int(h.channels) != channels:
		tb.Fatalf("WAV: expected %d channels, got %d", channels, h.channels)
	case int(h.sampleRate) != sampleRate:
		tb.Fatalf("WAV: expected sample rate %d, got %d", sampleRate, h.sampleRate)
	case h.bitDepth != 16:
		tb.Fatalf("WAV: expected 16-bit depth, got %d", h.bitDepth)
	case h.dataSize < uint32(2*channels):
		tb.Fatal("WAV: data chunk contains zero frames")
	}
}

// AssertWAVDurationApprox asserts that the audio duration falls within
// [minSec, maxSec].
func AssertWAVDurationApprox(tb testing.TB, data []byte, minSec, maxSec float64) {
	tb.Helper()

	h, err := parsePCMHeader(data)
	if err != nil {
		tb.Fatalf("WAV duration check: %v", err)
	}
	if h.sampleRate == 0 || h.blockAlign == 0 {
		tb.Fatalf("WAV duration check: invalid header (rate=%d, blockAlign=%d)", h.sampleRate, h.blockAlign)
	}

	sec := float64(h.dataSize/uint32(h.blockAlign)) / float64(h.sampleRate)
	if sec < minSec || sec > maxSec {
		tb.Fatalf("WAV duration %.3fs out of expected range [%.3fs, %.3fs]", sec, minSec, maxSec)
	}
}
