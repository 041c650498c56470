//go:build js && wasm

package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"syscall/js"

	"github.com/example/go-voicescribe/internal/audio"
)

func main() {
	kernel := map[string]any{
		"version":    "0.1.0-wasm",
		"bitDepth":   audio.BitDepth,
		"headerSize": audio.HeaderSize,
		"encodeWAV":  js.FuncOf(encodeWAV),
		"inspect":    js.FuncOf(inspectWAV),
	}

	js.Global().Set("VoiceScribeEncoder", js.ValueOf(kernel))
	println("VoiceScribe wasm encoder loaded")
	select {}
}

// encodeWAV(channels, sampleRate) takes an array of Float32Array (or a single
// Float32Array for mono) and returns {ok, wav: Uint8Array, frames, channels}.
func encodeWAV(_ js.Value, args []js.Value) (result any) {
	defer func() {
		if r := recover(); r != nil {
			result = errResult(fmt.Sprintf("encodeWAV panicked: %v", r))
		}
	}()

	if len(args) < 2 {
		return errResult("usage: encodeWAV(channels, sampleRate)")
	}

	channels, err := readChannels(args[0])
	if err != nil {
		return errResult(err.Error())
	}

	sampleRate := args[1].Int()
	if sampleRate <= 0 {
		return errResult("sampleRate must be positive")
	}

	buf := audio.Buffer{Channels: channels, SampleRate: sampleRate}
	wav := audio.EncodeWAV(buf)

	out := js.Global().Get("Uint8Array").New(len(wav))
	js.CopyBytesToJS(out, wav)

	return okResult(map[string]any{
		"wav":      out,
		"bytes":    len(wav),
		"frames":   buf.Frames(),
		"channels": buf.NumChannels(),
	})
}

// inspectWAV(bytes) returns the fmt fields of a WAV file.
func inspectWAV(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return errResult("usage: inspect(bytes)")
	}

	data, ok := copyJSBytes(args[0])
	if !ok {
		return errResult("argument must be a Uint8Array or ArrayBuffer")
	}

	f, err := audio.Inspect(data)
	if err != nil {
		return errResult(err.Error())
	}

	return okResult(map[string]any{
		"audioFormat":   int(f.AudioFormat),
		"channels":      int(f.NumChannels),
		"sampleRate":    int(f.SampleRate),
		"byteRate":      int(f.ByteRate),
		"blockAlign":    int(f.BlockAlign),
		"bitsPerSample": int(f.BitsPerSample),
		"dataSize":      int(f.DataSize),
	})
}

func readChannels(v js.Value) ([][]float32, error) {
	float32Array := js.Global().Get("Float32Array")
	if v.InstanceOf(float32Array) {
		ch, err := copyJSFloats(v)
		if err != nil {
			return nil, err
		}
		return [][]float32{ch}, nil
	}

	if !js.Global().Get("Array").Call("isArray", v).Bool() {
		return nil, fmt.Errorf("channels must be a Float32Array or an array of Float32Array")
	}

	n := v.Length()
	channels := make([][]float32, n)
	for i := 0; i < n; i++ {
		ch, err := copyJSFloats(v.Index(i))
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		channels[i] = ch
	}
	return channels, nil
}

func copyJSFloats(v js.Value) ([]float32, error) {
	if !v.InstanceOf(js.Global().Get("Float32Array")) {
		return nil, fmt.Errorf("expected Float32Array")
	}

	raw := js.Global().Get("Uint8Array").New(v.Get("buffer"), v.Get("byteOffset"), v.Get("byteLength"))
	buf := make([]byte, raw.Length())
	n := js.CopyBytesToGo(buf, raw)

	out := make([]float32, n/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}

func copyJSBytes(v js.Value) ([]byte, bool) {
	if v.IsUndefined() || v.IsNull() {
		return nil, false
	}

	uint8Array := js.Global().Get("Uint8Array")
	if !uint8Array.IsUndefined() && v.InstanceOf(uint8Array) {
		buf := make([]byte, v.Get("length").Int())
		n := js.CopyBytesToGo(buf, v)
		return buf[:n], true
	}

	arrayBuffer := js.Global().Get("ArrayBuffer")
	if !arrayBuffer.IsUndefined() && v.InstanceOf(arrayBuffer) {
		wrapped := uint8Array.New(v)
		buf := make([]byte, wrapped.Get("length").Int())
		n := js.CopyBytesToGo(buf, wrapped)
		return buf[:n], true
	}

	return nil, false
}

func okResult(payload map[string]any) map[string]any {
	payload["ok"] = true
	return payload
}

func errResult(msg string) map[string]any {
	return map[string]any{
		"ok":    false,
		"error": msg,
	}
}
