// ABOUTME: Tests for one-shot in-memory decoding
// ABOUTME: Success path plus corruption, truncation and garbage handling
package flac

import (
	"bytes"
	"errors"
	"testing"

	"github.com/flacstream/flacstream-go/internal/engine"
)

func TestDecodeWholeStream(t *testing.T) {
	data := encodeRamp(t, 8000, 1024)
	samples, info, err := decode(engine.NewPure(), data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.SampleRate != 44100 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Fatalf("unexpected stream info: %+v", info)
	}
	if info.TotalSamples != 8000 {
		t.Fatalf("TotalSamples = %d, want 8000", info.TotalSamples)
	}
	if len(samples) != 8000 {
		t.Fatalf("got %d samples, want 8000", len(samples))
	}
	for i, s := range samples {
		if want := int32(i & 0x3FFF); s != want {
			t.Fatalf("sample %d: got %d, want %d", i, s, want)
		}
	}
}

func TestDecodeGarbage(t *testing.T) {
	samples, _, err := decode(engine.NewPure(), []byte("definitely not a flac stream"))
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("got %v, want DecodeError", err)
	}
	if samples != nil {
		t.Fatalf("partial samples returned on failure")
	}
}

func TestDecodeEmptyInput(t *testing.T) {
	_, _, err := decode(engine.NewPure(), nil)
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("got %v, want DecodeError", err)
	}
}

func TestDecodeTruncatedStream(t *testing.T) {
	data := encodeRamp(t, 8000, 1024)
	// Cut the stream mid-frame. The header declares 8000 samples, so
	// even if the cut lands on a frame boundary the result is rejected.
	truncated := data[:len(data)/2]
	samples, _, err := decode(engine.NewPure(), truncated)
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("got %v, want DecodeError", err)
	}
	if samples != nil {
		t.Fatalf("partial samples returned for truncated stream")
	}
}

func TestDecodeCorruptTail(t *testing.T) {
	data := encodeRamp(t, 8000, 1024)
	corrupt := bytes.Clone(data)
	// Stomp a run of bytes in the last quarter of the stream.
	for i := len(corrupt) * 3 / 4; i < len(corrupt)*3/4+64 && i < len(corrupt); i++ {
		corrupt[i] ^= 0xFF
	}
	_, _, err := decode(engine.NewPure(), corrupt)
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("got %v, want DecodeError", err)
	}
}
