// ABOUTME: Encoder/decoder round-trip tests
// ABOUTME: Bit-exactness across channel counts, bit depths and chunkings
package flac

import (
	"bytes"
	"testing"

	"github.com/flacstream/flacstream-go/internal/engine"
)

func roundTrip(t *testing.T, cfg EncoderConfig, samples []int32) []int32 {
	t.Helper()
	var buf bytes.Buffer
	enc, err := newStreamEncoder(engine.NewPure(), &buf, cfg)
	if err != nil {
		t.Fatalf("newStreamEncoder: %v", err)
	}
	if err := enc.Process(samples); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	out, _, err := decode(engine.NewPure(), buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestRoundTripSilence(t *testing.T) {
	// One second of mono silence.
	samples := make([]int32, 44100)
	out := roundTrip(t, EncoderConfig{
		Channels:             1,
		BitsPerSample:        16,
		SampleRate:           44100,
		TotalSamplesEstimate: 44100,
	}, samples)
	if len(out) != 44100 {
		t.Fatalf("got %d samples, want 44100", len(out))
	}
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %d, want 0", i, s)
		}
	}
}

func TestRoundTripStereo32Bit(t *testing.T) {
	samples := make([]int32, 2*3000)
	for i := range samples {
		// Exercise the full 32-bit range including negatives.
		samples[i] = int32(i*1664525) ^ int32(-1<<31)>>uint(i%3)
	}
	cfg := EncoderConfig{
		Channels:      2,
		BitsPerSample: 32,
		SampleRate:    48000,
		// 32-bit streams fall outside the streamable subset.
		DisableStreamableSubset: true,
		TotalSamplesEstimate:    3000,
	}
	out := roundTrip(t, cfg, samples)
	if len(out) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(out), len(samples))
	}
	for i := range samples {
		if out[i] != samples[i] {
			t.Fatalf("sample %d: got %d, want %d", i, out[i], samples[i])
		}
	}
}

func TestRoundTripEightChannels(t *testing.T) {
	const channels = 8
	const frames = 1200
	samples := make([]int32, channels*frames)
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			samples[f*channels+c] = int32(int16(f*channels + c))
		}
	}
	out := roundTrip(t, EncoderConfig{
		Channels:             channels,
		BitsPerSample:        16,
		SampleRate:           44100,
		BlockSize:            256,
		TotalSamplesEstimate: frames,
	}, samples)
	if len(out) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(out), len(samples))
	}
	for i := range samples {
		if out[i] != samples[i] {
			t.Fatalf("sample %d: got %d, want %d", i, out[i], samples[i])
		}
	}
}

func TestRoundTripUnevenChunks(t *testing.T) {
	const total = 10000
	samples := make([]int32, 2*total)
	for i := range samples {
		samples[i] = int32(int16(i * 7919))
	}

	var buf bytes.Buffer
	enc, err := newStreamEncoder(engine.NewPure(), &buf, EncoderConfig{
		Channels:             2,
		BitsPerSample:        16,
		SampleRate:           44100,
		BlockSize:            1024,
		TotalSamplesEstimate: total,
	})
	if err != nil {
		t.Fatalf("newStreamEncoder: %v", err)
	}
	// Feed in chunk sizes that never line up with the block size.
	chunks := []int{1, 999, 2, 3333, 500, 1}
	off := 0
	for off < len(samples) {
		for _, c := range chunks {
			n := c * 2
			if off+n > len(samples) {
				n = len(samples) - off
			}
			if err := enc.Process(samples[off : off+n]); err != nil {
				t.Fatalf("Process: %v", err)
			}
			off += n
			if off == len(samples) {
				break
			}
		}
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	out, info, err := decode(engine.NewPure(), buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.TotalSamples != total {
		t.Fatalf("TotalSamples = %d, want %d", info.TotalSamples, total)
	}
	if len(out) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(out), len(samples))
	}
	for i := range samples {
		if out[i] != samples[i] {
			t.Fatalf("sample %d: got %d, want %d", i, out[i], samples[i])
		}
	}
}

func TestRoundTripEmptyStream(t *testing.T) {
	var buf bytes.Buffer
	enc, err := newStreamEncoder(engine.NewPure(), &buf, EncoderConfig{
		Channels:      1,
		BitsPerSample: 16,
		SampleRate:    8000,
	})
	if err != nil {
		t.Fatalf("newStreamEncoder: %v", err)
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	out, _, err := decode(engine.NewPure(), buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("empty stream decoded %d samples", len(out))
	}
}
