// ABOUTME: Tests for the pure-Go engine backend
// ABOUTME: Callback-level round trips, ordering and validation
package engine

import (
	"bytes"
	"testing"
)

// encodeAll pushes samples through a pure encoder in one call and
// returns the produced stream.
func encodeAll(t *testing.T, cfg EncoderConfig, samples []int32) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := NewPure().NewEncoder(cfg, EncoderCallbacks{
		Write: func(p []byte, n int, frame uint32) WriteStatus {
			buf.Write(p)
			return WriteContinue
		},
	})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	defer enc.Close()
	if !enc.Process(samples, len(samples)/cfg.Channels) {
		t.Fatalf("Process failed: %s", enc.StateString())
	}
	if !enc.Finish() {
		t.Fatalf("Finish failed: %s", enc.StateString())
	}
	return buf.Bytes()
}

// decodeAll pulls every block out of a stream and returns the
// interleaved samples.
func decodeAll(t *testing.T, data []byte) ([]int32, StreamInfo) {
	t.Helper()
	r := bytes.NewReader(data)
	var out []int32
	var info StreamInfo
	dec, err := NewPure().NewDecoder(DecoderConfig{}, DecoderCallbacks{
		Read: func(p []byte) (int, ReadStatus) {
			n, err := r.Read(p)
			if n == 0 {
				return 0, ReadEOF
			}
			_ = err
			return n, ReadContinue
		},
		Write: func(b Block) WriteStatus {
			out = append(out, b.Samples...)
			return WriteContinue
		},
		Metadata: func(in StreamInfo) { info = in },
	})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer dec.Close()
	for dec.State() != StateEndOfStream {
		if !dec.ProcessSingle() {
			t.Fatalf("ProcessSingle failed in state %s", dec.StateString())
		}
	}
	if !dec.Finish() {
		t.Fatalf("Finish reported MD5 mismatch")
	}
	return out, info
}

func TestPureRoundTrip(t *testing.T) {
	cfg := EncoderConfig{
		Channels:      2,
		BitsPerSample: 16,
		SampleRate:    44100,
		BlockSize:     1024,
	}
	samples := make([]int32, 2*5000)
	for i := range samples {
		samples[i] = int32(int16(i * 331))
	}

	data := encodeAll(t, cfg, samples)
	if len(data) < 4 || string(data[:4]) != "fLaC" {
		t.Fatalf("stream does not start with fLaC marker")
	}

	out, info := decodeAll(t, data)
	if info.SampleRate != 44100 || info.Channels != 2 || info.BitsPerSample != 16 {
		t.Fatalf("unexpected stream info: %+v", info)
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

func TestPureEncoderPartialFinalBlock(t *testing.T) {
	cfg := EncoderConfig{
		Channels:      1,
		BitsPerSample: 16,
		SampleRate:    8000,
		BlockSize:     256,
	}
	// 3 full blocks plus 100 trailing samples.
	samples := make([]int32, 3*256+100)
	for i := range samples {
		samples[i] = int32(int16(i))
	}
	out, _ := decodeAll(t, encodeAll(t, cfg, samples))
	if len(out) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(out), len(samples))
	}
	if out[len(out)-1] != samples[len(samples)-1] {
		t.Fatalf("last sample mismatch")
	}
}

func TestPureEncoderHeaderWrittenAtInit(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewPure().NewEncoder(EncoderConfig{
		Channels:      1,
		BitsPerSample: 16,
		SampleRate:    8000,
	}, EncoderCallbacks{
		Write: func(p []byte, n int, frame uint32) WriteStatus {
			buf.Write(p)
			return WriteContinue
		},
	})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	defer enc.Close()
	if buf.Len() == 0 {
		t.Fatalf("no header bytes written during construction")
	}
	if string(buf.Bytes()[:4]) != "fLaC" {
		t.Fatalf("header does not start with fLaC marker")
	}
}

func TestPureEncoderMetadataOnFinish(t *testing.T) {
	var got StreamInfo
	called := false
	enc, err := NewPure().NewEncoder(EncoderConfig{
		Channels:      1,
		BitsPerSample: 16,
		SampleRate:    8000,
		BlockSize:     64,
	}, EncoderCallbacks{
		Write:    func(p []byte, n int, frame uint32) WriteStatus { return WriteContinue },
		Metadata: func(info StreamInfo) { got = info; called = true },
	})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	defer enc.Close()
	samples := make([]int32, 150)
	if !enc.Process(samples, 150) {
		t.Fatalf("Process failed")
	}
	if !enc.Finish() {
		t.Fatalf("Finish failed")
	}
	if !called {
		t.Fatalf("metadata callback did not fire on finish")
	}
	if got.TotalSamples != 150 {
		t.Fatalf("TotalSamples = %d, want 150", got.TotalSamples)
	}
}

func TestPureRoundTrip32Bit(t *testing.T) {
	cfg := EncoderConfig{
		Channels:      2,
		BitsPerSample: 32,
		SampleRate:    48000,
		BlockSize:     1024,
	}
	// Exercise the full 32-bit range, extremes included.
	samples := make([]int32, 2*3000)
	for i := range samples {
		samples[i] = int32(uint32(i) * 2654435761)
	}
	samples[0] = -1 << 31
	samples[1] = 1<<31 - 1

	out, info := decodeAll(t, encodeAll(t, cfg, samples))
	if info.BitsPerSample != 32 || info.Channels != 2 || info.SampleRate != 48000 {
		t.Fatalf("unexpected stream info: %+v", info)
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

func TestPureRoundTrip24Bit(t *testing.T) {
	cfg := EncoderConfig{
		Channels:      1,
		BitsPerSample: 24,
		SampleRate:    96000,
		BlockSize:     512,
	}
	samples := make([]int32, 1500)
	for i := range samples {
		samples[i] = int32(i*9973)%(1<<23) - 1<<22
	}

	out, info := decodeAll(t, encodeAll(t, cfg, samples))
	if info.BitsPerSample != 24 {
		t.Fatalf("BitsPerSample = %d, want 24", info.BitsPerSample)
	}
	for i := range samples {
		if out[i] != samples[i] {
			t.Fatalf("sample %d: got %d, want %d", i, out[i], samples[i])
		}
	}
}

// memSink is an in-memory seekable output for encoder callbacks.
type memSink struct {
	buf []byte
	pos int
}

func (m *memSink) write(p []byte) {
	if need := m.pos + len(p); need > len(m.buf) {
		m.buf = append(m.buf, make([]byte, need-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
}

func TestPureEncoderBackpatchesHeader(t *testing.T) {
	sink := &memSink{}
	enc, err := NewPure().NewEncoder(EncoderConfig{
		Channels:      1,
		BitsPerSample: 16,
		SampleRate:    8000,
		BlockSize:     64,
	}, EncoderCallbacks{
		Write: func(p []byte, n int, frame uint32) WriteStatus {
			sink.write(p)
			return WriteContinue
		},
		Seek: func(offset uint64) SeekStatus {
			sink.pos = int(offset)
			return SeekOK
		},
		Tell: func() (uint64, TellStatus) {
			return uint64(sink.pos), TellOK
		},
	})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	defer enc.Close()
	samples := make([]int32, 150)
	for i := range samples {
		samples[i] = int32(int16(i * 77))
	}
	if !enc.Process(samples, 150) {
		t.Fatalf("Process failed: %s", enc.StateString())
	}
	if !enc.Finish() {
		t.Fatalf("Finish failed: %s", enc.StateString())
	}

	// The header was written with a zero sample count and signature, then
	// rewritten in place on finish. A verifying decode proves both.
	r := bytes.NewReader(sink.buf)
	var meta StreamInfo
	dec, err := NewPure().NewDecoder(DecoderConfig{MD5Check: true}, DecoderCallbacks{
		Read: func(p []byte) (int, ReadStatus) {
			n, _ := r.Read(p)
			if n == 0 {
				return 0, ReadEOF
			}
			return n, ReadContinue
		},
		Write:    func(b Block) WriteStatus { return WriteContinue },
		Metadata: func(in StreamInfo) { meta = in },
	})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer dec.Close()
	for dec.State() != StateEndOfStream {
		if !dec.ProcessSingle() {
			t.Fatalf("ProcessSingle failed: %s", dec.StateString())
		}
	}
	if !dec.Finish() {
		t.Fatalf("MD5 verification failed against the backpatched header")
	}
	if meta.TotalSamples != 150 {
		t.Fatalf("TotalSamples = %d, want 150", meta.TotalSamples)
	}
	if meta.MD5 == zeroMD5 {
		t.Fatalf("MD5 signature not backpatched")
	}
}

func TestPureEncoderValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  EncoderConfig
	}{
		{"no channels", EncoderConfig{BitsPerSample: 16, SampleRate: 44100}},
		{"too many channels", EncoderConfig{Channels: 9, BitsPerSample: 16, SampleRate: 44100}},
		{"zero rate", EncoderConfig{Channels: 2, BitsPerSample: 16}},
		{"bad bps", EncoderConfig{Channels: 2, BitsPerSample: 3, SampleRate: 44100}},
		{"unaligned bps", EncoderConfig{Channels: 2, BitsPerSample: 12, SampleRate: 44100}},
		{"tiny block", EncoderConfig{Channels: 2, BitsPerSample: 16, SampleRate: 44100, BlockSize: 8}},
		{"non subset block", EncoderConfig{Channels: 2, BitsPerSample: 16, SampleRate: 44100, BlockSize: 8192, StreamableSubset: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPure().NewEncoder(tc.cfg, EncoderCallbacks{
				Write: func(p []byte, n int, frame uint32) WriteStatus { return WriteContinue },
			})
			if err == nil {
				t.Fatalf("config accepted, want error")
			}
		})
	}
}

func TestPureEncoderWriteAbort(t *testing.T) {
	calls := 0
	enc, err := NewPure().NewEncoder(EncoderConfig{
		Channels:      1,
		BitsPerSample: 16,
		SampleRate:    8000,
		BlockSize:     64,
	}, EncoderCallbacks{
		Write: func(p []byte, n int, frame uint32) WriteStatus {
			calls++
			if calls > 1 {
				return WriteAbort
			}
			return WriteContinue
		},
	})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	defer enc.Close()
	samples := make([]int32, 64)
	ok := enc.Process(samples, 64)
	if ok {
		ok = enc.Finish()
	}
	if ok {
		t.Fatalf("encode succeeded despite aborting write callback")
	}
}

func TestPureDecoderGarbageInput(t *testing.T) {
	r := bytes.NewReader([]byte("this is not a flac stream at all"))
	errors := 0
	dec, err := NewPure().NewDecoder(DecoderConfig{}, DecoderCallbacks{
		Read: func(p []byte) (int, ReadStatus) {
			n, _ := r.Read(p)
			if n == 0 {
				return 0, ReadEOF
			}
			return n, ReadContinue
		},
		Write: func(b Block) WriteStatus { return WriteContinue },
		Error: func(kind ErrorKind) { errors++ },
	})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer dec.Close()
	if dec.ProcessSingle() {
		t.Fatalf("garbage input decoded successfully")
	}
	if dec.State() != StateAborted {
		t.Fatalf("state = %s, want aborted", dec.State())
	}
	if errors == 0 {
		t.Fatalf("error callback did not fire")
	}
}

func TestPureDecoderSeek(t *testing.T) {
	cfg := EncoderConfig{
		Channels:      1,
		BitsPerSample: 16,
		SampleRate:    8000,
		BlockSize:     256,
	}
	samples := make([]int32, 2048)
	for i := range samples {
		samples[i] = int32(int16(i))
	}
	data := encodeAll(t, cfg, samples)

	r := bytes.NewReader(data)
	var blocks []Block
	dec, err := NewPure().NewDecoder(DecoderConfig{}, DecoderCallbacks{
		Read: func(p []byte) (int, ReadStatus) {
			n, _ := r.Read(p)
			if n == 0 {
				return 0, ReadEOF
			}
			return n, ReadContinue
		},
		Seek: func(offset uint64) SeekStatus {
			if _, err := r.Seek(int64(offset), 0); err != nil {
				return SeekFailed
			}
			return SeekOK
		},
		Tell: func() (uint64, TellStatus) {
			pos, _ := r.Seek(0, 1)
			return uint64(pos), TellOK
		},
		Length: func() (uint64, LengthStatus) {
			return uint64(len(data)), LengthOK
		},
		Write: func(b Block) WriteStatus {
			blocks = append(blocks, b)
			return WriteContinue
		},
	})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer dec.Close()

	if !dec.Seek(1000) {
		t.Fatalf("Seek failed in state %s", dec.StateString())
	}
	for len(blocks) == 0 {
		if !dec.ProcessSingle() {
			t.Fatalf("ProcessSingle failed after seek: %s", dec.StateString())
		}
		if dec.State() == StateEndOfStream {
			break
		}
	}
	if len(blocks) == 0 {
		t.Fatalf("no block delivered after seek")
	}
	b := blocks[0]
	// The engine positions on the frame containing the target, so the
	// block starts at or before sample 1000 and covers it.
	if b.SampleNumber > 1000 || b.SampleNumber+uint64(len(b.Samples)) <= 1000 {
		t.Fatalf("block [%d, %d) does not cover sample 1000",
			b.SampleNumber, b.SampleNumber+uint64(len(b.Samples)))
	}
	idx := 1000 - int(b.SampleNumber)
	if b.Samples[idx] != samples[1000] {
		t.Fatalf("sample 1000: got %d, want %d", b.Samples[idx], samples[1000])
	}
}

func TestPureDecoderReadAccounting(t *testing.T) {
	cfg := EncoderConfig{
		Channels:      1,
		BitsPerSample: 16,
		SampleRate:    8000,
		BlockSize:     256,
	}
	data := encodeAll(t, cfg, make([]int32, 1000))

	r := bytes.NewReader(data)
	requested := 0
	eofSignaled := false
	dec, err := NewPure().NewDecoder(DecoderConfig{}, DecoderCallbacks{
		Read: func(p []byte) (int, ReadStatus) {
			n, _ := r.Read(p)
			if n == 0 {
				eofSignaled = true
				return 0, ReadEOF
			}
			requested += n
			return n, ReadContinue
		},
		Write: func(b Block) WriteStatus {
			if len(b.Samples) == 0 {
				t.Fatalf("write callback fired with zero samples")
			}
			return WriteContinue
		},
	})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer dec.Close()
	for dec.State() != StateEndOfStream {
		if !dec.ProcessSingle() {
			t.Fatalf("ProcessSingle failed: %s", dec.StateString())
		}
	}
	// Every compressed byte is pulled through the read callback before
	// end of stream is signaled.
	if requested < len(data) {
		t.Fatalf("read callback delivered %d bytes, stream is %d", requested, len(data))
	}
	if !eofSignaled {
		t.Fatalf("end of stream reached without the read callback reporting EOF")
	}
}

func TestDefaultEngineResolves(t *testing.T) {
	eng := Default()
	if eng == nil {
		t.Fatalf("Default returned nil")
	}
	if name := eng.Name(); name != "libflac" && name != "pure" {
		t.Fatalf("unexpected engine name %q", name)
	}
}
