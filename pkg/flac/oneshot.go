// ABOUTME: One-shot in-memory FLAC decoding
// ABOUTME: Whole-stream decode with integrity checks, all-or-nothing result
package flac

import (
	"bytes"

	"github.com/flacstream/flacstream-go/internal/engine"
)

// Decode decodes a complete FLAC stream held in memory and returns the
// interleaved samples together with the stream header. The result is
// all-or-nothing: any stream fault, truncation or MD5 mismatch yields a
// DecodeError and no samples.
func Decode(data []byte) ([]int32, StreamInfo, error) {
	return decode(engine.Default(), data)
}

func decode(eng engine.Engine, data []byte) ([]int32, StreamInfo, error) {
	var samples []int32
	dec, err := newStreamDecoder(eng, bytes.NewReader(data), DecoderConfig{
		OnBlock: func(b Block) error {
			samples = append(samples, b.Samples...)
			return nil
		},
		VerifyMD5: true,
	})
	if err != nil {
		return nil, StreamInfo{}, &DecodeError{Reason: err.Error()}
	}
	defer dec.Close()

	if err := dec.ProcessAll(); err != nil {
		return nil, StreamInfo{}, &DecodeError{Reason: err.Error()}
	}
	info, ok := dec.Metadata()
	if !ok {
		return nil, StreamInfo{}, &DecodeError{Reason: "no stream header"}
	}
	if err := dec.Finish(); err != nil {
		return nil, StreamInfo{}, &DecodeError{Reason: "MD5 signature mismatch"}
	}
	if info.Channels > 0 {
		got := uint64(len(samples) / info.Channels)
		if info.TotalSamples > 0 && got < info.TotalSamples {
			return nil, StreamInfo{}, &DecodeError{Reason: "stream truncated"}
		}
	}
	return samples, info, nil
}
