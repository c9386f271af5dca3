// ABOUTME: Public types shared by the encoder and decoder surfaces
// ABOUTME: Lifecycle states, stream metadata and decoded block carriers
package flac

import "github.com/flacstream/flacstream-go/internal/engine"

// State is the lifecycle state of a stream encoder or decoder.
type State int

const (
	// StateUninitialized is the zero value; a constructed instance never
	// reports it.
	StateUninitialized State = iota

	// StateReady: initialized, no samples processed yet.
	StateReady

	// StateProcessing: at least one process call has succeeded.
	StateProcessing

	// StateFinished: the stream was finalized; further processing is
	// rejected.
	StateFinished

	// StateError: a fatal error occurred; only Finish and Close are
	// meaningful.
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateProcessing:
		return "processing"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	}
	return "unknown"
}

// StreamInfo describes a FLAC stream's fixed parameters, as carried in
// the stream header. TotalSamples counts samples per channel and is zero
// when the stream length was unknown at encode time. MD5 is the
// signature of the unencoded audio; all zero when unset.
type StreamInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	BlockSizeMin  int
	BlockSizeMax  int
	TotalSamples  uint64
	MD5           [16]byte
}

func streamInfoFromEngine(in engine.StreamInfo) StreamInfo {
	return StreamInfo{
		SampleRate:    in.SampleRate,
		Channels:      in.Channels,
		BitsPerSample: in.BitsPerSample,
		BlockSizeMin:  in.BlockSizeMin,
		BlockSizeMax:  in.BlockSizeMax,
		TotalSamples:  in.TotalSamples,
		MD5:           in.MD5,
	}
}

// Block is one decoded run of interleaved samples. SampleNumber is the
// stream position (in samples per channel) of the first sample in the
// block. The receiver owns Samples.
type Block struct {
	SampleNumber  uint64
	SampleRate    int
	Channels      int
	BitsPerSample int
	Samples       []int32
}

// NumSamples returns the number of samples per channel in the block.
func (b Block) NumSamples() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}
