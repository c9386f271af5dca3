// ABOUTME: Whole-file conversion surfaces
// ABOUTME: FileEncoder turns WAV into FLAC, FileDecoder turns FLAC into WAV
package flac

import (
	"fmt"
	"io"
	"os"

	"github.com/flacstream/flacstream-go/internal/wav"
)

// fileBlockFrames is the number of frames moved per read while
// converting files.
const fileBlockFrames = 4096

// FileEncoderConfig configures a WAV to FLAC conversion. The PCM format
// (channels, sample rate, bit depth) is taken from the input file.
type FileEncoderConfig struct {
	InputPath  string
	OutputPath string

	CompressionLevel        int
	BlockSize               int
	DisableStreamableSubset bool
	Verify                  bool
	LimitMinBitrate         bool
}

// FileEncoder converts a WAV file to a FLAC file.
type FileEncoder struct {
	in  *os.File
	out *os.File
	rd  *wav.Reader
	enc *StreamEncoder
}

// NewFileEncoder opens the input WAV file, creates the output file and
// initializes the encoder with the input's PCM format.
func NewFileEncoder(cfg FileEncoderConfig) (*FileEncoder, error) {
	in, err := os.Open(cfg.InputPath)
	if err != nil {
		return nil, &IOCallbackError{Op: "read", Err: err}
	}
	rd, err := wav.NewReader(in)
	if err != nil {
		in.Close()
		return nil, &InitError{Reason: fmt.Sprintf("reading %s: %v", cfg.InputPath, err)}
	}
	format := rd.Format()

	out, err := os.Create(cfg.OutputPath)
	if err != nil {
		in.Close()
		return nil, &IOCallbackError{Op: "write", Err: err}
	}
	enc, err := NewStreamEncoder(out, EncoderConfig{
		Channels:                format.Channels,
		BitsPerSample:           format.BitsPerSample,
		SampleRate:              format.SampleRate,
		CompressionLevel:        cfg.CompressionLevel,
		BlockSize:               cfg.BlockSize,
		DisableStreamableSubset: cfg.DisableStreamableSubset,
		Verify:                  cfg.Verify,
		LimitMinBitrate:         cfg.LimitMinBitrate,
		TotalSamplesEstimate:    uint64(rd.NumFrames()),
	})
	if err != nil {
		in.Close()
		out.Close()
		os.Remove(cfg.OutputPath)
		return nil, err
	}
	return &FileEncoder{in: in, out: out, rd: rd, enc: enc}, nil
}

// Process converts the whole file. It blocks until the input is
// exhausted and the output is finalized.
func (f *FileEncoder) Process() error {
	for {
		samples, err := f.rd.ReadBlock(fileBlockFrames)
		if len(samples) > 0 {
			if perr := f.enc.Process(samples); perr != nil {
				return perr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return &IOCallbackError{Op: "read", Err: err}
		}
	}
	return f.enc.Finish()
}

// Close finalizes the encoder if needed and closes both files.
func (f *FileEncoder) Close() error {
	err := f.enc.Finish()
	f.in.Close()
	if cerr := f.out.Close(); err == nil && cerr != nil {
		err = &IOCallbackError{Op: "write", Err: cerr}
	}
	return err
}

// FileDecoderConfig configures a FLAC to WAV conversion.
type FileDecoderConfig struct {
	InputPath  string
	OutputPath string

	// VerifyMD5 fails the conversion when the decoded audio does not
	// match the stream's MD5 signature.
	VerifyMD5 bool
}

// FileDecoder converts a FLAC file to a WAV file.
type FileDecoder struct {
	in   *os.File
	out  *os.File
	dec  *StreamDecoder
	wr   *wav.Writer
	werr error
}

// NewFileDecoder opens the input FLAC file and creates the output file.
// The WAV header is written once the stream header has been read.
func NewFileDecoder(cfg FileDecoderConfig) (*FileDecoder, error) {
	in, err := os.Open(cfg.InputPath)
	if err != nil {
		return nil, &IOCallbackError{Op: "read", Err: err}
	}
	out, err := os.Create(cfg.OutputPath)
	if err != nil {
		in.Close()
		return nil, &IOCallbackError{Op: "write", Err: err}
	}
	f := &FileDecoder{in: in, out: out}
	dec, err := NewStreamDecoder(in, DecoderConfig{
		OnBlock:   f.onBlock,
		VerifyMD5: cfg.VerifyMD5,
	})
	if err != nil {
		in.Close()
		out.Close()
		os.Remove(cfg.OutputPath)
		return nil, err
	}
	f.dec = dec
	return f, nil
}

func (f *FileDecoder) onBlock(b Block) error {
	if f.wr == nil {
		wr, err := wav.NewWriter(f.out, wav.Format{
			Channels:      b.Channels,
			SampleRate:    b.SampleRate,
			BitsPerSample: b.BitsPerSample,
		})
		if err != nil {
			f.werr = err
			return err
		}
		f.wr = wr
	}
	if err := f.wr.WriteBlock(b.Samples); err != nil {
		f.werr = err
		return err
	}
	return nil
}

// Process converts the whole file. It blocks until the input is
// exhausted and the WAV header is backpatched with the final sizes.
func (f *FileDecoder) Process() error {
	if err := f.dec.ProcessAll(); err != nil {
		if f.werr != nil {
			return &IOCallbackError{Op: "write", Err: f.werr}
		}
		return err
	}
	if err := f.dec.Finish(); err != nil {
		return err
	}
	if f.wr == nil {
		return &DecodeError{Reason: "no audio in stream"}
	}
	if err := f.wr.Close(); err != nil {
		return &IOCallbackError{Op: "write", Err: err}
	}
	return nil
}

// Metadata returns the input's stream header once it has been read.
func (f *FileDecoder) Metadata() (StreamInfo, bool) { return f.dec.Metadata() }

// Close releases the decoder and closes both files.
func (f *FileDecoder) Close() error {
	err := f.dec.Finish()
	f.in.Close()
	if cerr := f.out.Close(); err == nil && cerr != nil {
		err = &IOCallbackError{Op: "write", Err: cerr}
	}
	return err
}
