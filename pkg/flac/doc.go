// ABOUTME: High-level streaming FLAC library API
// ABOUTME: Stream and file encoders/decoders plus a one-shot decode helper
// Package flac provides streaming FLAC encoding and decoding over
// ordinary io interfaces.
//
// The package wraps a codec engine (the native libFLAC shared library
// when available, a pure-Go fallback otherwise) behind four surfaces:
//   - StreamEncoder: push interleaved PCM in, FLAC bytes come out of an
//     io.Writer
//   - StreamDecoder: pull decoded blocks out of FLAC bytes read from an
//     io.Reader
//   - FileEncoder / FileDecoder: whole-file WAV/FLAC conversion
//   - Decode: one-shot in-memory decode of a complete stream
//
// Samples are interleaved int32 throughout, right-justified in the
// configured bit depth. All types are single-threaded: calls on one
// instance must not overlap.
//
// Example round trip:
//
//	var buf bytes.Buffer
//	enc, err := flac.NewStreamEncoder(&buf, flac.EncoderConfig{
//	    Channels:      2,
//	    BitsPerSample: 16,
//	    SampleRate:    44100,
//	})
//	err = enc.Process(samples)
//	err = enc.Finish()
//
//	pcm, info, err := flac.Decode(buf.Bytes())
package flac
