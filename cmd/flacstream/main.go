// ABOUTME: Command line WAV/FLAC converter
// ABOUTME: Picks the conversion direction from the input file extension
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/flacstream/flacstream-go/internal/version"
	"github.com/flacstream/flacstream-go/pkg/flac"
)

var (
	output      = flag.String("o", "", "Output file path (default: input with swapped extension)")
	compression = flag.Int("c", 0, "Compression level 0-8 (default 5)")
	blockSize   = flag.Int("b", 0, "Block size in samples (default: engine choice)")
	verify      = flag.Bool("verify", false, "Verify while encoding / check MD5 while decoding")
	nonSubset   = flag.Bool("non-subset", false, "Allow non-streamable-subset output")
	quiet       = flag.Bool("q", false, "Suppress progress output")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <input.wav|input.flac>\n\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(os.Stderr, "Encodes .wav input to FLAC, decodes .flac input to WAV.\n\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	input := flag.Arg(0)

	switch strings.ToLower(filepath.Ext(input)) {
	case ".wav":
		encode(input, outputPath(input, ".flac"))
	case ".flac":
		decode(input, outputPath(input, ".wav"))
	default:
		log.Fatalf("cannot tell conversion direction from %q (need .wav or .flac)", input)
	}
}

func outputPath(input, ext string) string {
	if *output != "" {
		return *output
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ext
}

func encode(input, out string) {
	level := *compression
	if level == 0 {
		level = flac.DefaultCompressionLevel
	}
	enc, err := flac.NewFileEncoder(flac.FileEncoderConfig{
		InputPath:               input,
		OutputPath:              out,
		CompressionLevel:        level,
		BlockSize:               *blockSize,
		Verify:                  *verify,
		DisableStreamableSubset: *nonSubset,
	})
	if err != nil {
		log.Fatalf("opening %s: %v", input, err)
	}
	defer enc.Close()

	if err := enc.Process(); err != nil {
		log.Fatalf("encoding %s: %v", input, err)
	}
	if !*quiet {
		log.Printf("Encoded %s -> %s", input, out)
	}
}

func decode(input, out string) {
	dec, err := flac.NewFileDecoder(flac.FileDecoderConfig{
		InputPath:  input,
		OutputPath: out,
		VerifyMD5:  *verify,
	})
	if err != nil {
		log.Fatalf("opening %s: %v", input, err)
	}
	defer dec.Close()

	if err := dec.Process(); err != nil {
		log.Fatalf("decoding %s: %v", input, err)
	}
	if !*quiet {
		if info, ok := dec.Metadata(); ok {
			log.Printf("Decoded %s -> %s (%d Hz, %d ch, %d bit)",
				input, out, info.SampleRate, info.Channels, info.BitsPerSample)
		} else {
			log.Printf("Decoded %s -> %s", input, out)
		}
	}
}
