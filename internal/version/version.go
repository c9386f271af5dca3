// ABOUTME: Version constants for the flacstream tools
// ABOUTME: Single place to bump release information
package version

const (
	// Version is the release version of the module.
	Version = "0.1.0"

	// Product is the human readable tool name.
	Product = "flacstream"
)
