// ABOUTME: Package documentation for the codec engine boundary
// ABOUTME: Explains the backend split and the callback contract
// Package engine defines the codec engine boundary used by pkg/flac.
//
// An Engine turns a configuration plus a table of callback closures into
// live encoder/decoder handles. Two backends implement it:
//
//   - the native libFLAC shared library, loaded with purego (no cgo),
//     selected when the library can be found
//   - a pure-Go backend built on mewkiz/flac, always available
//
// Default resolves the backend once per process. Both backends honor the
// same contract: callbacks fire synchronously while a Process call is in
// flight, handles are single-owner and not safe for concurrent use, and
// no callback fires after Close returns.
package engine
