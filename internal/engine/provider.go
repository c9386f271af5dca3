// ABOUTME: Engine provider selection
// ABOUTME: Resolves the codec engine once per process, preferring native libFLAC
package engine

import "sync"

var (
	defaultOnce   sync.Once
	defaultEngine Engine
)

// Default returns the process-wide engine provider. The native libFLAC
// library is used when it can be loaded; otherwise decoding and encoding
// fall back to the pure-Go backend. Resolution happens once, on first use.
func Default() Engine {
	defaultOnce.Do(func() {
		if e, err := NewLibFLAC(); err == nil {
			defaultEngine = e
			return
		}
		defaultEngine = NewPure()
	})
	return defaultEngine
}
