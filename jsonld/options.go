package jsonld

import "log/slog"

// Options configures the construction of an initial Context.
type Options struct {
	// Base is the document base IRI. It must be absolute when set.
	Base string
	// DocumentLoader dereferences string context fragments. When nil,
	// remote contexts fail with LoadingRemoteContextFailed.
	DocumentLoader DocumentLoader
	// Logger receives debug output for remote loads. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewOptions returns Options with the given base and no document loader.
func NewOptions(base string) *Options {
	return &Options{Base: base}
}
