package jsonld

import (
	"context"
	"fmt"
	"net/http"

	"github.com/piprate/json-gold/ld"
)

// RemoteDocument is a dereferenced document returned by a DocumentLoader.
type RemoteDocument struct {
	// DocumentURL is the final URL of the document after redirects.
	DocumentURL string
	// Document is the decoded JSON value (map[string]any, []any, string, ...).
	Document any
	// ContextURL is the URL of a context linked via HTTP Link header, or "".
	ContextURL string
}

// DocumentLoader dereferences remote context documents.
// Implementations may cache, retry or enforce timeouts; the context
// processor calls LoadDocument only for string context fragments.
type DocumentLoader interface {
	LoadDocument(ctx context.Context, url string) (*RemoteDocument, error)
}

// DocumentLoaderFunc adapts a function to the DocumentLoader interface.
type DocumentLoaderFunc func(ctx context.Context, url string) (*RemoteDocument, error)

// LoadDocument calls f(ctx, url).
func (f DocumentLoaderFunc) LoadDocument(ctx context.Context, url string) (*RemoteDocument, error) {
	return f(ctx, url)
}

// MapLoader serves preloaded documents keyed by URL.
type MapLoader map[string]any

// LoadDocument returns the document registered under url.
func (m MapLoader) LoadDocument(ctx context.Context, url string) (*RemoteDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, ok := m[url]
	if !ok {
		return nil, fmt.Errorf("no document registered for %q", url)
	}
	return &RemoteDocument{DocumentURL: url, Document: doc}, nil
}

// goldLoader adapts a json-gold ld.DocumentLoader.
type goldLoader struct {
	loader ld.DocumentLoader
}

// NewGoldLoader wraps a json-gold document loader, such as
// ld.NewDefaultDocumentLoader or ld.NewCachingDocumentLoader.
// json-gold loaders are not context aware; ctx is only checked before the call.
func NewGoldLoader(loader ld.DocumentLoader) DocumentLoader {
	return &goldLoader{loader: loader}
}

// NewHTTPLoader returns a loader fetching documents over HTTP(S) with client.
// A nil client uses http.DefaultClient.
func NewHTTPLoader(client *http.Client) DocumentLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return NewGoldLoader(ld.NewDefaultDocumentLoader(client))
}

func (g *goldLoader) LoadDocument(ctx context.Context, url string) (*RemoteDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rd, err := g.loader.LoadDocument(url)
	if err != nil {
		return nil, fmt.Errorf("failed to load %q: %w", url, err)
	}
	return &RemoteDocument{
		DocumentURL: rd.DocumentURL,
		Document:    rd.Document,
		ContextURL:  rd.ContextURL,
	}, nil
}
