package jsonld

import (
	"context"
	"maps"
	"slices"
	"strings"

	"bitbucket.org/creachadair/stringset"
)

// Process applies the local context to c and returns the resulting context.
// local may be nil, a string (remote context IRI), an object, or an array
// of those. c is left untouched; on error no partial context is returned.
//
// https://www.w3.org/TR/json-ld-api/#context-processing-algorithms
func (c *Context) Process(ctx context.Context, local any) (*Context, error) {
	return c.process(ctx, local, stringset.New(), "")
}

// process folds each fragment of local onto a copy of c. remote holds the
// chain of remote context URLs that led to this call; it is empty when the
// local context was supplied directly. docURL is the URL of the remote
// document local was read from, or "" at the top level.
func (c *Context) process(ctx context.Context, local any, remote stringset.Set, docURL string) (*Context, error) {
	result := c.clone()

	fragments, ok := local.([]any)
	if !ok {
		fragments = []any{local}
	}

	for _, fragment := range fragments {
		switch v := fragment.(type) {
		case nil:
			result = result.reset()

		case string:
			next, err := result.processRemote(ctx, v, remote, docURL)
			if err != nil {
				return nil, err
			}
			result = next

		case map[string]any:
			if err := result.processObject(v, remote); err != nil {
				return nil, err
			}

		default:
			return nil, newError(InvalidLocalContext, "", "context must be null, a string or an object, got %T", fragment)
		}
	}

	return result, nil
}

// processRemote dereferences a remote context and processes its @context.
// ref is resolved against docURL inside a remote document and against the
// active base otherwise.
func (c *Context) processRemote(ctx context.Context, ref string, remote stringset.Set, docURL string) (*Context, error) {
	base := c.base
	if docURL != "" {
		base = docURL
	}
	url := ref
	if base != "" {
		url = resolveIRI(base, ref)
	}
	if remote.Contains(url) {
		return nil, newError(RecursiveContextInclusion, "", "%q includes itself", url)
	}
	if c.loader == nil {
		return nil, newError(LoadingRemoteContextFailed, "", "no document loader configured for %q", url)
	}

	c.logger.Debug("loading remote context", "url", url, "depth", remote.Len())
	rd, err := c.loader.LoadDocument(ctx, url)
	if err != nil {
		return nil, &Error{Code: LoadingRemoteContextFailed, Details: url, Err: err}
	}
	if rd == nil {
		return nil, newError(LoadingRemoteContextFailed, "", "loader returned no document for %q", url)
	}
	doc, ok := rd.Document.(map[string]any)
	if !ok {
		return nil, newError(InvalidRemoteContext, "", "%q is not a JSON object", url)
	}
	inner, ok := doc["@context"]
	if !ok {
		return nil, newError(InvalidRemoteContext, "", "%q has no @context member", url)
	}

	chain := remote.Clone()
	chain.Add(url)
	if IsAbsoluteIRI(rd.DocumentURL) {
		// A redirect target counts as included too.
		url = rd.DocumentURL
		chain.Add(url)
	}
	return c.process(ctx, inner, chain, url)
}

// processObject applies the directives and term definitions of one context
// object to c in place. c must be a private copy.
func (c *Context) processObject(local map[string]any, remote stringset.Set) error {
	if v, ok := local["@base"]; ok && remote.Empty() {
		switch base := v.(type) {
		case nil:
			c.base = ""
		case string:
			switch {
			case IsAbsoluteIRI(base):
				c.base = base
			case c.base != "":
				c.base = resolveIRI(c.base, base)
			}
			// A relative @base without a current base is ignored.
		default:
			return newError(InvalidBaseIRI, "", "@base must be a string or null, got %T", v)
		}
	}

	if v, ok := local["@vocab"]; ok {
		switch vocab := v.(type) {
		case nil:
			c.vocab = ""
		case string:
			if !IsAbsoluteIRI(vocab) {
				return newError(InvalidVocabMapping, "", "@vocab %q is not an absolute IRI", vocab)
			}
			c.vocab = vocab
		default:
			return newError(InvalidVocabMapping, "", "@vocab must be a string or null, got %T", v)
		}
	}

	if v, ok := local["@language"]; ok {
		switch lang := v.(type) {
		case nil:
			c.language = ""
		case string:
			c.language = strings.ToLower(lang)
		default:
			return newError(InvalidDefaultLanguage, "", "@language must be a string or null, got %T", v)
		}
	}

	defined := make(definedMap)
	for _, term := range slices.Sorted(maps.Keys(local)) {
		if directives.Contains(term) {
			continue
		}
		if err := createTermDefinition(c, local, term, defined); err != nil {
			return err
		}
	}
	return nil
}
