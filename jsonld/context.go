// Package jsonld processes JSON-LD local contexts into immutable active
// contexts. Remote contexts are dereferenced through a DocumentLoader.
package jsonld

import (
	"log/slog"
	"maps"
	"slices"
)

// Namespace IRIs used by DefaultContext.
const (
	RDFNamespace  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFSNamespace = "http://www.w3.org/2000/01/rdf-schema#"
	XSDNamespace  = "http://www.w3.org/2001/XMLSchema#"
	OWLNamespace  = "http://www.w3.org/2002/07/owl#"
)

// DefaultContext returns a local context declaring the common RDF
// vocabulary prefixes. It is a plain value suitable for Context.Process.
func DefaultContext() map[string]any {
	return map[string]any{
		"rdf":  RDFNamespace,
		"rdfs": RDFSNamespace,
		"xsd":  XSDNamespace,
		"owl":  OWLNamespace,
		"dc":   "http://purl.org/dc/terms/",
		"foaf": "http://xmlns.com/foaf/0.1/",
		"skos": "http://www.w3.org/2004/02/skos/core#",
		"prov": "http://www.w3.org/ns/prov#",
		"schema": map[string]any{
			"@id": "http://schema.org/",
		},
		"type": map[string]any{
			"@id":   RDFNamespace + "type",
			"@type": "@id",
		},
	}
}

// TermDefinition is the fully resolved definition of one term.
type TermDefinition struct {
	// IRI is an absolute IRI, a blank node identifier or a keyword.
	// It is empty only for null definitions.
	IRI string
	// Null marks a term that was intentionally undefined.
	Null    bool
	Reverse bool
	// Type is "", "@id", "@vocab" or an absolute IRI.
	Type string
	// Language is meaningful only when HasLanguage is set; an empty
	// Language then means "no language".
	Language    string
	HasLanguage bool
	Container   string
}

// Context is an immutable snapshot of a resolved JSON-LD active context.
// Process never modifies its receiver; it returns a new Context.
type Context struct {
	base         string
	originalBase string
	vocab        string
	language     string
	terms        map[string]*TermDefinition

	loader DocumentLoader
	logger *slog.Logger
}

// NewContext creates an empty context from opts. A nil opts yields a context
// without base IRI or document loader.
func NewContext(opts *Options) (*Context, error) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Base != "" && !IsAbsoluteIRI(opts.Base) {
		return nil, newError(InvalidBaseIRI, "", "base %q is not an absolute IRI", opts.Base)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		base:         opts.Base,
		originalBase: opts.Base,
		terms:        make(map[string]*TermDefinition),
		loader:       opts.DocumentLoader,
		logger:       logger,
	}, nil
}

// Base returns the base IRI, or "" if none is set.
func (c *Context) Base() string { return c.base }

// Vocab returns the default vocabulary mapping and whether it is set.
func (c *Context) Vocab() (string, bool) { return c.vocab, c.vocab != "" }

// DefaultLanguage returns the lower-cased default language and whether it is set.
func (c *Context) DefaultLanguage() (string, bool) { return c.language, c.language != "" }

// Term returns a copy of the definition of term.
func (c *Context) Term(term string) (TermDefinition, bool) {
	def, ok := c.terms[term]
	if !ok {
		return TermDefinition{}, false
	}
	return *def, true
}

// Terms returns the defined terms in sorted order.
func (c *Context) Terms() []string {
	return slices.Sorted(maps.Keys(c.terms))
}

// Len returns the number of term definitions, null definitions included.
func (c *Context) Len() int { return len(c.terms) }

// Equal reports whether c and other resolve to the same meaning.
// The document loader and logger are not compared.
func (c *Context) Equal(other *Context) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.base != other.base || c.originalBase != other.originalBase ||
		c.vocab != other.vocab || c.language != other.language {
		return false
	}
	return maps.EqualFunc(c.terms, other.terms, func(a, b *TermDefinition) bool {
		return *a == *b
	})
}

// ExpandIRI resolves value against c for consumers outside context processing.
// relative enables resolution against the base IRI, vocab enables term and
// vocabulary resolution. The boolean is false when value names a term that
// was explicitly defined as null.
func (c *Context) ExpandIRI(value string, relative, vocab bool) (string, bool) {
	// Without a local context no term definition can be triggered, so no error.
	iri, ok, _ := expandIRI(c, value, relative, vocab, nil, nil)
	return iri, ok
}

// clone returns a copy sharing the immutable term definitions.
func (c *Context) clone() *Context {
	out := *c
	out.terms = maps.Clone(c.terms)
	if out.terms == nil {
		out.terms = make(map[string]*TermDefinition)
	}
	if out.logger == nil {
		out.logger = slog.Default()
	}
	return &out
}

// reset returns a fresh context keeping the base supplied at construction.
func (c *Context) reset() *Context {
	return &Context{
		base:         c.originalBase,
		originalBase: c.originalBase,
		terms:        make(map[string]*TermDefinition),
		loader:       c.loader,
		logger:       c.logger,
	}
}
