// Package rdf materializes resolved JSON-LD contexts as RDF datasets and
// Mangle facts, so they can be queried alongside the data they describe.
package rdf

import (
	"fmt"
	"strconv"

	"github.com/piprate/json-gold/ld"

	"github.com/twinfer/ldcontext/jsonld"
)

// Namespace is the JSON-LD vocabulary used to describe contexts.
const Namespace = "http://www.w3.org/ns/json-ld#"

// Vocabulary IRIs used in the dataset produced by ToDataset.
const (
	ContextClass        = Namespace + "Context"
	TermDefinitionClass = Namespace + "TermDefinition"

	BaseProperty            = Namespace + "base"
	VocabProperty           = Namespace + "vocab"
	LanguageProperty        = Namespace + "language"
	DefinitionProperty      = Namespace + "definition"
	TermProperty            = Namespace + "term"
	IRIProperty             = Namespace + "iri"
	ReverseProperty         = Namespace + "reverse"
	TypeMappingProperty     = Namespace + "typeMapping"
	LanguageMappingProperty = Namespace + "languageMapping"
	ContainerProperty       = Namespace + "container"
)

const (
	rdfType   = jsonld.RDFNamespace + "type"
	xsdString = jsonld.XSDNamespace + "string"

	defaultGraph = "@default"
	contextNode  = "_:context"
)

// ToDataset describes c as an RDF dataset in the default graph. The context
// is a blank node linked to one blank node per term definition, numbered in
// sorted term order so the output is stable.
func ToDataset(c *jsonld.Context) *ld.RDFDataset {
	dataset := ld.NewRDFDataset()
	var quads []*ld.Quad

	ctx := ld.NewBlankNode(contextNode)
	add := func(s ld.Node, p string, o ld.Node) {
		quads = append(quads, ld.NewQuad(s, ld.NewIRI(p), o, defaultGraph))
	}

	add(ctx, rdfType, ld.NewIRI(ContextClass))
	if base := c.Base(); base != "" {
		add(ctx, BaseProperty, ld.NewIRI(base))
	}
	if vocab, ok := c.Vocab(); ok {
		add(ctx, VocabProperty, ld.NewIRI(vocab))
	}
	if lang, ok := c.DefaultLanguage(); ok {
		add(ctx, LanguageProperty, stringLiteral(lang))
	}

	for i, term := range c.Terms() {
		def, _ := c.Term(term)
		node := ld.NewBlankNode("_:t" + strconv.Itoa(i))

		add(ctx, DefinitionProperty, node)
		add(node, rdfType, ld.NewIRI(TermDefinitionClass))
		add(node, TermProperty, stringLiteral(term))

		// Null definitions carry no mapping at all.
		if def.Null {
			continue
		}

		if def.Reverse {
			add(node, ReverseProperty, iriOrLiteral(def.IRI))
		} else {
			add(node, IRIProperty, iriOrLiteral(def.IRI))
		}
		if def.Type != "" {
			add(node, TypeMappingProperty, iriOrLiteral(def.Type))
		}
		if def.HasLanguage {
			add(node, LanguageMappingProperty, stringLiteral(def.Language))
		}
		if def.Container != "" {
			add(node, ContainerProperty, stringLiteral(def.Container))
		}
	}

	dataset.Graphs[defaultGraph] = quads
	return dataset
}

// ToNQuads serializes the dataset of c as N-Quads.
func ToNQuads(c *jsonld.Context) (string, error) {
	serializer := &ld.NQuadRDFSerializer{}
	out, err := serializer.Serialize(ToDataset(c))
	if err != nil {
		return "", fmt.Errorf("failed to serialize context as N-Quads: %w", err)
	}
	s, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("unexpected N-Quads output type: %T", out)
	}
	return s, nil
}

// ToJSONLD converts the dataset of c back into an expanded JSON-LD document.
func ToJSONLD(c *jsonld.Context) (any, error) {
	proc := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions("")

	doc, err := proc.FromRDF(ToDataset(c), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to convert RDF to JSON-LD: %w", err)
	}
	return doc, nil
}

// iriOrLiteral returns an IRI node for absolute IRIs. Keywords and blank node
// identifiers are kept as plain strings so they never clash with the
// generated blank nodes.
func iriOrLiteral(value string) ld.Node {
	if jsonld.IsAbsoluteIRI(value) {
		return ld.NewIRI(value)
	}
	return stringLiteral(value)
}

func stringLiteral(value string) ld.Node {
	return ld.NewLiteral(value, xsdString, "")
}
