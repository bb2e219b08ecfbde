package jsonld

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"bitbucket.org/creachadair/stringset"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// ParseContext decodes raw JSON into the generic value accepted by Process.
func ParseContext(data []byte) (any, error) {
	var local any
	if err := json.Unmarshal(data, &local); err != nil {
		return nil, fmt.Errorf("failed to parse context: %w", err)
	}
	return local, nil
}

// ErrUnrepresentable is returned when marshaling a context that no local
// context can reproduce, such as a term whose IRI starts with its own name
// as a prefix.
var ErrUnrepresentable = errors.New("jsonld: context cannot be written as a local context")

// MarshalJSONTo implements json.MarshalerTo for Context.
// The context is written as a normalized local context: directives first,
// then every term in sorted order with an explicit @id or @reverse. Processing
// the output against a context with the same original base yields an equal
// context.
//
// A term may hold a compact-looking IRI that was kept verbatim because its
// prefix was defined by a later fragment. Such contexts are written as an
// array of single-term fragments, each term ahead of the terms that would
// re-expand it.
func (c *Context) MarshalJSONTo(enc *jsontext.Encoder) error {
	order, err := c.fragmentOrder()
	if err != nil {
		return err
	}
	return c.writeLocal(enc, order)
}

// fragmentOrder returns nil when the single object form reproduces c, and
// otherwise the term order for the fragment array form.
func (c *Context) fragmentOrder() ([]string, error) {
	if c.reproducedBy(nil) {
		return nil, nil
	}

	// A term must precede every term named by its IRI, its type or their prefixes.
	after := make(map[string][]string)
	preceding := make(map[string]int)
	for term, def := range c.terms {
		for _, name := range expansionNames(def) {
			if name == term {
				continue
			}
			if _, ok := c.terms[name]; ok {
				after[term] = append(after[term], name)
				preceding[name]++
			}
		}
	}

	order := make([]string, 0, len(c.terms))
	ready := stringset.New()
	for term := range c.terms {
		if preceding[term] == 0 {
			ready.Add(term)
		}
	}
	for !ready.Empty() {
		term := ready.Elements()[0]
		ready.Discard(term)
		order = append(order, term)
		for _, name := range after[term] {
			if preceding[name]--; preceding[name] == 0 {
				ready.Add(name)
			}
		}
	}

	if len(order) != len(c.terms) || !c.reproducedBy(order) {
		return nil, ErrUnrepresentable
	}
	return order, nil
}

// expansionNames lists the term names that can change how the written
// definition of def expands.
func expansionNames(def *TermDefinition) []string {
	if def.Null {
		return nil
	}
	var names []string
	for _, v := range []string{def.IRI, def.Type} {
		if v == "" || IsKeyword(v) {
			continue
		}
		names = append(names, v)
		if prefix, _, ok := splitCompactIRI(v); ok {
			names = append(names, prefix)
		}
	}
	return names
}

// reproducedBy reports whether processing the local context written with
// order yields c again.
func (c *Context) reproducedBy(order []string) bool {
	var buf bytes.Buffer
	if err := c.writeLocal(jsontext.NewEncoder(&buf), order); err != nil {
		return false
	}
	local, err := ParseContext(buf.Bytes())
	if err != nil {
		return false
	}
	got, err := c.reset().Process(context.Background(), local)
	return err == nil && c.Equal(got)
}

// writeLocal writes c as one object when order is nil, and otherwise as an
// array of the directives followed by one object per term in order.
func (c *Context) writeLocal(enc *jsontext.Encoder, order []string) error {
	if order != nil {
		if err := enc.WriteToken(jsontext.BeginArray); err != nil {
			return err
		}
	}
	if err := enc.WriteToken(jsontext.BeginObject); err != nil {
		return err
	}

	// @base
	switch {
	case c.base != "":
		if err := writeMember(enc, "@base", jsontext.String(c.base)); err != nil {
			return err
		}
	case c.originalBase != "":
		// The base was cleared explicitly; keep it cleared on re-processing.
		if err := writeMember(enc, "@base", jsontext.Null); err != nil {
			return err
		}
	}

	// @vocab
	if c.vocab != "" {
		if err := writeMember(enc, "@vocab", jsontext.String(c.vocab)); err != nil {
			return err
		}
	}

	// @language
	if c.language != "" {
		if err := writeMember(enc, "@language", jsontext.String(c.language)); err != nil {
			return err
		}
	}

	if order == nil {
		for _, term := range c.Terms() {
			if err := c.writeTerm(enc, term); err != nil {
				return err
			}
		}
		return enc.WriteToken(jsontext.EndObject)
	}

	if err := enc.WriteToken(jsontext.EndObject); err != nil {
		return err
	}
	for _, term := range order {
		if err := enc.WriteToken(jsontext.BeginObject); err != nil {
			return err
		}
		if err := c.writeTerm(enc, term); err != nil {
			return err
		}
		if err := enc.WriteToken(jsontext.EndObject); err != nil {
			return err
		}
	}
	return enc.WriteToken(jsontext.EndArray)
}

// writeTerm writes one term as an object member.
func (c *Context) writeTerm(enc *jsontext.Encoder, term string) error {
	if err := enc.WriteToken(jsontext.String(term)); err != nil {
		return err
	}
	if err := writeTermDefinition(enc, c.terms[term]); err != nil {
		return fmt.Errorf("failed to write term %q: %w", term, err)
	}
	return nil
}

// writeTermDefinition writes def as a term definition object, or null.
func writeTermDefinition(enc *jsontext.Encoder, def *TermDefinition) error {
	if def.Null {
		return enc.WriteToken(jsontext.Null)
	}
	if err := enc.WriteToken(jsontext.BeginObject); err != nil {
		return err
	}

	if def.Reverse {
		if err := writeMember(enc, "@reverse", jsontext.String(def.IRI)); err != nil {
			return err
		}
	} else {
		if err := writeMember(enc, "@id", jsontext.String(def.IRI)); err != nil {
			return err
		}
	}

	if def.Type != "" {
		if err := writeMember(enc, "@type", jsontext.String(def.Type)); err != nil {
			return err
		}
	}

	if def.Container != "" {
		if err := writeMember(enc, "@container", jsontext.String(def.Container)); err != nil {
			return err
		}
	}

	if def.HasLanguage {
		lang := jsontext.Null
		if def.Language != "" {
			lang = jsontext.String(def.Language)
		}
		if err := writeMember(enc, "@language", lang); err != nil {
			return err
		}
	}

	return enc.WriteToken(jsontext.EndObject)
}

// writeMember writes a single object member name and scalar value.
func writeMember(enc *jsontext.Encoder, name string, value jsontext.Token) error {
	if err := enc.WriteToken(jsontext.String(name)); err != nil {
		return err
	}
	return enc.WriteToken(value)
}

// UnmarshalJSONFrom implements json.UnmarshalerFrom for Context.
// The decoded value is processed as a local context against a fresh context
// that keeps the receiver's original base, document loader and logger.
func (c *Context) UnmarshalJSONFrom(dec *jsontext.Decoder) error {
	var local any
	if err := json.UnmarshalDecode(dec, &local); err != nil {
		return fmt.Errorf("failed to decode context: %w", err)
	}

	result, err := c.clone().reset().Process(context.Background(), local)
	if err != nil {
		return err
	}
	*c = *result
	return nil
}
