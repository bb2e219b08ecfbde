package jsonld

import (
	"strings"

	"bitbucket.org/creachadair/stringset"
)

// createTermDefinition defines term from local into active, recursively
// defining the terms it depends on. Each term is finalized at most once per
// local context; re-entering a term that is still in progress is a cycle.
//
// https://www.w3.org/TR/json-ld-api/#create-term-definition
func createTermDefinition(active *Context, local map[string]any, term string, defined definedMap) error {
	switch defined[term] {
	case done:
		return nil
	case inProgress:
		return newError(CyclicIRIMapping, term, "term depends on itself")
	}

	defined[term] = inProgress
	if IsKeyword(term) {
		return newError(KeywordRedefinition, term, "keywords cannot be overridden")
	}
	if term == "" {
		return newError(InvalidTermDefinition, term, "empty term")
	}

	// Later definitions in the same context object replace inherited ones.
	delete(active.terms, term)

	raw := local[term]
	if raw == nil {
		active.terms[term] = &TermDefinition{Null: true}
		defined[term] = done
		return nil
	}
	if s, ok := raw.(string); ok {
		raw = map[string]any{"@id": s}
	}
	value, ok := raw.(map[string]any)
	if !ok {
		return newError(InvalidTermDefinition, term, "expected string, object or null, got %T", raw)
	}
	if id, ok := value["@id"]; ok && id == nil {
		active.terms[term] = &TermDefinition{Null: true}
		defined[term] = done
		return nil
	}

	def := &TermDefinition{}

	if t, ok := value["@type"]; ok {
		typ, ok := t.(string)
		if !ok {
			return newError(InvalidTypeMapping, term, "@type must be a string, got %T", t)
		}
		iri, ok, err := expandIRI(active, typ, false, true, local, defined)
		if err != nil {
			return err
		}
		if !ok || (iri != "@id" && iri != "@vocab" && !IsAbsoluteIRI(iri)) {
			return newError(InvalidTypeMapping, term, "%q is not @id, @vocab or an absolute IRI", typ)
		}
		def.Type = iri
	}

	if r, ok := value["@reverse"]; ok {
		return defineReverse(active, local, term, defined, value, r)
	}

	if id, ok := value["@id"]; ok && id != term {
		s, ok := id.(string)
		if !ok {
			return newError(InvalidIRIMapping, term, "@id must be a string, got %T", id)
		}
		iri, ok, err := expandIRI(active, s, false, true, local, defined)
		if err != nil {
			return err
		}
		if !ok || !(IsKeyword(iri) || IsAbsoluteIRI(iri) || IsBlankNode(iri)) {
			return newError(InvalidIRIMapping, term, "%q does not resolve to an absolute IRI or keyword", s)
		}
		def.IRI = iri
	} else if prefix, suffix, ok := splitCompactIRI(term); ok {
		if _, ok := local[prefix]; ok {
			if err := createTermDefinition(active, local, prefix, defined); err != nil {
				return err
			}
		}
		if p, ok := active.terms[prefix]; ok && !p.Null {
			def.IRI = p.IRI + suffix
		} else {
			def.IRI = term
		}
	} else if strings.Contains(term, ":") {
		// Blank node identifier or hierarchical IRI used verbatim as a term.
		def.IRI = term
	} else if active.vocab != "" {
		def.IRI = active.vocab + term
	} else {
		return newError(InvalidIRIMapping, term, "no @id given and no @vocab to derive one from")
	}

	if c, ok := value["@container"]; ok {
		container, err := containerMapping(term, c, containerValues, InvalidContainerMapping)
		if err != nil {
			return err
		}
		def.Container = container
	}

	if l, ok := value["@language"]; ok && def.Type == "" {
		switch lang := l.(type) {
		case nil:
			def.HasLanguage = true
		case string:
			def.Language = strings.ToLower(lang)
			def.HasLanguage = true
		default:
			return newError(InvalidLanguageMapping, term, "@language must be a string or null, got %T", l)
		}
	}

	active.terms[term] = def
	defined[term] = done
	return nil
}

// defineReverse completes a term definition containing @reverse. Reverse
// properties carry no type or language mapping.
func defineReverse(active *Context, local map[string]any, term string, defined definedMap, value map[string]any, r any) error {
	if _, ok := value["@id"]; ok {
		return newError(InvalidReverseProperty, term, "@reverse cannot be combined with @id")
	}
	if _, ok := value["@nest"]; ok {
		return newError(InvalidReverseProperty, term, "@reverse cannot be combined with @nest")
	}
	s, ok := r.(string)
	if !ok {
		return newError(InvalidIRIMapping, term, "@reverse must be a string, got %T", r)
	}
	iri, ok, err := expandIRI(active, s, false, true, local, defined)
	if err != nil {
		return err
	}
	if !ok || !(IsAbsoluteIRI(iri) || IsBlankNode(iri)) {
		return newError(InvalidIRIMapping, term, "@reverse %q does not resolve to an absolute IRI", s)
	}

	def := &TermDefinition{IRI: iri, Reverse: true}
	if c, ok := value["@container"]; ok && c != nil {
		container, err := containerMapping(term, c, reverseContainerValues, InvalidReverseProperty)
		if err != nil {
			return err
		}
		def.Container = container
	}

	active.terms[term] = def
	defined[term] = done
	return nil
}

// containerMapping validates a @container value against allowed.
func containerMapping(term string, c any, allowed stringset.Set, code ErrorCode) (string, error) {
	s, ok := c.(string)
	if !ok || !allowed.Contains(s) {
		return "", newError(code, term, "unsupported @container %v", c)
	}
	return s, nil
}
