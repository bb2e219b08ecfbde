package jsonld

// defState tracks term definition progress within one local context object.
// A term absent from the map has not been visited yet.
type defState int

const (
	inProgress defState = iota + 1
	done
)

// definedMap is the per-object working state used to resolve forward
// references exactly once and to detect cycles.
type definedMap map[string]defState

// expandIRI resolves value to an absolute IRI following the JSON-LD IRI
// expansion algorithm. local and defined are nil outside context processing.
//
// The boolean result is false when value is a term explicitly defined as null.
// The only errors are those raised by term definitions triggered on demand.
//
// https://www.w3.org/TR/json-ld-api/#iri-expansion
func expandIRI(active *Context, value string, documentRelative, vocab bool, local map[string]any, defined definedMap) (string, bool, error) {
	// 1) Keywords expand to themselves.
	if IsKeyword(value) {
		return value, true, nil
	}

	// 2) Forward reference to a term of the local context being processed.
	if _, ok := local[value]; ok && defined[value] != done {
		if err := createTermDefinition(active, local, value, defined); err != nil {
			return "", false, err
		}
	}

	// 3) Vocabulary-relative term lookup.
	if vocab {
		if def, ok := active.terms[value]; ok {
			if def.Null {
				return "", false, nil
			}
			return def.IRI, true, nil
		}
	}

	// 4) Compact IRI or already absolute IRI.
	if prefix, suffix, ok := splitCompactIRI(value); ok {
		if _, ok := local[prefix]; ok && defined[prefix] != done {
			if err := createTermDefinition(active, local, prefix, defined); err != nil {
				return "", false, err
			}
		}
		if def, ok := active.terms[prefix]; ok && !def.Null {
			return def.IRI + suffix, true, nil
		}
		return value, true, nil
	}
	if IsBlankNode(value) || IsAbsoluteIRI(value) {
		return value, true, nil
	}

	// 5) Default vocabulary.
	if vocab && active.vocab != "" {
		return active.vocab + value, true, nil
	}

	// 6) Document-relative resolution.
	if documentRelative && active.base != "" {
		return resolveIRI(active.base, value), true, nil
	}

	// 7) Left unchanged; callers decide whether a relative value is acceptable.
	return value, true, nil
}
