package rdf

import (
	"github.com/google/mangle/ast"
	"github.com/google/mangle/factstore"

	"github.com/twinfer/ldcontext/jsonld"
)

// Predicates of the facts produced by ToAtoms. All arguments are strings.
var (
	ContextBase     = ast.PredicateSym{Symbol: "context_base", Arity: 1}
	ContextVocab    = ast.PredicateSym{Symbol: "context_vocab", Arity: 1}
	ContextLanguage = ast.PredicateSym{Symbol: "context_language", Arity: 1}
	TermIRI         = ast.PredicateSym{Symbol: "term_iri", Arity: 2}
	NullTerm        = ast.PredicateSym{Symbol: "null_term", Arity: 1}
	ReverseTerm     = ast.PredicateSym{Symbol: "reverse_term", Arity: 2}
	TermType        = ast.PredicateSym{Symbol: "term_type", Arity: 2}
	TermLanguage    = ast.PredicateSym{Symbol: "term_language", Arity: 2}
	TermContainer   = ast.PredicateSym{Symbol: "term_container", Arity: 2}
)

// Predicates lists every predicate ToAtoms may emit.
func Predicates() []ast.PredicateSym {
	return []ast.PredicateSym{
		ContextBase, ContextVocab, ContextLanguage,
		TermIRI, NullTerm, ReverseTerm,
		TermType, TermLanguage, TermContainer,
	}
}

// ToAtoms converts c into ground Mangle atoms, terms in sorted order.
// An explicit "no language" mapping is emitted as term_language(Term, "").
func ToAtoms(c *jsonld.Context) []ast.Atom {
	var atoms []ast.Atom
	fact := func(p ast.PredicateSym, args ...string) {
		terms := make([]ast.BaseTerm, len(args))
		for i, a := range args {
			terms[i] = ast.String(a)
		}
		atoms = append(atoms, ast.Atom{Predicate: p, Args: terms})
	}

	if base := c.Base(); base != "" {
		fact(ContextBase, base)
	}
	if vocab, ok := c.Vocab(); ok {
		fact(ContextVocab, vocab)
	}
	if lang, ok := c.DefaultLanguage(); ok {
		fact(ContextLanguage, lang)
	}

	for _, term := range c.Terms() {
		def, _ := c.Term(term)
		switch {
		case def.Null:
			fact(NullTerm, term)
			continue
		case def.Reverse:
			fact(ReverseTerm, term, def.IRI)
		default:
			fact(TermIRI, term, def.IRI)
		}
		if def.Type != "" {
			fact(TermType, term, def.Type)
		}
		if def.HasLanguage {
			fact(TermLanguage, term, def.Language)
		}
		if def.Container != "" {
			fact(TermContainer, term, def.Container)
		}
	}
	return atoms
}

// LoadFacts adds the facts describing c to store and returns how many were new.
func LoadFacts(store factstore.FactStore, c *jsonld.Context) int {
	added := 0
	for _, atom := range ToAtoms(c) {
		if store.Add(atom) {
			added++
		}
	}
	return added
}
