package rdf

import (
	"fmt"
	"io"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/mangle/ast"
)

// factJSON is the JSON form of a context fact:
// {"predicate": {"symbol": "...", "arity": N}, "args": ["...", ...]}
type factJSON struct {
	ast.Atom
}

// MarshalJSONTo implements json.MarshalerTo for factJSON.
func (fj factJSON) MarshalJSONTo(enc *jsontext.Encoder) error {
	if err := enc.WriteToken(jsontext.BeginObject); err != nil {
		return err
	}

	if err := enc.WriteToken(jsontext.String("predicate")); err != nil {
		return err
	}
	if err := enc.WriteToken(jsontext.BeginObject); err != nil {
		return err
	}
	if err := enc.WriteToken(jsontext.String("symbol")); err != nil {
		return err
	}
	if err := enc.WriteToken(jsontext.String(fj.Predicate.Symbol)); err != nil {
		return err
	}
	if err := enc.WriteToken(jsontext.String("arity")); err != nil {
		return err
	}
	if err := enc.WriteToken(jsontext.Int(int64(fj.Predicate.Arity))); err != nil {
		return err
	}
	if err := enc.WriteToken(jsontext.EndObject); err != nil {
		return err
	}

	if err := enc.WriteToken(jsontext.String("args")); err != nil {
		return err
	}
	if err := enc.WriteToken(jsontext.BeginArray); err != nil {
		return err
	}
	for _, arg := range fj.Args {
		c, ok := arg.(ast.Constant)
		if !ok {
			return fmt.Errorf("fact arg is not a constant: %T", arg)
		}
		s, err := c.StringValue()
		if err != nil {
			return fmt.Errorf("fact arg is not a string: %v", c)
		}
		if err := enc.WriteToken(jsontext.String(s)); err != nil {
			return err
		}
	}
	if err := enc.WriteToken(jsontext.EndArray); err != nil {
		return err
	}

	return enc.WriteToken(jsontext.EndObject)
}

// UnmarshalJSONFrom implements json.UnmarshalerFrom for factJSON.
func (fj *factJSON) UnmarshalJSONFrom(dec *jsontext.Decoder) error {
	tok, err := dec.ReadToken()
	if err != nil {
		return fmt.Errorf("failed to read fact start: %w", err)
	}
	if tok.Kind() != '{' {
		return fmt.Errorf("expected fact object start '{', got %c", tok.Kind())
	}

	var symbol string
	arity := -1
	var args []ast.BaseTerm

	for dec.PeekKind() != '}' {
		tok, err := dec.ReadToken()
		if err != nil {
			return fmt.Errorf("failed to read fact key: %w", err)
		}
		key := tok.String()

		switch key {
		case "predicate":
			if tok, err = dec.ReadToken(); err != nil || tok.Kind() != '{' {
				return fmt.Errorf("expected predicate object start '{'")
			}
			for dec.PeekKind() != '}' {
				if tok, err = dec.ReadToken(); err != nil || tok.Kind() != '"' {
					return fmt.Errorf("expected string key for predicate field")
				}
				predKey := tok.String()
				if tok, err = dec.ReadToken(); err != nil {
					return fmt.Errorf("failed to read predicate value: %w", err)
				}
				switch predKey {
				case "symbol":
					if tok.Kind() != '"' {
						return fmt.Errorf("expected string for 'symbol', got %s", tok.Kind().String())
					}
					symbol = tok.String()
				case "arity":
					if tok.Kind() != '0' {
						return fmt.Errorf("expected number for 'arity', got %s", tok.Kind().String())
					}
					arity = int(tok.Int())
				}
			}
			if tok, err = dec.ReadToken(); err != nil || tok.Kind() != '}' {
				return fmt.Errorf("expected predicate object end '}'")
			}

		case "args":
			if tok, err = dec.ReadToken(); err != nil || tok.Kind() != '[' {
				return fmt.Errorf("expected args array start '['")
			}
			for dec.PeekKind() != ']' {
				tok, err := dec.ReadToken()
				if err != nil {
					return fmt.Errorf("failed to read arg: %w", err)
				}
				if tok.Kind() != '"' {
					return fmt.Errorf("expected string arg, got %s", tok.Kind().String())
				}
				args = append(args, ast.String(tok.String()))
			}
			if tok, err = dec.ReadToken(); err != nil || tok.Kind() != ']' {
				return fmt.Errorf("expected args array end ']'")
			}

		default:
			// Skip unknown fields
			if err := dec.SkipValue(); err != nil {
				return fmt.Errorf("failed to skip unknown field %q: %w", key, err)
			}
		}
	}

	if _, err := dec.ReadToken(); err != nil {
		return fmt.Errorf("failed to read fact end: %w", err)
	}

	if symbol == "" {
		return fmt.Errorf("fact without predicate symbol")
	}
	if arity != len(args) {
		return fmt.Errorf("fact %s: arity %d does not match %d args", symbol, arity, len(args))
	}
	fj.Atom = ast.Atom{Predicate: ast.PredicateSym{Symbol: symbol, Arity: arity}, Args: args}
	return nil
}

// WriteFacts writes atoms to w as a JSON array.
func WriteFacts(w io.Writer, atoms []ast.Atom) error {
	enc := jsontext.NewEncoder(w)
	if err := enc.WriteToken(jsontext.BeginArray); err != nil {
		return err
	}
	for _, atom := range atoms {
		if err := json.MarshalEncode(enc, factJSON{atom}); err != nil {
			return fmt.Errorf("failed to write fact %v: %w", atom, err)
		}
	}
	return enc.WriteToken(jsontext.EndArray)
}

// ReadFacts reads atoms in the format produced by WriteFacts.
func ReadFacts(r io.Reader) ([]ast.Atom, error) {
	var facts []factJSON
	if err := json.UnmarshalRead(r, &facts); err != nil {
		return nil, fmt.Errorf("failed to read facts: %w", err)
	}
	atoms := make([]ast.Atom, len(facts))
	for i, f := range facts {
		atoms[i] = f.Atom
	}
	return atoms, nil
}
