// Package rdfterm defines the canonical byte encoding for an RDF term used
// both as the payload AtomStore interns and as the scratch-buffer encoding
// a BindingTable's Scratch values point into. One encoding serves both
// purposes so a term read back from the quad store can be bound directly
// without re-encoding.
package rdfterm

import (
	"encoding/binary"
	"fmt"

	"github.com/mercurydb/mercury/pkg/rdf"
)

// Tag discriminates the encoded term kind.
type Tag byte

const (
	TagIRI Tag = iota + 1
	TagBlankNode
	TagSimpleLiteral
	TagLangLiteral
	TagTypedLiteral
)

// Encode serializes term into its canonical atom/scratch byte form.
func Encode(term rdf.Term) ([]byte, error) {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return append([]byte{byte(TagIRI)}, t.IRI...), nil
	case *rdf.BlankNode:
		return append([]byte{byte(TagBlankNode)}, t.ID...), nil
	case *rdf.Literal:
		switch {
		case t.Language != "":
			b := make([]byte, 0, 2+len(t.Language)+len(t.Value))
			b = append(b, byte(TagLangLiteral), byte(len(t.Language)))
			b = append(b, t.Language...)
			b = append(b, t.Value...)
			return b, nil
		case t.Datatype != nil:
			dt := t.Datatype.IRI
			b := make([]byte, 0, 3+len(dt)+len(t.Value))
			b = append(b, byte(TagTypedLiteral))
			var lenBuf [2]byte
			binary.BigEndian.PutUint16(lenBuf[:], uint16(len(dt)))
			b = append(b, lenBuf[:]...)
			b = append(b, dt...)
			b = append(b, t.Value...)
			return b, nil
		default:
			return append([]byte{byte(TagSimpleLiteral)}, t.Value...), nil
		}
	default:
		return nil, fmt.Errorf("rdfterm: cannot encode term of type %T", term)
	}
}

// Decode parses the canonical encoding back into an rdf.Term.
func Decode(b []byte) (rdf.Term, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("rdfterm: empty encoding")
	}
	switch Tag(b[0]) {
	case TagIRI:
		return rdf.NewNamedNode(string(b[1:])), nil
	case TagBlankNode:
		return rdf.NewBlankNode(string(b[1:])), nil
	case TagSimpleLiteral:
		return rdf.NewLiteral(string(b[1:])), nil
	case TagLangLiteral:
		if len(b) < 2 {
			return nil, fmt.Errorf("rdfterm: truncated lang literal")
		}
		n := int(b[1])
		if len(b) < 2+n {
			return nil, fmt.Errorf("rdfterm: truncated lang literal body")
		}
		lang := string(b[2 : 2+n])
		val := string(b[2+n:])
		return rdf.NewLiteralWithLanguage(val, lang), nil
	case TagTypedLiteral:
		if len(b) < 3 {
			return nil, fmt.Errorf("rdfterm: truncated typed literal")
		}
		n := int(binary.BigEndian.Uint16(b[1:3]))
		if len(b) < 3+n {
			return nil, fmt.Errorf("rdfterm: truncated typed literal body")
		}
		dt := string(b[3 : 3+n])
		val := string(b[3+n:])
		return rdf.NewLiteralWithDatatype(val, rdf.NewNamedNode(dt)), nil
	default:
		return nil, fmt.Errorf("rdfterm: unknown tag %d", b[0])
	}
}

// IsIRI reports whether an encoded term is an IRI, without a full decode.
func IsIRI(b []byte) bool { return len(b) > 0 && Tag(b[0]) == TagIRI }

// IsBlankNode reports whether an encoded term is a blank node.
func IsBlankNode(b []byte) bool { return len(b) > 0 && Tag(b[0]) == TagBlankNode }

// IsLiteral reports whether an encoded term is any literal form.
func IsLiteral(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	switch Tag(b[0]) {
	case TagSimpleLiteral, TagLangLiteral, TagTypedLiteral:
		return true
	default:
		return false
	}
}
