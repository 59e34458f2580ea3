// Package search implements the boolean keyword filter applied to every
// mention before it is persisted.
//
// A filter is three keyword groups: ET (all required), OU (at least one
// required) and NON (none allowed). The textual query form
//
//	"quick" ("avis" OR "review") -"fast"
//
// is only a serialization of those groups; matching always works on Groups.
package search

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Group operators
const (
	OperatorAnd = "ET"
	OperatorOr  = "OU"
	OperatorNot = "NON"
)

// Group is one operator with its keywords
type Group struct {
	Operator string   `json:"operator"`
	Keywords []string `json:"keywords"`
}

// Groups is the structured form of a keyword query
type Groups struct {
	And []string `json:"et"`
	Or  []string `json:"ou"`
	Not []string `json:"non"`
}

// IsEmpty reports whether no group carries a keyword
func (g Groups) IsEmpty() bool {
	return len(g.And) == 0 && len(g.Or) == 0 && len(g.Not) == 0
}

// List returns the groups in ET, OU, NON order
func (g Groups) List() []Group {
	return []Group{
		{Operator: OperatorAnd, Keywords: nonNil(g.And)},
		{Operator: OperatorOr, Keywords: nonNil(g.Or)},
		{Operator: OperatorNot, Keywords: nonNil(g.Not)},
	}
}

// FromList folds a list of operator groups back into Groups. Unknown
// operators are ignored.
func FromList(list []Group) Groups {
	var g Groups
	for _, group := range list {
		switch strings.ToUpper(group.Operator) {
		case OperatorAnd, "AND":
			g.And = append(g.And, clean(group.Keywords)...)
		case OperatorOr, "OR":
			g.Or = append(g.Or, clean(group.Keywords)...)
		case OperatorNot, "NOT":
			g.Not = append(g.Not, clean(group.Keywords)...)
		}
	}
	return g
}

// ErrInvalidKeyword is returned for keywords the query form cannot carry
var ErrInvalidKeyword = errors.New("keyword contains a double quote")

type tokenKind int

const (
	tokenOpen tokenKind = iota
	tokenClose
	tokenTerm
)

type token struct {
	kind    tokenKind
	text    string
	quoted  bool
	negated bool
}

// tokenize splits a query into parentheses and terms. Quoted spans are read
// first so parentheses and OR inside quotes stay part of the term.
func tokenize(query string) []token {
	var tokens []token
	runes := []rune(query)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokenOpen})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokenClose})
			i++
		case r == '"' || (r == '-' && i+1 < len(runes) && runes[i+1] == '"'):
			negated := r == '-'
			if negated {
				i++
			}
			j := i + 1
			for j < len(runes) && runes[j] != '"' {
				j++
			}
			tokens = append(tokens, token{kind: tokenTerm, text: string(runes[i+1 : j]), quoted: true, negated: negated})
			i = j + 1
		default:
			j := i
			for j < len(runes) && !unicode.IsSpace(runes[j]) && !strings.ContainsRune(`()"`, runes[j]) {
				j++
			}
			word := strings.Trim(string(runes[i:j]), "'")
			negated := strings.HasPrefix(word, "-")
			tokens = append(tokens, token{kind: tokenTerm, text: strings.TrimPrefix(word, "-"), negated: negated})
			i = j
		}
	}
	return tokens
}

// ParseQuery converts a query string into groups. Quoted terms are ET, terms
// of the first parenthesised block are OU, and -"x" terms are NON. Bare words
// are ET terms, and bare -word terms are NON. Terms of later blocks are
// ignored.
func ParseQuery(query string) Groups {
	var g Groups
	depth, blocks := 0, 0

	for _, tok := range tokenize(query) {
		switch tok.kind {
		case tokenOpen:
			if depth == 0 {
				blocks++
			}
			depth++
			continue
		case tokenClose:
			if depth > 0 {
				depth--
			}
			continue
		}

		text := strings.TrimSpace(tok.text)
		if text == "" {
			continue
		}
		if !tok.quoted && (strings.EqualFold(text, "OR") || strings.EqualFold(text, "AND")) {
			continue
		}

		switch {
		case tok.negated:
			g.Not = append(g.Not, text)
		case depth == 0:
			g.And = append(g.And, text)
		case blocks == 1:
			g.Or = append(g.Or, text)
		}
	}

	return g
}

// Validate reports keywords that BuildQuery cannot render faithfully
func (g Groups) Validate() error {
	for _, list := range [][]string{g.And, g.Or, g.Not} {
		for _, k := range list {
			if strings.Contains(k, `"`) {
				return fmt.Errorf("%w: %s", ErrInvalidKeyword, k)
			}
		}
	}
	return nil
}

// BuildQuery renders groups as a query string that ParseQuery reads back
// into the same groups. Groups must pass Validate; double quotes are dropped
// otherwise.
func BuildQuery(g Groups) string {
	var parts []string

	for _, k := range clean(g.And) {
		parts = append(parts, quote(k))
	}

	if or := clean(g.Or); len(or) > 0 {
		quoted := make([]string, len(or))
		for i, k := range or {
			quoted[i] = quote(k)
		}
		parts = append(parts, "("+strings.Join(quoted, " OR ")+")")
	}

	for _, k := range clean(g.Not) {
		parts = append(parts, "-"+quote(k))
	}

	return strings.Join(parts, " ")
}

// ForKeywords derives the filter groups of a job. A single keyword is read as
// a query string; several keywords are all required.
func ForKeywords(keywords []string) Groups {
	keywords = clean(keywords)
	switch len(keywords) {
	case 0:
		return Groups{}
	case 1:
		return ParseQuery(keywords[0])
	default:
		return Groups{And: keywords}
	}
}

// SearchTerms returns the positive terms sent to the sources. NON terms are
// enforced by the keyword filter afterwards.
func SearchTerms(keywords []string) []string {
	g := ForKeywords(keywords)
	terms := make([]string, 0, len(g.And)+len(g.Or))
	terms = append(terms, g.And...)
	terms = append(terms, g.Or...)
	if len(terms) == 0 {
		return clean(keywords)
	}
	return terms
}

func quote(k string) string {
	return `"` + strings.ReplaceAll(k, `"`, "") + `"`
}

func clean(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
