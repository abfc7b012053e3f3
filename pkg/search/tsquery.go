package search

import (
	"strings"
)

// translateBooleanQuery converts the advanced infix mini-language
// (AND/OR/NOT, quoted phrases, leading/trailing * wildcards) into
// PostgreSQL tsquery syntax. Phrases become sequence (<->) terms,
// wildcards become prefix (:*) terms, and adjacent terms with no
// explicit operator are AND-ed.
func translateBooleanQuery(text string) string {
	tokens := tokenizeBoolean(text)

	var parts []string
	needOp := false

	emit := func(term string) {
		if needOp {
			parts = append(parts, "&")
		}
		parts = append(parts, term)
		needOp = true
	}

	for _, tok := range tokens {
		switch tok.kind {
		case tokOpen:
			if needOp {
				parts = append(parts, "&")
			}
			parts = append(parts, "(")
			needOp = false
		case tokClose:
			parts = append(parts, ")")
			needOp = true
		case tokAnd:
			parts = append(parts, "&")
			needOp = false
		case tokOr:
			parts = append(parts, "|")
			needOp = false
		case tokNot:
			if needOp {
				parts = append(parts, "&")
			}
			parts = append(parts, "!")
			needOp = false
		case tokPhrase:
			if term := phraseTerm(tok.text); term != "" {
				emit(term)
			}
		case tokWord:
			if term := wordTerm(tok.text); term != "" {
				emit(term)
			}
		}
	}

	return strings.Join(parts, " ")
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokPhrase
	tokAnd
	tokOr
	tokNot
	tokOpen
	tokClose
)

type queryToken struct {
	kind tokenKind
	text string
}

func tokenizeBoolean(text string) []queryToken {
	var tokens []queryToken
	runes := []rune(text)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case r == ' ' || r == '\t':
			i++
		case r == '(':
			tokens = append(tokens, queryToken{kind: tokOpen})
			i++
		case r == ')':
			tokens = append(tokens, queryToken{kind: tokClose})
			i++
		case r == '"':
			end := i + 1
			for end < len(runes) && runes[end] != '"' {
				end++
			}
			tokens = append(tokens, queryToken{kind: tokPhrase, text: string(runes[i+1 : end])})
			if end < len(runes) {
				end++ // closing quote
			}
			i = end
		default:
			end := i
			for end < len(runes) && runes[end] != ' ' && runes[end] != '\t' && runes[end] != '(' && runes[end] != ')' && runes[end] != '"' {
				end++
			}
			word := string(runes[i:end])
			switch strings.ToUpper(word) {
			case "AND":
				tokens = append(tokens, queryToken{kind: tokAnd})
			case "OR":
				tokens = append(tokens, queryToken{kind: tokOr})
			case "NOT":
				tokens = append(tokens, queryToken{kind: tokNot})
			default:
				tokens = append(tokens, queryToken{kind: tokWord, text: word})
			}
			i = end
		}
	}

	return tokens
}

// wordTerm sanitizes a single word for tsquery, translating trailing
// or leading * into a prefix match.
func wordTerm(word string) string {
	prefix := strings.HasSuffix(word, "*") || strings.HasPrefix(word, "*")
	cleaned := sanitizeTsTerm(word)
	if cleaned == "" {
		return ""
	}
	if prefix {
		return cleaned + ":*"
	}
	return cleaned
}

// phraseTerm joins phrase words with the sequence operator so the
// engine matches them in order.
func phraseTerm(phrase string) string {
	var terms []string
	for _, w := range strings.Fields(phrase) {
		if cleaned := sanitizeTsTerm(w); cleaned != "" {
			terms = append(terms, cleaned)
		}
	}
	if len(terms) == 0 {
		return ""
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return "(" + strings.Join(terms, " <-> ") + ")"
}

// sanitizeTsTerm strips characters that carry meaning in tsquery and
// escapes single quotes.
func sanitizeTsTerm(term string) string {
	term = strings.TrimSpace(term)
	term = strings.Map(func(r rune) rune {
		switch r {
		case '&', '|', '!', ':', '*', '(', ')', '<', '>':
			return -1
		}
		return r
	}, term)
	return strings.ReplaceAll(term, "'", "''")
}
