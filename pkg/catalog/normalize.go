package catalog

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnterminatedString is returned when a string literal never closes.
var ErrUnterminatedString = errors.New("unterminated string literal")

// Normalize coerces a permissive list/object literal (Python or JS flavour)
// into JSON: string literals are re-quoted with double quotes, bare keys are
// quoted, trailing commas are dropped, comments are removed and the
// True/False/None family is mapped to JSON literals.
func Normalize(src string) (string, error) {
	var out strings.Builder
	out.Grow(len(src))

	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case isQuote(c):
			end, err := skipString(src, i)
			if err != nil {
				return "", err
			}
			quoted, err := json.Marshal(unquote(src[i:end]))
			if err != nil {
				return "", err
			}
			out.Write(quoted)
			i = end

		case isComment(src, i):
			i = skipLine(src, i)

		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			word := src[i:j]
			if k := skipSpace(src, j); k < len(src) && src[k] == ':' {
				out.WriteByte('"')
				out.WriteString(word)
				out.WriteByte('"')
			} else {
				out.WriteString(literalWord(word))
			}
			i = j

		case c == ',':
			if k := skipSpace(src, i+1); k < len(src) && (src[k] == '}' || src[k] == ']') {
				i++
				continue
			}
			out.WriteByte(c)
			i++

		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), nil
}

func literalWord(word string) string {
	switch word {
	case "True", "true":
		return "true"
	case "False", "false":
		return "false"
	case "None", "null", "nil", "undefined":
		return "null"
	}
	return word
}

// unquote returns the value of a string literal including its quotes.
func unquote(literal string) string {
	delim := 1
	if len(literal) >= 6 && (strings.HasPrefix(literal, `"""`) || strings.HasPrefix(literal, `'''`)) {
		delim = 3
	}
	body := literal[delim : len(literal)-delim]

	var out strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] != '\\' || i+1 >= len(body) {
			out.WriteByte(body[i])
			continue
		}
		i++
		switch body[i] {
		case 'n':
			out.WriteByte('\n')
		case 't':
			out.WriteByte('\t')
		case 'r':
			out.WriteByte('\r')
		default:
			out.WriteByte(body[i])
		}
	}
	return out.String()
}

// skipString returns the offset just past the string literal starting at i.
func skipString(src string, i int) (int, error) {
	quote := src[i]
	if quote != '`' && strings.HasPrefix(src[i:], strings.Repeat(string(quote), 3)) {
		end := strings.Index(src[i+3:], strings.Repeat(string(quote), 3))
		if end < 0 {
			return 0, ErrUnterminatedString
		}
		return i + 3 + end + 3, nil
	}

	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j + 1, nil
		case '\n':
			if quote != '`' {
				return 0, ErrUnterminatedString
			}
		}
	}
	return 0, ErrUnterminatedString
}

func skipLine(src string, i int) int {
	if end := strings.IndexByte(src[i:], '\n'); end >= 0 {
		return i + end + 1
	}
	return len(src)
}

func skipSpace(src string, i int) int {
	for i < len(src) {
		switch {
		case src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r':
			i++
		case isComment(src, i):
			i = skipLine(src, i)
		default:
			return i
		}
	}
	return i
}

func isComment(src string, i int) bool {
	return src[i] == '#' || (src[i] == '/' && i+1 < len(src) && src[i+1] == '/')
}

func isQuote(c byte) bool { return c == '"' || c == '\'' || c == '`' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || (c >= '0' && c <= '9') }
