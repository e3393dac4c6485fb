package compiler

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// RefKind says which construct a specifier literal belongs to.
type RefKind uint8

const (
	RefImport  RefKind = iota // import ... from "x", import "x"
	RefExport                 // export ... from "x"
	RefDynamic                // import("x")
	RefRequire                // require("x")
)

// String returns the string representation of the RefKind
func (k RefKind) String() string {
	switch k {
	case RefImport:
		return "import"
	case RefExport:
		return "export"
	case RefDynamic:
		return "dynamic-import"
	case RefRequire:
		return "require"
	default:
		return "unknown"
	}
}

// ImportRef is one specifier string literal in module source.
type ImportRef struct {
	Specifier string
	Kind      RefKind
	Start     int // offset of the opening quote
	End       int // offset just past the closing quote
	Quote     byte
}

// FindImports locates every static import, re-export, dynamic import and
// require call whose specifier is a string literal. The source is expected
// to be syntactically valid; offsets index into code.
func FindImports(code []byte) []ImportRef {
	s := &importScanner{code: code}
	s.skipHashbang()
	s.scan()
	return s.refs
}

type tokenKind uint8

const (
	tokenNone tokenKind = iota
	tokenPunct
	tokenWord
	tokenValue
)

type importScanner struct {
	code []byte
	i    int
	refs []ImportRef

	lastKind  tokenKind
	lastPunct byte
	lastWord  string

	// depth counts open braces; templates holds the depth at which each
	// open ${ substitution was entered.
	depth     int
	templates []int
}

func (s *importScanner) skipHashbang() {
	if hasPrefixAt(s.code, 0, "#!") {
		for s.i < len(s.code) && s.code[s.i] != '\n' {
			s.i++
		}
	}
}

func (s *importScanner) scan() {
	code := s.code
	for s.i < len(code) {
		c := code[s.i]
		switch {
		case isWhiteSpace(c):
			s.i++
		case c == '/' && hasPrefixAt(code, s.i, "//"):
			s.i = skipLineComment(code, s.i)
		case c == '/' && hasPrefixAt(code, s.i, "/*"):
			s.i = skipBlockComment(code, s.i)
		case c == '\'' || c == '"':
			s.i = skipString(code, s.i)
			s.value()
		case c == '`':
			s.i++
			s.scanTemplate()
		case c == '/':
			if s.regexAllowed() {
				s.i = skipRegExp(code, s.i)
				s.value()
			} else {
				s.i++
				s.punct(c)
			}
		case c == '{':
			s.depth++
			s.i++
			s.punct(c)
		case c == '}':
			if n := len(s.templates); n > 0 && s.templates[n-1] == s.depth {
				s.templates = s.templates[:n-1]
				s.i++
				s.scanTemplate()
				continue
			}
			s.depth--
			s.i++
			s.punct(c)
		case isDigit(c) || (c == '.' && s.i+1 < len(code) && isDigit(code[s.i+1])):
			for s.i < len(code) && (isIdentifierChar(code[s.i]) || code[s.i] == '.') {
				s.i++
			}
			s.value()
		case isIdentifierStart(c):
			start := s.i
			s.i = skipIdentifier(code, s.i)
			word := string(code[start:s.i])
			if !s.afterDot() && s.keyword(word) {
				continue
			}
			s.lastKind, s.lastWord = tokenWord, word
		default:
			s.i++
			s.punct(c)
		}
	}
}

func (s *importScanner) punct(c byte) { s.lastKind, s.lastPunct = tokenPunct, c }
func (s *importScanner) value()       { s.lastKind = tokenValue }

func (s *importScanner) afterDot() bool {
	return s.lastKind == tokenPunct && s.lastPunct == '.'
}

// keyword handles the word just consumed and reports whether it recorded a
// specifier, in which case the scanner has moved past the literal.
func (s *importScanner) keyword(word string) bool {
	switch word {
	case "import":
		return s.afterImport(s.i)
	case "export":
		return s.afterExport(s.i)
	case "require":
		j := skipSpacesAndComments(s.code, s.i)
		return j < len(s.code) && s.code[j] == '(' && s.callArgument(j, RefRequire)
	}
	return false
}

// regexAllowed reports whether a slash in the current position starts a
// regular expression literal rather than a division.
func (s *importScanner) regexAllowed() bool {
	switch s.lastKind {
	case tokenNone:
		return true
	case tokenValue:
		return false
	case tokenPunct:
		return s.lastPunct != ')' && s.lastPunct != ']'
	}
	switch s.lastWord {
	case "return", "typeof", "instanceof", "in", "of", "new", "delete", "void",
		"throw", "case", "do", "else", "yield", "await", "extends":
		return true
	}
	return false
}

// scanTemplate consumes template characters up to the closing backtick or
// the next substitution.
func (s *importScanner) scanTemplate() {
	code := s.code
	for s.i < len(code) {
		switch code[s.i] {
		case '\\':
			s.i += 2
		case '`':
			s.i++
			s.value()
			return
		case '$':
			if hasPrefixAt(code, s.i, "${") {
				s.templates = append(s.templates, s.depth)
				s.i += 2
				s.punct('{')
				return
			}
			s.i++
		default:
			s.i++
		}
	}
}

func (s *importScanner) afterImport(j int) bool {
	code := s.code
	j = skipSpacesAndComments(code, j)
	if j >= len(code) {
		return false
	}
	switch code[j] {
	case '(':
		return s.callArgument(j, RefDynamic)
	case '\'', '"':
		return s.record(j, RefImport)
	case '.':
		// import.meta
		return false
	}

	for j < len(code) {
		j = skipSpacesAndComments(code, j)
		if j >= len(code) {
			return false
		}
		c := code[j]
		switch {
		case c == '{':
			if j = skipBraces(code, j); j < 0 {
				return false
			}
		case c == ',' || c == '*':
			j++
		case isIdentifierStart(c):
			start := j
			j = skipIdentifier(code, j)
			if string(code[start:j]) == "from" {
				k := skipSpacesAndComments(code, j)
				if k < len(code) && isQuote(code[k]) {
					return s.record(k, RefImport)
				}
			}
		default:
			return false
		}
	}
	return false
}

func (s *importScanner) afterExport(j int) bool {
	code := s.code
	j = skipSpacesAndComments(code, j)
	if j >= len(code) {
		return false
	}
	switch code[j] {
	case '*':
		j = skipSpacesAndComments(code, j+1)
		if hasWordAt(code, j, "as") {
			j = skipSpacesAndComments(code, j+2)
			switch {
			case j < len(code) && isQuote(code[j]):
				j = skipString(code, j)
			case j < len(code) && isIdentifierStart(code[j]):
				j = skipIdentifier(code, j)
			default:
				return false
			}
		}
	case '{':
		if j = skipBraces(code, j); j < 0 {
			return false
		}
	default:
		return false
	}

	j = skipSpacesAndComments(code, j)
	if !hasWordAt(code, j, "from") {
		return false
	}
	j = skipSpacesAndComments(code, j+4)
	if j >= len(code) || !isQuote(code[j]) {
		return false
	}
	return s.record(j, RefExport)
}

// callArgument records the literal first argument of a call whose opening
// parenthesis is at j.
func (s *importScanner) callArgument(j int, kind RefKind) bool {
	code := s.code
	k := skipSpacesAndComments(code, j+1)
	if k >= len(code) || !(isQuote(code[k]) || code[k] == '`') {
		return false
	}
	end, ok := literalEnd(code, k)
	if !ok {
		return false
	}
	next := skipSpacesAndComments(code, end)
	if next >= len(code) || (code[next] != ')' && code[next] != ',') {
		return false
	}
	return s.record(k, kind)
}

// record stores the literal at k and moves the scanner past it.
func (s *importScanner) record(k int, kind RefKind) bool {
	end, ok := literalEnd(s.code, k)
	if !ok {
		return false
	}
	specifier, ok := unescapeLiteral(s.code[k+1 : end-1])
	if !ok {
		return false
	}
	s.refs = append(s.refs, ImportRef{
		Specifier: specifier,
		Kind:      kind,
		Start:     k,
		End:       end,
		Quote:     s.code[k],
	})
	s.i = end
	s.value()
	return true
}

// literalEnd returns the offset past the string or substitution-free
// template literal at k.
func literalEnd(code []byte, k int) (int, bool) {
	quote := code[k]
	for i := k + 1; i < len(code); i++ {
		switch code[i] {
		case '\\':
			i++
		case quote:
			return i + 1, true
		case '\n':
			if quote != '`' {
				return 0, false
			}
		case '$':
			if quote == '`' && hasPrefixAt(code, i, "${") {
				return 0, false
			}
		}
	}
	return 0, false
}

func unescapeLiteral(raw []byte) (string, bool) {
	if !strings.ContainsRune(string(raw), '\\') {
		return string(raw), true
	}
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(raw) {
			return "", false
		}
		switch raw[i] {
		case '\n':
			// line continuation
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'x':
			if i+3 > len(raw) {
				return "", false
			}
			r, err := strconv.ParseUint(string(raw[i+1:i+3]), 16, 8)
			if err != nil {
				return "", false
			}
			b.WriteRune(rune(r))
			i += 2
		case 'u':
			hex := raw[i+1:]
			n := 4
			if len(hex) > 0 && hex[0] == '{' {
				end := strings.IndexByte(string(hex), '}')
				if end < 0 {
					return "", false
				}
				hex, n = hex[1:end], end+1
			} else if len(hex) < 4 {
				return "", false
			} else {
				hex = hex[:4]
			}
			r, err := strconv.ParseUint(string(hex), 16, 32)
			if err != nil || !utf8.ValidRune(rune(r)) {
				return "", false
			}
			b.WriteRune(rune(r))
			i += n
		default:
			b.WriteByte(raw[i])
		}
	}
	return b.String(), true
}

// quoteLiteral renders specifier as a literal delimited by quote.
func quoteLiteral(specifier string, quote byte) string {
	var b strings.Builder
	b.Grow(len(specifier) + 2)
	b.WriteByte(quote)
	for i := 0; i < len(specifier); i++ {
		c := specifier[i]
		switch {
		case c == '\\' || c == quote:
			b.WriteByte('\\')
		case c == '\n':
			b.WriteString(`\n`)
			continue
		case c == '$' && quote == '`':
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte(quote)
	return b.String()
}

func isWhiteSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isQuote(c byte) bool { return c == '\'' || c == '"' }

// isIdentifierStart treats every non-ASCII byte as part of an identifier.
func isIdentifierStart(c byte) bool {
	return c == '_' || c == '$' || c == '\\' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentifierChar(c byte) bool {
	return isIdentifierStart(c) || isDigit(c)
}

func skipIdentifier(code []byte, i int) int {
	for i < len(code) && isIdentifierChar(code[i]) {
		i++
	}
	return i
}

func hasPrefixAt(code []byte, i int, prefix string) bool {
	return i >= 0 && i+len(prefix) <= len(code) && string(code[i:i+len(prefix)]) == prefix
}

func hasWordAt(code []byte, i int, word string) bool {
	if !hasPrefixAt(code, i, word) {
		return false
	}
	end := i + len(word)
	return end >= len(code) || !isIdentifierChar(code[end])
}

func skipLineComment(code []byte, i int) int {
	for i < len(code) && code[i] != '\n' {
		i++
	}
	return i
}

func skipBlockComment(code []byte, i int) int {
	end := strings.Index(string(code[i+2:]), "*/")
	if end < 0 {
		return len(code)
	}
	return i + 2 + end + 2
}

func skipSpacesAndComments(code []byte, i int) int {
	for i < len(code) {
		switch {
		case isWhiteSpace(code[i]):
			i++
		case hasPrefixAt(code, i, "//"):
			i = skipLineComment(code, i)
		case hasPrefixAt(code, i, "/*"):
			i = skipBlockComment(code, i)
		default:
			return i
		}
	}
	return i
}

// skipString returns the offset past the quoted string at i.
func skipString(code []byte, i int) int {
	quote := code[i]
	for i++; i < len(code); i++ {
		switch code[i] {
		case '\\':
			i++
		case quote, '\n':
			return i + 1
		}
	}
	return i
}

func skipRegExp(code []byte, i int) int {
	inClass := false
	for i++; i < len(code); i++ {
		switch c := code[i]; {
		case c == '\\':
			i++
		case c == '\n':
			return i
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			return skipIdentifier(code, i+1)
		}
	}
	return i
}

// skipBraces returns the offset past the brace group opened at i, or -1.
func skipBraces(code []byte, i int) int {
	depth := 0
	for i < len(code) {
		switch c := code[i]; {
		case c == '{':
			depth++
			i++
		case c == '}':
			depth--
			i++
			if depth == 0 {
				return i
			}
		case isQuote(c):
			i = skipString(code, i)
		case hasPrefixAt(code, i, "//"):
			i = skipLineComment(code, i)
		case hasPrefixAt(code, i, "/*"):
			i = skipBlockComment(code, i)
		default:
			i++
		}
	}
	return -1
}
