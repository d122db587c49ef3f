package loader

import (
	"regexp"
	"strconv"
	"strings"
)

var namePattern = regexp.MustCompile(`^[A-Za-z]\w*$`)

// lineScanner walks the whitespace-separated tokens of one input line.
// Tokens that fail to parse are still consumed, so one bad token yields one
// diagnostic.
type lineScanner struct {
	tokens []string
	pos    int
}

func newLineScanner(line string) *lineScanner {
	return &lineScanner{tokens: strings.Fields(line)}
}

func (s *lineScanner) next() (string, bool) {
	if s.pos >= len(s.tokens) {
		return "", false
	}
	tok := s.tokens[s.pos]
	s.pos++
	return tok, true
}

// name returns the next token if it is a valid name.
func (s *lineScanner) name() (string, bool) {
	tok, ok := s.next()
	if !ok || !namePattern.MatchString(tok) {
		return "", false
	}
	return tok, true
}

// number returns the next token as a float32. Names such as "NaN" or "Inf"
// are not numbers here.
func (s *lineScanner) number() (float32, bool) {
	tok, ok := s.next()
	if !ok || tok == "" {
		return 0, false
	}
	digits := strings.TrimLeft(tok, "+-")
	if digits == "" || !(digits[0] >= '0' && digits[0] <= '9' || digits[0] == '.') {
		return 0, false
	}
	f, err := strconv.ParseFloat(tok, 32)
	if err != nil {
		return 0, false
	}
	return float32(f), true
}

// rest returns the unconsumed tokens joined by single spaces.
func (s *lineScanner) rest() string {
	if s.pos >= len(s.tokens) {
		return ""
	}
	return strings.Join(s.tokens[s.pos:], " ")
}
