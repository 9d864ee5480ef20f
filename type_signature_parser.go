package presto

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Words that continue a multi-word type name when they follow its first word,
// as in "timestamp with time zone", "double precision" or
// "interval day to second".
var typeNameContinuations = map[string]map[string]bool{
	"timestamp": {"with": true, "without": true},
	"time":      {"with": true, "without": true},
	"double":    {"precision": true},
	"interval":  {"day": true, "year": true},
	"character": {"varying": true},
}

// ParseTypeSignature parses a type in display form, e.g. "array(integer)",
// "map(varchar, bigint)", "row(street varchar, city varchar)" or
// "timestamp(3) with time zone", into a signature using the arguments
// encoding. Type names are lower-cased; row field names keep their case.
func ParseTypeSignature(text string) (ClientTypeSignature, error) {
	p := &typeSignatureParser{text: text}
	sig, err := p.parseType()
	if err != nil {
		return ClientTypeSignature{}, err
	}
	p.skipSpace()
	if !p.done() {
		return ClientTypeSignature{}, p.errorf("unexpected %q", p.text[p.pos:])
	}
	return sig, nil
}

type typeSignatureParser struct {
	text string
	pos  int
}

func (p *typeSignatureParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d in %q", ErrMalformedTypeSignature, fmt.Sprintf(format, args...), p.pos, p.text)
}

func (p *typeSignatureParser) done() bool { return p.pos >= len(p.text) }

func (p *typeSignatureParser) peek() byte {
	if p.done() {
		return 0
	}
	return p.text[p.pos]
}

func (p *typeSignatureParser) skipSpace() {
	for !p.done() && unicode.IsSpace(rune(p.text[p.pos])) {
		p.pos++
	}
}

func isDelimiter(c byte) bool {
	return c == '(' || c == ')' || c == ',' || c == '"' || unicode.IsSpace(rune(c))
}

// readWord returns the next bare word, or "" if none starts at the cursor.
func (p *typeSignatureParser) readWord() string {
	p.skipSpace()
	start := p.pos
	for !p.done() && !isDelimiter(p.text[p.pos]) {
		p.pos++
	}
	return p.text[start:p.pos]
}

// readWords reads space separated words up to the next delimiter.
func (p *typeSignatureParser) readWords() []string {
	var words []string
	for {
		p.skipSpace()
		if p.done() || isDelimiter(p.peek()) {
			return words
		}
		words = append(words, p.readWord())
	}
}

func (p *typeSignatureParser) parseType() (ClientTypeSignature, error) {
	words := p.readWords()
	if len(words) == 0 {
		return ClientTypeSignature{}, p.errorf("expected a type name")
	}
	sig := ClientTypeSignature{RawType: strings.ToLower(strings.Join(words, " "))}

	p.skipSpace()
	if p.peek() != '(' {
		return sig, nil
	}
	p.pos++
	args, err := p.parseArguments(KindOf(sig.RawType) == TypeKindRow)
	if err != nil {
		return ClientTypeSignature{}, err
	}
	sig.Arguments = args

	// "timestamp(3) with time zone"
	if suffix := p.readWords(); len(suffix) > 0 {
		sig.RawType += " " + strings.ToLower(strings.Join(suffix, " "))
	}
	return sig, nil
}

// parseArguments parses a comma separated list up to and including ")".
func (p *typeSignatureParser) parseArguments(row bool) ([]ClientTypeSignatureParameter, error) {
	var args []ClientTypeSignatureParameter
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return args, nil
	}
	for {
		var (
			arg ClientTypeSignatureParameter
			err error
		)
		if row {
			arg, err = p.parseRowField()
		} else {
			arg, err = p.parseArgument()
		}
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return args, nil
		default:
			return nil, p.errorf("expected ',' or ')'")
		}
	}
}

func (p *typeSignatureParser) parseArgument() (ClientTypeSignatureParameter, error) {
	p.skipSpace()
	if c := p.peek(); c == '-' || (c >= '0' && c <= '9') {
		start := p.pos
		word := p.readWord()
		n, err := strconv.ParseInt(word, 10, 64)
		if err != nil {
			p.pos = start
			return ClientTypeSignatureParameter{}, p.errorf("invalid numeric argument %q", word)
		}
		return LongParameter(n), nil
	}
	sig, err := p.parseType()
	if err != nil {
		return ClientTypeSignatureParameter{}, err
	}
	return TypeParameter(sig), nil
}

// parseRowField parses "name type", "\"quoted name\" type" or an anonymous "type".
func (p *typeSignatureParser) parseRowField() (ClientTypeSignatureParameter, error) {
	p.skipSpace()
	if p.peek() == '"' {
		name, err := p.readQuoted()
		if err != nil {
			return ClientTypeSignatureParameter{}, err
		}
		sig, err := p.parseType()
		if err != nil {
			return ClientTypeSignatureParameter{}, err
		}
		param := NamedTypeParameter(name, sig)
		param.NamedTypeSignature.FieldName = &RowFieldName{Name: name, Delimited: true}
		return param, nil
	}

	start := p.pos
	first := p.readWord()
	p.skipSpace()
	if p.done() || isDelimiter(p.peek()) {
		// A single word: the field is an anonymous type.
		p.pos = start
		sig, err := p.parseType()
		if err != nil {
			return ClientTypeSignatureParameter{}, err
		}
		return NamedTypeParameter("", sig), nil
	}

	afterFirst := p.pos
	second := strings.ToLower(p.readWord())
	if typeNameContinuations[strings.ToLower(first)][second] {
		p.pos = start
		sig, err := p.parseType()
		if err != nil {
			return ClientTypeSignatureParameter{}, err
		}
		return NamedTypeParameter("", sig), nil
	}

	p.pos = afterFirst
	sig, err := p.parseType()
	if err != nil {
		return ClientTypeSignatureParameter{}, err
	}
	return NamedTypeParameter(first, sig), nil
}

func (p *typeSignatureParser) readQuoted() (string, error) {
	p.pos++ // opening quote
	var b strings.Builder
	for !p.done() {
		c := p.text[p.pos]
		p.pos++
		if c != '"' {
			b.WriteByte(c)
			continue
		}
		if p.peek() == '"' {
			b.WriteByte('"')
			p.pos++
			continue
		}
		return b.String(), nil
	}
	return "", p.errorf("unterminated quoted identifier")
}
