package tools

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Natural-language phrasings normalized into canonical operators before
// parsing. Percentage phrasing becomes an explicit multiplication so
// "15% de 1200" evaluates as (15/100)*1200.
var (
	percentOfRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:%|por\s+ciento)\s+de\s+`)
	sqrtRe      = regexp.MustCompile(`(?i)ra[ií]z\s+cuadrada\s+de\s+(\d+(?:[.,]\d+)?)`)
	powerRe     = regexp.MustCompile(`(?i)\s+elevado\s+a\s+`)
)

// normalizeExpression canonicalizes Spanish arithmetic phrasing into an
// expression the parser accepts. Decimal commas become decimal points.
func normalizeExpression(input string) string {
	s := strings.TrimSpace(input)

	s = sqrtRe.ReplaceAllString(s, "sqrt($1)")
	s = percentOfRe.ReplaceAllString(s, "($1/100)*")
	s = powerRe.ReplaceAllString(s, "^")

	// Decimal commas only; commas between digits.
	s = regexp.MustCompile(`(\d),(\d)`).ReplaceAllString(s, "$1.$2")

	return strings.TrimSpace(s)
}

// evaluate parses and evaluates a canonical arithmetic expression.
// Supported: numeric literals, + - * / ^, parentheses, unary minus and
// sqrt. Anything else is rejected; this is never a general evaluator.
func evaluate(expr string) (float64, error) {
	if expr == "" {
		return 0, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}

	p := &exprParser{input: expr}
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return 0, fmt.Errorf("%w: unexpected %q at position %d", ErrInvalidExpression, p.input[p.pos:], p.pos)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: result is not a finite number", ErrInvalidExpression)
	}
	return value, nil
}

// exprParser is a recursive-descent parser over a byte offset.
//
// Grammar:
//
//	expr    = term { ("+" | "-") term }
//	term    = power { ("*" | "/") power }
//	power   = unary [ "^" power ]
//	unary   = "-" unary | primary
//	primary = number | "(" expr ")" | "sqrt" "(" expr ")"
type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parsePower()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("%w: division by zero", ErrInvalidExpression)
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	if p.peek() == '^' {
		p.pos++
		// Right associative: 2^3^2 is 2^(3^2).
		exp, err := p.parsePower()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *exprParser) parseUnary() (float64, error) {
	if p.peek() == '-' {
		p.pos++
		value, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -value, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (float64, error) {
	c := p.peek()

	switch {
	case c == '(':
		p.pos++
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("%w: missing closing parenthesis", ErrInvalidExpression)
		}
		p.pos++
		return value, nil

	case c >= '0' && c <= '9' || c == '.':
		return p.parseNumber()

	case c == 's' || c == 'S':
		return p.parseSqrt()

	case c == 0:
		return 0, fmt.Errorf("%w: unexpected end of expression", ErrInvalidExpression)

	default:
		return 0, fmt.Errorf("%w: unexpected character %q at position %d", ErrInvalidExpression, c, p.pos)
	}
}

func (p *exprParser) parseNumber() (float64, error) {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c < '0' || c > '9') && c != '.' {
			break
		}
		p.pos++
	}
	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", ErrInvalidExpression, p.input[start:p.pos])
	}
	return value, nil
}

func (p *exprParser) parseSqrt() (float64, error) {
	p.skipSpaces()
	if !strings.HasPrefix(strings.ToLower(p.input[p.pos:]), "sqrt") {
		return 0, fmt.Errorf("%w: unknown function at position %d", ErrInvalidExpression, p.pos)
	}
	p.pos += len("sqrt")
	if p.peek() != '(' {
		return 0, fmt.Errorf("%w: sqrt requires parentheses", ErrInvalidExpression)
	}
	p.pos++
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.peek() != ')' {
		return 0, fmt.Errorf("%w: missing closing parenthesis", ErrInvalidExpression)
	}
	p.pos++
	if value < 0 {
		return 0, fmt.Errorf("%w: square root of negative number", ErrInvalidExpression)
	}
	return math.Sqrt(value), nil
}
