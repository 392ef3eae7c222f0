package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/knosphere/backend/pkg/ai"
)

type calculatorArgs struct {
	Expression string `json:"expression" jsonschema_description:"Arithmetic expression to evaluate, e.g. (2+3)*4 or 2^10"`
}

// NewCalculatorTool evaluates arithmetic expressions with + - * / % ^ and
// parentheses. Expressions are parsed locally; nothing is executed.
func NewCalculatorTool() ai.Tool {
	return ai.Tool{
		Name:        "calculator",
		Description: "Evaluate an arithmetic expression. Supports +, -, *, /, %, ^ and parentheses.",
		Parameters:  mustSchema(calculatorArgs{}),
		Handler: func(_ context.Context, arguments string) (string, error) {
			var args calculatorArgs
			if err := decodeArgs(arguments, &args); err != nil {
				return "", err
			}
			result, err := evalExpression(args.Expression)
			if err != nil {
				return "", err
			}
			return strconv.FormatFloat(result, 'g', -1, 64), nil
		},
	}
}

// exprParser is a recursive descent parser over a token-free rune stream.
// Grammar: expr = term {(+|-) term}; term = power {(*|/|%) power};
// power = unary [^ power]; unary = [-] atom; atom = number | ( expr ).
type exprParser struct {
	input []rune
	pos   int
}

func evalExpression(expression string) (float64, error) {
	p := &exprParser{input: []rune(strings.TrimSpace(expression))}
	if len(p.input) == 0 {
		return 0, fmt.Errorf("empty expression")
	}
	result, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return 0, fmt.Errorf("expression result is not a finite number")
	}
	return result, nil
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}

func (p *exprParser) peek() rune {
	p.skipSpace()
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
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case '%':
			p.pos++
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left = math.Mod(left, right)
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
		// Right associative.
		exponent, err := p.parsePower()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exponent), nil
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
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (float64, error) {
	c := p.peek()
	if c == '(' {
		p.pos++
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	}

	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if p.pos == start {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	value, err := strconv.ParseFloat(string(p.input[start:p.pos]), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", string(p.input[start:p.pos]))
	}
	return value, nil
}
