package tool

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
)

const ToolCalculate = "calculate"

// Calculator evaluates plain arithmetic so the model does not have to
// compute rates and percentages in its head.
type Calculator struct {
	failurePrefix string
}

var _ contractx.Tool = (*Calculator)(nil)

func NewCalculator(failurePrefix string) *Calculator {
	return &Calculator{failurePrefix: failurePrefix}
}

func (c *Calculator) Descriptor() contractx.ToolDescriptor {
	return contractx.ToolDescriptor{
		Name:        ToolCalculate,
		Description: "Calcula uma expressão aritmética (+, -, *, /, ^, parênteses). Útil para percentuais e taxas.",
		Parameters:  inputParameters("Expressão aritmética, por exemplo (45 / 200) * 100"),
	}
}

func (c *Calculator) Execute(_ context.Context, input string) string {
	expr := strings.TrimSpace(input)
	value, err := Evaluate(expr)
	if err != nil {
		return fmt.Sprintf("%sexpressão inválida: %v", c.failurePrefix, err)
	}
	return fmt.Sprintf("%s = %s", expr, formatNumber(value))
}

// Evaluate computes an arithmetic expression with the usual precedence;
// ^ is right-associative and binds tighter than unary minus.
func Evaluate(expr string) (float64, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, fmt.Errorf("expression is empty")
	}
	p := &exprParser{tokens: tokens}
	value, err := p.binary(0)
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.tokens) {
		return 0, fmt.Errorf("unexpected token %q", p.tokens[p.pos].text)
	}
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return value, nil
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	text  string
	value float64
}

func tokenize(expr string) ([]token, error) {
	var out []token
	for i := 0; i < len(expr); {
		ch := rune(expr[i])
		switch {
		case unicode.IsSpace(ch):
			i++
		case ch >= '0' && ch <= '9' || ch == '.':
			start := i
			for i < len(expr) && (expr[i] >= '0' && expr[i] <= '9' || expr[i] == '.') {
				i++
			}
			raw := expr[start:i]
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", raw)
			}
			out = append(out, token{kind: tokNumber, text: raw, value: v})
		case strings.ContainsRune("+-*/^", ch):
			out = append(out, token{kind: tokOp, text: string(ch)})
			i++
		case ch == '(':
			out = append(out, token{kind: tokLParen, text: "("})
			i++
		case ch == ')':
			out = append(out, token{kind: tokRParen, text: ")"})
			i++
		default:
			return nil, fmt.Errorf("invalid character %q at position %d", ch, i)
		}
	}
	return out, nil
}

var precedence = map[string]int{"+": 1, "-": 1, "*": 2, "/": 2, "^": 4}

type exprParser struct {
	tokens []token
	pos    int
}

func (p *exprParser) binary(minPrec int) (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for p.pos < len(p.tokens) {
		op := p.tokens[p.pos]
		prec, isOp := precedence[op.text]
		if op.kind != tokOp || !isOp || prec < minPrec {
			break
		}
		p.pos++
		next := prec + 1
		if op.text == "^" {
			next = prec
		}
		right, err := p.binary(next)
		if err != nil {
			return 0, err
		}
		if left, err = apply(op.text, left, right); err != nil {
			return 0, err
		}
	}
	return left, nil
}

func (p *exprParser) unary() (float64, error) {
	if p.pos < len(p.tokens) && p.tokens[p.pos].kind == tokOp {
		switch p.tokens[p.pos].text {
		case "-":
			p.pos++
			v, err := p.binary(3)
			return -v, err
		case "+":
			p.pos++
			return p.binary(3)
		}
	}
	return p.primary()
}

func (p *exprParser) primary() (float64, error) {
	if p.pos >= len(p.tokens) {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	tok := p.tokens[p.pos]
	switch tok.kind {
	case tokNumber:
		p.pos++
		return tok.value, nil
	case tokLParen:
		p.pos++
		v, err := p.binary(0)
		if err != nil {
			return 0, err
		}
		if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != tokRParen {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected token %q", tok.text)
	}
}

func apply(op string, a, b float64) (float64, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	case "^":
		return math.Pow(a, b), nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}

func formatNumber(v float64) string {
	rounded := math.Round(v*1e6) / 1e6
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}
