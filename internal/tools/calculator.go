package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"
)

const maxExpressionLength = 256

var (
	errDivisionByZero = errors.New("division by zero")
	errOutOfRange     = errors.New("result out of range")
)

// CalculatorTool evaluates arithmetic over numeric literals. Only + - * / %,
// unary signs and parentheses are accepted; anything else is rejected before
// evaluation.
type CalculatorTool struct{}

func NewCalculatorTool() *CalculatorTool {
	return &CalculatorTool{}
}

func (c *CalculatorTool) Name() string {
	return string(Calculator)
}

func (c *CalculatorTool) Description() string {
	return "Perform mathematical calculations"
}

func (c *CalculatorTool) Parameters() map[string]any {
	return objectSchema("expression", map[string]any{
		"expression": stringParam("The mathematical expression to evaluate"),
	})
}

func (c *CalculatorTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return fmt.Sprintf("Error: Invalid expression (%v)", err), nil
	}

	result, err := Evaluate(args.Expression)
	if err != nil {
		return fmt.Sprintf("Error: Invalid expression (%v)", err), nil
	}
	return result, nil
}

// Evaluate computes expr exactly and formats the result: integers without a
// fractional part, everything else as the shortest float64 representation.
func Evaluate(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", errors.New("empty expression")
	}
	if len(expr) > maxExpressionLength {
		return "", fmt.Errorf("expression longer than %d characters", maxExpressionLength)
	}

	node, err := parser.ParseExpr(expr)
	if err != nil {
		return "", fmt.Errorf("syntax error: %v", err)
	}
	v, err := evalNode(node)
	if err != nil {
		return "", err
	}

	if i := constant.ToInt(v); i.Kind() == constant.Int {
		return i.ExactString(), nil
	}
	f, _ := constant.Float64Val(v)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "", errOutOfRange
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

func evalNode(node ast.Expr) (constant.Value, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return nil, fmt.Errorf("unsupported literal %s", n.Value)
		}
		v := constant.MakeFromLiteral(n.Value, n.Kind, 0)
		if v.Kind() == constant.Unknown {
			return nil, fmt.Errorf("malformed number %s", n.Value)
		}
		return v, nil

	case *ast.ParenExpr:
		return evalNode(n.X)

	case *ast.UnaryExpr:
		if n.Op != token.ADD && n.Op != token.SUB {
			return nil, fmt.Errorf("unsupported operator %s", n.Op)
		}
		x, err := evalNode(n.X)
		if err != nil {
			return nil, err
		}
		return constant.UnaryOp(n.Op, x, 0), nil

	case *ast.BinaryExpr:
		x, err := evalNode(n.X)
		if err != nil {
			return nil, err
		}
		y, err := evalNode(n.Y)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.ADD, token.SUB, token.MUL:
			return constant.BinaryOp(x, n.Op, y), nil
		case token.QUO:
			if constant.Sign(y) == 0 {
				return nil, errDivisionByZero
			}
			return constant.BinaryOp(x, token.QUO, y), nil
		case token.REM:
			if x.Kind() != constant.Int || y.Kind() != constant.Int {
				return nil, errors.New("% needs integer operands")
			}
			if constant.Sign(y) == 0 {
				return nil, errDivisionByZero
			}
			return constant.BinaryOp(x, token.REM, y), nil
		default:
			return nil, fmt.Errorf("unsupported operator %s", n.Op)
		}

	default:
		return nil, fmt.Errorf("unsupported syntax %T", node)
	}
}
