package main

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
	"github.com/notargets/DGMapper/modelpart"
	"gonum.org/v1/gonum/spatial/r3"
)

var fieldFunctions = map[string]govaluate.ExpressionFunction{
	"sin":  unary(math.Sin),
	"cos":  unary(math.Cos),
	"exp":  unary(math.Exp),
	"sqrt": unary(math.Sqrt),
	"abs":  unary(math.Abs),
}

func unary(f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		v, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("argument %v is not a number", args[0])
		}
		return f(v), nil
	}
}

func parseFieldType(name string) (modelpart.FieldType, error) {
	for _, t := range []modelpart.FieldType{modelpart.Scalar, modelpart.Vector, modelpart.Tensor} {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown field type %q", name)
}

// fieldExpression evaluates one expression per component in x, y and z
type fieldExpression struct {
	Type  modelpart.FieldType
	exprs []*govaluate.EvaluableExpression
}

func compileField(typeName string, expressions []string, dim int) (*fieldExpression, error) {
	t, err := parseFieldType(typeName)
	if err != nil {
		return nil, err
	}
	if want := t.ComponentsFor(dim); len(expressions) != want {
		return nil, fmt.Errorf("%s field in %dD needs %d expressions, got %d", t, dim, want, len(expressions))
	}
	fe := &fieldExpression{Type: t}
	for _, s := range expressions {
		e, err := govaluate.NewEvaluableExpressionWithFunctions(s, fieldFunctions)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", s, err)
		}
		fe.exprs = append(fe.exprs, e)
	}
	return fe, nil
}

// newField allocates an empty field of the expression's type over mp
func (fe *fieldExpression) newField(name string, mp *modelpart.ModelPart) *modelpart.Field {
	return &modelpart.Field{
		Name:       name,
		Type:       fe.Type,
		Components: len(fe.exprs),
		Values:     make([]float64, len(mp.Nodes)*len(fe.exprs)),
	}
}

// evaluate fills a new field over every node of mp
func (fe *fieldExpression) evaluate(name string, mp *modelpart.ModelPart) (*modelpart.Field, error) {
	f := fe.newField(name, mp)
	for i, n := range mp.Nodes {
		for c, e := range fe.exprs {
			v, err := evalAt(e, n.Coords)
			if err != nil {
				return nil, fmt.Errorf("node %d: %w", n.ID, err)
			}
			f.Set(i, c, v)
		}
	}
	return f, nil
}

func evalAt(e *govaluate.EvaluableExpression, p r3.Vec) (float64, error) {
	res, err := e.Evaluate(map[string]interface{}{"x": p.X, "y": p.Y, "z": p.Z})
	if err != nil {
		return 0, err
	}
	v, ok := res.(float64)
	if !ok {
		return 0, fmt.Errorf("%q evaluates to %v, not a number", e.String(), res)
	}
	return v, nil
}
