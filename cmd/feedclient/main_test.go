package main

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestResourceCarriesServiceName(t *testing.T) {
	res, err := newResource(context.Background())
	require.NoError(t, err)

	v, ok := res.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	require.Equal(t, "reelfeed", v.AsString())
}

func TestLogCallsUseErrKey(t *testing.T) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "main.go", nil, 0)
	require.NoError(t, err)

	ast.Inspect(f, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		switch sel.Sel.Name {
		case "Debug", "Info", "Warn", "Error":
		default:
			return true
		}
		for i := 1; i < len(call.Args); i += 2 {
			if lit, ok := call.Args[i].(*ast.BasicLit); ok && lit.Kind == token.STRING {
				assert.NotEqual(t, `"error"`, lit.Value, fset.Position(lit.Pos()).String())
			}
		}
		return true
	})
}
