// Package sliceexpr parses the compact slice-query literals accepted by
// the kv-catalyst CLI.
//
// Grammar by example:
//
//	user1              whole row for key "user1"
//	user1[a:n]         columns a (inclusive) through n (exclusive)
//	user1[a:]          columns from a, unbounded above
//	user1[:n]#10       columns below n, at most 10 entries
//	"user:1"[a:n]      quoted keys may contain any character
package sliceexpr

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/electwix/kv-catalyst/internal/kcv"
)

//nolint:govet // Participle DSL uses unkeyed fields
var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t]+`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_./-]*`},
	{Name: "Symbol", Pattern: `[\[\]:#]`},
})

//nolint:govet // Participle struct tags are DSL, not reflect tags
type expression struct {
	Key   term        `parser:"@@"`
	Range *sliceRange `parser:"@@?"`
	Limit *int        `parser:"('#' @Int)?"`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type sliceRange struct {
	Start *term `parser:"'[' @@?"`
	End   *term `parser:"':' @@? ']'"`
}

//nolint:govet // Participle struct tags are DSL, not reflect tags
type term struct {
	Value string `parser:"@String | @Ident | @Int"`
}

var parser = participle.MustBuild[expression](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
)

// Parse turns a slice-query literal into a KeySliceQuery.
func Parse(input string) (kcv.KeySliceQuery, error) {
	expr, err := parser.ParseString("", input)
	if err != nil {
		return kcv.KeySliceQuery{}, fmt.Errorf("parse slice expression %q: %w", input, err)
	}
	q := kcv.KeySliceQuery{Key: kcv.Key(expr.Key.Value)}
	if expr.Range != nil {
		if expr.Range.Start != nil {
			q.Slice.Start = kcv.Key(expr.Range.Start.Value)
		}
		if expr.Range.End != nil {
			q.Slice.End = kcv.Key(expr.Range.End.Value)
		}
	}
	if expr.Limit != nil {
		q.Slice.Limit = *expr.Limit
	}
	return q, nil
}
