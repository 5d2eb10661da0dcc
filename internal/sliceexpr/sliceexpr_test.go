package sliceexpr

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/kv-catalyst/internal/kcv"
)

func TestParse(t *testing.T) {
	cases := []struct {
		input string
		want  kcv.KeySliceQuery
	}{
		{
			input: "user1",
			want:  kcv.KeySliceQuery{Key: "user1"},
		},
		{
			input: "user1[a:n]",
			want:  kcv.KeySliceQuery{Key: "user1", Slice: kcv.SliceQuery{Start: "a", End: "n"}},
		},
		{
			input: "user1[a:]",
			want:  kcv.KeySliceQuery{Key: "user1", Slice: kcv.SliceQuery{Start: "a"}},
		},
		{
			input: "user1[:n]#10",
			want:  kcv.KeySliceQuery{Key: "user1", Slice: kcv.SliceQuery{End: "n", Limit: 10}},
		},
		{
			input: "user1#3",
			want:  kcv.KeySliceQuery{Key: "user1", Slice: kcv.SliceQuery{Limit: 3}},
		},
		{
			input: `"user:1"[a:n]`,
			want:  kcv.KeySliceQuery{Key: "user:1", Slice: kcv.SliceQuery{Start: "a", End: "n"}},
		},
		{
			input: `edge/17[ "col a" : "col z" ]`,
			want:  kcv.KeySliceQuery{Key: "edge/17", Slice: kcv.SliceQuery{Start: "col a", End: "col z"}},
		},
		{
			input: "42[1:9]",
			want:  kcv.KeySliceQuery{Key: "42", Slice: kcv.SliceQuery{Start: "1", End: "9"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := Parse(tc.input)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.input, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("query mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, input := range []string{
		"",
		"user1[a",
		"user1[a:n",
		"user1#",
		"user1#many",
		"[a:n]",
	} {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse(input); err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", input)
			}
		})
	}
}
