package dynamics

import (
	"math"
	"math/rand"
	"testing"
)

func evalScript(t *testing.T, expr string, elapsed float64) float64 {
	t.Helper()
	spec := &Spec{Kind: KindScript, Expr: expr}
	if err := spec.Compile(); err != nil {
		t.Fatalf("compile %q: %v", expr, err)
	}
	return spec.Evaluate(0, elapsed, rand.New(rand.NewSource(1)))
}

func TestScriptArithmetic(t *testing.T) {
	t.Parallel()
	cases := []struct {
		expr string
		t    float64
		want float64
	}{
		{"1+2", 0, 3},
		{"2*3+4", 0, 10},
		{"2+3*4", 0, 14},
		{"(2+3)*4", 0, 20},
		{"10-4-3", 0, 3},
		{"20/4/5", 0, 1},
		{"7%3", 0, 1},
		{"-5+2", 0, -3},
		{"--4", 0, 4},
		{"2*-3", 0, -6},
		{"t", 12.5, 12.5},
		{"t*2+1", 3, 7},
		{"1.5e2", 0, 150},
	}
	for _, c := range cases {
		if got := evalScript(t, c.expr, c.t); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("%q at t=%g: got %g, want %g", c.expr, c.t, got, c.want)
		}
	}
}

func TestScriptFunctions(t *testing.T) {
	t.Parallel()
	cases := []struct {
		expr string
		t    float64
		want float64
	}{
		{"sin(0)", 0, 0},
		{"cos(0)", 0, 1},
		{"sqrt(16)", 0, 4},
		{"abs(-3)", 0, 3},
		{"exp(0)", 0, 1},
		{"log(1)", 0, 0},
		{"floor(2.9)", 0, 2},
		{"ceil(2.1)", 0, 3},
		{"min(4, 9)", 0, 4},
		{"max(4, 9)", 0, 9},
		{"pow(2, 10)", 0, 1024},
		{"atan(0)", 0, 0},
		{"asin(1)", 0, math.Pi / 2},
		{"acos(1)", 0, 0},
		{"tan(0)", 0, 0},
		{"100+20*sin(t)", 0, 100},
		{"100+20*sin(t)", math.Pi / 2, 120},
	}
	for _, c := range cases {
		if got := evalScript(t, c.expr, c.t); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("%q at t=%g: got %g, want %g", c.expr, c.t, got, c.want)
		}
	}
}

func TestScriptParseErrors(t *testing.T) {
	t.Parallel()
	bad := []string{
		"",
		"1 +",
		"foo",
		"sin()",
		"sin(1, 2)",
		"min(1)",
		"pow(1, 2, 3)",
		"blorp(1)",
		"(1",
		"1)",
		"1 @ 2",
		"t t",
	}
	for _, expr := range bad {
		spec := &Spec{Kind: KindScript, Expr: expr}
		if err := spec.Compile(); err == nil {
			t.Fatalf("compile accepted %q", expr)
		}
	}
}

func TestScriptDivisionByZeroIsNaN(t *testing.T) {
	t.Parallel()
	for _, expr := range []string{"1/0", "1%0", "1/(t-0)"} {
		if got := evalScript(t, expr, 0); !math.IsNaN(got) {
			t.Fatalf("%q: got %g, want NaN", expr, got)
		}
	}
}

func TestScriptBoundsClamp(t *testing.T) {
	t.Parallel()
	spec := &Spec{Kind: KindScript, Expr: "100+20*sin(t)", Min: fp(0), Max: fp(110)}
	if err := spec.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	if got := spec.Evaluate(0, math.Pi/2, rng); got != 110 {
		t.Fatalf("clamped script: got %g, want 110", got)
	}
	if got := spec.Evaluate(0, 0, rng); got != 100 {
		t.Fatalf("unclamped script value: got %g, want 100", got)
	}
}

func TestScriptNaNPassesThroughBounds(t *testing.T) {
	t.Parallel()
	spec := &Spec{Kind: KindScript, Expr: "1/0", Min: fp(0), Max: fp(10)}
	if err := spec.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := spec.Evaluate(5, 0, rand.New(rand.NewSource(1))); !math.IsNaN(got) {
		t.Fatalf("NaN should survive clamping so callers can hold the prior value, got %g", got)
	}
}
