package locqueue

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// Filter wraps a compiled CEL program evaluated against queued samples.
// Used by the diagnostics surfaces (`queue list --filter`, the entries
// endpoint). When built from an empty expression, Match always returns true.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// NewFilter compiles a CEL predicate over queued-sample fields. Optional
// telemetry fields are dyn-typed and null when the producer omitted them.
func NewFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("seq", cel.IntType),
		cel.Variable("device_time", cel.StringType),
		cel.Variable("latitude", cel.DoubleType),
		cel.Variable("longitude", cel.DoubleType),
		cel.Variable("speed", cel.DynType),
		cel.Variable("heading", cel.DynType),
		cel.Variable("odometer", cel.DynType),
		cel.Variable("accuracy", cel.DynType),
		cel.Variable("queued_at_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Enabled reports whether a non-empty expression was compiled.
func (f Filter) Enabled() bool { return f.enabled }

// Match evaluates the predicate against one queued sample. Evaluation
// errors count as no match.
func (f Filter) Match(q QueuedSample) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"seq":          int64(q.Seq),
		"device_time":  q.DeviceTime,
		"latitude":     q.Latitude,
		"longitude":    q.Longitude,
		"speed":        optFloat(q.Speed),
		"heading":      optFloat(q.Heading),
		"odometer":     optFloat(q.Odometer),
		"accuracy":     optFloat(q.Accuracy),
		"queued_at_ms": q.QueuedAt,
		"now_ms":       time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

func optFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
