package filter

import (
	"maps"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Filter is a compiled record filter. It is safe for concurrent use.
type Filter struct {
	expression string
	program    *vm.Program
}

// CompilerOption configures a Compiler
type CompilerOption func(*Compiler)

// WithCache enables caching of compiled filters with the specified size
func WithCache(size int) CompilerOption {
	return func(c *Compiler) {
		if size > 0 {
			c.cache = newLRUCache(size)
		}
	}
}

// Compiler compiles filter expressions written in the expr language
type Compiler struct {
	cache *lruCache
}

// NewCompiler creates a new expr-based filter compiler
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile compiles an expression such as `priority >= 3 and hasTag("vip")`.
// Record fields are available by name and as the Record map.
func (c *Compiler) Compile(expression string) (*Filter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "empty expression",
		}
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(expression); ok {
			return cached, nil
		}
	}

	// Record fields are unknown at compile time
	program, err := expr.Compile(expression,
		expr.Env(staticEnvironment()),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "failed to compile expression",
			Err:        err,
		}
	}

	f := &Filter{
		expression: expression,
		program:    program,
	}

	if c.cache != nil {
		c.cache.Put(expression, f)
	}

	return f, nil
}

// Size returns the number of cached filters
func (c *Compiler) Size() int {
	if c.cache != nil {
		return c.cache.Len()
	}
	return 0
}

// Compile compiles an expression without caching
func Compile(expression string) (*Filter, error) {
	return NewCompiler().Compile(expression)
}

// Expression returns the original expression
func (f *Filter) Expression() string {
	return f.expression
}

// Match evaluates the filter against a record. A record the expression
// cannot be evaluated on does not match.
func (f *Filter) Match(record map[string]any) (bool, error) {
	result, err := expr.Run(f.program, runtimeEnvironment(record))
	if err != nil {
		return false, &EvaluationError{
			Expression: f.expression,
			RecordID:   record["id"],
			Reason:     "failed to evaluate expression",
			Err:        err,
		}
	}

	// AsBool guarantees the type
	return result.(bool), nil
}

func staticEnvironment() map[string]any {
	env := make(map[string]any, 16)
	addHelperFunctions(env)
	env["Record"] = map[string]any{}
	env["hasTag"] = createHasTagFunc(nil)
	return env
}

func runtimeEnvironment(record map[string]any) map[string]any {
	env := make(map[string]any, len(record)+16)
	maps.Copy(env, record)

	// Helpers win over record fields of the same name
	addHelperFunctions(env)
	env["Record"] = record
	env["hasTag"] = createHasTagFunc(record["tags"])

	return env
}
