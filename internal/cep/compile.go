package cep

import (
	"fmt"
	"maps"
	"slices"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"

	"github.com/glassflow/glassflow-cep/internal/models"
)

type projection struct {
	name string
	// program is nil for properties copied by a wildcard select.
	program *program
}

type aggregate struct {
	fn   aggregateFunc
	name string
	// arg is nil for count(*).
	arg *program
}

type compiledStatement struct {
	name       string
	text       string
	from       string
	insertInto string
	output     *eventType

	windowLength int
	filter       *program
	where        *program
	having       *program
	projections  []projection
	aggregates   []aggregate
}

// compileStatement type-checks m against the registered types and builds its
// evaluation programs. An insert-into target is registered in types.
func compileStatement(name string, m models.StatementModel, types *typeRegistry) (*compiledStatement, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	input, ok := types.get(m.From)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, m.From)
	}

	c := &compiledStatement{
		name:         name,
		text:         m.String(),
		from:         m.From,
		insertInto:   m.InsertInto,
		windowLength: m.WindowLength,
	}

	env := input.env()

	var err error
	if c.filter, err = compileClause("filter", m.Filter, env, true); err != nil {
		return nil, err
	}
	if c.where, err = compileClause("where", m.Where, env, true); err != nil {
		return nil, err
	}

	// translate every clause that may use aggregates first, so that the
	// environment declares all aggregate variables before compiling.
	aggs := newAggregateSet()
	var itemSources []string
	for _, item := range m.Select {
		src, err := translate(item.Expression, aggs)
		if err != nil {
			return nil, fmt.Errorf("select item %s: %w", item.Name(), err)
		}
		itemSources = append(itemSources, src)
	}
	var havingSource string
	if m.Having != "" {
		if havingSource, err = translate(m.Having, aggs); err != nil {
			return nil, fmt.Errorf("having: %w", err)
		}
	}

	for _, ref := range aggs.refs {
		agg := aggregate{fn: ref.fn, name: ref.name}
		if ref.arg != "" {
			if agg.arg, err = compileProgram(ref.arg, env, false); err != nil {
				return nil, fmt.Errorf("%s argument: %w", ref.fn, err)
			}
		}
		c.aggregates = append(c.aggregates, agg)
	}

	aggEnv := env.clone()
	for _, ref := range aggs.refs {
		if ref.fn == aggCount {
			aggEnv.declare(ref.name, 0)
		} else {
			aggEnv.declare(ref.name, float64(0))
		}
	}

	outputTypes := make(map[string]models.FieldType)
	if m.Wildcard {
		for _, p := range input.properties {
			c.projections = append(c.projections, projection{name: p})
			outputTypes[p] = input.fieldType(p)
		}
	} else {
		for i, item := range m.Select {
			program, err := compileProgram(itemSources[i], aggEnv, false)
			if err != nil {
				return nil, fmt.Errorf("select item %s: %w", item.Name(), err)
			}
			c.projections = append(c.projections, projection{name: item.Name(), program: program})
		}
	}

	if havingSource != "" {
		if c.having, err = compileProgram(havingSource, aggEnv, true); err != nil {
			return nil, fmt.Errorf("having: %w", err)
		}
	}

	properties := make([]string, len(c.projections))
	for i, p := range c.projections {
		properties[i] = p.name
	}

	if m.InsertInto != "" {
		if !m.Wildcard {
			outputTypes = nil
		}
		if c.output, err = types.derive(m.InsertInto, properties, outputTypes); err != nil {
			return nil, err
		}
	} else {
		c.output = &eventType{name: name, properties: properties, types: outputTypes}
	}

	return c, nil
}

func compileClause(clause, text string, env exprEnv, condition bool) (*program, error) {
	if text == "" {
		return nil, nil
	}

	src, err := translate(text, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", clause, err)
	}

	p, err := compileProgram(src, env, condition)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", clause, err)
	}

	return p, nil
}

// exprEnv declares the names an expression may read. Names with a known
// field type carry a typed sample value used for type checking; untyped names
// are left to runtime.
type exprEnv struct {
	names map[string]struct{}
	typed map[string]any
}

func newExprEnv() exprEnv {
	return exprEnv{
		names: make(map[string]struct{}),
		typed: make(map[string]any),
	}
}

func (e exprEnv) declare(name string, sample any) {
	e.names[name] = struct{}{}
	if sample != nil {
		e.typed[name] = sample
	}
}

func (e exprEnv) clone() exprEnv {
	return exprEnv{
		names: maps.Clone(e.names),
		typed: maps.Clone(e.typed),
	}
}

// identifiers records the variable names an expression reads.
type identifiers struct {
	names    []string
	declared []string
}

func (v *identifiers) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if n.Value != "$env" && !slices.Contains(v.names, n.Value) {
			v.names = append(v.names, n.Value)
		}
	case *ast.VariableDeclaratorNode:
		v.declared = append(v.declared, n.Name)
	}
}

func (v *identifiers) free() []string {
	free := make([]string, 0, len(v.names))
	for _, name := range v.names {
		if !slices.Contains(v.declared, name) {
			free = append(free, name)
		}
	}
	return free
}

// program is an evaluable expression together with the names it reads.
type program struct {
	vm   *vm.Program
	refs []string
}

// compileProgram type-checks src against the typed names of env, rejects
// names env does not declare, and compiles a program that accepts null
// values at runtime.
func compileProgram(src string, env exprEnv, condition bool) (*program, error) {
	refs := &identifiers{}
	opts := []expr.Option{
		expr.Env(env.typed),
		expr.AllowUndefinedVariables(),
		expr.Patch(refs),
	}
	if condition {
		opts = append(opts, expr.AsBool())
	}

	if _, err := expr.Compile(src, opts...); err != nil {
		return nil, err
	}

	free := refs.free()
	for _, name := range free {
		if _, ok := env.names[name]; !ok {
			return nil, fmt.Errorf("unknown property %s", name)
		}
	}

	compiled, err := expr.Compile(src, expr.Env(map[string]any{}), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	return &program{vm: compiled, refs: free}, nil
}

// eval runs the program. An operation that fails because a referenced value
// is null yields null, so null operands propagate instead of failing the
// event.
func (p *program) eval(env map[string]any) (any, error) {
	out, err := expr.Run(p.vm, env)
	if err == nil {
		return out, nil
	}

	// Absent properties read as null too.
	for _, name := range p.refs {
		if env[name] == nil {
			return nil, nil
		}
	}

	return nil, err
}

type syntaxClause struct {
	name string
	text string
	aggs bool
}

// checkSyntax validates a statement text without resolving event types or
// properties.
func checkSyntax(text string) error {
	m, err := ParseEPL(text)
	if err != nil {
		return err
	}

	clauses := []syntaxClause{
		{name: "filter", text: m.Filter},
		{name: "where", text: m.Where},
		{name: "having", text: m.Having, aggs: true},
	}
	for _, item := range m.Select {
		clauses = append(clauses, syntaxClause{name: "select item " + item.Name(), text: item.Expression, aggs: true})
	}

	for _, cl := range clauses {
		if cl.text == "" {
			continue
		}

		var aggs *aggregateSet
		if cl.aggs {
			aggs = newAggregateSet()
		}

		src, err := translate(cl.text, aggs)
		if err != nil {
			return fmt.Errorf("%s: %w", cl.name, err)
		}
		if _, err := expr.Compile(src, expr.AllowUndefinedVariables()); err != nil {
			return fmt.Errorf("%s: %w", cl.name, err)
		}
		if aggs != nil {
			for _, ref := range aggs.refs {
				if ref.arg == "" {
					continue
				}
				if _, err := expr.Compile(ref.arg, expr.AllowUndefinedVariables()); err != nil {
					return fmt.Errorf("%s: %w", cl.name, err)
				}
			}
		}
	}

	return nil
}
