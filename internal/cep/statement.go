package cep

import (
	"fmt"
	"sync"

	"github.com/spf13/cast"

	"github.com/glassflow/glassflow-cep/internal/core/engine"
)

type windowRow struct {
	values map[string]any
	// args holds the evaluated aggregate arguments, in aggregate order.
	args   []any
	passed bool
}

type statement struct {
	compiled *compiledStatement

	mu        sync.Mutex
	listeners []engine.UpdateListener

	// evaluation state, guarded by the owning provider
	window  []windowRow
	running []accumulator
}

var _ engine.Statement = (*statement)(nil)

func newStatement(c *compiledStatement) *statement {
	return &statement{
		compiled: c,
		running:  newAccumulators(c.aggregates),
	}
}

func (s *statement) Name() string {
	return s.compiled.name
}

func (s *statement) Text() string {
	return s.compiled.text
}

func (s *statement) AddListener(listener engine.UpdateListener) {
	if listener == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, listener)
}

func (s *statement) snapshotListeners() []engine.UpdateListener {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.listeners) == 0 {
		return nil
	}
	out := make([]engine.UpdateListener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

type result struct {
	newEvents []*eventBean
	oldEvents []*eventBean
}

func (r result) empty() bool {
	return len(r.newEvents) == 0 && len(r.oldEvents) == 0
}

// process evaluates a single event of the statement input type. A row evicted
// from the length window is reported as an old event.
func (s *statement) process(values map[string]any) (zero result, _ error) {
	c := s.compiled

	ok, err := evalCondition(c.filter, values)
	if err != nil {
		return zero, fmt.Errorf("evaluate filter: %w", err)
	}
	if !ok {
		return zero, nil
	}

	row := windowRow{values: values}
	if row.passed, err = evalCondition(c.where, values); err != nil {
		return zero, fmt.Errorf("evaluate where: %w", err)
	}
	if row.passed {
		if row.args, err = c.aggregateArgs(values); err != nil {
			return zero, err
		}
	}

	var (
		evicted    windowRow
		hasEvicted bool
		aggs       map[string]any
	)

	if c.windowLength > 0 {
		s.window = append(s.window, row)
		if len(s.window) > c.windowLength {
			evicted, hasEvicted = s.window[0], true
			s.window[0] = windowRow{}
			s.window = s.window[1:]
		}

		accs := newAccumulators(c.aggregates)
		for _, r := range s.window {
			if !r.passed {
				continue
			}
			if err := addAll(accs, r.args); err != nil {
				return zero, err
			}
		}
		aggs = aggregateValues(c.aggregates, accs)
	} else {
		if row.passed {
			if err := addAll(s.running, row.args); err != nil {
				return zero, err
			}
		}
		aggs = aggregateValues(c.aggregates, s.running)
	}

	var res result

	if row.passed {
		bean, ok, err := s.project(row.values, aggs)
		if err != nil {
			return zero, err
		}
		if ok {
			res.newEvents = append(res.newEvents, bean)
		}
	}

	if hasEvicted && evicted.passed {
		bean, ok, err := s.project(evicted.values, aggs)
		if err != nil {
			return zero, err
		}
		if ok {
			res.oldEvents = append(res.oldEvents, bean)
		}
	}

	return res, nil
}

// project applies the having clause and the select list to a row. The second
// return value is false when the row is filtered out by having.
func (s *statement) project(values, aggs map[string]any) (*eventBean, bool, error) {
	c := s.compiled

	env := values
	if len(aggs) > 0 {
		env = make(map[string]any, len(values)+len(aggs))
		for k, v := range values {
			env[k] = v
		}
		for k, v := range aggs {
			env[k] = v
		}
	}

	ok, err := evalCondition(c.having, env)
	if err != nil {
		return nil, false, fmt.Errorf("evaluate having: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	out := make(map[string]any, len(c.projections))
	for _, p := range c.projections {
		if p.program == nil {
			out[p.name] = values[p.name]
			continue
		}
		v, err := p.program.eval(env)
		if err != nil {
			return nil, false, fmt.Errorf("evaluate select item %s: %w", p.name, err)
		}
		out[p.name] = v
	}

	return &eventBean{typ: c.output, values: out}, true, nil
}

func (c *compiledStatement) aggregateArgs(values map[string]any) ([]any, error) {
	if len(c.aggregates) == 0 {
		return nil, nil
	}

	args := make([]any, len(c.aggregates))
	for i, agg := range c.aggregates {
		if agg.arg == nil {
			continue
		}
		v, err := agg.arg.eval(values)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s argument: %w", agg.fn, err)
		}
		args[i] = v
	}

	return args, nil
}

// evalCondition treats a nil program as true and a nil result as false.
func evalCondition(p *program, env map[string]any) (bool, error) {
	if p == nil {
		return true, nil
	}

	out, err := p.eval(env)
	if err != nil {
		return false, err
	}

	switch v := out.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("condition evaluated to %T, expected bool", out)
	}
}

type accumulator struct {
	fn    aggregateFunc
	star  bool
	count int
	sum   float64
	min   float64
	max   float64
}

func newAccumulators(aggregates []aggregate) []accumulator {
	if len(aggregates) == 0 {
		return nil
	}

	accs := make([]accumulator, len(aggregates))
	for i, agg := range aggregates {
		accs[i] = accumulator{fn: agg.fn, star: agg.arg == nil}
	}
	return accs
}

func addAll(accs []accumulator, args []any) error {
	for i := range accs {
		if err := accs[i].add(args[i]); err != nil {
			return err
		}
	}
	return nil
}

// add folds v into the accumulator. Null values are ignored except by count(*).
func (a *accumulator) add(v any) error {
	if a.star {
		a.count++
		return nil
	}
	if v == nil {
		return nil
	}
	if a.fn == aggCount {
		a.count++
		return nil
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return fmt.Errorf("%s: %w", a.fn, err)
	}

	if a.count == 0 || f < a.min {
		a.min = f
	}
	if a.count == 0 || f > a.max {
		a.max = f
	}
	a.sum += f
	a.count++

	return nil
}

func (a *accumulator) value() any {
	if a.fn == aggCount {
		return a.count
	}
	if a.count == 0 {
		return nil
	}

	switch a.fn {
	case aggAvg:
		return a.sum / float64(a.count)
	case aggSum:
		return a.sum
	case aggMin:
		return a.min
	case aggMax:
		return a.max
	default:
		return nil
	}
}

func aggregateValues(aggregates []aggregate, accs []accumulator) map[string]any {
	if len(aggregates) == 0 {
		return nil
	}

	values := make(map[string]any, len(aggregates))
	for i, agg := range aggregates {
		values[agg.name] = accs[i].value()
	}
	return values
}
