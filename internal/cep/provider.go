package cep

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/glassflow/glassflow-cep/internal/core/engine"
	"github.com/glassflow/glassflow-cep/internal/models"
)

var (
	ErrProviderDestroyed      = errors.New("provider is destroyed")
	ErrProviderNotInitialized = errors.New("provider is not initialized")
	ErrUnknownEventType       = errors.New("unknown event type")
	ErrInsertDepthExceeded    = errors.New("insert-into chain is too deep")
)

// maxInsertDepth bounds how many times a result may be re-inserted by
// insert-into statements while handling a single submitted event.
const maxInsertDepth = 16

type providerState int

const (
	providerCreated providerState = iota
	providerInitialized
	providerDestroyed
)

type dispatch struct {
	statement string
	listeners []engine.UpdateListener
	newEvents []engine.EventBean
	oldEvents []engine.EventBean
}

// Provider evaluates the activated statements against submitted events.
type Provider struct {
	engine *Engine
	cfg    *Configuration
	log    *slog.Logger

	mu         sync.Mutex
	state      providerState
	types      *typeRegistry
	statements []*statement
	byType     map[string][]*statement

	// deliverMu keeps inline deliveries in evaluation order.
	deliverMu sync.Mutex

	queue          chan []dispatch
	dispatcherDone chan struct{}
}

var _ engine.Provider = (*Provider)(nil)

func (p *Provider) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case providerDestroyed:
		return ErrProviderDestroyed
	case providerInitialized:
		return fmt.Errorf("provider is already initialized")
	}

	p.types = p.cfg.registry()
	p.byType = make(map[string][]*statement)
	p.state = providerInitialized

	if p.engine.asyncBuffer > 0 {
		p.queue = make(chan []dispatch, p.engine.asyncBuffer)
		p.dispatcherDone = make(chan struct{})
		go p.dispatchLoop(p.queue, p.dispatcherDone)
	}

	p.log.Debug("provider initialized", slog.Int("event_types", len(p.types.types)))

	return nil
}

func (p *Provider) Destroy() error {
	p.mu.Lock()
	if p.state == providerDestroyed {
		p.mu.Unlock()
		return nil
	}

	p.state = providerDestroyed
	p.statements = nil
	p.byType = nil
	p.types = nil
	queue, done := p.queue, p.dispatcherDone
	p.queue = nil
	p.mu.Unlock()

	p.engine.live.Add(-1)

	if queue != nil {
		close(queue)
		<-done
	}

	p.log.Debug("provider destroyed")

	return nil
}

func (p *Provider) IsDestroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state == providerDestroyed
}

// Prepare checks the statement syntax without activating it. Event types and
// properties are not resolved.
func (p *Provider) Prepare(query string) error {
	if p.IsDestroyed() {
		return ErrProviderDestroyed
	}
	return checkSyntax(query)
}

func (p *Provider) CompileAndActivate(spec models.StatementSpec) (engine.Statement, error) {
	var (
		m   models.StatementModel
		err error
	)
	if spec.Model != nil {
		m = *spec.Model
	} else if m, err = ParseEPL(spec.Text); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkInitialized(); err != nil {
		return nil, err
	}

	name := "statement-" + uuid.NewString()
	compiled, err := compileStatement(name, m, p.types)
	if err != nil {
		return nil, err
	}

	st := newStatement(compiled)
	p.statements = append(p.statements, st)
	p.byType[compiled.from] = append(p.byType[compiled.from], st)

	p.log.Debug("statement activated",
		slog.String("statement", name),
		slog.String("text", compiled.text),
	)

	return st, nil
}

type pendingEvent struct {
	typeName string
	values   map[string]any
	depth    int
}

// SendEvent evaluates the event against every statement reading its type and
// delivers the results to the statement listeners. In inline mode the first
// listener error is returned; in async mode listener errors go to the engine
// error handler.
func (p *Provider) SendEvent(event map[string]any, typeName string) error {
	p.mu.Lock()

	if err := p.checkInitialized(); err != nil {
		p.mu.Unlock()
		return err
	}

	batch, err := p.evaluate(event, typeName)
	if err != nil {
		p.mu.Unlock()
		return err
	}

	if p.queue != nil {
		if len(batch) > 0 {
			p.queue <- batch
		}
		p.mu.Unlock()
		return nil
	}

	p.deliverMu.Lock()
	p.mu.Unlock()
	defer p.deliverMu.Unlock()

	return deliver(batch)
}

func (p *Provider) evaluate(event map[string]any, typeName string) ([]dispatch, error) {
	if _, ok := p.types.get(typeName); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, typeName)
	}

	var batch []dispatch
	pending := []pendingEvent{{typeName: typeName, values: event}}

	for len(pending) > 0 {
		ev := pending[0]
		pending = pending[1:]

		if ev.depth > maxInsertDepth {
			return nil, fmt.Errorf("%w: %s", ErrInsertDepthExceeded, ev.typeName)
		}

		t, _ := p.types.get(ev.typeName)
		values, err := coerce(t, ev.values)
		if err != nil {
			return nil, err
		}

		for _, st := range p.byType[ev.typeName] {
			res, err := st.process(values)
			if err != nil {
				return nil, fmt.Errorf("statement %s: %w", st.Name(), err)
			}
			if res.empty() {
				continue
			}

			if listeners := st.snapshotListeners(); len(listeners) > 0 {
				batch = append(batch, dispatch{
					statement: st.Name(),
					listeners: listeners,
					newEvents: beans(res.newEvents),
					oldEvents: beans(res.oldEvents),
				})
			}

			if target := st.compiled.insertInto; target != "" {
				for _, b := range res.newEvents {
					pending = append(pending, pendingEvent{typeName: target, values: b.values, depth: ev.depth + 1})
				}
			}
		}
	}

	return batch, nil
}

func (p *Provider) dispatchLoop(queue <-chan []dispatch, done chan<- struct{}) {
	defer close(done)

	for batch := range queue {
		for _, d := range batch {
			for _, l := range d.listeners {
				if err := l.Update(d.newEvents, d.oldEvents); err != nil {
					p.engine.onListenerError(d.statement, err)
				}
			}
		}
	}
}

func (p *Provider) checkInitialized() error {
	switch p.state {
	case providerDestroyed:
		return ErrProviderDestroyed
	case providerCreated:
		return ErrProviderNotInitialized
	default:
		return nil
	}
}

func deliver(batch []dispatch) error {
	for _, d := range batch {
		for _, l := range d.listeners {
			if err := l.Update(d.newEvents, d.oldEvents); err != nil {
				return fmt.Errorf("listener of statement %s: %w", d.statement, err)
			}
		}
	}
	return nil
}

// beans keeps a nil slice nil so listeners can tell an absent stream apart.
func beans(in []*eventBean) []engine.EventBean {
	if len(in) == 0 {
		return nil
	}
	out := make([]engine.EventBean, len(in))
	for i, b := range in {
		out[i] = b
	}
	return out
}
