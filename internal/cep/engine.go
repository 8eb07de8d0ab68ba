// Package cep is an in-process continuous query engine. Statements are written
// in a small EPL dialect (insert into, select, from with a filter and a length
// window, where, having) and their expressions are evaluated with expr-lang.
package cep

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/glassflow/glassflow-cep/internal/core/engine"
)

type Option func(*Engine)

// WithAsyncDispatch delivers listener callbacks on a dedicated goroutine per
// provider, buffering up to buffer batches.
func WithAsyncDispatch(buffer int) Option {
	return func(e *Engine) {
		if buffer < 1 {
			buffer = 1
		}
		e.asyncBuffer = buffer
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithListenerErrorHandler receives listener errors raised in async mode.
func WithListenerErrorHandler(h func(statement string, err error)) Option {
	return func(e *Engine) {
		e.errorHandler = h
	}
}

// Engine creates configurations and providers.
type Engine struct {
	log          *slog.Logger
	asyncBuffer  int
	errorHandler func(statement string, err error)

	live atomic.Int64
}

var _ engine.Factory = (*Engine)(nil)

func NewEngine(opts ...Option) *Engine {
	e := &Engine{log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) NewConfiguration() engine.Configuration {
	return NewConfiguration()
}

func (e *Engine) NewProvider(cfg engine.Configuration) (engine.Provider, error) {
	c, ok := cfg.(*Configuration)
	if !ok || c == nil {
		return nil, fmt.Errorf("unsupported configuration %T", cfg)
	}

	e.live.Add(1)

	return &Provider{
		engine: e,
		cfg:    c,
		log:    e.log.With(slog.String("component", "cep")),
	}, nil
}

// LiveProviders reports the providers created and not yet destroyed.
func (e *Engine) LiveProviders() int {
	return int(e.live.Load())
}

func (e *Engine) onListenerError(statement string, err error) {
	if e.errorHandler != nil {
		e.errorHandler(statement, err)
		return
	}
	e.log.Error("listener failed", slog.String("statement", statement), slog.Any("error", err))
}
