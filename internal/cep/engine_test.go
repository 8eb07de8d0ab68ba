package cep

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassflow/glassflow-cep/internal/core/engine"
	"github.com/glassflow/glassflow-cep/internal/models"
)

type captured struct {
	mu      sync.Mutex
	updates [][2][]map[string]any
}

func (c *captured) Update(newEvents, oldEvents []engine.EventBean) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.updates = append(c.updates, [2][]map[string]any{toMaps(newEvents), toMaps(oldEvents)})
	return nil
}

func (c *captured) snapshot() [][2][]map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][2][]map[string]any, len(c.updates))
	copy(out, c.updates)
	return out
}

func toMaps(events []engine.EventBean) []map[string]any {
	if events == nil {
		return nil
	}
	out := make([]map[string]any, len(events))
	for i, e := range events {
		m := make(map[string]any)
		for _, p := range e.EventType().PropertyNames() {
			m[p] = e.Get(p)
		}
		out[i] = m
	}
	return out
}

func quotesSchema(t *testing.T) models.EventSchema {
	t.Helper()

	schema, err := models.NewEventSchema(map[string]models.FieldType{
		"symbol":   models.FieldTypeString,
		"buyPrice": models.FieldTypeDouble,
		"volume":   models.FieldTypeLong,
	})
	require.NoError(t, err)
	return schema
}

func newQuotesProvider(t *testing.T, e *Engine) engine.Provider {
	t.Helper()

	cfg := e.NewConfiguration()
	require.NoError(t, cfg.AddEventType("quotes_default", quotesSchema(t)))

	p, err := e.NewProvider(cfg)
	require.NoError(t, err)
	require.NoError(t, p.Initialize())
	t.Cleanup(func() { _ = p.Destroy() })

	return p
}

func quote(symbol string, price float64) map[string]any {
	return map[string]any{"symbol": symbol, "buyPrice": price, "volume": 1}
}

func TestProvider_Lifecycle(t *testing.T) {
	e := NewEngine()
	cfg := e.NewConfiguration()
	require.NoError(t, cfg.AddEventType("quotes_default", quotesSchema(t)))

	p, err := e.NewProvider(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, e.LiveProviders())

	err = p.SendEvent(quote("AUD/USD", 1), "quotes_default")
	require.ErrorIs(t, err, ErrProviderNotInitialized)

	require.NoError(t, p.Initialize())
	require.Error(t, p.Initialize())

	require.NoError(t, p.Destroy())
	require.NoError(t, p.Destroy())
	assert.True(t, p.IsDestroyed())
	assert.Equal(t, 0, e.LiveProviders())

	_, err = p.CompileAndActivate(models.TextStatement("select * from quotes_default"))
	require.ErrorIs(t, err, ErrProviderDestroyed)
	require.ErrorIs(t, p.Initialize(), ErrProviderDestroyed)
	require.ErrorIs(t, p.Prepare("select * from quotes_default"), ErrProviderDestroyed)
}

func TestConfiguration_AddEventType(t *testing.T) {
	cfg := NewConfiguration()

	require.NoError(t, cfg.AddEventType("a_default", quotesSchema(t)))
	require.Error(t, cfg.AddEventType("a_default", quotesSchema(t)))
	require.Error(t, cfg.AddEventType("", quotesSchema(t)))
	require.Error(t, cfg.AddEventType("b_default", models.EventSchema{}))
	require.NoError(t, cfg.AddEventType("b_default", quotesSchema(t)))

	assert.Equal(t, []string{"a_default", "b_default"}, cfg.EventTypes())
}

func TestProvider_CompileErrors(t *testing.T) {
	p := newQuotesProvider(t, NewEngine())

	testCases := []struct {
		desc string
		text string
	}{
		{desc: "unknown event type", text: "select * from trades_default"},
		{desc: "unknown property", text: "select price from quotes_default"},
		{desc: "non boolean filter", text: "select symbol from quotes_default(buyPrice + 1)"},
		{desc: "aggregate in where", text: "select symbol from quotes_default where avg(buyPrice) > 1"},
		{desc: "type mismatch", text: "select symbol from quotes_default where symbol > 1"},
		{desc: "syntax", text: "select symbol quotes_default"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := p.CompileAndActivate(models.TextStatement(tc.text))
			require.Error(t, err)
		})
	}
}

func TestProvider_StatementNames(t *testing.T) {
	p := newQuotesProvider(t, NewEngine())

	st1, err := p.CompileAndActivate(models.TextStatement("select * from quotes_default"))
	require.NoError(t, err)
	st2, err := p.CompileAndActivate(models.ModelStatement(models.StatementModel{Wildcard: true, From: "quotes_default"}))
	require.NoError(t, err)

	assert.Regexp(t, `^statement-[0-9a-f-]{36}$`, st1.Name())
	assert.NotEqual(t, st1.Name(), st2.Name())
	assert.Equal(t, "select * from quotes_default", st2.Text())
}

func TestProvider_LengthWindowWithInsertInto(t *testing.T) {
	p := newQuotesProvider(t, NewEngine())

	st, err := p.CompileAndActivate(models.TextStatement(
		"insert into Result select avg(buyPrice) as avg, buyPrice from quotes_default(symbol='AUD/USD').win:length(2) having avg(buyPrice) > 1.0",
	))
	require.NoError(t, err)

	results := &captured{}
	st.AddListener(results)

	downstream, err := p.CompileAndActivate(models.TextStatement("select avg, buyPrice from Result where buyPrice > 1.5"))
	require.NoError(t, err)
	chained := &captured{}
	downstream.AddListener(chained)

	require.NoError(t, p.SendEvent(quote("AUD/USD", 1.0), "quotes_default"))
	require.NoError(t, p.SendEvent(quote("EUR/USD", 9.0), "quotes_default"))
	require.NoError(t, p.SendEvent(quote("AUD/USD", 2.0), "quotes_default"))
	require.NoError(t, p.SendEvent(quote("AUD/USD", 3.0), "quotes_default"))

	updates := results.snapshot()
	require.Len(t, updates, 2)

	// avg(1.0) is not above 1.0, the first event produces nothing
	assert.Equal(t, []map[string]any{{"avg": 1.5, "buyPrice": 2.0}}, updates[0][0])
	assert.Nil(t, updates[0][1])

	assert.Equal(t, []map[string]any{{"avg": 2.5, "buyPrice": 3.0}}, updates[1][0])
	// the evicted 1.0 quote is retracted with the current average
	assert.Equal(t, []map[string]any{{"avg": 2.5, "buyPrice": 1.0}}, updates[1][1])

	chainedUpdates := chained.snapshot()
	require.Len(t, chainedUpdates, 2)
	assert.Equal(t, []map[string]any{{"avg": 1.5, "buyPrice": 2.0}}, chainedUpdates[0][0])
	assert.Equal(t, []map[string]any{{"avg": 2.5, "buyPrice": 3.0}}, chainedUpdates[1][0])
}

func TestProvider_OldEventsOnEviction(t *testing.T) {
	p := newQuotesProvider(t, NewEngine())

	st, err := p.CompileAndActivate(models.TextStatement("select symbol, count(*) as n from quotes_default.win:length(1)"))
	require.NoError(t, err)
	results := &captured{}
	st.AddListener(results)

	require.NoError(t, p.SendEvent(quote("A", 1), "quotes_default"))
	require.NoError(t, p.SendEvent(quote("B", 1), "quotes_default"))

	updates := results.snapshot()
	require.Len(t, updates, 2)
	assert.Equal(t, []map[string]any{{"symbol": "A", "n": 1}}, updates[0][0])
	assert.Nil(t, updates[0][1])
	assert.Equal(t, []map[string]any{{"symbol": "B", "n": 1}}, updates[1][0])
	assert.Equal(t, []map[string]any{{"symbol": "A", "n": 1}}, updates[1][1])
}

func TestProvider_UnboundedAggregates(t *testing.T) {
	p := newQuotesProvider(t, NewEngine())

	st, err := p.CompileAndActivate(models.TextStatement(
		"select sum(buyPrice) as total, min(buyPrice) as low, max(buyPrice) as high, count(buyPrice) as n from quotes_default",
	))
	require.NoError(t, err)
	results := &captured{}
	st.AddListener(results)

	require.NoError(t, p.SendEvent(quote("A", 3), "quotes_default"))
	require.NoError(t, p.SendEvent(map[string]any{"symbol": "A", "buyPrice": nil}, "quotes_default"))
	require.NoError(t, p.SendEvent(quote("A", 1), "quotes_default"))

	updates := results.snapshot()
	require.Len(t, updates, 3)
	assert.Equal(t, map[string]any{"total": 3.0, "low": 3.0, "high": 3.0, "n": 1}, updates[1][0][0])
	assert.Equal(t, map[string]any{"total": 4.0, "low": 1.0, "high": 3.0, "n": 2}, updates[2][0][0])
}

func TestProvider_CoercesAndDropsUnknownProperties(t *testing.T) {
	p := newQuotesProvider(t, NewEngine())

	st, err := p.CompileAndActivate(models.TextStatement("select * from quotes_default"))
	require.NoError(t, err)
	results := &captured{}
	st.AddListener(results)

	require.NoError(t, p.SendEvent(map[string]any{"symbol": "A", "buyPrice": "1.25", "extra": true}, "quotes_default"))

	updates := results.snapshot()
	require.Len(t, updates, 1)
	assert.Equal(t, map[string]any{"buyPrice": 1.25, "symbol": "A", "volume": nil}, updates[0][0][0])

	err = p.SendEvent(map[string]any{"buyPrice": "not a number"}, "quotes_default")
	require.Error(t, err)

	err = p.SendEvent(quote("A", 1), "trades_default")
	require.ErrorIs(t, err, ErrUnknownEventType)
}

func TestProvider_NullPropertiesInConditions(t *testing.T) {
	p := newQuotesProvider(t, NewEngine())

	st, err := p.CompileAndActivate(models.TextStatement("select symbol from quotes_default(symbol = 'A')"))
	require.NoError(t, err)
	results := &captured{}
	st.AddListener(results)

	require.NoError(t, p.SendEvent(map[string]any{"buyPrice": 1.0}, "quotes_default"))
	require.NoError(t, p.SendEvent(quote("A", 1), "quotes_default"))

	assert.Len(t, results.snapshot(), 1)
}

func TestProvider_NumericPredicatesOnNullProperties(t *testing.T) {
	testCases := []struct {
		desc     string
		text     string
		events   []map[string]any
		expected [][]map[string]any
	}{
		{
			desc: "where comparison is false for null",
			text: "select symbol from quotes_default where buyPrice > 1.0",
			events: []map[string]any{
				{"symbol": "A", "buyPrice": nil},
				quote("B", 2.0),
			},
			expected: [][]map[string]any{{{"symbol": "B"}}},
		},
		{
			desc: "filter comparison is false for null",
			text: "select symbol from quotes_default(buyPrice > 1.0)",
			events: []map[string]any{
				{"symbol": "A"},
				quote("B", 2.0),
			},
			expected: [][]map[string]any{{{"symbol": "B"}}},
		},
		{
			desc: "arithmetic on null is null",
			text: "select symbol, buyPrice + 1 as next from quotes_default",
			events: []map[string]any{
				{"symbol": "A", "buyPrice": nil},
				quote("B", 2.0),
			},
			expected: [][]map[string]any{
				{{"symbol": "A", "next": nil}},
				{{"symbol": "B", "next": 3.0}},
			},
		},
		{
			desc: "having over only null values is false",
			text: "select symbol from quotes_default.win:length(2) having avg(buyPrice) > 1.0",
			events: []map[string]any{
				{"symbol": "A"},
				{"symbol": "B"},
				quote("C", 3.0),
			},
			expected: [][]map[string]any{{{"symbol": "C"}}},
		},
		{
			desc: "null check still sees null",
			text: "select symbol from quotes_default where buyPrice is null",
			events: []map[string]any{
				{"symbol": "A"},
				quote("B", 2.0),
			},
			expected: [][]map[string]any{{{"symbol": "A"}}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			p := newQuotesProvider(t, NewEngine())

			st, err := p.CompileAndActivate(models.TextStatement(tc.text))
			require.NoError(t, err)
			results := &captured{}
			st.AddListener(results)

			for _, ev := range tc.events {
				require.NoError(t, p.SendEvent(ev, "quotes_default"))
			}

			var newEvents [][]map[string]any
			for _, u := range results.snapshot() {
				if u[0] != nil {
					newEvents = append(newEvents, u[0])
				}
			}
			assert.Equal(t, tc.expected, newEvents)
		})
	}
}

func TestProvider_TypedChecksOnDerivedTypes(t *testing.T) {
	p := newQuotesProvider(t, NewEngine())

	_, err := p.CompileAndActivate(models.TextStatement("insert into Priced select buyPrice * 2 as doubled from quotes_default"))
	require.NoError(t, err)

	st, err := p.CompileAndActivate(models.TextStatement("select doubled from Priced where doubled >= 4"))
	require.NoError(t, err)
	results := &captured{}
	st.AddListener(results)

	_, err = p.CompileAndActivate(models.TextStatement("select missing from Priced"))
	require.Error(t, err)

	require.NoError(t, p.SendEvent(quote("A", 1.0), "quotes_default"))
	require.NoError(t, p.SendEvent(quote("B", 2.5), "quotes_default"))

	updates := results.snapshot()
	require.Len(t, updates, 1)
	assert.Equal(t, []map[string]any{{"doubled": 5.0}}, updates[0][0])
}

func TestProvider_InlineListenerError(t *testing.T) {
	p := newQuotesProvider(t, NewEngine())

	st, err := p.CompileAndActivate(models.TextStatement("select * from quotes_default"))
	require.NoError(t, err)

	boom := errors.New("boom")
	st.AddListener(engine.UpdateListenerFunc(func(_, _ []engine.EventBean) error {
		return boom
	}))

	err = p.SendEvent(quote("A", 1), "quotes_default")
	require.ErrorIs(t, err, boom)
}

func TestProvider_AsyncDispatch(t *testing.T) {
	var (
		mu     sync.Mutex
		failed []string
	)
	e := NewEngine(
		WithAsyncDispatch(8),
		WithListenerErrorHandler(func(statement string, err error) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, statement)
		}),
	)
	p := newQuotesProvider(t, e)

	st, err := p.CompileAndActivate(models.TextStatement("select symbol from quotes_default"))
	require.NoError(t, err)

	results := &captured{}
	st.AddListener(results)
	st.AddListener(engine.UpdateListenerFunc(func(_, _ []engine.EventBean) error {
		return errors.New("boom")
	}))

	for _, s := range []string{"A", "B", "C"} {
		require.NoError(t, p.SendEvent(quote(s, 1), "quotes_default"))
	}

	require.Eventually(t, func() bool {
		return len(results.snapshot()) == 3
	}, time.Second, 10*time.Millisecond)

	updates := results.snapshot()
	assert.Equal(t, "A", updates[0][0][0]["symbol"])
	assert.Equal(t, "B", updates[1][0][0]["symbol"])
	assert.Equal(t, "C", updates[2][0][0]["symbol"])

	require.NoError(t, p.Destroy())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, failed, 3)
	assert.Equal(t, st.Name(), failed[0])
}

func TestProvider_InsertIntoTypeConflict(t *testing.T) {
	p := newQuotesProvider(t, NewEngine())

	_, err := p.CompileAndActivate(models.TextStatement("insert into Result select symbol from quotes_default"))
	require.NoError(t, err)

	_, err = p.CompileAndActivate(models.TextStatement("insert into Result select symbol from quotes_default where buyPrice > 1"))
	require.NoError(t, err)

	_, err = p.CompileAndActivate(models.TextStatement("insert into Result select buyPrice from quotes_default"))
	require.Error(t, err)
}

func TestProvider_InsertDepthGuard(t *testing.T) {
	p := newQuotesProvider(t, NewEngine())

	_, err := p.CompileAndActivate(models.TextStatement("insert into Loop select symbol from quotes_default"))
	require.NoError(t, err)
	_, err = p.CompileAndActivate(models.TextStatement("insert into Loop select symbol from Loop"))
	require.NoError(t, err)

	err = p.SendEvent(quote("A", 1), "quotes_default")
	require.ErrorIs(t, err, ErrInsertDepthExceeded)
}

func TestProvider_ConcurrentSendEvent(t *testing.T) {
	p := newQuotesProvider(t, NewEngine())

	st, err := p.CompileAndActivate(models.TextStatement("select count(*) as n from quotes_default"))
	require.NoError(t, err)
	results := &captured{}
	st.AddListener(results)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				assert.NoError(t, p.SendEvent(quote("A", 1), "quotes_default"))
			}
		}()
	}
	wg.Wait()

	updates := results.snapshot()
	require.Len(t, updates, 200)
	for i, u := range updates {
		assert.Equal(t, i+1, u[0][0]["n"])
	}
}
