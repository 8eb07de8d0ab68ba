// Package memory is an in-process host used for dry runs and tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/glassflow/glassflow-cep/internal/host"
	"github.com/glassflow/glassflow-cep/internal/models"
)

type Emission struct {
	Channel string `json:"channel"`
	Values  []any  `json:"values"`
}

// Collector records every emission and acknowledgement it receives.
type Collector struct {
	mu        sync.Mutex
	emissions []Emission
	acked     []models.Record

	// EmitErr, when set, is returned by Emit instead of recording.
	EmitErr error
}

var _ host.Collector = (*Collector)(nil)

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Emit(_ context.Context, channel string, values []any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.EmitErr != nil {
		return c.EmitErr
	}

	c.emissions = append(c.emissions, Emission{Channel: channel, Values: slices.Clone(values)})
	return nil
}

func (c *Collector) Ack(_ context.Context, rec models.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.acked = append(c.acked, rec)
	return nil
}

func (c *Collector) Emissions() []Emission {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.emissions)
}

// Channel returns the emissions of a single channel in emission order.
func (c *Collector) Channel(channel string) [][]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out [][]any
	for _, e := range c.emissions {
		if e.Channel == channel {
			out = append(out, e.Values)
		}
	}
	return out
}

func (c *Collector) Acked() []models.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.acked)
}
