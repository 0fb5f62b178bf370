package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cruciblehq/crucible/pkg/events"
	"github.com/cruciblehq/crucible/pkg/models"
)

// Collector feeds the execution and delivery counters from bus events so
// the executors and the alert engine never touch Metrics directly.
type Collector struct {
	metrics *Metrics
	bus     *events.Bus

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCollector builds a collector over the given bus and metrics.
func NewCollector(bus *events.Bus, metrics *Metrics) (*Collector, error) {
	if bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics registry is required")
	}
	return &Collector{metrics: metrics, bus: bus}, nil
}

// Start launches the consuming loop. Idempotent.
func (c *Collector) Start(ctx context.Context) {
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	sub := c.bus.Subscribe(events.ResultsChannel, events.AlertsChannel)
	go c.run(ctx, sub)
	slog.Info("Telemetry collector started")
}

// Stop signals the loop to exit and waits for it.
func (c *Collector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	slog.Info("Telemetry collector stopped")
}

func (c *Collector) run(ctx context.Context, sub *events.Subscription) {
	defer close(c.done)
	defer c.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.Events():
			if !ok {
				return
			}
			c.consume(m)
		}
	}
}

func (c *Collector) consume(m events.Message) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(m.Data, &head); err != nil {
		slog.Warn("Telemetry collector: dropping undecodable event", "channel", m.Channel, "error", err)
		return
	}

	switch head.Type {
	case events.EventTypeResultCompleted:
		var payload events.ResultCompletedPayload
		if err := json.Unmarshal(m.Data, &payload); err != nil {
			return
		}
		c.metrics.RecordExecution(payload.TestType, executionStatus(&payload))
	case events.EventTypeNotificationStatus:
		var payload events.NotificationStatusPayload
		if err := json.Unmarshal(m.Data, &payload); err != nil {
			return
		}
		c.metrics.RecordNotificationDelivery(payload.Channel, payload.Status)
	}
}

// executionStatus maps a result event onto the terminal execution status
// it implies. Headline-only events without the full record can still
// distinguish pass from fail.
func executionStatus(p *events.ResultCompletedPayload) models.ExecutionStatus {
	if p.Passed {
		return models.ExecutionCompleted
	}
	if p.Result != nil {
		switch p.Result.ErrorType {
		case models.ErrorTypeTimeout:
			return models.ExecutionTimeout
		case models.ErrorTypeCancelled:
			return models.ExecutionCancelled
		}
	}
	return models.ExecutionFailed
}
