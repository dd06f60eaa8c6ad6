package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/externalcpi/pkg/cpi"
)

// Event describes something noteworthy about a CPI call.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	CPI       string                 `json:"cpi"`
	Method    string                 `json:"method"`
	RequestID string                 `json:"request_id,omitempty"`
	Message   string                 `json:"message"`
	Level     string                 `json:"level"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeCallSucceeded  = "cpi.call.succeeded"
	EventTypeCallFailed     = "cpi.call.failed"
	EventTypeRetryableError = "cpi.call.retryable"
	EventTypeProtocolError  = "cpi.protocol_error"
	EventTypeNonZeroExit    = "cpi.nonzero_exit"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher turns call records into events and delivers them to
// subscribers. It implements cpi.CallObserver.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

var _ cpi.CallObserver = (*EventPublisher)(nil)

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish delivers an event to all matching subscribers. In async mode a
// full buffer drops the event and returns an error.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// ObserveCall publishes the events derived from a finished call.
func (ep *EventPublisher) ObserveCall(_ context.Context, rec *cpi.CallRecord) {
	for _, event := range EventsForCall(rec) {
		_ = ep.Publish(event)
	}
}

// EventsForCall derives the events describing rec.
func EventsForCall(rec *cpi.CallRecord) []Event {
	base := Event{
		Timestamp: rec.StartedAt.Add(rec.Duration),
		CPI:       rec.CPI,
		Method:    rec.Method,
		RequestID: rec.RequestID,
	}

	var events []Event

	if rec.ExitStatus > 0 {
		e := base
		e.Type = EventTypeNonZeroExit
		e.Level = EventLevelWarning
		e.Message = fmt.Sprintf("cpi %s exited with status %d during %s", rec.CPI, rec.ExitStatus, rec.Method)
		e.Data = map[string]interface{}{"exit_status": rec.ExitStatus}
		events = append(events, e)
	}

	e := base
	e.Data = map[string]interface{}{"duration": rec.Duration.Seconds()}
	switch {
	case rec.Err == nil:
		e.Type = EventTypeCallSucceeded
		e.Level = EventLevelInfo
		e.Message = fmt.Sprintf("cpi %s completed %s", rec.CPI, rec.Method)
	case cpi.IsProtocolError(rec.Err):
		e.Type = EventTypeProtocolError
		e.Level = EventLevelError
		e.Message = fmt.Sprintf("cpi %s broke the protocol during %s: %v", rec.CPI, rec.Method, rec.Err)
	case cpi.IsRetryable(rec.Err):
		e.Type = EventTypeRetryableError
		e.Level = EventLevelWarning
		e.Message = fmt.Sprintf("cpi %s failed %s, retry allowed: %v", rec.CPI, rec.Method, rec.Err)
	default:
		e.Type = EventTypeCallFailed
		e.Level = EventLevelError
		e.Message = fmt.Sprintf("cpi %s failed %s: %v", rec.CPI, rec.Method, rec.Err)
	}

	var cpiErr *cpi.Error
	if errors.As(rec.Err, &cpiErr) {
		e.Data["kind"] = string(cpiErr.Kind)
		if cpiErr.Type != "" {
			e.Data["type"] = cpiErr.Type
		}
	}

	return append(events, e)
}

// Subscribe adds a new event subscriber. A nil filter accepts everything.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			// drain what was accepted before shutdown
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent calls subscribers in registration order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after delivering buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel only allows events of minLevel or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}
	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType only allows events of the given types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByCPI only allows events for the named CPI.
func FilterByCPI(name string) EventFilter {
	return func(event Event) bool {
		return event.CPI == name
	}
}

// LogSubscriber writes events to logger at a level matching the event.
func LogSubscriber(logger *Logger) EventSubscriber {
	return func(event Event) {
		l := logger.WithFields(map[string]interface{}{
			"event":  event.Type,
			"cpi":    event.CPI,
			"method": event.Method,
		})
		if event.RequestID != "" {
			l = l.WithRequestID(event.RequestID)
		}
		switch event.Level {
		case EventLevelError:
			l.Error(event.Message)
		case EventLevelWarning:
			l.Warn(event.Message)
		default:
			l.Debug(event.Message)
		}
	}
}
