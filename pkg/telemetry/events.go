package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the portcheck system.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// UnitID is the associated translation unit, if applicable.
	UnitID string `json:"unit_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeRunStarted       = "run.started"
	EventTypeRunCompleted     = "run.completed"
	EventTypeRunFailed        = "run.failed"
	EventTypeUnitStarted      = "unit.started"
	EventTypeUnitConverted    = "unit.converted"
	EventTypeUnitFailed       = "unit.failed"
	EventTypeUnitSkipped      = "unit.skipped"
	EventTypeUnitRetried      = "unit.retried"
	EventTypeCycleDetected    = "graph.cycle_detected"
	EventTypeEdgeSevered      = "graph.edge_severed"
	EventTypeVerdictMismatch  = "validate.mismatch"
	EventTypeGeneratorInvoked = "generator.invoked"
	EventTypeError            = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
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
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
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
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID string, unitCount int) error {
	return ep.Publish(Event{
		Type:    EventTypeRunStarted,
		Source:  "orchestrator",
		RunID:   runID,
		Message: fmt.Sprintf("Run %s started with %d units", runID, unitCount),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"unit_count": unitCount,
		},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		Source:  "orchestrator",
		RunID:   runID,
		Message: fmt.Sprintf("Run %s completed with status: %s", runID, status),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishUnitStarted publishes a unit conversion started event.
func (ep *EventPublisher) PublishUnitStarted(runID, unitID string, attempt int) error {
	return ep.Publish(Event{
		Type:    EventTypeUnitStarted,
		Source:  "orchestrator",
		RunID:   runID,
		UnitID:  unitID,
		Message: fmt.Sprintf("Unit %s conversion started (attempt %d)", unitID, attempt),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"attempt": attempt,
		},
	})
}

// PublishUnitConverted publishes a unit converted event.
func (ep *EventPublisher) PublishUnitConverted(runID, unitID string, attempts int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeUnitConverted,
		Source:  "orchestrator",
		RunID:   runID,
		UnitID:  unitID,
		Message: fmt.Sprintf("Unit %s converted after %d attempt(s)", unitID, attempts),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"attempts": attempts,
			"duration": duration.Seconds(),
		},
	})
}

// PublishUnitFailed publishes a unit failed event.
func (ep *EventPublisher) PublishUnitFailed(runID, unitID, reason string, attempts int) error {
	return ep.Publish(Event{
		Type:    EventTypeUnitFailed,
		Source:  "orchestrator",
		RunID:   runID,
		UnitID:  unitID,
		Message: fmt.Sprintf("Unit %s failed after %d attempt(s): %s", unitID, attempts, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason":   reason,
			"attempts": attempts,
		},
	})
}

// PublishUnitSkipped publishes a unit skipped event.
func (ep *EventPublisher) PublishUnitSkipped(runID, unitID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeUnitSkipped,
		Source:  "orchestrator",
		RunID:   runID,
		UnitID:  unitID,
		Message: fmt.Sprintf("Unit %s skipped: %s", unitID, reason),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishCycleDetected publishes a dependency cycle event.
func (ep *EventPublisher) PublishCycleDetected(runID string, cycle []string) error {
	return ep.Publish(Event{
		Type:    EventTypeCycleDetected,
		Source:  "graph",
		RunID:   runID,
		Message: fmt.Sprintf("Dependency cycle detected: %v", cycle),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"cycle": cycle,
		},
	})
}

// PublishVerdictMismatch publishes a differential mismatch event.
func (ep *EventPublisher) PublishVerdictMismatch(runID, unitID string, failed, total int) error {
	return ep.Publish(Event{
		Type:    EventTypeVerdictMismatch,
		Source:  "validator",
		RunID:   runID,
		UnitID:  unitID,
		Message: fmt.Sprintf("Unit %s rejected: %d of %d cases mismatched", unitID, failed, total),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"failed": failed,
			"total":  total,
		},
	})
}

// Subscribe adds a new event subscriber.
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

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
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

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled || ep.cancel == nil {
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

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
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

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByUnitID creates a filter that only allows events for a specific unit.
func FilterByUnitID(unitID string) EventFilter {
	return func(event Event) bool {
		return event.UnitID == unitID
	}
}
