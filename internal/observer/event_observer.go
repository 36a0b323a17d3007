package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PipelineEvent represents one step of an image or batch run
type PipelineEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	RunID          string                 `json:"run_id,omitempty"`
	Image          string                 `json:"image,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of pipeline event
type EventType string

const (
	// ImageStarted when processing of one image begins
	ImageStarted EventType = "image_started"
	// ImageCompleted when one image produced its artifacts
	ImageCompleted EventType = "image_completed"
	// ImageFailed when one image failed; the batch continues
	ImageFailed EventType = "image_failed"
	// BatchStarted when a folder run begins
	BatchStarted EventType = "batch_started"
	// BatchCompleted when a folder run wrote its summary
	BatchCompleted EventType = "batch_completed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event PipelineEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event PipelineEvent)
}

// LoggingObserver logs pipeline events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles pipeline events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event PipelineEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"success":    event.Success,
	}
	if event.RunID != "" {
		fields["run_id"] = event.RunID
	}
	if event.Image != "" {
		fields["image"] = event.Image
	}
	if event.ProcessingTime > 0 {
		fields["processing_time_s"] = event.ProcessingTime.Seconds()
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case ImageStarted:
		entry.Debug("Image processing started")
	case ImageCompleted:
		entry.Info("Image processed")
	case ImageFailed:
		entry.Warn("Image failed")
	case BatchStarted:
		entry.Info("Batch started")
	case BatchCompleted:
		entry.Info("Batch completed")
	default:
		entry.Info("Pipeline event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// Metrics is a snapshot of MetricsObserver counters
type Metrics struct {
	ImagesStarted     int64   `json:"images_started"`
	ImagesCompleted   int64   `json:"images_completed"`
	ImagesFailed      int64   `json:"images_failed"`
	Batches           int64   `json:"batches"`
	TotalProcessingS  float64 `json:"total_processing_time_s"`
	AvgProcessingS    float64 `json:"avg_processing_time_s"`
	LastBatchDuration float64 `json:"last_batch_duration_s"`
}

// MetricsObserver collects counters from pipeline events
type MetricsObserver struct {
	mu                  sync.RWMutex
	started             int64
	completed           int64
	failed              int64
	batches             int64
	totalProcessingTime time.Duration
	lastBatch           time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles pipeline events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event PipelineEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case ImageStarted:
		o.started++
	case ImageCompleted:
		o.completed++
		o.totalProcessingTime += event.ProcessingTime
	case ImageFailed:
		o.failed++
	case BatchCompleted:
		o.batches++
		o.lastBatch = event.ProcessingTime
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avg := time.Duration(0)
	if o.completed > 0 {
		avg = o.totalProcessingTime / time.Duration(o.completed)
	}
	return Metrics{
		ImagesStarted:     o.started,
		ImagesCompleted:   o.completed,
		ImagesFailed:      o.failed,
		Batches:           o.batches,
		TotalProcessingS:  o.totalProcessingTime.Seconds(),
		AvgProcessingS:    avg.Seconds(),
		LastBatchDuration: o.lastBatch.Seconds(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers event to every observer before returning, so log lines
// and counters are complete when a run finishes.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event PipelineEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		notify(ctx, observer, event)
	}
}

func notify(ctx context.Context, obs Observer, event PipelineEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
