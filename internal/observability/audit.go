package observability

import (
	"context"

	"github.com/sirupsen/logrus"

	"placementd/internal/common"
)

// Event is one audit record emitted by an orchestrator operation.
type Event struct {
	Name    string
	ActorID *common.UUID
	Fields  map[string]string
}

// Recorder receives audit events. Recording is best effort; operations never
// fail because an event could not be written.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

type logRecorder struct {
	log *logrus.Logger
}

func NewRecorder(log *logrus.Logger) Recorder {
	return &logRecorder{log: log}
}

func (r *logRecorder) Record(ctx context.Context, event Event) {
	entry := r.log.WithContext(ctx)
	if event.ActorID != nil {
		entry = entry.WithField("actor_id", event.ActorID.String())
	}
	for key, value := range event.Fields {
		entry = entry.WithField(key, value)
	}
	entry.Info(event.Name)
}

// NopRecorder drops every event.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, event Event) {}
