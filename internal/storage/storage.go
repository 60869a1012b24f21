package storage

import (
	"context"

	"ammengine/internal/model"
)

// EventSink is a durable destination for pool events.
type EventSink interface {
	PutEventBatch(ctx context.Context, events []model.PoolEvent) error
}

// EventReader reads back events a sink has accepted, in write order. An empty
// poolID reads every pool.
type EventReader interface {
	ReadPoolEvents(ctx context.Context, poolID string) ([]model.PoolEvent, error)
}

// SnapshotStore persists full engine snapshots.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context) (model.Snapshot, bool, error)
	SaveSnapshot(ctx context.Context, snap model.Snapshot) error
}
