package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/smallnest/reelgraph/graph"
)

// CheckpointPayload is the stored form of a graph checkpoint.
type CheckpointPayload[S any] struct {
	RunID    string `json:"run_id"`
	NodeName string `json:"node_name"`
	Sequence int    `json:"sequence"`
	State    S      `json:"state"`
}

// Checkpointer writes graph checkpoints to a Datastore.
type Checkpointer[S any] struct {
	ds Datastore
}

// NewCheckpointer creates a checkpointer backed by ds.
func NewCheckpointer[S any](ds Datastore) *Checkpointer[S] {
	return &Checkpointer[S]{ds: ds}
}

// CheckpointKey returns the natural key of a checkpoint.
func CheckpointKey(runID string, seq int) string {
	return fmt.Sprintf("%s/%04d", runID, seq)
}

// Save implements graph.Checkpointer.
func (c *Checkpointer[S]) Save(ctx context.Context, cp graph.Checkpoint[S]) error {
	_, err := c.ds.Upsert(ctx, KindCheckpoint, CheckpointKey(cp.RunID, cp.Sequence), CheckpointPayload[S]{
		RunID:    cp.RunID,
		NodeName: cp.NodeName,
		Sequence: cp.Sequence,
		State:    cp.State,
	})
	return err
}

// Load returns the stored checkpoints of a run in sequence order.
func (c *Checkpointer[S]) Load(ctx context.Context, runID string) ([]CheckpointPayload[S], error) {
	records, err := c.ds.List(ctx, KindCheckpoint)
	if err != nil {
		return nil, err
	}
	var out []CheckpointPayload[S]
	for _, r := range records {
		var p CheckpointPayload[S]
		if err := r.Decode(&p); err != nil {
			return nil, err
		}
		if p.RunID == runID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

var _ graph.Checkpointer[struct{}] = (*Checkpointer[struct{}])(nil)
