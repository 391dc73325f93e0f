package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/smallnest/reelgraph/content"
	"github.com/smallnest/reelgraph/store"
)

// StoreTracker keeps project records in the datastore instead of an external
// project-management tool. Projects are keyed by folder path.
type StoreTracker struct {
	Store store.Datastore
}

// NewStoreTracker creates a tracker backed by ds.
func NewStoreTracker(ds store.Datastore) *StoreTracker {
	return &StoreTracker{Store: ds}
}

func projectKey(p content.Project) string {
	if p.FolderPath != "" {
		return p.FolderPath
	}
	return p.Name
}

// CreateProject implements the workflow tracker.
func (t *StoreTracker) CreateProject(ctx context.Context, p content.Project) (string, error) {
	if p.Status == "" {
		p.Status = content.StatusAssetsReady
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.ID = ""
	id, err := t.Store.Upsert(ctx, store.KindProject, projectKey(p), p)
	if err != nil {
		return "", fmt.Errorf("failed to record project: %w", err)
	}
	return id, nil
}

// FindProjects implements the workflow tracker.
func (t *StoreTracker) FindProjects(ctx context.Context, status string) ([]content.Project, error) {
	records, err := t.Store.List(ctx, store.KindProject)
	if err != nil {
		return nil, err
	}
	var out []content.Project
	for _, r := range records {
		var p content.Project
		if err := r.Decode(&p); err != nil {
			return nil, err
		}
		if status != "" && p.Status != status {
			continue
		}
		p.ID = r.ID
		out = append(out, p)
	}
	return out, nil
}

// UpdateStatus implements the workflow tracker.
func (t *StoreTracker) UpdateStatus(ctx context.Context, projectID, status, videoURI string) error {
	rec, err := t.Store.Get(ctx, store.KindProject, projectID)
	if err != nil {
		return err
	}
	var p content.Project
	if err := rec.Decode(&p); err != nil {
		return err
	}
	p.Status = status
	if videoURI != "" {
		p.VideoFile = videoURI
	}
	if _, err := t.Store.Upsert(ctx, store.KindProject, rec.Key, p); err != nil {
		return fmt.Errorf("failed to update project %s: %w", projectID, err)
	}
	return nil
}
