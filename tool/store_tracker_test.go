package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/reelgraph/content"
	"github.com/smallnest/reelgraph/store"
	"github.com/smallnest/reelgraph/store/memory"
)

func TestStoreTracker(t *testing.T) {
	ctx := context.Background()
	tr := NewStoreTracker(memory.New())

	id, err := tr.CreateProject(ctx, content.Project{Name: "one", FolderPath: "RocketReelsAI/one"})
	require.NoError(t, err)
	assert.Equal(t, "P1", id)

	again, err := tr.CreateProject(ctx, content.Project{Name: "one", FolderPath: "RocketReelsAI/one", Images: 3})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = tr.CreateProject(ctx, content.Project{Name: "two", FolderPath: "RocketReelsAI/two"})
	require.NoError(t, err)

	ready, err := tr.FindProjects(ctx, content.StatusAssetsReady)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, "P1", ready[0].ID)
	assert.Equal(t, 3, ready[0].Images)

	require.NoError(t, tr.UpdateStatus(ctx, id, content.StatusVideoReady, "RocketReelsAI/one/final_draft/v.mp4"))

	ready, err = tr.FindProjects(ctx, content.StatusAssetsReady)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "two", ready[0].Name)

	done, err := tr.FindProjects(ctx, content.StatusVideoReady)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "RocketReelsAI/one/final_draft/v.mp4", done[0].VideoFile)

	all, err := tr.FindProjects(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	err = tr.UpdateStatus(ctx, "P9", content.StatusVideoReady, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
