package workflow

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/reelgraph/content"
)

func TestUsableCandidate(t *testing.T) {
	tests := []struct {
		url   string
		title string
		want  bool
	}{
		{"https://example.com/news/qubits", "Qubits", true},
		{"https://example.com/category/science", "Science", false},
		{"https://example.com/author/jane", "Jane", false},
		{"https://example.com/topics/quantum", "Quantum", false},
		{"https://example.com/news/weekly", "Weekly Newsletter", false},
		{"https://example.com/news/ai", "AI digest #42", false},
		{"ftp://example.com/file", "File", false},
		{"not a url", "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, usableCandidate(content.SearchResult{URL: tt.url, Title: tt.title}))
		})
	}
}

func TestSearch_CapsCandidates(t *testing.T) {
	f := newFakes()
	f.search.results = nil
	for _, p := range []string{"a", "b", "c", "d"} {
		f.search.results = append(f.search.results, content.SearchResult{URL: "https://example.com/" + p, Title: p})
	}
	opts := testOptions()
	opts.MaxCandidates = 3
	n := &nodes{c: f.collaborators(), opts: opts}

	up, err := n.search(context.Background(), NewState("q", testNow))
	require.NoError(t, err)
	require.NotNil(t, up.Candidates)
	assert.Len(t, *up.Candidates, 3)
	assert.Equal(t, []int{6}, f.search.limits)
}

func TestOrganizeAssets_PutFailuresAreRecorded(t *testing.T) {
	f := newFakes()
	f.assets.failSub = content.FolderVoiceover
	n := &nodes{c: f.collaborators(), opts: testOptions()}

	s := NewState("quantum computing news", testNow)
	s.Script = content.Script{Title: "Quantum", Text: quantumScript}
	s.Images = []content.Asset{{Kind: content.AssetImage, Name: "image_01.png", Data: []byte("png")}}
	s.VoiceFiles = []content.Asset{{Kind: content.AssetVoice, Name: "voiceover.mp3", Data: []byte("mp3")}}

	up, err := n.organizeAssets(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, up.Errors, 1)
	assert.Equal(t, NodeOrganizeAssets, up.Errors[0].Node)
	assert.Contains(t, up.Errors[0].Detail, "voiceover/voiceover.mp3")
	assert.Equal(t, "projects/Quantum_20260314_0930", *up.FolderPath)

	require.True(t, f.assets.has(*up.FolderPath+"/"+MetadataFile))
	var meta content.Project
	require.NoError(t, json.Unmarshal(f.assets.files[*up.FolderPath+"/"+MetadataFile], &meta))
	assert.Equal(t, 1, meta.Images)
	assert.Equal(t, 0, meta.VoiceFiles)
	assert.Equal(t, content.StatusAssetsReady, meta.Status)
}

func TestTrackProject_WithoutFolder(t *testing.T) {
	f := newFakes()
	n := &nodes{c: f.collaborators(), opts: testOptions()}

	up, err := n.trackProject(context.Background(), NewState("q", testNow))
	require.NoError(t, err)
	assert.Nil(t, up.ProjectID)
	assert.Empty(t, f.tracker.projects)
}

func TestFinalize_ZeroStart(t *testing.T) {
	n := &nodes{opts: testOptions()}
	up, err := n.finalize(context.Background(), State{Topic: "q"})
	require.NoError(t, err)
	assert.Contains(t, *up.Summary, "| Elapsed | 0s |")
}
