package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/smallnest/reelgraph/content"
)

type fakeDriveFile struct {
	ID       string
	Name     string
	MimeType string
	Parent   string
	Data     []byte
}

// fakeDrive answers the files.list, files.create and files.update calls the
// adapter makes, including multipart uploads.
type fakeDrive struct {
	mu         sync.Mutex
	files      []*fakeDriveFile
	creates    int
	updates    int
	listStatus int
}

var (
	driveNameClause   = regexp.MustCompile(`name = '((?:[^'\\]|\\.)*)'`)
	driveParentClause = regexp.MustCompile(`'((?:[^'\\]|\\.)*)' in parents`)
	driveUnquote      = strings.NewReplacer(`\'`, `'`, `\\`, `\`)
)

func (f *fakeDrive) find(parent, name string) *fakeDriveFile {
	for _, file := range f.files {
		if file.Parent == parent && file.Name == name {
			return file
		}
	}
	return nil
}

func (f *fakeDrive) byPath(p string) *fakeDriveFile {
	parent := "root"
	var file *fakeDriveFile
	for _, name := range strings.Split(p, "/") {
		if file = f.find(parent, name); file == nil {
			return nil
		}
		parent = file.ID
	}
	return file
}

func (f *fakeDrive) add(meta drive.File, data []byte) *fakeDriveFile {
	f.creates++
	file := &fakeDriveFile{ID: fmt.Sprintf("id-%d", f.creates), Name: meta.Name, MimeType: meta.MimeType, Data: data}
	if len(meta.Parents) > 0 {
		file.Parent = meta.Parents[0]
	}
	f.files = append(f.files, file)
	return file
}

func readUpload(r *http.Request) (drive.File, []byte, error) {
	var meta drive.File
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return meta, nil, err
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		return meta, nil, err
	}
	if err := json.NewDecoder(part).Decode(&meta); err != nil {
		return meta, nil, err
	}
	part, err = mr.NextPart()
	if err != nil {
		return meta, nil, err
	}
	data, err := io.ReadAll(part)
	return meta, data, err
}

func writeDriveFile(w http.ResponseWriter, file *fakeDriveFile) {
	json.NewEncoder(w).Encode(map[string]any{"id": file.ID, "name": file.Name, "mimeType": file.MimeType})
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	upload := strings.Contains(r.URL.Path, "/upload/")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/files"):
		if f.listStatus != 0 {
			w.WriteHeader(f.listStatus)
			fmt.Fprintf(w, `{"error":{"code":%d,"message":"insufficient permissions"}}`, f.listStatus)
			return
		}
		q := r.URL.Query().Get("q")
		var name, parent string
		if m := driveNameClause.FindStringSubmatch(q); m != nil {
			name = driveUnquote.Replace(m[1])
		}
		if m := driveParentClause.FindStringSubmatch(q); m != nil {
			parent = driveUnquote.Replace(m[1])
		}
		files := []any{}
		for _, file := range f.files {
			isFolder := file.MimeType == driveFolderMimeType
			switch {
			case file.Parent != parent,
				name != "" && file.Name != name,
				strings.Contains(q, "mimeType = ") && !isFolder,
				strings.Contains(q, "mimeType != ") && isFolder:
				continue
			}
			files = append(files, map[string]any{"id": file.ID, "name": file.Name, "mimeType": file.MimeType})
		}
		json.NewEncoder(w).Encode(map[string]any{"files": files})

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/files") && !upload:
		var meta drive.File
		if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeDriveFile(w, f.add(meta, nil))

	case r.Method == http.MethodPost && upload:
		meta, data, err := readUpload(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeDriveFile(w, f.add(meta, data))

	case r.Method == http.MethodPatch && upload:
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		_, data, err := readUpload(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, file := range f.files {
			if file.ID == id {
				f.updates++
				file.Data = data
				writeDriveFile(w, file)
				return
			}
		}
		http.NotFound(w, r)

	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.String(), http.StatusBadRequest)
	}
}

func newGoogleDrive(t *testing.T, fake *fakeDrive) *GoogleDrive {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	d, err := NewGoogleDrive(context.Background(), "",
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return d
}

func TestGoogleDrive_CreateFolder(t *testing.T) {
	fake := &fakeDrive{}
	d := newGoogleDrive(t, fake)
	ctx := context.Background()

	folder, err := d.CreateFolder(ctx, "Quantum: Leap?")
	require.NoError(t, err)
	assert.Equal(t, content.Folder{Name: "Quantum__Leap_", Path: "RocketReelsAI/Quantum__Leap_"}, folder)
	for _, sub := range content.Subfolders {
		f := fake.byPath("RocketReelsAI/Quantum__Leap_/" + sub)
		require.NotNil(t, f, sub)
		assert.Equal(t, driveFolderMimeType, f.MimeType)
	}
	created := fake.creates
	assert.Equal(t, 2+len(content.Subfolders), created)

	// A fresh client finds the folders instead of creating twins.
	again, err := newGoogleDriveOn(t, d).CreateFolder(ctx, "Quantum: Leap?")
	require.NoError(t, err)
	assert.Equal(t, folder, again)
	assert.Equal(t, created, fake.creates)

	opened, err := d.OpenFolder(ctx, folder.Name)
	require.NoError(t, err)
	assert.Equal(t, folder, opened)
	_, err = d.OpenFolder(ctx, "missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = d.CreateFolder(ctx, " ")
	assert.Error(t, err)
}

// newGoogleDriveOn returns a drive sharing d's service but none of its
// cached folder IDs.
func newGoogleDriveOn(t *testing.T, d *GoogleDrive) *GoogleDrive {
	t.Helper()
	return &GoogleDrive{Service: d.Service, ParentID: d.ParentID, folders: make(map[string]string)}
}

func TestGoogleDrive_Put(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("remote-bytes"))
	}))
	defer remote.Close()

	fake := &fakeDrive{}
	d := newGoogleDrive(t, fake)
	ctx := context.Background()
	folder, err := d.CreateFolder(ctx, "proj")
	require.NoError(t, err)

	stored, err := d.Put(ctx, folder, content.FolderVoiceover, content.Asset{
		Kind: content.AssetVoice, Name: "voiceover.mp3", MimeType: "audio/mpeg", Data: []byte("mp3-v1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "RocketReelsAI/proj/voiceover/voiceover.mp3", stored.URI)
	assert.Nil(t, stored.Data)
	f := fake.byPath(stored.URI)
	require.NotNil(t, f)
	assert.Equal(t, "mp3-v1", string(f.Data))
	assert.Equal(t, "audio/mpeg", f.MimeType)

	creates := fake.creates
	_, err = d.Put(ctx, folder, content.FolderVoiceover, content.Asset{Name: "voiceover.mp3", MimeType: "audio/mpeg", Data: []byte("mp3-v2")})
	require.NoError(t, err)
	assert.Equal(t, creates, fake.creates)
	assert.Equal(t, 1, fake.updates)
	assert.Equal(t, "mp3-v2", string(fake.byPath(stored.URI).Data))

	stored, err = d.Put(ctx, folder, content.FolderImages, content.Asset{Name: "it's.png", URI: remote.URL + "/image.png"})
	require.NoError(t, err)
	assert.Equal(t, "remote-bytes", string(fake.byPath(stored.URI).Data))

	src := filepath.Join(t.TempDir(), "script.txt")
	require.NoError(t, os.WriteFile(src, []byte("narration"), 0o644))
	stored, err = d.Put(ctx, folder, "", content.Asset{Name: "script.txt", URI: src})
	require.NoError(t, err)
	assert.Equal(t, "RocketReelsAI/proj/script.txt", stored.URI)
	assert.Equal(t, "narration", string(fake.byPath(stored.URI).Data))

	_, err = d.Put(ctx, folder, content.FolderImages, content.Asset{Name: "x.png", URI: remote.URL + "/missing.png"})
	assert.Error(t, err)
	_, err = d.Put(ctx, folder, content.FolderImages, content.Asset{Name: "empty.png"})
	assert.Error(t, err)
}

func TestGoogleDrive_List(t *testing.T) {
	fake := &fakeDrive{}
	d := newGoogleDrive(t, fake)
	ctx := context.Background()
	folder, err := d.CreateFolder(ctx, "proj")
	require.NoError(t, err)

	for _, name := range []string{"notes.txt", ".DS_Store", "final.mp4"} {
		_, err := d.Put(ctx, folder, content.FolderFinalDraft, content.Asset{Name: name, Data: []byte("x")})
		require.NoError(t, err)
	}

	assets, err := d.List(ctx, folder, content.FolderFinalDraft)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "final.mp4", assets[0].Name)
	assert.Equal(t, content.AssetVideo, assets[0].Kind)
	assert.Equal(t, "RocketReelsAI/proj/final_draft/final.mp4", assets[0].URI)
	assert.Equal(t, "notes.txt", assets[1].Name)

	root, err := d.List(ctx, folder, "")
	require.NoError(t, err)
	assert.Empty(t, root)

	missing, err := d.List(ctx, content.Folder{Name: "gone", Path: FolderPath("gone")}, content.FolderFinalDraft)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGoogleDrive_APIError(t *testing.T) {
	fake := &fakeDrive{listStatus: http.StatusForbidden}
	d := newGoogleDrive(t, fake)

	_, err := d.OpenFolder(context.Background(), "proj")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "gdrive", se.Service)
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.False(t, IsTemporary(err))
}

func TestDriveQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, driveQuote("plain"))
	assert.Equal(t, `'it\'s'`, driveQuote("it's"))
	assert.Equal(t, `'a\\b'`, driveQuote(`a\b`))
}
