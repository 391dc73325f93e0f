package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/smallnest/reelgraph/content"
)

// ProjectsFolder is the top-level folder all project folders live under.
const ProjectsFolder = "RocketReelsAI"

// LocalDrive stores project assets on the local filesystem:
//
//	<root>/RocketReelsAI/<project>/{generated_images,voiceover,scripts,final_draft,resources}
type LocalDrive struct {
	Root       string
	HTTPClient *http.Client
}

// NewLocalDrive creates a drive rooted at root.
func NewLocalDrive(root string) (*LocalDrive, error) {
	if root == "" {
		return nil, errors.New("asset root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, ProjectsFolder), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset root: %w", err)
	}
	return &LocalDrive{Root: root}, nil
}

// FolderPath returns the drive-relative path of a project folder.
func FolderPath(name string) string {
	return ProjectsFolder + "/" + name
}

func (d *LocalDrive) abs(rel string) string {
	return filepath.Join(d.Root, filepath.FromSlash(rel))
}

// projectFolder returns the folder handle of a project name.
func projectFolder(name string) (content.Folder, error) {
	name = content.SanitizeName(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return content.Folder{}, fmt.Errorf("invalid folder name %q", name)
	}
	return content.Folder{Name: name, Path: FolderPath(name)}, nil
}

// assetName returns the file name an asset is stored under.
func assetName(asset content.Asset) (string, error) {
	name := filepath.Base(asset.Name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", errors.New("asset has no name")
	}
	return name, nil
}

// subPath joins a folder path and an optional subfolder.
func subPath(folder content.Folder, subfolder string) string {
	if subfolder == "" {
		return folder.Path
	}
	return folder.Path + "/" + subfolder
}

// openAsset returns the bytes of an asset: its inline data, the body of
// its http(s) URI, or the local file its URI names.
func openAsset(ctx context.Context, client *http.Client, asset content.Asset) (io.ReadCloser, error) {
	switch {
	case asset.Data != nil:
		return io.NopCloser(bytes.NewReader(asset.Data)), nil
	case strings.HasPrefix(asset.URI, "http://") || strings.HasPrefix(asset.URI, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URI, nil)
		if err != nil {
			return nil, err
		}
		resp, err := defaultClient(client).Do(req)
		if err != nil {
			return nil, err
		}
		if err := checkStatus("asset download", resp); err != nil {
			resp.Body.Close()
			return nil, err
		}
		return resp.Body, nil
	case asset.URI != "":
		return os.Open(asset.URI)
	default:
		return nil, errors.New("asset has neither data nor uri")
	}
}

// CreateFolder creates the project folder and its subfolders. Creating an
// existing folder is not an error.
func (d *LocalDrive) CreateFolder(ctx context.Context, name string) (content.Folder, error) {
	if err := ctx.Err(); err != nil {
		return content.Folder{}, err
	}
	folder, err := projectFolder(name)
	if err != nil {
		return content.Folder{}, err
	}
	for _, sub := range content.Subfolders {
		if err := os.MkdirAll(filepath.Join(d.abs(folder.Path), sub), 0o755); err != nil {
			return content.Folder{}, fmt.Errorf("failed to create %s/%s: %w", folder.Path, sub, err)
		}
	}
	return folder, nil
}

// OpenFolder returns the handle of an existing project folder.
func (d *LocalDrive) OpenFolder(_ context.Context, name string) (content.Folder, error) {
	folder := content.Folder{Name: name, Path: FolderPath(name)}
	info, err := os.Stat(d.abs(folder.Path))
	if err != nil {
		return content.Folder{}, fmt.Errorf("project folder %s: %w", name, err)
	}
	if !info.IsDir() {
		return content.Folder{}, fmt.Errorf("project folder %s is not a directory", name)
	}
	return folder, nil
}

// Put writes an asset into folder/subfolder. Inline data is written as is;
// otherwise the asset URI is downloaded (http/https) or copied (local path).
// An empty subfolder targets the project folder itself.
func (d *LocalDrive) Put(ctx context.Context, folder content.Folder, subfolder string, asset content.Asset) (content.Asset, error) {
	name, err := assetName(asset)
	if err != nil {
		return content.Asset{}, err
	}
	relDir := subPath(folder, subfolder)
	dir := d.abs(relDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return content.Asset{}, fmt.Errorf("failed to create %s: %w", relDir, err)
	}

	src, err := openAsset(ctx, d.HTTPClient, asset)
	if err == nil {
		err = writeFrom(filepath.Join(dir, name), src)
		src.Close()
	}
	if err != nil {
		return content.Asset{}, fmt.Errorf("failed to store %s: %w", name, err)
	}

	stored := asset
	stored.Name = name
	stored.URI = relDir + "/" + name
	stored.Data = nil
	return stored, nil
}

func writeFrom(dst string, r io.Reader) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// List returns the files in folder/subfolder sorted by name.
func (d *LocalDrive) List(_ context.Context, folder content.Folder, subfolder string) ([]content.Asset, error) {
	relDir := subPath(folder, subfolder)
	entries, err := os.ReadDir(d.abs(relDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", relDir, err)
	}

	var assets []content.Asset
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		assets = append(assets, content.Asset{
			Kind: kindOf(e.Name()),
			Name: e.Name(),
			URI:  relDir + "/" + e.Name(),
		})
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Name < assets[j].Name })
	return assets, nil
}

// LocalPath returns the filesystem path of a drive-relative URI.
func (d *LocalDrive) LocalPath(uri string) string {
	return d.abs(uri)
}

var videoExts = map[string]bool{".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true, ".m4v": true}

func kindOf(name string) content.AssetKind {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case videoExts[ext]:
		return content.AssetVideo
	case ext == ".png" || ext == ".jpg" || ext == ".jpeg" || ext == ".webp":
		return content.AssetImage
	case ext == ".mp3" || ext == ".wav" || ext == ".m4a":
		return content.AssetVoice
	case ext == ".txt" || ext == ".md":
		return content.AssetScript
	case ext == ".json":
		return content.AssetMetadata
	default:
		return content.AssetKind(strings.TrimPrefix(ext, "."))
	}
}
