package tool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/smallnest/reelgraph/content"
)

const driveFolderMimeType = "application/vnd.google-apps.folder"

// GoogleDrive stores project assets in Google Drive with the same layout
// as LocalDrive, below ParentID ("root" is My Drive):
//
//	RocketReelsAI/<project>/{generated_images,voiceover,scripts,final_draft,resources}
//
// Asset URIs are drive-relative paths.
type GoogleDrive struct {
	Service    *drive.Service
	ParentID   string
	HTTPClient *http.Client

	// mu serializes folder resolution so concurrent callers never create
	// the same folder twice.
	mu      sync.Mutex
	folders map[string]string
}

// GoogleDriveCredentials authenticates with a service account or
// authorized user JSON file.
func GoogleDriveCredentials(file string) option.ClientOption {
	return option.WithCredentialsFile(file)
}

// NewGoogleDrive creates a drive whose RocketReelsAI folder lives in
// parentID. Without options the client uses Application Default Credentials.
func NewGoogleDrive(ctx context.Context, parentID string, opts ...option.ClientOption) (*GoogleDrive, error) {
	opts = append([]option.ClientOption{option.WithScopes(drive.DriveScope)}, opts...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	if parentID == "" {
		parentID = "root"
	}
	return &GoogleDrive{Service: svc, ParentID: parentID, folders: make(map[string]string)}, nil
}

func driveError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &StatusError{Service: "gdrive", Code: apiErr.Code, Body: apiErr.Message}
	}
	return err
}

// driveQuote quotes s as a string literal of the Drive query language.
func driveQuote(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}

// child returns the item called name directly in parentID, or nil.
func (d *GoogleDrive) child(ctx context.Context, parentID, name string, folder bool) (*drive.File, error) {
	op := "!="
	if folder {
		op = "="
	}
	q := fmt.Sprintf("name = %s and %s in parents and trashed = false and mimeType %s '%s'",
		driveQuote(name), driveQuote(parentID), op, driveFolderMimeType)
	list, err := d.Service.Files.List().Q(q).Fields("files(id, name, mimeType)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return nil, driveError(err)
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	return list.Files[0], nil
}

// folderID resolves a drive-relative folder path. Missing folders are
// created when create is set; otherwise a missing folder yields "".
func (d *GoogleDrive) folderID(ctx context.Context, rel string, create bool) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.folders[rel]; ok {
		return id, nil
	}

	parent, walked := d.ParentID, ""
	for _, name := range strings.Split(rel, "/") {
		walked = path.Join(walked, name)
		if id, ok := d.folders[walked]; ok {
			parent = id
			continue
		}
		f, err := d.child(ctx, parent, name, true)
		if err != nil {
			return "", fmt.Errorf("failed to look up %s: %w", walked, err)
		}
		if f == nil {
			if !create {
				return "", nil
			}
			f, err = d.Service.Files.Create(&drive.File{
				Name:     name,
				MimeType: driveFolderMimeType,
				Parents:  []string{parent},
			}).Fields("id").Context(ctx).Do()
			if err != nil {
				return "", fmt.Errorf("failed to create %s: %w", walked, driveError(err))
			}
		}
		d.folders[walked] = f.Id
		parent = f.Id
	}
	return parent, nil
}

// CreateFolder creates the project folder and its subfolders. Existing
// folders are reused.
func (d *GoogleDrive) CreateFolder(ctx context.Context, name string) (content.Folder, error) {
	folder, err := projectFolder(name)
	if err != nil {
		return content.Folder{}, err
	}
	for _, sub := range content.Subfolders {
		if _, err := d.folderID(ctx, subPath(folder, sub), true); err != nil {
			return content.Folder{}, err
		}
	}
	return folder, nil
}

// OpenFolder returns the handle of an existing project folder.
func (d *GoogleDrive) OpenFolder(ctx context.Context, name string) (content.Folder, error) {
	folder := content.Folder{Name: name, Path: FolderPath(name)}
	id, err := d.folderID(ctx, folder.Path, false)
	if err != nil {
		return content.Folder{}, err
	}
	if id == "" {
		return content.Folder{}, fmt.Errorf("project folder %s: %w", name, fs.ErrNotExist)
	}
	return folder, nil
}

// Put uploads an asset into folder/subfolder, replacing the content of a
// file with the same name.
func (d *GoogleDrive) Put(ctx context.Context, folder content.Folder, subfolder string, asset content.Asset) (content.Asset, error) {
	name, err := assetName(asset)
	if err != nil {
		return content.Asset{}, err
	}
	relDir := subPath(folder, subfolder)
	dirID, err := d.folderID(ctx, relDir, true)
	if err != nil {
		return content.Asset{}, err
	}
	mimeType := asset.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	src, err := openAsset(ctx, d.HTTPClient, asset)
	if err != nil {
		return content.Asset{}, fmt.Errorf("failed to store %s: %w", name, err)
	}
	defer src.Close()

	existing, err := d.child(ctx, dirID, name, false)
	if err != nil {
		return content.Asset{}, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	if existing != nil {
		_, err = d.Service.Files.Update(existing.Id, &drive.File{}).
			Media(src, googleapi.ContentType(mimeType)).Fields("id").Context(ctx).Do()
	} else {
		_, err = d.Service.Files.Create(&drive.File{
			Name:     name,
			MimeType: mimeType,
			Parents:  []string{dirID},
		}).Media(src, googleapi.ContentType(mimeType)).Fields("id").Context(ctx).Do()
	}
	if err != nil {
		return content.Asset{}, fmt.Errorf("failed to upload %s: %w", name, driveError(err))
	}

	stored := asset
	stored.Name = name
	stored.URI = relDir + "/" + name
	stored.Data = nil
	return stored, nil
}

// List returns the files in folder/subfolder sorted by name.
func (d *GoogleDrive) List(ctx context.Context, folder content.Folder, subfolder string) ([]content.Asset, error) {
	relDir := subPath(folder, subfolder)
	dirID, err := d.folderID(ctx, relDir, false)
	if err != nil || dirID == "" {
		return nil, err
	}

	q := fmt.Sprintf("%s in parents and trashed = false and mimeType != '%s'", driveQuote(dirID), driveFolderMimeType)
	var assets []content.Asset
	err = d.Service.Files.List().Q(q).Fields("nextPageToken, files(id, name, mimeType)").PageSize(100).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				if strings.HasPrefix(f.Name, ".") {
					continue
				}
				assets = append(assets, content.Asset{
					Kind:     kindOf(f.Name),
					Name:     f.Name,
					URI:      relDir + "/" + f.Name,
					MimeType: f.MimeType,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", relDir, driveError(err))
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Name < assets[j].Name })
	return assets, nil
}
