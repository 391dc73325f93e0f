// Package monitor watches the final_draft folder of produced projects and
// moves their tracking records to "Video Ready" once an edited video shows up.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/smallnest/reelgraph/content"
	"github.com/smallnest/reelgraph/log"
	"github.com/smallnest/reelgraph/workflow"
)

// DefaultVideoName is recorded when a status update names no video.
const DefaultVideoName = "final_video.mp4"

// ErrProjectNotFound is returned when no tracking record points at a folder.
var ErrProjectNotFound = errors.New("project not found")

// Drive is the asset storage the monitor inspects.
type Drive interface {
	OpenFolder(ctx context.Context, name string) (content.Folder, error)
	List(ctx context.Context, folder content.Folder, subfolder string) ([]content.Asset, error)
}

// Monitor checks project folders against their tracking records.
type Monitor struct {
	Tracker workflow.Tracker
	Drive   Drive
	Logger  log.Logger
}

// New creates a monitor.
func New(tracker workflow.Tracker, drive Drive, logger log.Logger) *Monitor {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Monitor{Tracker: tracker, Drive: drive, Logger: logger}
}

// Report is the outcome of checking one project.
type Report struct {
	Project content.Project
	Folder  content.Folder
	Videos  []content.Asset
	Updated bool
	Err     error
}

// FolderName accepts a project folder name or a drive path such as
// "RocketReelsAI/AI_Breakthrough_20241228_1430".
func FolderName(project string) string {
	return path.Base(strings.TrimRight(strings.TrimSpace(project), "/"))
}

// CheckAll checks every project that is waiting for its video.
func (m *Monitor) CheckAll(ctx context.Context) ([]Report, error) {
	projects, err := m.Tracker.FindProjects(ctx, content.StatusAssetsReady)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	reports := make([]Report, 0, len(projects))
	for _, p := range projects {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		r := Report{Project: p}
		folder, err := m.Drive.OpenFolder(ctx, FolderName(p.FolderPath))
		if err != nil {
			r.Err = err
			m.Logger.Warn("project %s: %v", p.Name, err)
			reports = append(reports, r)
			continue
		}
		r.Folder = folder
		m.check(ctx, &r)
		reports = append(reports, r)
	}
	return reports, nil
}

// Check checks one project and updates its record when a video is found.
func (m *Monitor) Check(ctx context.Context, project string) (Report, error) {
	folder, p, err := m.resolve(ctx, project)
	if err != nil {
		return Report{}, err
	}
	r := Report{Project: p, Folder: folder}
	m.check(ctx, &r)
	return r, r.Err
}

func (m *Monitor) check(ctx context.Context, r *Report) {
	videos, err := m.videos(ctx, r.Folder)
	if err != nil {
		r.Err = err
		return
	}
	r.Videos = videos
	if len(videos) == 0 || r.Project.Status == content.StatusVideoReady {
		return
	}
	video := videos[0].URI
	if err := m.Tracker.UpdateStatus(ctx, r.Project.ID, content.StatusVideoReady, video); err != nil {
		r.Err = fmt.Errorf("failed to update %s: %w", r.Project.Name, err)
		return
	}
	m.Logger.Info("project %s: video %s found, marked %s", r.Project.Name, videos[0].Name, content.StatusVideoReady)
	r.Project.Status = content.StatusVideoReady
	r.Project.VideoFile = video
	r.Updated = true
}

func (m *Monitor) videos(ctx context.Context, folder content.Folder) ([]content.Asset, error) {
	files, err := m.Drive.List(ctx, folder, content.FolderFinalDraft)
	if err != nil {
		return nil, err
	}
	var videos []content.Asset
	for _, f := range files {
		if f.Kind == content.AssetVideo {
			videos = append(videos, f)
		}
	}
	return videos, nil
}

// Update marks a project "Video Ready" without looking for the video.
// An empty video records DefaultVideoName.
func (m *Monitor) Update(ctx context.Context, project, video string) (content.Project, error) {
	folder, p, err := m.resolve(ctx, project)
	if err != nil {
		return content.Project{}, err
	}
	if video == "" {
		video = DefaultVideoName
	}
	uri := folder.Path + "/" + content.FolderFinalDraft + "/" + path.Base(video)
	if err := m.Tracker.UpdateStatus(ctx, p.ID, content.StatusVideoReady, uri); err != nil {
		return content.Project{}, fmt.Errorf("failed to update %s: %w", p.Name, err)
	}
	p.Status = content.StatusVideoReady
	p.VideoFile = uri
	return p, nil
}

// FolderSummary lists the files of one project subfolder.
type FolderSummary struct {
	Name  string
	Files []content.Asset
}

// Summary lists the contents of every subfolder of a project.
func (m *Monitor) Summary(ctx context.Context, project string) (content.Folder, []FolderSummary, error) {
	folder, err := m.Drive.OpenFolder(ctx, FolderName(project))
	if err != nil {
		return content.Folder{}, nil, err
	}
	summaries := make([]FolderSummary, 0, len(content.Subfolders)+1)
	root, err := m.Drive.List(ctx, folder, "")
	if err != nil {
		return folder, nil, err
	}
	summaries = append(summaries, FolderSummary{Name: ".", Files: root})
	for _, sub := range content.Subfolders {
		files, err := m.Drive.List(ctx, folder, sub)
		if err != nil {
			return folder, nil, err
		}
		summaries = append(summaries, FolderSummary{Name: sub, Files: files})
	}
	return folder, summaries, nil
}

func (m *Monitor) resolve(ctx context.Context, project string) (content.Folder, content.Project, error) {
	name := FolderName(project)
	folder, err := m.Drive.OpenFolder(ctx, name)
	if err != nil {
		return content.Folder{}, content.Project{}, err
	}
	projects, err := m.Tracker.FindProjects(ctx, "")
	if err != nil {
		return folder, content.Project{}, fmt.Errorf("failed to list projects: %w", err)
	}
	for _, p := range projects {
		if p.FolderPath == folder.Path || p.Name == name || FolderName(p.FolderPath) == name {
			return folder, p, nil
		}
	}
	return folder, content.Project{}, fmt.Errorf("%w: %s", ErrProjectNotFound, folder.Path)
}
