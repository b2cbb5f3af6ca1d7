package target

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/pilotdata/pilotcli/internal/platform"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePlatform keeps items keyed by status and object path.
type fakePlatform struct {
	mu       sync.Mutex
	items    map[string]*platform.Item
	searches []string
	batches  [][]platform.NewFolder
	batchPID []string
	moved    []platform.MoveItem
	trashed  []string
	purged   []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{items: map[string]*platform.Item{}}
}

func key(status, objectPath string) string {
	return status + ":" + objectPath
}

func (f *fakePlatform) addFolder(id, objectPath string) *platform.Item {
	return f.add(id, objectPath, platform.TypeFolder, platform.StatusActive)
}

func (f *fakePlatform) add(id, objectPath, typ, status string) *platform.Item {
	f.mu.Lock()
	defer f.mu.Unlock()

	item := &platform.Item{
		ID:         id,
		Name:       path.Base(objectPath),
		ParentPath: path.Dir(objectPath),
		Type:       typ,
		Status:     status,
	}
	f.items[key(status, objectPath)] = item

	return item
}

func (f *fakePlatform) SearchItem(_ context.Context, _ string, _ platform.Zone, objectPath, status string) (*platform.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.searches = append(f.searches, objectPath)

	if item, ok := f.items[key(status, objectPath)]; ok {
		cp := *item
		return &cp, nil
	}

	return nil, &platform.HTTPError{Method: http.MethodGet, Endpoint: "search", Status: http.StatusNotFound, Err: platform.ErrNotFound}
}

func (f *fakePlatform) ExistingPaths(_ context.Context, _ string, _ platform.Zone, objectPaths []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string

	for _, p := range objectPaths {
		for k := range f.items {
			if strings.EqualFold(k, key(platform.StatusActive, p)) {
				out = append(out, strings.TrimPrefix(k, platform.StatusActive+":"))
			}
		}
	}

	return out, nil
}

func (f *fakePlatform) CreateFolders(_ context.Context, _ string, _ platform.Zone, parentID string, folders []platform.NewFolder) ([]platform.Item, error) {
	f.mu.Lock()
	f.batches = append(f.batches, folders)
	f.batchPID = append(f.batchPID, parentID)
	f.mu.Unlock()

	out := make([]platform.Item, 0, len(folders))
	for _, nf := range folders {
		out = append(out, *f.addFolder(nf.ItemID, path.Join(nf.ParentPath, nf.Name)))
	}

	return out, nil
}

func (f *fakePlatform) ListFolder(_ context.Context, _ string, _ platform.Zone, parentPath string, opts platform.ListOptions) (*platform.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	page := &platform.Page{Page: opts.Page}

	for k, item := range f.items {
		if strings.HasPrefix(k, platform.StatusActive+":") && item.ParentPath == parentPath {
			page.Items = append(page.Items, *item)
		}
	}

	page.Total = len(page.Items)
	page.NumOfPages = 1

	return page, nil
}

func (f *fakePlatform) Move(_ context.Context, _ string, _ platform.Zone, items []platform.MoveItem) ([]platform.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.moved = append(f.moved, items...)

	return nil, nil
}

func (f *fakePlatform) Trash(_ context.Context, _ string, _ platform.Zone, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.trashed = append(f.trashed, ids...)

	return nil
}

func (f *fakePlatform) Purge(_ context.Context, _ string, _ platform.Zone, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.purged = append(f.purged, ids...)

	return nil
}
