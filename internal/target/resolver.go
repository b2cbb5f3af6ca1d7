package target

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/pilotdata/pilotcli/internal/clierr"
	"github.com/pilotdata/pilotcli/internal/platform"
	"github.com/pilotdata/pilotcli/internal/ui"
)

// Items is the subset of the platform client the resolver needs.
type Items interface {
	SearchItem(ctx context.Context, project string, zone platform.Zone, objectPath, status string) (*platform.Item, error)
	ExistingPaths(ctx context.Context, project string, zone platform.Zone, objectPaths []string) ([]string, error)
	CreateFolders(ctx context.Context, project string, zone platform.Zone, parentID string, folders []platform.NewFolder) ([]platform.Item, error)
}

// Resolver maps targets onto existing platform folders.
type Resolver struct {
	items  Items
	out    ui.Handler
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(items Items, out ui.Handler, logger *slog.Logger) *Resolver {
	return &Resolver{items: items, out: out, logger: logger}
}

// Placement is where an upload lands.
type Placement struct {
	Target Target
	// ObjectPath of the uploaded file (or of the target folder when no
	// local file was given).
	ObjectPath string
	// Parent is the deepest folder that exists.
	Parent *platform.Item
	// ParentPath is the object path of Parent.
	ParentPath string
	// Missing lists folder names to create below Parent, outermost first.
	Missing    []string
	MustCreate bool
}

// SearchItem returns the item at objectPath, or an error matching
// platform.ErrNotFound.
func (r *Resolver) SearchItem(ctx context.Context, project string, zone platform.Zone, objectPath, status string) (*platform.Item, error) {
	item, err := r.items.SearchItem(ctx, project, zone, objectPath, status)
	if err != nil {
		return nil, fmt.Errorf("searching %s/%s: %w", project, objectPath, err)
	}

	return item, nil
}

// Exists reports whether objectPath exists with the given status.
func (r *Resolver) Exists(ctx context.Context, project string, zone platform.Zone, objectPath, status string) (*platform.Item, bool, error) {
	item, err := r.SearchItem(ctx, project, zone, objectPath, status)
	if errors.Is(err, platform.ErrNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	return item, true, nil
}

// AssemblePath finds the deepest existing ancestor of t. If the target
// folder is missing, the user is asked to confirm creating it; a decline
// returns UPLOAD_CANCEL. The namespace folder (users/<name>) must exist.
func (r *Resolver) AssemblePath(ctx context.Context, localFile string, t Target, zone platform.Zone) (*Placement, error) {
	p, err := r.locate(ctx, t, zone)
	if err != nil {
		return nil, err
	}

	if localFile != "" {
		p.ObjectPath = path.Join(p.ObjectPath, path.Base(strings.ReplaceAll(localFile, "\\", "/")))
	}

	if p.MustCreate {
		prompt := fmt.Sprintf("Folder %s does not exist. Create missing folders?", t)
		if !r.out.Confirm(prompt) {
			return nil, clierr.New(clierr.UploadCancel, "target folder not created")
		}
	}

	return p, nil
}

// locate checks every prefix of t below the root, outermost first.
func (r *Resolver) locate(ctx context.Context, t Target, zone platform.Zone) (*Placement, error) {
	p := &Placement{Target: t, ObjectPath: t.ObjectPath()}
	current := string(t.Root)

	for i, seg := range t.Rel {
		current = path.Join(current, seg)

		item, found, err := r.Exists(ctx, t.ProjectCode, zone, current, platform.StatusActive)
		if err != nil {
			return nil, err
		}

		if !found {
			if i == 0 {
				return nil, clierr.New(clierr.InvalidPath, "folder %s/%s does not exist", t.ProjectCode, current)
			}

			p.Missing = append([]string(nil), t.Rel[i:]...)
			p.MustCreate = true

			break
		}

		if !item.IsFolder() {
			return nil, clierr.New(clierr.InvalidPath, "%s/%s is a file", t.ProjectCode, current)
		}

		p.Parent = item
		p.ParentPath = current
	}

	if p.Parent == nil {
		return nil, clierr.New(clierr.InvalidPath, "%s: no folder to upload into", t)
	}

	if p.MustCreate {
		r.logger.Debug("target folder missing",
			slog.String("target", t.String()),
			slog.String("deepest_existing", p.ParentPath),
			slog.Int("missing", len(p.Missing)),
		)
	}

	return p, nil
}

// CreateFolders creates missing below parent in one request. Ids are
// generated here and each folder's parent is the one before it. It returns
// the deepest created folder.
func (r *Resolver) CreateFolders(ctx context.Context, project string, zone platform.Zone, parent *platform.Item, parentPath string, missing []string) (*platform.Item, error) {
	if len(missing) == 0 {
		return parent, nil
	}

	folders, err := FolderChain(parent.ID, parentPath, missing)
	if err != nil {
		return nil, err
	}

	if _, err := r.items.CreateFolders(ctx, project, zone, parent.ID, folders); err != nil {
		return nil, fmt.Errorf("creating folders under %s: %w", parentPath, err)
	}

	last := folders[len(folders)-1]

	r.logger.Info("folders created",
		slog.String("project", project),
		slog.String("path", path.Join(last.ParentPath, last.Name)),
		slog.Int("count", len(folders)),
	)

	return &platform.Item{
		ID:            last.ItemID,
		Name:          last.Name,
		ParentID:      last.ParentID,
		ParentPath:    last.ParentPath,
		Type:          platform.TypeFolder,
		Zone:          zone,
		Status:        platform.StatusActive,
		ContainerCode: project,
	}, nil
}

// FolderChain builds the batch entries for names nested below parentID.
func FolderChain(parentID, parentPath string, names []string) ([]platform.NewFolder, error) {
	folders := make([]platform.NewFolder, 0, len(names))

	for _, name := range names {
		if !ValidFolderName(name) {
			return nil, clierr.New(clierr.InvalidFolderName, "%q", name)
		}

		id := uuid.NewString()
		folders = append(folders, platform.NewFolder{
			Name:       name,
			ItemID:     id,
			ParentID:   parentID,
			ParentPath: parentPath,
		})

		parentID = id
		parentPath = path.Join(parentPath, name)
	}

	return folders, nil
}

// CheckDuplicates returns the entries of objectPaths that already exist,
// compared case-insensitively.
func (r *Resolver) CheckDuplicates(ctx context.Context, project string, zone platform.Zone, objectPaths []string) ([]string, error) {
	if len(objectPaths) == 0 {
		return nil, nil
	}

	existing, err := r.items.ExistingPaths(ctx, project, zone, objectPaths)
	if err != nil {
		return nil, fmt.Errorf("checking duplicates: %w", err)
	}

	return matchFold(objectPaths, existing), nil
}

func matchFold(candidates, existing []string) []string {
	fold := cases.Fold()
	seen := make(map[string]bool, len(existing))

	for _, e := range existing {
		seen[fold.String(e)] = true
	}

	var dups []string

	for _, c := range candidates {
		if seen[fold.String(c)] {
			dups = append(dups, c)
		}
	}

	return dups
}
