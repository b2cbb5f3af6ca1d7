package target

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/pilotdata/pilotcli/internal/clierr"
	"github.com/pilotdata/pilotcli/internal/platform"
	"github.com/pilotdata/pilotcli/internal/ui"
)

// Platform is the subset of the platform client the file operations need.
type Platform interface {
	Items
	ListFolder(ctx context.Context, project string, zone platform.Zone, parentPath string, opts platform.ListOptions) (*platform.Page, error)
	Move(ctx context.Context, project string, zone platform.Zone, items []platform.MoveItem) ([]platform.Item, error)
	Trash(ctx context.Context, project string, zone platform.Zone, ids []string) error
	Purge(ctx context.Context, project string, zone platform.Zone, ids []string) error
}

// Ops implements list, move, trash and folder creation.
type Ops struct {
	*Resolver
	api Platform
}

// NewOps creates Ops on top of a Resolver using the same client.
func NewOps(api Platform, out ui.Handler, logger *slog.Logger) *Ops {
	return &Ops{Resolver: NewResolver(api, out, logger), api: api}
}

// List returns one page of the folder at input.
func (o *Ops) List(ctx context.Context, input string, zone platform.Zone, opts platform.ListOptions) (*platform.Page, error) {
	t, err := IdentifyTargetFolder(input, true)
	if err != nil {
		return nil, err
	}

	page, err := o.api.ListFolder(ctx, t.ProjectCode, zone, t.ObjectPath(), opts)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", t, err)
	}

	return page, nil
}

// CreateFolder creates the folder at input and any missing parents below
// the namespace folder.
func (o *Ops) CreateFolder(ctx context.Context, input string, zone platform.Zone) (*platform.Item, error) {
	t, err := IdentifyTargetFolder(input, false)
	if err != nil {
		return nil, err
	}

	if len(t.Rel) < 2 {
		return nil, clierr.New(clierr.InvalidFolderName, "%s: namespace folders are managed by the platform", t)
	}

	if err := CheckNewFolderName(t.Rel[len(t.Rel)-1]); err != nil {
		return nil, err
	}

	p, err := o.locate(ctx, t, zone)
	if err != nil {
		return nil, err
	}

	if !p.MustCreate {
		return nil, clierr.New(clierr.FileExist, "%s", t)
	}

	return o.CreateFolders(ctx, t.ProjectCode, zone, p.Parent, p.ParentPath, p.Missing)
}

// Move moves src to dst. When dst is an existing folder the item keeps its
// name; otherwise dst names the new path and its parent must exist.
func (o *Ops) Move(ctx context.Context, src, dst string, zone platform.Zone) (*platform.Item, error) {
	from, err := ParseItemPath(src)
	if err != nil {
		return nil, err
	}

	to, err := ParseItemPath(dst)
	if err != nil {
		return nil, err
	}

	if from.ProjectCode != to.ProjectCode {
		return nil, clierr.New(clierr.InvalidPath, "cannot move between projects %s and %s", from.ProjectCode, to.ProjectCode)
	}

	item, err := o.SearchItem(ctx, from.ProjectCode, zone, from.ObjectPath(), platform.StatusActive)
	if err != nil {
		return nil, notFound(err, from)
	}

	parent, name, err := o.moveDestination(ctx, to, item.Name, zone)
	if err != nil {
		return nil, err
	}

	moved, err := o.api.Move(ctx, from.ProjectCode, zone, []platform.MoveItem{{ID: item.ID, ParentID: parent.ID, Name: name}})
	if err != nil {
		return nil, fmt.Errorf("moving %s: %w", from, err)
	}

	if len(moved) > 0 {
		return &moved[0], nil
	}

	item.ParentID = parent.ID
	item.Name = name

	return item, nil
}

func (o *Ops) moveDestination(ctx context.Context, to Target, name string, zone platform.Zone) (*platform.Item, string, error) {
	existing, found, err := o.Exists(ctx, to.ProjectCode, zone, to.ObjectPath(), platform.StatusActive)
	if err != nil {
		return nil, "", err
	}

	if found {
		if !existing.IsFolder() {
			return nil, "", clierr.New(clierr.FileExist, "%s", to)
		}

		return existing, name, nil
	}

	parentPath := path.Dir(to.ObjectPath())

	parent, err := o.SearchItem(ctx, to.ProjectCode, zone, parentPath, platform.StatusActive)
	if err != nil {
		return nil, "", notFound(err, Target{ProjectCode: to.ProjectCode, Root: to.Root, Rel: to.Rel[:len(to.Rel)-1]})
	}

	return parent, path.Base(to.ObjectPath()), nil
}

// Trash moves the items at inputs to the trash, purging them as well when
// permanent is set. An item already in the trash returns ALREADY_TRASHED
// unless permanent is set.
func (o *Ops) Trash(ctx context.Context, inputs []string, zone platform.Zone, permanent bool) error {
	for _, input := range inputs {
		if err := o.trashOne(ctx, input, zone, permanent); err != nil {
			return err
		}
	}

	return nil
}

func (o *Ops) trashOne(ctx context.Context, input string, zone platform.Zone, permanent bool) error {
	t, err := ParseItemPath(input)
	if err != nil {
		return err
	}

	item, active, err := o.Exists(ctx, t.ProjectCode, zone, t.ObjectPath(), platform.StatusActive)
	if err != nil {
		return err
	}

	if !active {
		trashed, found, err := o.Exists(ctx, t.ProjectCode, zone, t.ObjectPath(), platform.StatusTrashed)
		if err != nil {
			return err
		}

		if !found {
			return clierr.New(clierr.ItemNotFound, "%s", t)
		}

		if !permanent {
			return clierr.New(clierr.AlreadyTrashed, "%s", t)
		}

		return o.purge(ctx, t, zone, trashed)
	}

	verb := "Move %s to the trash?"
	if permanent {
		verb = "Permanently delete %s?"
	}

	if !o.out.Confirm(fmt.Sprintf(verb, t)) {
		return clierr.New(clierr.UploadCancel, "%s left in place", t)
	}

	if err := o.api.Trash(ctx, t.ProjectCode, zone, []string{item.ID}); err != nil {
		return fmt.Errorf("trashing %s: %w", t, err)
	}

	o.out.Inform(fmt.Sprintf("Moved %s to the trash", t))

	if permanent {
		return o.purge(ctx, t, zone, item)
	}

	return nil
}

func (o *Ops) purge(ctx context.Context, t Target, zone platform.Zone, item *platform.Item) error {
	if err := o.api.Purge(ctx, t.ProjectCode, zone, []string{item.ID}); err != nil {
		return fmt.Errorf("purging %s: %w", t, err)
	}

	o.out.Inform(fmt.Sprintf("Permanently deleted %s", t))

	return nil
}

func notFound(err error, t Target) error {
	if errors.Is(err, platform.ErrNotFound) {
		return clierr.Wrap(clierr.ItemNotFound, err, t.String())
	}

	return err
}
