package platform

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pilotdata/pilotcli/internal/clierr"
)

// SearchItem looks up one item by object path. A missing item returns an
// error matching ErrNotFound.
func (c *Client) SearchItem(ctx context.Context, project string, zone Zone, objectPath, status string) (*Item, error) {
	if status == "" {
		status = StatusActive
	}

	q := url.Values{
		"zone":           {strconv.Itoa(int(zone))},
		"path":           {objectPath},
		"status":         {status},
		"container_type": {"project"},
	}

	var out envelope[Item]

	_, err := c.JSON(ctx, &Request{
		Method: http.MethodGet,
		URL:    c.ep.bff("v1", "project", project, "search"),
		Query:  q,
		Search: true,
	}, &out)
	if err != nil {
		return nil, err
	}

	if out.Result.ID == "" {
		return nil, &HTTPError{Method: http.MethodGet, Endpoint: "search", Status: http.StatusNotFound, Err: ErrNotFound}
	}

	return &out.Result, nil
}

type idQuery struct {
	IDs []string `json:"geid"`
}

// QueryByID returns the items with the given ids. Unknown ids are absent
// from the result.
func (c *Client) QueryByID(ctx context.Context, ids []string) ([]Item, error) {
	var out envelope[[]Item]

	if _, err := c.Post(ctx, c.ep.bff("v1", "query", "geid"), idQuery{IDs: ids}, &out); err != nil {
		return nil, err
	}

	return out.Result, nil
}

// ListOptions pages a folder listing.
type ListOptions struct {
	Page     int
	PageSize int
	Status   string
}

// Page is one page of a listing.
type Page struct {
	Items      []Item `json:"items"`
	Page       int    `json:"page"`
	Total      int    `json:"total"`
	NumOfPages int    `json:"num_of_pages"`
}

// ListFolder lists the children of the folder at parentPath.
func (c *Client) ListFolder(ctx context.Context, project string, zone Zone, parentPath string, opts ListOptions) (*Page, error) {
	if opts.Status == "" {
		opts.Status = StatusActive
	}

	q := url.Values{
		"zone":        {strconv.Itoa(int(zone))},
		"parent_path": {parentPath},
		"page":        {strconv.Itoa(opts.Page)},
		"page_size":   {strconv.Itoa(opts.PageSize)},
		"status":      {opts.Status},
		"order_by":    {"name"},
		"order_type":  {"asc"},
	}

	var out envelope[[]Item]

	if _, err := c.Get(ctx, c.ep.bff("v1", project, "files", "query"), q, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, clierr.New(clierr.ItemNotFound, "%s", parentPath)
		}

		return nil, err
	}

	return &Page{Items: out.Result, Page: out.Page, Total: out.Total, NumOfPages: out.NumOfPages}, nil
}

type existsRequest struct {
	ProjectCode string   `json:"project_code"`
	Zone        string   `json:"zone"`
	Locations   []string `json:"locations"`
}

// ExistingPaths returns the subset of objectPaths already present. The
// server may report paths in a different case.
func (c *Client) ExistingPaths(ctx context.Context, project string, zone Zone, objectPaths []string) ([]string, error) {
	var out envelope[[]string]

	body := existsRequest{ProjectCode: project, Zone: zone.Namespace(), Locations: objectPaths}

	if _, err := c.Post(ctx, join(c.ep.Portal, "v1", "files", "exists"), body, &out); err != nil {
		return nil, err
	}

	return out.Result, nil
}

// NewFolder is one entry of a batch folder creation.
type NewFolder struct {
	Name       string `json:"name"`
	ItemID     string `json:"item_id"`
	ParentID   string `json:"parent_id"`
	ParentPath string `json:"parent_path"`
}

type folderBatch struct {
	Folders     []NewFolder `json:"folders"`
	ParentID    string      `json:"parent_id"`
	Zone        string      `json:"zone"`
	ProjectCode string      `json:"project_code"`
}

// CreateFolders creates a chain of folders in one request.
func (c *Client) CreateFolders(ctx context.Context, project string, zone Zone, parentID string, folders []NewFolder) ([]Item, error) {
	var out envelope[[]Item]

	body := folderBatch{Folders: folders, ParentID: parentID, Zone: zone.Namespace(), ProjectCode: project}

	if _, err := c.Post(ctx, c.ep.bff("v1", "folders", "batch"), body, &out); err != nil {
		switch StatusOf(err) {
		case http.StatusConflict:
			return nil, clierr.Wrap(clierr.FileExist, err, "folder")
		case http.StatusForbidden:
			return nil, clierr.Wrap(clierr.PermissionDenied, err, "")
		}

		return nil, err
	}

	return out.Result, nil
}

// MoveItem is one entry of a move request.
type MoveItem struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	Name     string `json:"name"`
}

type moveRequest struct {
	Zone  string     `json:"zone"`
	Items []MoveItem `json:"items"`
}

// Move reparents and optionally renames items.
func (c *Client) Move(ctx context.Context, project string, zone Zone, items []MoveItem) ([]Item, error) {
	var out envelope[[]Item]

	if _, err := c.Patch(ctx, c.ep.bff("v1", project, "files"), moveRequest{Zone: zone.Namespace(), Items: items}, &out); err != nil {
		switch StatusOf(err) {
		case http.StatusConflict:
			return nil, clierr.Wrap(clierr.FileExist, err, "move destination")
		case http.StatusForbidden:
			return nil, clierr.Wrap(clierr.PermissionDenied, err, "")
		}

		return nil, err
	}

	return out.Result, nil
}

type trashRequest struct {
	Zone  string   `json:"zone"`
	Items []string `json:"items"`
}

// Trash moves items to the trash bin.
func (c *Client) Trash(ctx context.Context, project string, zone Zone, ids []string) error {
	return c.deleteItems(ctx, c.ep.bff("v1", project, "files"), zone, ids)
}

// Purge removes trashed items permanently.
func (c *Client) Purge(ctx context.Context, project string, zone Zone, ids []string) error {
	return c.deleteItems(ctx, c.ep.bff("v1", project, "files", "purge"), zone, ids)
}

func (c *Client) deleteItems(ctx context.Context, endpoint string, zone Zone, ids []string) error {
	_, err := c.Delete(ctx, endpoint, trashRequest{Zone: zone.Namespace(), Items: ids}, nil)

	switch StatusOf(err) {
	case 0:
		return err
	case http.StatusForbidden:
		return clierr.Wrap(clierr.PermissionDenied, err, "")
	case http.StatusLocked, http.StatusConflict:
		return clierr.Wrap(clierr.FileLocked, err, "")
	default:
		return err
	}
}
