package platform

import (
	"context"
	"errors"
	"net/http"

	"github.com/pilotdata/pilotcli/internal/clierr"
)

// Download job statuses.
const (
	JobWaiting = "WAITING"
	JobRunning = "RUNNING"
	JobSucceed = "SUCCEED"
	JobFailed  = "FAILED"
)

type downloadFile struct {
	ID string `json:"id"`
}

type prepareRequest struct {
	Files         []downloadFile `json:"files"`
	Zone          string         `json:"zone"`
	Operator      string         `json:"operator"`
	ContainerCode string         `json:"container_code"`
	ContainerType string         `json:"container_type"`
}

// DownloadJob is the server's answer to a prepare or status request.
type DownloadJob struct {
	Status  string `json:"status"`
	Payload struct {
		HashCode string `json:"hash_code"`
		URL      string `json:"url"`
		FilePath string `json:"file_path"`
	} `json:"payload"`
}

// PrepareDownload asks the platform to make items downloadable. A single
// file comes back with a presigned URL; anything else with a hash code to
// poll.
func (c *Client) PrepareDownload(ctx context.Context, project string, zone Zone, operator string, ids []string) (*DownloadJob, error) {
	files := make([]downloadFile, len(ids))
	for i, id := range ids {
		files[i] = downloadFile{ID: id}
	}

	body := prepareRequest{
		Files:         files,
		Zone:          zone.Namespace(),
		Operator:      operator,
		ContainerCode: project,
		ContainerType: "project",
	}

	var out envelope[DownloadJob]

	if _, err := c.Post(ctx, c.ep.bff("v1", "project", project, "files", "download"), body, &out); err != nil {
		switch StatusOf(err) {
		case http.StatusForbidden:
			return nil, clierr.Wrap(clierr.PermissionDenied, err, "")
		case http.StatusBadRequest:
			return nil, clierr.Wrap(clierr.DownloadFail, err, "")
		}

		if errors.Is(err, ErrNotFound) {
			return nil, clierr.Wrap(clierr.ItemNotFound, err, "")
		}

		return nil, err
	}

	return &out.Result, nil
}

// DownloadStatus polls a prepared download.
func (c *Client) DownloadStatus(ctx context.Context, zone Zone, hashCode string) (*DownloadJob, error) {
	var out envelope[DownloadJob]

	if _, err := c.Get(ctx, c.ep.download(zone, "v1", "download", "status", hashCode), nil, &out); err != nil {
		return nil, err
	}

	return &out.Result, nil
}

// OpenDownload starts streaming a prepared download. The caller closes the
// body.
func (c *Client) OpenDownload(ctx context.Context, zone Zone, hashCode string) (*http.Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, URL: c.ep.download(zone, "v1", "download", hashCode)})
}

// OpenPresigned streams a presigned download URL.
func (c *Client) OpenPresigned(ctx context.Context, presigned string) (*http.Response, error) {
	return c.DoUnauthenticated(ctx, &Request{Method: http.MethodGet, URL: presigned})
}
