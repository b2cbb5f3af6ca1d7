package platform

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pilotdata/pilotcli/internal/clierr"
)

// Upload job types.
const (
	JobAsFile   = "AS_FILE"
	JobAsFolder = "AS_FOLDER"
)

// PreUploadFile names one file of a pre-upload batch.
type PreUploadFile struct {
	FileName     string `json:"resumable_filename"`
	RelativePath string `json:"resumable_relative_path"`
}

// PreUploadRequest registers a batch of files before streaming.
type PreUploadRequest struct {
	ProjectCode       string          `json:"project_code"`
	Operator          string          `json:"operator"`
	JobType           string          `json:"job_type"`
	Zone              string          `json:"zone"`
	CurrentFolderNode string          `json:"current_folder_node"`
	ParentFolderID    string          `json:"parent_folder_id"`
	FolderTags        []string        `json:"folder_tags"`
	SourceID          string          `json:"source_id"`
	Data              []PreUploadFile `json:"data"`
}

// PreUploadResult is the server's record for one registered file.
type PreUploadResult struct {
	TargetNames []string `json:"target_names"`
	Payload     struct {
		ResumableID string `json:"resumable_identifier"`
		ItemID      string `json:"item_id"`
	} `json:"payload"`
	JobID string `json:"job_id"`
}

// ObjectPath returns the first target name.
func (r *PreUploadResult) ObjectPath() string {
	if len(r.TargetNames) == 0 {
		return ""
	}

	return r.TargetNames[0]
}

// PreUpload registers files and opens a multipart upload for each.
func (c *Client) PreUpload(ctx context.Context, req *PreUploadRequest) ([]PreUploadResult, error) {
	var out envelope[[]PreUploadResult]

	_, err := c.Post(ctx, c.ep.bff("v1", "project", req.ProjectCode, "files"), req, &out)
	if err != nil {
		return nil, preUploadError(err)
	}

	return out.Result, nil
}

// preUploadError maps pre-upload statuses onto the error taxonomy.
func preUploadError(err error) error {
	var he *HTTPError
	if !errors.As(err, &he) {
		return err
	}

	switch he.Status {
	case http.StatusForbidden:
		return clierr.Wrap(clierr.PermissionDenied, err, "")
	case http.StatusUnauthorized:
		return clierr.Wrap(clierr.ProjectDenied, err, "")
	case http.StatusConflict:
		return clierr.Wrap(clierr.FileExist, err, "")
	case http.StatusBadRequest, http.StatusInternalServerError:
		if strings.Contains(strings.ToLower(he.Body), "locked") {
			return clierr.Wrap(clierr.FileLocked, err, "")
		}
	}

	return err
}

// ChunkInfo is a chunk the server already holds.
type ChunkInfo struct {
	Etag      string `json:"etag"`
	ChunkSize int64  `json:"chunk_size"`
}

// ResumableObject identifies one in-flight multipart upload.
type ResumableObject struct {
	ObjectPath  string `json:"object_path"`
	ItemID      string `json:"item_id"`
	ResumableID string `json:"resumable_id"`
}

type resumableRequest struct {
	Bucket      string            `json:"bucket"`
	Zone        string            `json:"zone"`
	ObjectInfos []ResumableObject `json:"object_infos"`
}

// ResumableResult reports the chunks already uploaded for one object.
// ChunksInfo is keyed by the decimal chunk number.
type ResumableResult struct {
	ResumableObject
	ChunksInfo map[string]ChunkInfo `json:"chunks_info"`
}

// Resumable asks which chunks of each multipart upload are already stored.
func (c *Client) Resumable(ctx context.Context, project string, zone Zone, objects []ResumableObject) ([]ResumableResult, error) {
	var out envelope[[]ResumableResult]

	body := resumableRequest{Bucket: zone.Bucket(project), Zone: zone.Namespace(), ObjectInfos: objects}

	_, err := c.Post(ctx, c.ep.bff("v1", "project", project, "files", "resumable"), body, &out)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, clierr.Wrap(clierr.UploadIDNotExist, err, "")
		}

		return nil, err
	}

	return out.Result, nil
}

// ChunkRef addresses one part of a multipart upload.
type ChunkRef struct {
	Bucket      string
	ItemID      string
	ResumableID string
	Number      int
	Size        int
	ContentMD5  string
}

// PresignChunk returns a presigned PUT URL for one chunk.
func (c *Client) PresignChunk(ctx context.Context, zone Zone, ref ChunkRef) (string, error) {
	var out envelope[string]

	q := url.Values{
		"bucket":       {ref.Bucket},
		"key":          {ref.ItemID},
		"upload_id":    {ref.ResumableID},
		"chunk_number": {strconv.Itoa(ref.Number)},
		"chunk_size":   {strconv.Itoa(ref.Size)},
	}

	_, err := c.JSON(ctx, &Request{
		Method: http.MethodGet,
		URL:    c.ep.upload(zone, "v1", "files", "chunks", "presigned"),
		Query:  q,
		Header: http.Header{"Content-MD5": {ref.ContentMD5}},
	}, &out)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", clierr.Wrap(clierr.UploadIDNotExist, err, "")
		}

		return "", err
	}

	if out.Result == "" {
		return "", clierr.New(clierr.ServerError, "empty presigned url")
	}

	return out.Result, nil
}

// PutChunk uploads chunk bytes to a presigned URL.
func (c *Client) PutChunk(ctx context.Context, presigned, contentMD5 string, data []byte) error {
	resp, err := c.DoUnauthenticated(ctx, &Request{
		Method: http.MethodPut,
		URL:    presigned,
		Header: http.Header{"Content-MD5": {contentMD5}},
		Body:   data,
	})
	if err != nil {
		return err
	}

	return resp.Body.Close()
}

// CompleteRequest finalizes a multipart upload.
type CompleteRequest struct {
	ProjectCode  string `json:"project_code"`
	Operator     string `json:"operator"`
	JobID        string `json:"job_id"`
	ItemID       string `json:"item_id"`
	ResumableID  string `json:"resumable_identifier"`
	FileName     string `json:"resumable_filename"`
	TotalChunks  int    `json:"resumable_total_chunks"`
	TotalSize    int64  `json:"resumable_total_size"`
	RelativePath string `json:"resumable_relative_path"`
}

// Complete asks the upload service to assemble the object. Activation
// happens asynchronously; poll QueryByID for StatusActive.
func (c *Client) Complete(ctx context.Context, zone Zone, req *CompleteRequest) error {
	_, err := c.Post(ctx, c.ep.upload(zone, "v1", "files"), req, nil)
	if err != nil && errors.Is(err, ErrNotFound) {
		return clierr.Wrap(clierr.UploadIDNotExist, err, "")
	}

	return err
}

// AttributeTemplate is a named attribute schema ("manifest") of a project.
type AttributeTemplate struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Attributes []AttributeSpec `json:"attributes"`
}

// Attribute types.
const (
	AttrText           = "text"
	AttrMultipleChoice = "multiple_choice"
)

// AttributeSpec describes one attribute of a template.
type AttributeSpec struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Optional bool     `json:"optional"`
	Options  []string `json:"options,omitempty"`
}

// AttributeTemplates lists the templates of a project.
func (c *Client) AttributeTemplates(ctx context.Context, project string) ([]AttributeTemplate, error) {
	var out envelope[[]AttributeTemplate]

	if _, err := c.Get(ctx, c.ep.bff("v1", "data", "manifests"), url.Values{"project_code": {project}}, &out); err != nil {
		return nil, err
	}

	return out.Result, nil
}

// AttachRequest attaches template attributes to an item.
type AttachRequest struct {
	ItemID       string            `json:"item_id"`
	Zone         string            `json:"zone"`
	ProjectCode  string            `json:"project_code"`
	ManifestID   string            `json:"manifest_id"`
	ManifestName string            `json:"manifest_name"`
	Attributes   map[string]string `json:"attributes"`
}

// AttachAttributes stores attribute values on an item.
func (c *Client) AttachAttributes(ctx context.Context, req *AttachRequest) error {
	_, err := c.Post(ctx, c.ep.bff("v1", "manifest", "attach"), req, nil)

	return err
}
