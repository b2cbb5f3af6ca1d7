package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/pilotdata/pilotcli/internal/atomicfile"
	"github.com/pilotdata/pilotcli/internal/clierr"
	"github.com/pilotdata/pilotcli/internal/platform"
)

// DefaultManifestPath is used when --output-path is not given.
const DefaultManifestPath = "pilotcli-resume.json"

// Chunk is one part the server already holds.
type Chunk struct {
	Etag string `json:"etag"`
	Size int64  `json:"chunk_size"`
}

// FileObject is one file of an upload.
type FileObject struct {
	ResumableID    string        `json:"resumable_id"`
	JobID          string        `json:"job_id"`
	ItemID         string        `json:"item_id"`
	ObjectPath     string        `json:"object_path"`
	ParentPath     string        `json:"parent_path"`
	FileName       string        `json:"file_name"`
	LocalPath      string        `json:"local_path"`
	TotalSize      int64         `json:"total_size"`
	TotalChunks    int           `json:"total_chunks"`
	UploadedChunks map[int]Chunk `json:"uploaded_chunks"`

	// Progress is updated atomically while streaming.
	Progress int64 `json:"progress"`

	// Uploaded is set once the item turned ACTIVE.
	Uploaded bool `json:"uploaded,omitempty"`
}

// ChunkCount is ceil(size / chunkSize).
func ChunkCount(size, chunkSize int64) int {
	if size <= 0 {
		return 0
	}

	return int((size + chunkSize - 1) / chunkSize)
}

// AttributeSet is a validated group of attributes for one template.
type AttributeSet struct {
	ManifestID   string            `json:"manifest_id"`
	ManifestName string            `json:"manifest_name"`
	Attributes   map[string]string `json:"attributes"`
}

// Manifest is the resumable plan of one upload command.
type Manifest struct {
	ProjectCode       string                 `json:"project_code"`
	Operator          string                 `json:"operator"`
	Zone              platform.Zone          `json:"zone"`
	JobType           string                 `json:"job_type"`
	ParentFolderID    string                 `json:"parent_folder_id"`
	CurrentFolderNode string                 `json:"current_folder_node"`
	Tags              []string               `json:"tags"`
	Attributes        []AttributeSet         `json:"attributes"`
	ChunkSize         int64                  `json:"chunk_size"`
	FileObjects       map[string]*FileObject `json:"file_objects"`

	AttributesAttached bool `json:"attributes_attached,omitempty"`

	// Archives are --zip working directories, removed with the manifest.
	Archives []string `json:"archives,omitempty"`
}

// Sorted returns the file objects ordered by object path.
func (m *Manifest) Sorted() []*FileObject {
	files := make([]*FileObject, 0, len(m.FileObjects))
	for _, f := range m.FileObjects {
		files = append(files, f)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].ObjectPath < files[j].ObjectPath })

	return files
}

// Validate checks the structural invariants of a loaded manifest.
func (m *Manifest) Validate() error {
	if m.ProjectCode == "" {
		return clierr.New(clierr.InvalidManifest, "missing project_code")
	}

	if m.ChunkSize <= 0 {
		return clierr.New(clierr.InvalidManifest, "chunk_size must be positive")
	}

	if len(m.FileObjects) == 0 {
		return clierr.New(clierr.InvalidManifest, "no file objects")
	}

	for id, f := range m.FileObjects {
		if f == nil || f.ItemID != id {
			return clierr.New(clierr.InvalidManifest, "file object %s: item_id does not match its key", id)
		}

		if f.TotalSize <= 0 {
			return clierr.New(clierr.InvalidManifest, "file object %s: empty file", id)
		}

		if f.TotalChunks != ChunkCount(f.TotalSize, m.ChunkSize) {
			return clierr.New(clierr.InvalidManifest, "file object %s: %d chunks for %d bytes", id, f.TotalChunks, f.TotalSize)
		}

		if err := checkChunkKeys(f); err != nil {
			return err
		}
	}

	return nil
}

func checkChunkKeys(f *FileObject) error {
	for n := range f.UploadedChunks {
		if n < 1 || n > f.TotalChunks {
			return clierr.New(clierr.InvalidManifest, "file object %s: chunk %d outside 1..%d", f.ItemID, n, f.TotalChunks)
		}
	}

	return nil
}

// Save writes the manifest atomically with owner-only permissions.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	if err := atomicfile.Write(path, data, atomicfile.FilePerms); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}

	return nil
}

// LoadManifest reads and validates a manifest written by Save.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, clierr.New(clierr.InvalidManifest, "%s does not exist", path)
		}

		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, clierr.Wrap(clierr.InvalidManifest, err, path)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Finish removes the manifest at path and then the archives it owns.
func (m *Manifest) Finish(path string) error {
	if err := RemoveManifest(path); err != nil {
		return err
	}

	removeArchives(m.Archives)

	return nil
}

// RemoveManifest deletes a manifest after a successful upload.
func RemoveManifest(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing manifest %s: %w", path, err)
	}

	return nil
}
