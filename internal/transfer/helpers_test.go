package transfer

import (
	"context"
	"crypto/md5" //nolint:gosec // matches the production etag
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotdata/pilotcli/internal/platform"
	"github.com/pilotdata/pilotcli/internal/ui"
)

const testChunk = 2 << 20

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticTokens struct{}

func (staticTokens) Token(context.Context) (string, error)   { return "tok", nil }
func (staticTokens) Refresh(context.Context) (string, error) { return "tok", nil }
func (staticTokens) SessionID() string                       { return "session" }

func noSleep(context.Context, time.Duration) error { return nil }

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func result(v any) map[string]any {
	return map[string]any{"code": 200, "result": v}
}

// remoteFile is an object the fake platform knows about.
type remoteFile struct {
	item      platform.Item
	resumable string
	chunks    map[int][]byte
	content   []byte
	polls     int
	completed bool
}

// fakePlatform is an in-memory BFF, upload service, download service and
// object store.
type fakePlatform struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	folders     map[string]platform.Item // by object path
	files       map[string]*remoteFile   // by item id
	nextID      int
	preUploads  []platform.PreUploadRequest
	folderBatch [][]platform.NewFolder
	presigns    []int
	puts        []int
	completes   []platform.CompleteRequest
	attached    []platform.AttachRequest
	prepares    [][]string
	statusPolls int
	authSeen    []string
	templates   []platform.AttributeTemplate

	// hooks
	failPut      func(item string, n int) bool
	onPresign    func(n int)
	statusSeq    []string
	archive      []byte
	archivePath  string
	shortArchive bool
	failAttach   bool

	// forgetCompleted drops completed files from status queries, as if
	// they were deleted on the server.
	forgetCompleted bool
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()

	f := &fakePlatform{
		t:         t,
		folders:   map[string]platform.Item{},
		files:     map[string]*remoteFile{},
		statusSeq: []string{platform.JobRunning, platform.JobSucceed},
	}
	f.addFolder("users/alice")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /bff/v1/project/{code}/search", f.search)
	mux.HandleFunc("POST /portal/v1/files/exists", f.exists)
	mux.HandleFunc("POST /bff/v1/folders/batch", f.createFolders)
	mux.HandleFunc("POST /bff/v1/project/{code}/files", f.preUpload)
	mux.HandleFunc("POST /bff/v1/project/{code}/files/resumable", f.resumable)
	mux.HandleFunc("GET /upload/gr/v1/files/chunks/presigned", f.presign)
	mux.HandleFunc("PUT /s3/{item}/{n}", f.put)
	mux.HandleFunc("POST /upload/gr/v1/files", f.complete)
	mux.HandleFunc("POST /bff/v1/query/geid", f.query)
	mux.HandleFunc("GET /bff/v1/data/manifests", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, result(f.templates))
	})
	mux.HandleFunc("POST /bff/v1/manifest/attach", f.attach)
	mux.HandleFunc("POST /bff/v1/project/{code}/files/download", f.prepare)
	mux.HandleFunc("GET /download/gr/v1/download/status/{hash}", f.downloadStatus)
	mux.HandleFunc("GET /download/gr/v1/download/{hash}", f.downloadArchive)
	mux.HandleFunc("GET /s3get/{item}", f.getObject)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakePlatform) client(tokens platform.TokenSource) *platform.Client {
	return platform.NewClient(platform.SingleHost(f.srv.URL), f.srv.Client(), tokens, "test", discardLogger())
}

func (f *fakePlatform) addFolder(objectPath string) platform.Item {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.addFolderLocked(objectPath, "")
}

func (f *fakePlatform) addFolderLocked(objectPath, id string) platform.Item {
	if id == "" {
		f.nextID++
		id = fmt.Sprintf("folder-%d", f.nextID)
	}

	item := platform.Item{
		ID:         id,
		Name:       path.Base(objectPath),
		ParentPath: path.Dir(objectPath),
		Type:       platform.TypeFolder,
		Status:     platform.StatusActive,
	}
	f.folders[objectPath] = item

	return item
}

// addActiveFile registers an existing, fully uploaded file.
func (f *fakePlatform) addActiveFile(objectPath string, content []byte) platform.Item {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	item := platform.Item{
		ID:            fmt.Sprintf("file-%d", f.nextID),
		Name:          path.Base(objectPath),
		ParentPath:    path.Dir(objectPath),
		Type:          platform.TypeFile,
		Status:        platform.StatusActive,
		Size:          int64(len(content)),
		ContainerCode: "proj",
	}
	f.files[item.ID] = &remoteFile{item: item, content: content, completed: true}

	return item
}

func (f *fakePlatform) fileByPath(objectPath string) *remoteFile {
	for _, rf := range f.files {
		if rf.item.Path() == objectPath {
			return rf
		}
	}

	return nil
}

func (f *fakePlatform) search(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := r.URL.Query().Get("path")
	status := r.URL.Query().Get("status")

	if item, ok := f.folders[p]; ok && status == platform.StatusActive {
		writeJSON(w, result(item))
		return
	}

	if rf := f.fileByPath(p); rf != nil && rf.item.Status == status {
		writeJSON(w, result(rf.item))
		return
	}

	w.WriteHeader(http.StatusNotFound)
}

func (f *fakePlatform) exists(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Locations []string `json:"locations"`
	}
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string

	for _, loc := range req.Locations {
		for _, rf := range f.files {
			if rf.item.Status == platform.StatusActive && strings.EqualFold(rf.item.Path(), loc) {
				out = append(out, rf.item.Path())
			}
		}
	}

	writeJSON(w, result(out))
}

func (f *fakePlatform) createFolders(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Folders  []platform.NewFolder `json:"folders"`
		ParentID string               `json:"parent_id"`
	}
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	f.mu.Lock()
	defer f.mu.Unlock()

	f.folderBatch = append(f.folderBatch, req.Folders)

	var out []platform.Item
	for _, nf := range req.Folders {
		out = append(out, f.addFolderLocked(path.Join(nf.ParentPath, nf.Name), nf.ItemID))
	}

	writeJSON(w, result(out))
}

func (f *fakePlatform) preUpload(w http.ResponseWriter, r *http.Request) {
	var req platform.PreUploadRequest
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	f.mu.Lock()
	defer f.mu.Unlock()

	f.preUploads = append(f.preUploads, req)

	out := make([]map[string]any, 0, len(req.Data))

	for _, d := range req.Data {
		f.nextID++
		id := fmt.Sprintf("item-%d", f.nextID)
		objectPath := path.Join(d.RelativePath, d.FileName)

		f.files[id] = &remoteFile{
			item: platform.Item{
				ID:            id,
				Name:          d.FileName,
				ParentPath:    d.RelativePath,
				Type:          platform.TypeFile,
				Status:        platform.StatusRegistered,
				ContainerCode: req.ProjectCode,
			},
			resumable: "upload-" + id,
			chunks:    map[int][]byte{},
		}

		out = append(out, map[string]any{
			"target_names": []string{objectPath},
			"payload":      map[string]string{"resumable_identifier": "upload-" + id, "item_id": id},
			"job_id":       "job-" + id,
		})
	}

	writeJSON(w, result(out))
}

func (f *fakePlatform) resumable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bucket      string                     `json:"bucket"`
		ObjectInfos []platform.ResumableObject `json:"object_infos"`
	}
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
	assert.Equal(f.t, "gr-proj", req.Bucket)

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []map[string]any

	for _, obj := range req.ObjectInfos {
		rf := f.files[obj.ItemID]
		if rf == nil || rf.resumable != obj.ResumableID {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		info := map[string]platform.ChunkInfo{}
		for n, data := range rf.chunks {
			info[strconv.Itoa(n)] = platform.ChunkInfo{Etag: etagOf(data), ChunkSize: int64(len(data))}
		}

		out = append(out, map[string]any{
			"object_path":  obj.ObjectPath,
			"item_id":      obj.ItemID,
			"resumable_id": obj.ResumableID,
			"chunks_info":  info,
		})
	}

	writeJSON(w, result(out))
}

func (f *fakePlatform) presign(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, _ := strconv.Atoi(q.Get("chunk_number"))

	f.mu.Lock()
	f.presigns = append(f.presigns, n)
	f.authSeen = append(f.authSeen, r.Header.Get("Authorization"))
	hook := f.onPresign
	f.mu.Unlock()

	assert.NotEmpty(f.t, r.Header.Get("Content-MD5"))
	assert.Equal(f.t, "gr-proj", q.Get("bucket"))

	if hook != nil {
		hook(n)
	}

	writeJSON(w, result(fmt.Sprintf("%s/s3/%s/%d?X-Amz-Signature=secret", f.srv.URL, q.Get("key"), n)))
}

func (f *fakePlatform) put(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.PathValue("n"))
	item := r.PathValue("item")

	assert.Empty(f.t, r.Header.Get("Authorization"))

	body, err := io.ReadAll(r.Body)
	assert.NoError(f.t, err)

	if etagOf(body) != r.Header.Get("Content-MD5") {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failPut != nil && f.failPut(item, n) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	f.puts = append(f.puts, n)
	f.files[item].chunks[n] = body
}

func (f *fakePlatform) complete(w http.ResponseWriter, r *http.Request) {
	var req platform.CompleteRequest
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	f.mu.Lock()
	defer f.mu.Unlock()

	f.completes = append(f.completes, req)

	rf := f.files[req.ItemID]
	if rf == nil || len(rf.chunks) != req.TotalChunks {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var content []byte
	for n := 1; n <= req.TotalChunks; n++ {
		content = append(content, rf.chunks[n]...)
	}

	assert.Equal(f.t, req.TotalSize, int64(len(content)))

	rf.content = content
	rf.completed = true
	rf.item.Size = int64(len(content))

	writeJSON(w, result("ok"))
}

// query reports completed files ACTIVE on their second poll.
func (f *fakePlatform) query(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"geid"`
	}
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []platform.Item

	for _, id := range req.IDs {
		rf := f.files[id]
		if rf == nil || (rf.completed && f.forgetCompleted) {
			continue
		}

		if rf.completed && rf.item.Status == platform.StatusRegistered {
			rf.polls++
			if rf.polls > 1 {
				rf.item.Status = platform.StatusActive
			}
		}

		out = append(out, rf.item)
	}

	writeJSON(w, result(out))
}

func (f *fakePlatform) attach(w http.ResponseWriter, r *http.Request) {
	var req platform.AttachRequest
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAttach {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.attached = append(f.attached, req)

	writeJSON(w, result("ok"))
}

func (f *fakePlatform) prepare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Files []struct {
			ID string `json:"id"`
		} `json:"files"`
	}
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, len(req.Files))
	for i, file := range req.Files {
		ids[i] = file.ID
	}

	f.prepares = append(f.prepares, ids)

	if len(ids) == 1 {
		if rf := f.files[ids[0]]; rf != nil {
			writeJSON(w, result(map[string]any{
				"status":  platform.JobSucceed,
				"payload": map[string]string{"url": f.srv.URL + "/s3get/" + ids[0]},
			}))

			return
		}
	}

	writeJSON(w, result(map[string]any{
		"status":  platform.JobWaiting,
		"payload": map[string]string{"hash_code": f.hashCode()},
	}))
}

func (f *fakePlatform) hashCode() string {
	claims := jwt.MapClaims{"file_path": f.archivePath, "exp": time.Now().Add(time.Hour).Unix()}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("download-key"))
	assert.NoError(f.t, err)

	return s
}

func (f *fakePlatform) downloadStatus(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status := platform.JobSucceed
	if f.statusPolls < len(f.statusSeq) {
		status = f.statusSeq[f.statusPolls]
	}

	f.statusPolls++

	writeJSON(w, result(map[string]any{"status": status}))
}

func (f *fakePlatform) downloadArchive(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	body := f.archive
	short := f.shortArchive
	f.mu.Unlock()

	w.Header().Set("Content-Length", strconv.Itoa(len(body)))

	if short {
		_, _ = w.Write(body[:len(body)/2])
		return
	}

	_, _ = w.Write(body)
}

func (f *fakePlatform) getObject(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	rf := f.files[r.PathValue("item")]
	f.mu.Unlock()

	if rf == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(rf.content)))
	_, _ = w.Write(rf.content)
}

func etagOf(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // test helper

	return base64.StdEncoding.EncodeToString(sum[:])
}

// testBytes returns n deterministic bytes.
func testBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}

	return b
}

func writeLocal(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))

	return p
}

type testEnv struct {
	fake   *fakePlatform
	client *platform.Client
	out    *ui.Recorder
	up     *Uploader
	down   *Downloader
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fake := newFakePlatform(t)
	client := fake.client(staticTokens{})
	out := ui.NewRecorder(true)

	up := NewUploader(client, out, UploaderConfig{ChunkSize: testChunk, BatchSize: 2}, discardLogger())
	up.sleep = noSleep

	down := NewDownloader(client, out, nil, discardLogger())
	down.sleep = noSleep

	return &testEnv{fake: fake, client: client, out: out, up: up, down: down, dir: t.TempDir()}
}

func (e *testEnv) driver(threads int) *Driver {
	return NewDriver(e.up, e.down, nil, threads, discardLogger())
}

func (e *testEnv) manifestPath() string {
	return filepath.Join(e.dir, "resume.json")
}
