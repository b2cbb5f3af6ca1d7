package transfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotdata/pilotcli/internal/clierr"
	"github.com/pilotdata/pilotcli/internal/platform"
)

// A 3 MiB file with 2 MiB chunks: one pre-upload, two PUTs, one
// completion, and the item ends ACTIVE.
func TestUpload_SingleFileTwoChunks(t *testing.T) {
	env := newTestEnv(t)
	data := testBytes(3 << 20)
	local := writeLocal(t, env.dir, "scan.bin", data)

	sum, err := env.driver(2).Upload(t.Context(), UploadOptions{
		Target:       "proj/users/alice",
		Locals:       []string{local},
		Zone:         platform.ZoneGreen,
		ManifestPath: env.manifestPath(),
		Operator:     "alice",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Uploaded)
	assert.Equal(t, int64(3<<20), sum.Bytes)

	f := env.fake
	require.Len(t, f.preUploads, 1)
	assert.Equal(t, platform.JobAsFile, f.preUploads[0].JobType)
	assert.Equal(t, "greenroom", f.preUploads[0].Zone)
	assert.Equal(t, "alice", f.preUploads[0].Operator)
	require.Len(t, f.preUploads[0].Data, 1)
	assert.Equal(t, "users/alice", f.preUploads[0].Data[0].RelativePath)

	assert.ElementsMatch(t, []int{1, 2}, f.puts)
	require.Len(t, f.completes, 1)
	assert.Equal(t, 2, f.completes[0].TotalChunks)

	rf := f.fileByPath("users/alice/scan.bin")
	require.NotNil(t, rf)
	assert.Equal(t, platform.StatusActive, rf.item.Status)
	assert.Equal(t, data, rf.content)

	// Every chunk but the last is exactly one chunk long.
	assert.Len(t, rf.chunks[1], testChunk)
	assert.Less(t, len(rf.chunks[2]), testChunk)

	_, err = os.Stat(env.manifestPath())
	assert.True(t, os.IsNotExist(err), "manifest removed after success")

	cur, done, _ := env.out.Bar("scan.bin").State()
	assert.Equal(t, int64(3<<20), cur)
	assert.True(t, done)
}

func TestUpload_FolderPreservesRelativePaths(t *testing.T) {
	env := newTestEnv(t)
	root := filepath.Join(env.dir, "results")
	writeLocal(t, root, "a.txt", []byte("alpha"))
	writeLocal(t, root, "sub/b.txt", []byte("bravo"))
	writeLocal(t, root, "sub/c.txt", []byte("charlie"))
	writeLocal(t, root, "empty.txt", nil)

	sum, err := env.driver(2).Upload(t.Context(), UploadOptions{
		Target:       "proj/users/alice",
		Locals:       []string{root},
		Zone:         platform.ZoneGreen,
		ManifestPath: env.manifestPath(),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Uploaded)

	f := env.fake

	// Batch size 2 splits three files into two calls.
	require.Len(t, f.preUploads, 2)
	assert.Equal(t, platform.JobAsFolder, f.preUploads[0].JobType)

	for _, p := range []string{"users/alice/results/a.txt", "users/alice/results/sub/b.txt", "users/alice/results/sub/c.txt"} {
		rf := f.fileByPath(p)
		require.NotNil(t, rf, p)
		assert.Equal(t, platform.StatusActive, rf.item.Status)
	}

	assert.Nil(t, f.fileByPath("users/alice/results/empty.txt"))
	assert.Len(t, env.out.Warnings, 1)
}

func TestUpload_ZeroByteOnlyIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	local := writeLocal(t, env.dir, "empty.txt", nil)

	_, err := env.driver(1).Upload(t.Context(), UploadOptions{
		Target: "proj/users/alice", Locals: []string{local}, ManifestPath: env.manifestPath(),
	})
	require.ErrorIs(t, err, clierr.FolderEmpty)
	assert.Empty(t, env.fake.preUploads)
}

func TestUpload_ZipArchivesFolder(t *testing.T) {
	env := newTestEnv(t)
	root := filepath.Join(env.dir, "results")
	writeLocal(t, root, "a.txt", []byte("alpha"))
	writeLocal(t, root, "sub/b.txt", []byte("bravo"))

	_, err := env.driver(1).Upload(t.Context(), UploadOptions{
		Target: "proj/users/alice", Locals: []string{root}, Zip: true, ManifestPath: env.manifestPath(),
	})
	require.NoError(t, err)

	require.Len(t, env.fake.preUploads, 1)
	assert.Equal(t, platform.JobAsFile, env.fake.preUploads[0].JobType)
	assert.NotNil(t, env.fake.fileByPath("users/alice/results.zip"))

	dirs, err := filepath.Glob(filepath.Join(env.dir, ".pilotcli-zip-*"))
	require.NoError(t, err)
	assert.Empty(t, dirs)
}

func TestUpload_ItemGoneAfterCompleteFails(t *testing.T) {
	env := newTestEnv(t)
	env.fake.forgetCompleted = true
	local := writeLocal(t, env.dir, "a.txt", []byte("alpha"))

	sum, err := env.driver(1).Upload(t.Context(), UploadOptions{
		Target: "proj/users/alice", Locals: []string{local}, ManifestPath: env.manifestPath(),
	})
	require.ErrorIs(t, err, clierr.UploadFail)
	assert.Contains(t, err.Error(), "no longer known")
	assert.Equal(t, 1, sum.Failed)
	assert.True(t, sum.Kept)
}

// Upload into users/alice/newdir/sub when newdir is missing: after the
// prompt, one batch creates both folders and the upload lands in sub.
func TestUpload_CreatesMissingFolders(t *testing.T) {
	env := newTestEnv(t)
	local := writeLocal(t, env.dir, "a.txt", []byte("alpha"))

	_, err := env.driver(1).Upload(t.Context(), UploadOptions{
		Target: "proj/users/alice/newdir/sub", Locals: []string{local}, ManifestPath: env.manifestPath(),
	})
	require.NoError(t, err)

	f := env.fake
	require.Len(t, f.folderBatch, 1)
	require.Len(t, f.folderBatch[0], 2)
	assert.Equal(t, "newdir", f.folderBatch[0][0].Name)
	assert.Equal(t, f.folderBatch[0][0].ItemID, f.folderBatch[0][1].ParentID)

	assert.Len(t, env.out.Prompts, 1)
	assert.Equal(t, f.folderBatch[0][1].ItemID, f.preUploads[0].ParentFolderID)
	assert.NotNil(t, f.fileByPath("users/alice/newdir/sub/a.txt"))
}

func TestUpload_DeclineFolderCreation(t *testing.T) {
	env := newTestEnv(t)
	env.out.Default = false
	local := writeLocal(t, env.dir, "a.txt", []byte("alpha"))

	_, err := env.driver(1).Upload(t.Context(), UploadOptions{
		Target: "proj/users/alice/newdir", Locals: []string{local}, ManifestPath: env.manifestPath(),
	})
	require.ErrorIs(t, err, clierr.UploadCancel)
	assert.Empty(t, env.fake.folderBatch)
	assert.Empty(t, env.fake.preUploads)
}

func TestUpload_AllDuplicatesCancel(t *testing.T) {
	env := newTestEnv(t)
	env.fake.addActiveFile("users/alice/A.TXT", []byte("old"))
	local := writeLocal(t, env.dir, "a.txt", []byte("alpha"))

	_, err := env.driver(1).Upload(t.Context(), UploadOptions{
		Target: "proj/users/alice", Locals: []string{local}, ManifestPath: env.manifestPath(),
	})
	require.ErrorIs(t, err, clierr.UploadCancel)
	assert.Empty(t, env.fake.preUploads)
}

func TestUpload_SomeDuplicatesSkippedAfterConfirm(t *testing.T) {
	env := newTestEnv(t)
	env.fake.addActiveFile("users/alice/a.txt", []byte("old"))
	a := writeLocal(t, env.dir, "a.txt", []byte("alpha"))
	b := writeLocal(t, env.dir, "b.txt", []byte("bravo"))

	_, err := env.driver(1).Upload(t.Context(), UploadOptions{
		Target: "proj/users/alice", Locals: []string{a, b}, ManifestPath: env.manifestPath(),
	})
	require.NoError(t, err)

	require.Len(t, env.fake.preUploads, 1)
	require.Len(t, env.fake.preUploads[0].Data, 1)
	assert.Equal(t, "b.txt", env.fake.preUploads[0].Data[0].FileName)
	assert.Len(t, env.out.Prompts, 1)
}

func TestUpload_SomeDuplicatesDeclined(t *testing.T) {
	env := newTestEnv(t)
	env.out.Default = false
	env.fake.addActiveFile("users/alice/a.txt", []byte("old"))
	a := writeLocal(t, env.dir, "a.txt", []byte("alpha"))
	b := writeLocal(t, env.dir, "b.txt", []byte("bravo"))

	_, err := env.driver(1).Upload(t.Context(), UploadOptions{
		Target: "proj/users/alice", Locals: []string{a, b}, ManifestPath: env.manifestPath(),
	})
	require.ErrorIs(t, err, clierr.UploadCancel)
	assert.Empty(t, env.fake.preUploads)
}

func TestUpload_ExistingManifestNeedsConfirmation(t *testing.T) {
	env := newTestEnv(t)
	env.out.Default = false
	require.NoError(t, os.WriteFile(env.manifestPath(), []byte("{}"), 0o600))
	local := writeLocal(t, env.dir, "a.txt", []byte("alpha"))

	_, err := env.driver(1).Upload(t.Context(), UploadOptions{
		Target: "proj/users/alice", Locals: []string{local}, ManifestPath: env.manifestPath(),
	})
	require.ErrorIs(t, err, clierr.UploadCancel)

	got, err := os.ReadFile(env.manifestPath())
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got))
}

func TestUpload_TagsAndAttributes(t *testing.T) {
	env := newTestEnv(t)
	env.fake.templates = []platform.AttributeTemplate{{
		ID:   "m-1",
		Name: "imaging",
		Attributes: []platform.AttributeSpec{
			{Name: "modality", Type: platform.AttrMultipleChoice, Options: []string{"MRI", "CT"}},
			{Name: "note", Type: platform.AttrText, Optional: true},
		},
	}}

	attrFile := writeLocal(t, env.dir, "attrs.json", []byte(`{"imaging": {"modality": "MRI"}}`))
	local := writeLocal(t, env.dir, "a.txt", []byte("alpha"))

	_, err := env.driver(1).Upload(t.Context(), UploadOptions{
		Target:        "proj/users/alice",
		Locals:        []string{local},
		Tags:          []string{"raw", "raw", "batch-7"},
		AttributeFile: attrFile,
		ManifestPath:  env.manifestPath(),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"raw", "batch-7"}, env.fake.preUploads[0].FolderTags)

	require.Len(t, env.fake.attached, 1)
	att := env.fake.attached[0]
	assert.Equal(t, "m-1", att.ManifestID)
	assert.Equal(t, map[string]string{"modality": "MRI"}, att.Attributes)
	assert.Equal(t, env.fake.fileByPath("users/alice/a.txt").item.ID, att.ItemID)
}

func TestUpload_InvalidAttributesFailBeforeUpload(t *testing.T) {
	env := newTestEnv(t)
	env.fake.templates = []platform.AttributeTemplate{{
		ID: "m-1", Name: "imaging",
		Attributes: []platform.AttributeSpec{{Name: "modality", Type: platform.AttrMultipleChoice, Options: []string{"MRI"}}},
	}}

	attrFile := writeLocal(t, env.dir, "attrs.json", []byte(`{"imaging": {"modality": "PET"}}`))
	local := writeLocal(t, env.dir, "a.txt", []byte("alpha"))

	_, err := env.driver(1).Upload(t.Context(), UploadOptions{
		Target: "proj/users/alice", Locals: []string{local}, AttributeFile: attrFile, ManifestPath: env.manifestPath(),
	})
	require.ErrorIs(t, err, clierr.InvalidAttribute)
	assert.Empty(t, env.fake.preUploads)
}

func TestUpload_ChunkFailureFailsOnlyThatFile(t *testing.T) {
	env := newTestEnv(t)
	a := writeLocal(t, env.dir, "a.txt", []byte("alpha"))
	b := writeLocal(t, env.dir, "b.txt", []byte("bravo"))

	env.fake.failPut = func(item string, _ int) bool {
		rf := env.fake.files[item]
		return rf != nil && rf.item.Name == "a.txt"
	}

	sum, err := env.driver(2).Upload(t.Context(), UploadOptions{
		Target: "proj/users/alice", Locals: []string{a, b}, ManifestPath: env.manifestPath(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, clierr.UploadFail)

	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Uploaded)
	assert.True(t, sum.Kept)

	_, statErr := os.Stat(env.manifestPath())
	assert.NoError(t, statErr, "manifest kept for resume")

	assert.Equal(t, platform.StatusActive, env.fake.fileByPath("users/alice/b.txt").item.Status)
}

func TestUpload_InvalidTarget(t *testing.T) {
	env := newTestEnv(t)
	local := writeLocal(t, env.dir, "a.txt", []byte("alpha"))

	_, err := env.driver(1).Upload(t.Context(), UploadOptions{Target: "proj/home/alice", Locals: []string{local}})
	assert.ErrorIs(t, err, clierr.InvalidPath)

	_, err = env.driver(1).Upload(t.Context(), UploadOptions{Target: "proj/users/alice", Locals: []string{local}, Tags: []string{"Bad Tag"}})
	assert.ErrorIs(t, err, clierr.InvalidTag)
}
