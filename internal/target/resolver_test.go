package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotdata/pilotcli/internal/clierr"
	"github.com/pilotdata/pilotcli/internal/platform"
	"github.com/pilotdata/pilotcli/internal/ui"
)

func TestAssemblePath_Existing(t *testing.T) {
	fp := newFakePlatform()
	fp.addFolder("ns", "users/alice")
	fp.addFolder("data", "users/alice/data")

	rec := ui.NewRecorder(false)
	r := NewResolver(fp, rec, discardLogger())

	tgt, err := IdentifyTargetFolder("proj/users/alice/data", false)
	require.NoError(t, err)

	p, err := r.AssemblePath(t.Context(), "/tmp/x/file.txt", tgt, platform.ZoneGreen)
	require.NoError(t, err)

	assert.False(t, p.MustCreate)
	assert.Equal(t, "data", p.Parent.ID)
	assert.Equal(t, "users/alice/data/file.txt", p.ObjectPath)
	assert.Empty(t, rec.Prompts)
}

func TestAssemblePath_MissingNamespace(t *testing.T) {
	fp := newFakePlatform()
	r := NewResolver(fp, ui.NewRecorder(true), discardLogger())

	tgt, err := IdentifyTargetFolder("proj/users/bob/data", false)
	require.NoError(t, err)

	_, err = r.AssemblePath(t.Context(), "", tgt, platform.ZoneGreen)
	assert.ErrorIs(t, err, clierr.InvalidPath)
}

func TestAssemblePath_DeclineCancels(t *testing.T) {
	fp := newFakePlatform()
	fp.addFolder("ns", "users/alice")

	rec := ui.NewRecorder(false)
	r := NewResolver(fp, rec, discardLogger())

	tgt, err := IdentifyTargetFolder("proj/users/alice/newdir", false)
	require.NoError(t, err)

	_, err = r.AssemblePath(t.Context(), "", tgt, platform.ZoneGreen)
	assert.ErrorIs(t, err, clierr.UploadCancel)
	assert.Len(t, rec.Prompts, 1)
}

func TestAssemblePath_FileInTheWay(t *testing.T) {
	fp := newFakePlatform()
	fp.addFolder("ns", "users/alice")
	fp.add("f", "users/alice/notes", platform.TypeFile, platform.StatusActive)

	r := NewResolver(fp, ui.NewRecorder(true), discardLogger())

	tgt, err := IdentifyTargetFolder("proj/users/alice/notes/sub", false)
	require.NoError(t, err)

	_, err = r.AssemblePath(t.Context(), "", tgt, platform.ZoneGreen)
	assert.ErrorIs(t, err, clierr.InvalidPath)
}

// Upload into users/alice/newdir/sub when newdir is missing: one prompt,
// then one batch creating newdir and sub chained from alice's folder.
func TestAssemblePath_CreateMissingChain(t *testing.T) {
	fp := newFakePlatform()
	fp.addFolder("alice-id", "users/alice")

	rec := ui.NewRecorder(true)
	r := NewResolver(fp, rec, discardLogger())

	tgt, err := IdentifyTargetFolder("proj/users/alice/newdir/sub", false)
	require.NoError(t, err)

	p, err := r.AssemblePath(t.Context(), "", tgt, platform.ZoneGreen)
	require.NoError(t, err)

	assert.True(t, p.MustCreate)
	assert.Equal(t, "alice-id", p.Parent.ID)
	assert.Equal(t, []string{"newdir", "sub"}, p.Missing)
	assert.Len(t, rec.Prompts, 1)

	deepest, err := r.CreateFolders(t.Context(), "proj", platform.ZoneGreen, p.Parent, p.ParentPath, p.Missing)
	require.NoError(t, err)

	require.Len(t, fp.batches, 1)
	batch := fp.batches[0]
	require.Len(t, batch, 2)

	assert.Equal(t, "alice-id", fp.batchPID[0])
	assert.Equal(t, "newdir", batch[0].Name)
	assert.Equal(t, "alice-id", batch[0].ParentID)
	assert.Equal(t, "users/alice", batch[0].ParentPath)
	assert.Equal(t, "sub", batch[1].Name)
	assert.Equal(t, batch[0].ItemID, batch[1].ParentID)
	assert.Equal(t, "users/alice/newdir", batch[1].ParentPath)

	assert.Equal(t, batch[1].ItemID, deepest.ID)

	// The created chain is now found by search.
	item, err := r.SearchItem(t.Context(), "proj", platform.ZoneGreen, "users/alice/newdir/sub", platform.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, deepest.ID, item.ID)
}

func TestCreateFolders_NothingMissing(t *testing.T) {
	fp := newFakePlatform()
	r := NewResolver(fp, ui.NewRecorder(true), discardLogger())

	parent := &platform.Item{ID: "p"}
	got, err := r.CreateFolders(t.Context(), "proj", platform.ZoneGreen, parent, "users/a", nil)
	require.NoError(t, err)

	assert.Same(t, parent, got)
	assert.Empty(t, fp.batches)
}

func TestFolderChain_RejectsInvalidName(t *testing.T) {
	_, err := FolderChain("p", "users/a", []string{"ok", "bad.name"})
	assert.ErrorIs(t, err, clierr.InvalidFolderName)
}

func TestCheckDuplicates_CaseInsensitive(t *testing.T) {
	fp := newFakePlatform()
	fp.add("1", "users/alice/a.txt", platform.TypeFile, platform.StatusActive)

	r := NewResolver(fp, ui.NewRecorder(true), discardLogger())

	dups, err := r.CheckDuplicates(t.Context(), "proj", platform.ZoneGreen,
		[]string{"users/alice/A.TXT", "users/alice/b.txt"})
	require.NoError(t, err)

	assert.Equal(t, []string{"users/alice/A.TXT"}, dups)
}

func TestMatchFold(t *testing.T) {
	got := matchFold([]string{"X/Ärger", "x/other"}, []string{"x/äRGER"})
	assert.Equal(t, []string{"X/Ärger"}, got)
}
