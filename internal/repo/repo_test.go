// internal/repo/repo_test.go
package repo

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wit/internal/diff"
	"wit/internal/errors"
	"wit/internal/reflog"
	"wit/internal/refs"
	"wit/internal/status"
)

func setupTestRepo(t *testing.T) *Repo {
	t.Helper()
	dir := t.TempDir()

	_, err := Init(dir, nil)
	require.NoError(t, err)

	r, err := Open(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func writeFile(t *testing.T, r *Repo, rel, content string) string {
	t.Helper()
	path := filepath.Join(r.Layout.Root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func readFile(t *testing.T, r *Repo, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.Layout.Root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// commitFile writes, stages and commits a single file.
func commitFile(t *testing.T, r *Repo, rel, content, message string) string {
	t.Helper()
	_, err := r.Add(writeFile(t, r, rel, content))
	require.NoError(t, err)
	id, err := r.Commit(message)
	require.NoError(t, err)
	return id
}

func loadRefs(t *testing.T, r *Repo) *refs.Set {
	t.Helper()
	set, err := r.References()
	require.NoError(t, err)
	return set
}

func branchAt(t *testing.T, r *Repo, name string) string {
	t.Helper()
	id, ok := loadRefs(t, r).BranchCommit(name)
	require.True(t, ok, "branch %s missing", name)
	return id
}

func TestInit(t *testing.T) {
	r := setupTestRepo(t)

	active, err := os.ReadFile(r.Layout.ActiveBranch)
	require.NoError(t, err)
	assert.Equal(t, "master", string(active))
	assert.NoFileExists(t, r.Layout.References)
	assert.DirExists(t, r.Layout.StagingArea)
	assert.DirExists(t, r.Layout.Images)

	_, err = Init(r.Layout.Root, nil)
	assert.True(t, errors.Is(err, errors.ErrorTypeAlreadyExists))

	nested := filepath.Join(r.Layout.Root, "sub")
	require.NoError(t, os.Mkdir(nested, 0755))
	_, err = Init(nested, nil)
	assert.True(t, errors.Is(err, errors.ErrorTypeAlreadyExists))
}

func TestOpenOutsideRepository(t *testing.T) {
	_, err := Open(t.TempDir(), nil)
	assert.True(t, errors.Is(err, errors.ErrorTypeNotFound))
}

func TestOperationsBeforeFirstCommit(t *testing.T) {
	r := setupTestRepo(t)

	_, err := r.Status()
	assert.True(t, errors.Is(err, errors.ErrorTypeStructural))

	_, err = r.Checkout("master")
	assert.True(t, errors.Is(err, errors.ErrorTypeStructural))

	_, err = r.Merge("master")
	assert.True(t, errors.Is(err, errors.ErrorTypeStructural))

	err = r.Branch("feature")
	assert.True(t, errors.Is(err, errors.ErrorTypeStructural))
}

func TestCommit(t *testing.T) {
	r := setupTestRepo(t)

	c1 := commitFile(t, r, "a.txt", "one", "first")
	assert.Len(t, c1, 32)

	set := loadRefs(t, r)
	assert.Equal(t, c1, set.Head)
	assert.Equal(t, c1, branchAt(t, r, "master"))
	assert.Equal(t, "master", set.Active)

	same, err := diff.Equal(r.Snapshots.Dir(c1), r.Staging.Dir())
	require.NoError(t, err)
	assert.True(t, same, "snapshot should equal the staging area")

	pending, err := r.Staging.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	meta, err := r.Snapshots.Meta(c1)
	require.NoError(t, err)
	assert.Empty(t, meta.Parents)
	assert.Equal(t, "first", meta.Message)

	c2 := commitFile(t, r, "a.txt", "two", "second")
	meta, err = r.Snapshots.Meta(c2)
	require.NoError(t, err)
	assert.Equal(t, []string{c1}, meta.Parents)
	assert.Equal(t, c2, branchAt(t, r, "master"))

	log, err := os.ReadFile(r.Layout.Parents)
	require.NoError(t, err)
	assert.Equal(t, c1+"=\n"+c2+"="+c1+"\n", string(log))
}

func TestCommitIgnoresWorkingTree(t *testing.T) {
	r := setupTestRepo(t)
	c1 := commitFile(t, r, "a.txt", "one", "first")

	writeFile(t, r, "a.txt", "edited but not staged")
	c2, err := r.Commit("nothing staged")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(r.Snapshots.Dir(c2), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
	assert.NotEqual(t, c1, c2)
}

func TestCommitRequiresMessage(t *testing.T) {
	r := setupTestRepo(t)
	writeFile(t, r, "a.txt", "one")

	_, err := r.Commit("  ")
	assert.True(t, errors.Is(err, errors.ErrorTypeValidation))
	assert.NoFileExists(t, r.Layout.References)
}

func TestStatus(t *testing.T) {
	r := setupTestRepo(t)
	c1 := commitFile(t, r, "a.txt", "one", "first")

	writeFile(t, r, "a.txt", "changed")
	writeFile(t, r, "notes/new.txt", "new")

	report, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, c1, report.Head)
	assert.Empty(t, report.ToBeCommitted)
	assert.Equal(t, []string{"a.txt"}, report.NotStaged)
	assert.Equal(t, []string{"notes/new.txt"}, report.Untracked)
	assert.False(t, report.Clean())

	_, err = r.Add(filepath.Join(r.Layout.Root, "a.txt"))
	require.NoError(t, err)
	report, err = r.Status()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, report.ToBeCommitted)
	assert.Empty(t, report.NotStaged)
}

func TestCheckoutRoundTrip(t *testing.T) {
	r := setupTestRepo(t)
	c1 := commitFile(t, r, "a.txt", "one", "first")
	c2 := commitFile(t, r, "a.txt", "two", "second")

	target, err := r.Checkout(c1[:8])
	require.NoError(t, err)
	assert.Equal(t, c1, target.ID)
	assert.Equal(t, refs.KindCommit, target.Kind)
	assert.Equal(t, "one", readFile(t, r, "a.txt"))

	set := loadRefs(t, r)
	assert.Equal(t, c1, set.Head)
	assert.Empty(t, set.Active, "checking out an id detaches HEAD")
	assert.Equal(t, c2, branchAt(t, r, "master"), "detached checkout must not move master")

	same, err := diff.Equal(r.Snapshots.Dir(c1), r.Staging.Dir())
	require.NoError(t, err)
	assert.True(t, same)

	target, err = r.Checkout("master")
	require.NoError(t, err)
	assert.Equal(t, refs.KindBranch, target.Kind)
	assert.Equal(t, "two", readFile(t, r, "a.txt"))

	set = loadRefs(t, r)
	assert.Equal(t, c2, set.Head)
	assert.Equal(t, "master", set.Active)
}

func TestCheckoutHeadKeepsActiveBranch(t *testing.T) {
	r := setupTestRepo(t)
	c1 := commitFile(t, r, "a.txt", "one", "first")

	target, err := r.Checkout("HEAD")
	require.NoError(t, err)
	assert.Equal(t, refs.KindHead, target.Kind)
	assert.Equal(t, c1, target.ID)
	assert.Equal(t, "master", loadRefs(t, r).Active)
}

func TestCheckoutRemovesTrackedFilesAndKeepsUntracked(t *testing.T) {
	r := setupTestRepo(t)
	c1 := commitFile(t, r, "a.txt", "one", "first")
	commitFile(t, r, "dir/b.txt", "bee", "second")
	writeFile(t, r, "scratch.txt", "mine")
	require.NoError(t, os.MkdirAll(filepath.Join(r.Layout.Root, "build", "out"), 0755))

	_, err := r.Checkout(c1)
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(r.Layout.Root, "build", "out"), "empty untracked directories are kept")

	assert.NoFileExists(t, filepath.Join(r.Layout.Root, "dir", "b.txt"))
	assert.NoDirExists(t, filepath.Join(r.Layout.Root, "dir"))
	assert.Equal(t, "mine", readFile(t, r, "scratch.txt"))
	assert.Equal(t, "one", readFile(t, r, "a.txt"))
	assert.DirExists(t, r.Layout.Meta)
}

func TestCheckoutRefusedWhenDirty(t *testing.T) {
	tests := []struct {
		name  string
		dirty func(t *testing.T, r *Repo)
	}{
		{
			name: "changes to be committed",
			dirty: func(t *testing.T, r *Repo) {
				_, err := r.Add(writeFile(t, r, "c.txt", "staged"))
				require.NoError(t, err)
			},
		},
		{
			name: "changes not staged",
			dirty: func(t *testing.T, r *Repo) {
				writeFile(t, r, "a.txt", "edited")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupTestRepo(t)
			c1 := commitFile(t, r, "a.txt", "one", "first")
			c2 := commitFile(t, r, "a.txt", "two", "second")
			tt.dirty(t, r)
			before := readFile(t, r, "a.txt")

			_, err := r.Checkout(c1)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrorTypePrecondition))
			report, ok := errors.DetailsOf(err).(*status.Report)
			require.True(t, ok, "error should carry the status report")
			assert.False(t, report.Clean())

			assert.Equal(t, before, readFile(t, r, "a.txt"))
			assert.Equal(t, c2, loadRefs(t, r).Head)
		})
	}
}

func TestCheckoutUnknownIndicator(t *testing.T) {
	r := setupTestRepo(t)
	commitFile(t, r, "a.txt", "one", "first")

	_, err := r.Checkout("nope")
	assert.True(t, errors.Is(err, errors.ErrorTypeNotFound))
}

func TestDetachedCommitLeavesBranchesAlone(t *testing.T) {
	r := setupTestRepo(t)
	c1 := commitFile(t, r, "a.txt", "one", "first")
	c2 := commitFile(t, r, "a.txt", "two", "second")

	_, err := r.Checkout(c1)
	require.NoError(t, err)
	c3 := commitFile(t, r, "b.txt", "bee", "detached")

	set := loadRefs(t, r)
	assert.Equal(t, c3, set.Head)
	assert.Equal(t, c2, branchAt(t, r, "master"))
}

func TestBranch(t *testing.T) {
	r := setupTestRepo(t)
	c1 := commitFile(t, r, "a.txt", "one", "first")

	require.NoError(t, r.Branch("feature"))
	assert.Equal(t, c1, branchAt(t, r, "feature"))
	assert.Equal(t, "master", loadRefs(t, r).Active, "creating a branch does not switch to it")

	err := r.Branch("feature")
	assert.True(t, errors.Is(err, errors.ErrorTypeAlreadyExists))

	err = r.Branch("HEAD")
	assert.True(t, errors.Is(err, errors.ErrorTypeValidation))

	c2 := commitFile(t, r, "a.txt", "two", "second")
	assert.Equal(t, c2, branchAt(t, r, "master"))
	assert.Equal(t, c1, branchAt(t, r, "feature"), "inactive branch stays put")
}

// setupDiverged builds master: c1 and feature: c1 <- c2 adding b.txt, then
// checks out master.
func setupDiverged(t *testing.T) (r *Repo, c1, c2 string) {
	t.Helper()
	r = setupTestRepo(t)
	c1 = commitFile(t, r, "a.txt", "one", "first")
	require.NoError(t, r.Branch("feature"))

	_, err := r.Checkout("feature")
	require.NoError(t, err)
	c2 = commitFile(t, r, "b.txt", "bee", "feature work")
	require.Equal(t, c2, branchAt(t, r, "feature"))
	require.Equal(t, c1, branchAt(t, r, "master"))

	_, err = r.Checkout("master")
	require.NoError(t, err)
	require.NoFileExists(t, filepath.Join(r.Layout.Root, "b.txt"))
	return r, c1, c2
}

func TestMerge(t *testing.T) {
	r, c1, c2 := setupDiverged(t)

	res, err := r.Merge("feature")
	require.NoError(t, err)
	assert.Equal(t, c1, res.Base)
	assert.Equal(t, c1, res.Head)
	assert.Equal(t, c2, res.Other.ID)
	assert.Equal(t, []string{"b.txt"}, res.Staged)
	assert.Empty(t, res.Overwritten)
	assert.Equal(t, "Merged "+c1[:6]+" (HEAD) with "+c2[:6]+" (feature).", res.Message)

	meta, err := r.Snapshots.Meta(res.Commit)
	require.NoError(t, err)
	assert.Equal(t, []string{c1, c2}, meta.Parents)
	assert.Equal(t, res.Message, meta.Message)

	files, err := diff.RelativePaths(r.Snapshots.Dir(res.Commit))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, diff.Sorted(files))
	assert.Equal(t, "bee", readFile(t, r, "b.txt"))

	set := loadRefs(t, r)
	assert.Equal(t, res.Commit, set.Head)
	assert.Equal(t, res.Commit, branchAt(t, r, "master"))
	assert.Equal(t, c2, branchAt(t, r, "feature"))

	report, err := r.Status()
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Empty(t, report.Untracked)
}

func TestMergeByCommitID(t *testing.T) {
	r, c1, c2 := setupDiverged(t)

	res, err := r.Merge(c2)
	require.NoError(t, err)
	assert.Equal(t, "Merged "+c1[:6]+" (HEAD) with "+c2[:6]+".", res.Message)
}

func TestMergeIncomingSideWins(t *testing.T) {
	r := setupTestRepo(t)
	commitFile(t, r, "a.txt", "one", "first")
	require.NoError(t, r.Branch("feature"))

	_, err := r.Checkout("feature")
	require.NoError(t, err)
	commitFile(t, r, "a.txt", "theirs", "feature edit")

	_, err = r.Checkout("master")
	require.NoError(t, err)
	commitFile(t, r, "a.txt", "ours", "master edit")

	res, err := r.Merge("feature")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, res.Overwritten)
	assert.Equal(t, "theirs", readFile(t, r, "a.txt"))

	data, err := os.ReadFile(filepath.Join(r.Snapshots.Dir(res.Commit), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "theirs", string(data))
}

func TestMergeDoesNotPropagateRemovals(t *testing.T) {
	r := setupTestRepo(t)
	commitFile(t, r, "a.txt", "one", "first")
	require.NoError(t, r.Branch("feature"))

	_, err := r.Checkout("feature")
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(r.Staging.Dir(), "a.txt")))
	require.NoError(t, os.Remove(filepath.Join(r.Layout.Root, "a.txt")))
	commitFile(t, r, "b.txt", "bee", "drop a, add b")

	_, err = r.Checkout("master")
	require.NoError(t, err)

	res, err := r.Merge("feature")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, res.NotPropagated)
	assert.Equal(t, "one", readFile(t, r, "a.txt"))

	files, err := diff.RelativePaths(r.Snapshots.Dir(res.Commit))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, diff.Sorted(files))
}

func TestMergeRefusedWhenDirty(t *testing.T) {
	tests := []struct {
		name  string
		dirty func(t *testing.T, r *Repo)
	}{
		{
			name: "staging differs from HEAD",
			dirty: func(t *testing.T, r *Repo) {
				_, err := r.Add(writeFile(t, r, "c.txt", "staged"))
				require.NoError(t, err)
			},
		},
		{
			name: "changes not staged",
			dirty: func(t *testing.T, r *Repo) {
				writeFile(t, r, "a.txt", "edited")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, c1, _ := setupDiverged(t)
			tt.dirty(t, r)

			refsBefore, err := os.ReadFile(r.Layout.References)
			require.NoError(t, err)
			logBefore, err := os.ReadFile(r.Layout.Parents)
			require.NoError(t, err)

			_, err = r.Merge("feature")
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrorTypePrecondition))
			report, ok := errors.DetailsOf(err).(*status.Report)
			require.True(t, ok, "error should carry the status report")
			assert.Equal(t, c1, report.Head)

			refsAfter, err := os.ReadFile(r.Layout.References)
			require.NoError(t, err)
			logAfter, err := os.ReadFile(r.Layout.Parents)
			require.NoError(t, err)
			assert.Equal(t, string(refsBefore), string(refsAfter))
			assert.Equal(t, string(logBefore), string(logAfter))
			assert.Equal(t, c1, loadRefs(t, r).Head)
			assert.NoFileExists(t, filepath.Join(r.Layout.Root, "b.txt"))
		})
	}
}

func TestMergeRefusesToOverwriteUntracked(t *testing.T) {
	r, c1, _ := setupDiverged(t)
	writeFile(t, r, "b.txt", "my untracked work")

	report, err := r.Status()
	require.NoError(t, err)
	require.Equal(t, []string{"b.txt"}, report.Untracked)
	logBefore, err := os.ReadFile(r.Layout.Parents)
	require.NoError(t, err)

	_, err = r.Merge("feature")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypePrecondition))
	assert.Contains(t, err.Error(), "b.txt")
	_, ok := errors.DetailsOf(err).(*status.Report)
	assert.True(t, ok)

	assert.Equal(t, "my untracked work", readFile(t, r, "b.txt"))
	assert.NoFileExists(t, filepath.Join(r.Staging.Dir(), "b.txt"))
	assert.Equal(t, c1, loadRefs(t, r).Head)
	logAfter, err := os.ReadFile(r.Layout.Parents)
	require.NoError(t, err)
	assert.Equal(t, string(logBefore), string(logAfter))
}

func TestLog(t *testing.T) {
	r, c1, c2 := setupDiverged(t)
	res, err := r.Merge("feature")
	require.NoError(t, err)

	metas, err := r.Log()
	require.NoError(t, err)
	var ids []string
	for _, m := range metas {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{res.Commit, c2, c1}, ids)
}

func TestVerify(t *testing.T) {
	r := setupTestRepo(t)
	c1 := commitFile(t, r, "a.txt", "one", "first")
	commitFile(t, r, "b.txt", "bee", "second")

	bad, err := r.Verify()
	require.NoError(t, err)
	assert.Empty(t, bad)

	require.NoError(t, os.WriteFile(filepath.Join(r.Snapshots.Dir(c1), "a.txt"), []byte("tampered"), 0644))
	bad, err = r.Verify()
	require.NoError(t, err)
	require.Len(t, bad, 1)
	assert.Equal(t, c1, bad[0].ID)
	assert.Equal(t, []string{"a.txt"}, bad[0].Damage.Modified)
}

func TestVerifyDetectsMissingSnapshot(t *testing.T) {
	r := setupTestRepo(t)
	c1 := commitFile(t, r, "a.txt", "one", "first")
	commitFile(t, r, "a.txt", "two", "second")

	require.NoError(t, os.RemoveAll(r.Snapshots.Dir(c1)))
	_, err := r.Verify()
	assert.True(t, errors.Is(err, errors.ErrorTypeStructural))
}

func TestArchive(t *testing.T) {
	r := setupTestRepo(t)
	commitFile(t, r, "a.txt", "one", "first")
	c2 := commitFile(t, r, "dir/b.txt", "bee", "second")

	var buf bytes.Buffer
	target, err := r.Archive("master", &buf)
	require.NoError(t, err)
	assert.Equal(t, c2, target.ID)

	dec, err := zstd.NewReader(&buf)
	require.NoError(t, err)
	defer dec.Close()

	contents := map[string]string{}
	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(data)
	}
	assert.Equal(t, map[string]string{"a.txt": "one", "dir/b.txt": "bee"}, contents)
}

func TestReflog(t *testing.T) {
	r := setupTestRepo(t)
	c1 := commitFile(t, r, "a.txt", "one", "first")
	c2 := commitFile(t, r, "a.txt", "two", "second")
	_, err := r.Checkout(c1)
	require.NoError(t, err)

	entries, err := r.ReflogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, reflog.OpCheckout, entries[0].Op)
	assert.Equal(t, c2, entries[0].Old)
	assert.Equal(t, c1, entries[0].New)
	assert.Equal(t, reflog.OpCommit, entries[1].Op)
	assert.Equal(t, c2, entries[1].New)
	assert.Equal(t, reflog.OpCommit, entries[2].Op)
	assert.Empty(t, entries[2].Old)
}

func TestReopenKeepsState(t *testing.T) {
	dir := t.TempDir()
	_, err := Init(dir, nil)
	require.NoError(t, err)

	r, err := Open(dir, nil)
	require.NoError(t, err)
	c1 := commitFile(t, r, "a.txt", "one", "first")
	require.NoError(t, r.Close())

	r, err = Open(dir, nil)
	require.NoError(t, err)
	defer r.Close()

	target, err := r.Resolve(c1[:refs.MinPrefix])
	require.NoError(t, err)
	assert.Equal(t, c1, target.ID)

	entries, err := r.ReflogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Message, "first"))
}
