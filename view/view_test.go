package view

import (
	"context"
	"testing"
	"time"

	"github.com/brettbedarf/webmirror"
	"github.com/brettbedarf/webmirror/config"
	"github.com/brettbedarf/webmirror/filesystem"
	"github.com/brettbedarf/webmirror/internal/mocks"
	"github.com/brettbedarf/webmirror/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T, names ...string) *filesystem.FileSystem {
	t.Helper()
	fs, err := filesystem.NewFS(context.Background(), nil)
	require.NoError(t, err)
	attrs := make([]filesystem.Attrs, len(names))
	for i, name := range names {
		attrs[i] = filesystem.Attrs{Name: name, Kind: webmirror.KindText}
	}
	_, err = fs.InsertMany(context.Background(), fs.Root().ID, attrs)
	require.NoError(t, err)
	return fs
}

func keys(sections []Section) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = s.Key
	}
	return out
}

func names(s Section) []string {
	out := make([]string, len(s.Items))
	for i, n := range s.Items {
		out[i] = n.Name
	}
	return out
}

func TestSections_PartitionAndOrder(t *testing.T) {
	t.Parallel()
	fs := newTestFS(t, "beta", "Alpha", "apple", "Banana", "ämter", "Zed", "1.txt")

	sections, err := Sections(fs, fs.Root().ID, "")

	require.NoError(t, err)
	assert.Equal(t, []string{"1", "A", "B", "Z", "Ä"}, keys(sections))
	assert.Equal(t, []string{"Alpha", "apple"}, names(sections[1]))
	assert.Equal(t, []string{"Banana", "beta"}, names(sections[2]))
	assert.Equal(t, 7, Count(sections))
}

func TestSections_EmptyNameExcluded(t *testing.T) {
	t.Parallel()
	fs := newTestFS(t, "", "a")

	sections, err := Sections(fs, fs.Root().ID, "")

	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "A", sections[0].Key)
}

func TestSections_CaseTieBreakIsStable(t *testing.T) {
	t.Parallel()
	fs := newTestFS(t, "readme", "README", "ReadMe")

	sections, err := Sections(fs, fs.Root().ID, "")

	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, []string{"README", "ReadMe", "readme"}, names(sections[0]))
}

func TestSections_Search(t *testing.T) {
	t.Parallel()
	fs := newTestFS(t, "Image.png", "my image", "notes")

	sections, err := Sections(fs, fs.Root().ID, "IMA")

	require.NoError(t, err)
	assert.Equal(t, []string{"I", "M"}, keys(sections))

	sections, err = Sections(fs, fs.Root().ID, "nothing")
	require.NoError(t, err)
	assert.Empty(t, sections)
}

func TestSections_UnknownNode(t *testing.T) {
	t.Parallel()
	fs := newTestFS(t)

	_, err := Sections(fs, "missing", "")
	assert.ErrorIs(t, err, webmirror.ErrNodeNotFound)
}

func TestSections_AfterSync(t *testing.T) {
	t.Parallel()
	fs := newTestFS(t)
	root := fs.Root()
	remote := &mocks.MockRemoteStore{}
	mtime := time.Unix(1469711432, 0)
	remote.On("ListDirectory", mock.Anything, "").Return([]string{"folder", "image"}, nil)
	remote.On("FetchMetadata", mock.Anything, "", "folder").
		Return(&webmirror.ItemMetadata{Mimetype: "inode/directory", ModifiedAt: &mtime}, nil)
	remote.On("FetchMetadata", mock.Anything, "", "image").
		Return(&webmirror.ItemMetadata{Mimetype: "image/jpeg", ModifiedAt: &mtime}, nil)

	rec := reconcile.New(fs, remote, nil, nil, reconcile.Options{SyncPolicy: config.SyncPolicyQueue, CreateStubs: true})
	_, err := rec.Sync(context.Background(), root.ID)
	require.NoError(t, err)

	sections, err := Sections(fs, root.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"F", "I"}, keys(sections))
	assert.Equal(t, []string{"folder"}, names(sections[0]))
	assert.Equal(t, webmirror.KindDirectory, sections[0].Items[0].Kind)
	assert.Equal(t, []string{"image"}, names(sections[1]))
	assert.Equal(t, webmirror.KindStaticImage, sections[1].Items[0].Kind)

	sections, err = Sections(fs, root.ID, "ima")
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "I", sections[0].Key)
	assert.Equal(t, []string{"image"}, names(sections[0]))
}

func TestSections_EmptyListingClearsStaleChildren(t *testing.T) {
	t.Parallel()
	fs := newTestFS(t, "old", "stale")
	remote := &mocks.MockRemoteStore{}
	remote.On("ListDirectory", mock.Anything, "").Return([]string{}, nil)

	rec := reconcile.New(fs, remote, nil, nil, reconcile.Options{})
	_, err := rec.Sync(context.Background(), fs.Root().ID)
	require.NoError(t, err)

	sections, err := Sections(fs, fs.Root().ID, "")
	require.NoError(t, err)
	assert.Empty(t, sections)
}
