package recordstore

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/models"
)

const storePath = "/data/mobile_phones.json"

func newStore(t *testing.T, fs afero.Fs) *FileStore {
	t.Helper()
	return NewFileStore(fs, storePath, arbor.NewLogger())
}

func TestFileStore_SaveLoadPreservesOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newStore(t, fs)
	ctx := context.Background()

	a := models.NewListingRecord("Phone A", "9,999", "https://shop.test/a")
	a = a.Merge("<p>fast & light</p>", []string{"m1", "m2"}, models.DefaultMaxMedia)
	a.Set(models.FieldPublished, false)
	b := models.NewListingRecord("Phone B", "19,999", "https://shop.test/b")

	require.NoError(t, store.Save(ctx, []*models.Record{a, b}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, a.Keys(), loaded[0].Keys())
	assert.Equal(t, b.Keys(), loaded[1].Keys())
	assert.Equal(t, "<p>fast & light</p>", loaded[0].DetailText())

	// re-encoding the loaded collection is byte-identical to the file
	onDisk, err := afero.ReadFile(fs, storePath)
	require.NoError(t, err)
	again, err := Encode(loaded)
	require.NoError(t, err)
	assert.Equal(t, string(onDisk), string(again))
}

func TestFileStore_PersistedLayout(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newStore(t, fs)

	r := models.NewListingRecord("Phone", "1", "https://shop.test/p?x=1&y=2")
	require.NoError(t, store.Save(context.Background(), []*models.Record{r}))

	data, err := afero.ReadFile(fs, storePath)
	require.NoError(t, err)
	assert.Equal(t, `[
    {
        "product_name": "Phone",
        "product_price": "1",
        "product_url": "https://shop.test/p?x=1&y=2"
    }
]
`, string(data))
}

func TestFileStore_LoadMissing(t *testing.T) {
	_, err := newStore(t, afero.NewMemMapFs()).Load(context.Background())
	assert.ErrorIs(t, err, ErrStoreNotFound)
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"truncated", `[{"product_url": "a"`},
		{"null", "null"},
		{"not an array", `{"product_url": "a"}`},
		{"null entry", `[null]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, storePath, []byte(tt.content), 0o644))

			_, err := newStore(t, fs).Load(context.Background())
			assert.ErrorIs(t, err, ErrCorruptStore)
		})
	}
}

func TestFileStore_EmptyCollection(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newStore(t, fs)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, nil))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFileStore_FailedSaveKeepsPreviousCheckpoint(t *testing.T) {
	base := afero.NewMemMapFs()
	ctx := context.Background()

	first := []*models.Record{models.NewListingRecord("Phone", "1", "https://shop.test/a")}
	require.NoError(t, newStore(t, base).Save(ctx, first))
	before, err := afero.ReadFile(base, storePath)
	require.NoError(t, err)

	readOnly := newStore(t, afero.NewReadOnlyFs(base))
	err = readOnly.Save(ctx, []*models.Record{})
	require.Error(t, err)

	after, err := afero.ReadFile(base, storePath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newStore(t, fs)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, []*models.Record{models.NewRecord()}))
	}

	entries, err := afero.ReadDir(fs, "/data")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "mobile_phones.json", entries[0].Name())
	assert.Equal(t, storePath, store.Path())
}
