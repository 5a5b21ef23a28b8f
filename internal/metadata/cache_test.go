package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/docrouter/internal/models"
)

type fakeSource struct {
	types     []models.DocumentType
	props     []models.Property
	collators []models.CollatorPath
	err       error
	calls     int
}

func (f *fakeSource) ListDocumentTypes(ctx context.Context) ([]models.DocumentType, error) {
	f.calls++
	return f.types, f.err
}

func (f *fakeSource) ListProperties(ctx context.Context) ([]models.Property, error) {
	f.calls++
	return f.props, nil
}

func (f *fakeSource) ListCollatorPaths(ctx context.Context) ([]models.CollatorPath, error) {
	f.calls++
	return f.collators, nil
}

func TestLoadResolvesEagerPropertyIDs(t *testing.T) {
	src := &fakeSource{
		props: []models.Property{
			{ID: 35, Tag: TagDocumentTypeOutput},
			{ID: 41, Tag: TagTripNumber},
			{ID: 40, Tag: TagInvoiceNumber},
		},
	}

	cache, err := Load(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, 35, cache.DocumentTypePropertyID)
	assert.Equal(t, 41, cache.TripNumberPropertyID)
	assert.Equal(t, 40, cache.InvoiceNoPropertyID)
}

func TestLoadMissingTagsDefaultToZero(t *testing.T) {
	src := &fakeSource{props: []models.Property{{ID: 35, Tag: TagDocumentTypeOutput}}}

	cache, err := Load(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 35, cache.DocumentTypePropertyID)
	assert.Zero(t, cache.TripNumberPropertyID)
	assert.Zero(t, cache.InvoiceNoPropertyID)
}

func TestLoadFailsWhenStoreFails(t *testing.T) {
	src := &fakeSource{err: ErrStoreUnavailable}

	_, err := Load(context.Background(), src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}

func TestFindDocumentType(t *testing.T) {
	src := &fakeSource{types: []models.DocumentType{
		{Name: "SAPXXXDE", DocumentTypeID: 66},
		{Name: "SAPXXXDE", DocumentTypeID: 99},
		{Name: "POD", DocumentTypeID: 12},
	}}
	cache, err := Load(context.Background(), src)
	require.NoError(t, err)

	dt, ok := cache.FindDocumentType("SAPXXXDE")
	require.True(t, ok)
	assert.Equal(t, 66, dt.DocumentTypeID, "first matching row wins")

	_, ok = cache.FindDocumentType("sapxxxde")
	assert.False(t, ok, "lookup is case-sensitive")

	_, ok = cache.FindDocumentType("")
	assert.False(t, ok)
}

func TestFindCollatorPath(t *testing.T) {
	src := &fakeSource{collators: []models.CollatorPath{
		{Location: "20", Path: "/mnt/20"},
		{Location: "0", Path: "/mnt/zero"},
		{Location: "DE", Path: "/mnt/de"},
	}}
	cache, err := Load(context.Background(), src)
	require.NoError(t, err)

	tests := []struct {
		location string
		want     string
	}{
		{"20", "/mnt/20"},
		{"21", ""},
		{"0", ""},
		{"00", ""},
		{"DE", ""},
		{"", ""},
		{"2x", ""},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			assert.Equal(t, tt.want, cache.FindCollatorPath(tt.location))
		})
	}
}

func TestFindPropertyIDAndDataType(t *testing.T) {
	src := &fakeSource{props: []models.Property{
		{ID: 25, Tag: "OrderNo", DataType: models.DataTypeInteger},
	}}
	cache, err := Load(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 25, cache.FindPropertyID("OrderNo"))
	assert.Zero(t, cache.FindPropertyID(""))
	assert.Zero(t, cache.FindPropertyID("Unknown"))
	assert.Equal(t, models.DataTypeInteger, cache.PropertyDataType(25))
	assert.Equal(t, models.DataTypeString, cache.PropertyDataType(999))
}

func TestLoadFromStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.ImportReference(ctx, sampleReference()))

	cache, err := Load(ctx, store)
	require.NoError(t, err)

	types, props, collators := cache.Counts()
	assert.Equal(t, 2, types)
	assert.Equal(t, 3, props)
	assert.Equal(t, 1, collators)
	assert.Equal(t, 35, cache.DocumentTypePropertyID)
	assert.Equal(t, 40, cache.InvoiceNoPropertyID)
	assert.Zero(t, cache.TripNumberPropertyID)
	assert.Equal(t, "/mnt/collator/20", cache.FindCollatorPath("20"))
}
