package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtiwari1/pdfhost/internal/repository"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	c, err := NewRedis(context.Background(), srv.Addr(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, srv
}

func TestRedis_SetGet(t *testing.T) {
	c, _ := newTestRedis(t)
	ctx := context.Background()

	rec := &repository.Record{
		ID:          "r1",
		ContentPath: "uploads/manual.pdf",
		Metadata:    map[string]interface{}{"title": "Manual", "Page_no": 4.0},
	}
	require.NoError(t, c.Set(ctx, rec))

	got, err := c.Get(ctx, "r1")
	require.NoError(t, err)
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}
}

func TestRedis_Miss(t *testing.T) {
	c, _ := newTestRedis(t)

	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedis_Delete(t *testing.T) {
	c, _ := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &repository.Record{ID: "r1"}))
	require.NoError(t, c.Delete(ctx, "r1"))

	_, err := c.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedis_TTL(t *testing.T) {
	c, srv := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &repository.Record{ID: "r1"}))
	assert.Equal(t, time.Minute, srv.TTL(keyPrefix+"r1"))

	srv.FastForward(2 * time.Minute)
	_, err := c.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestNewRedis_Unreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := NewRedis(context.Background(), addr, time.Minute)
	assert.Error(t, err)
}

func TestNoOp(t *testing.T) {
	var c Cache = NoOp{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &repository.Record{ID: "r1"}))
	_, err := c.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, c.Delete(ctx, "r1"))
}

func TestRedis_DeleteBlocksLateFill(t *testing.T) {
	c, srv := newTestRedis(t)
	ctx := context.Background()

	rec := &repository.Record{ID: "r1", ContentPath: "uploads/a.pdf"}
	require.NoError(t, c.Set(ctx, rec))
	require.NoError(t, c.Delete(ctx, "r1"))

	// A fill from a read that started before the delete.
	require.NoError(t, c.Set(ctx, rec))
	_, err := c.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, tombstoneTTL, srv.TTL(keyPrefix+"r1"))

	srv.FastForward(2 * tombstoneTTL)
	require.NoError(t, c.Set(ctx, rec))
	got, err := c.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "uploads/a.pdf", got.ContentPath)
}

func TestRedis_SetKeepsExistingEntry(t *testing.T) {
	c, _ := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &repository.Record{ID: "r1", ContentPath: "first"}))
	require.NoError(t, c.Set(ctx, &repository.Record{ID: "r1", ContentPath: "second"}))

	got, err := c.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.ContentPath)
}
