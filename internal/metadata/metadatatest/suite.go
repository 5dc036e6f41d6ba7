// Package metadatatest holds the behaviour every metadata.Store must share.
package metadatatest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/notes-bin/imgstore/internal/metadata"
	"github.com/notes-bin/imgstore/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory builds an empty store whose upload dates come from clock.
type Factory func(t *testing.T, clock *metadata.Clock) metadata.Store

// Epoch is the first time handed out by the suite's clock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ManualClock returns a clock reading *now.
func ManualClock(now *time.Time) *metadata.Clock {
	return metadata.NewClock(func() time.Time { return *now })
}

func Run(t *testing.T, newStore Factory) {
	t.Run("SaveGet", func(t *testing.T) { testSaveGet(t, newStore) })
	t.Run("GetAbsent", func(t *testing.T) { testGetAbsent(t, newStore) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDelete(t, newStore) })
	t.Run("PaginationCoversAll", func(t *testing.T) { testPagination(t, newStore) })
	t.Run("ExactMultipleHasNoTrailingToken", func(t *testing.T) { testExactMultiple(t, newStore) })
	t.Run("TiesOrderedByID", func(t *testing.T) { testTies(t, newStore) })
	t.Run("DateRange", func(t *testing.T) { testDateRange(t, newStore) })
	t.Run("InvalidInput", func(t *testing.T) { testInvalid(t, newStore) })
	t.Run("DeletedRecordLeavesIndex", func(t *testing.T) { testDeleteFromIndex(t, newStore) })
}

func record(id, user string) model.Image {
	return model.Image{
		ID:          id,
		Filename:    id + ".png",
		ContentType: "image/png",
		Size:        int64(len(id)) * 100,
		UserID:      user,
		StorageKey:  model.StorageKey(id, id+".png"),
	}
}

// seed saves n records for user, one minute apart starting at Epoch.
func seed(t *testing.T, s metadata.Store, now *time.Time, user string, n int) []model.Image {
	t.Helper()
	var out []model.Image
	for i := 0; i < n; i++ {
		*now = Epoch.Add(time.Duration(i) * time.Minute)
		img, err := s.Save(context.Background(), record(fmt.Sprintf("%s-img-%02d", user, i), user))
		require.NoError(t, err)
		out = append(out, img)
	}
	return out
}

func collect(t *testing.T, s metadata.Store, q metadata.Query) ([]model.Image, int) {
	t.Helper()
	var all []model.Image
	pages := 0
	for {
		page, err := s.Query(context.Background(), q)
		require.NoError(t, err)
		require.LessOrEqual(t, len(page.Images), q.Limit)
		pages++
		all = append(all, page.Images...)
		if page.NextToken == "" {
			return all, pages
		}
		require.Less(t, pages, 100, "pagination does not terminate")
		q.Token = page.NextToken
	}
}

func ids(images []model.Image) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		out = append(out, img.ID)
	}
	return out
}

func testSaveGet(t *testing.T, newStore Factory) {
	now := Epoch
	s := newStore(t, ManualClock(&now))
	ctx := context.Background()

	in := record("abc", "u1")
	in.Description = "holiday"
	saved, err := s.Save(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, model.FormatTime(Epoch), saved.UploadDate)

	got, found, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, saved, got)
	assert.Equal(t, in.Size, got.Size)

	preset := record("def", "u1")
	preset.UploadDate = "2023-06-01T00:00:00.000000Z"
	saved, err = s.Save(ctx, preset)
	require.NoError(t, err)
	assert.Equal(t, "2023-06-01T00:00:00.000000Z", saved.UploadDate)
}

func testGetAbsent(t *testing.T, newStore Factory) {
	now := Epoch
	s := newStore(t, ManualClock(&now))
	_, found, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func testDelete(t *testing.T, newStore Factory) {
	now := Epoch
	s := newStore(t, ManualClock(&now))
	ctx := context.Background()

	_, err := s.Save(ctx, record("abc", "u1"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "abc"))
	require.NoError(t, s.Delete(ctx, "abc"))
	require.NoError(t, s.Delete(ctx, "never-existed"))

	_, found, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, found)
}

func testPagination(t *testing.T, newStore Factory) {
	now := Epoch
	s := newStore(t, ManualClock(&now))
	want := seed(t, s, &now, "u1", 7)
	seed(t, s, &now, "u2", 3)

	for _, limit := range []int{1, 2, 3, 7, 100} {
		got, _ := collect(t, s, metadata.Query{UserID: "u1", Limit: limit})
		assert.Equal(t, ids(want), ids(got), "limit %d", limit)
	}

	got, pages := collect(t, s, metadata.Query{UserID: "u1", Limit: 3})
	assert.Equal(t, 3, pages)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].UploadDate, got[i].UploadDate)
	}
}

func testExactMultiple(t *testing.T, newStore Factory) {
	now := Epoch
	s := newStore(t, ManualClock(&now))
	seed(t, s, &now, "u1", 4)

	_, pages := collect(t, s, metadata.Query{UserID: "u1", Limit: 2})
	assert.Equal(t, 2, pages)

	page, err := s.Query(context.Background(), metadata.Query{UserID: "nobody", Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Images)
	assert.Empty(t, page.NextToken)
}

func testTies(t *testing.T, newStore Factory) {
	now := Epoch
	s := newStore(t, ManualClock(&now))
	ctx := context.Background()
	for _, id := range []string{"c", "a", "d", "b"} {
		_, err := s.Save(ctx, record(id, "u1"))
		require.NoError(t, err)
	}

	got, _ := collect(t, s, metadata.Query{UserID: "u1", Limit: 1})
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(got))
}

func testDateRange(t *testing.T, newStore Factory) {
	now := Epoch
	s := newStore(t, ManualClock(&now))
	all := seed(t, s, &now, "u1", 6)

	start := model.FormatTime(Epoch.Add(1 * time.Minute))
	end := model.FormatTime(Epoch.Add(4 * time.Minute))

	got, _ := collect(t, s, metadata.Query{UserID: "u1", Limit: 2, Start: start, End: end})
	assert.Equal(t, ids(all[1:5]), ids(got))

	got, _ = collect(t, s, metadata.Query{UserID: "u1", Limit: 2, Start: start})
	assert.Equal(t, ids(all[1:]), ids(got))

	got, _ = collect(t, s, metadata.Query{UserID: "u1", Limit: 2, End: end})
	assert.Equal(t, ids(all[:5]), ids(got))

	got, _ = collect(t, s, metadata.Query{UserID: "u1", Limit: 2, Start: end, End: end})
	assert.Equal(t, ids(all[4:5]), ids(got))
}

func testInvalid(t *testing.T, newStore Factory) {
	now := Epoch
	s := newStore(t, ManualClock(&now))
	ctx := context.Background()
	seed(t, s, &now, "u1", 2)

	_, err := s.Query(ctx, metadata.Query{UserID: "u1", Limit: 1, Token: "not-a-token"})
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	_, err = s.Query(ctx, metadata.Query{UserID: "u1", Limit: 1,
		Start: model.FormatTime(Epoch.Add(time.Hour)), End: model.FormatTime(Epoch)})
	assert.ErrorIs(t, err, metadata.ErrInvalidRange)
}

func testDeleteFromIndex(t *testing.T, newStore Factory) {
	now := Epoch
	s := newStore(t, ManualClock(&now))
	ctx := context.Background()
	all := seed(t, s, &now, "u1", 3)

	require.NoError(t, s.Delete(ctx, all[1].ID))

	got, _ := collect(t, s, metadata.Query{UserID: "u1", Limit: 10})
	assert.Equal(t, []string{all[0].ID, all[2].ID}, ids(got))
}
