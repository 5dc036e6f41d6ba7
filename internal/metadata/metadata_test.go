package metadata

import (
	"testing"
	"time"

	"github.com/notes-bin/imgstore/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepare(t *testing.T) {
	c, err := Prepare(Query{UserID: "u1", Limit: 20})
	require.NoError(t, err)
	assert.Nil(t, c.After)
	assert.Equal(t, 20, c.Limit)

	_, err = Prepare(Query{UserID: "u1", Limit: 5,
		Start: "2024-02-01T00:00:00.000000Z", End: "2024-01-01T00:00:00.000000Z"})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Prepare(Query{UserID: "u1", Limit: 5, Token: "garbage!"})
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	_, err = Prepare(Query{UserID: "u1", Limit: 0})
	assert.Error(t, err)
}

func TestPrepareRejectsForeignToken(t *testing.T) {
	token := model.EncodeToken(model.Position{
		model.KeyImageID: "a", model.KeyUserID: "u2", model.KeyUploadDate: "2024-01-01T00:00:00.000000Z",
	})
	_, err := Prepare(Query{UserID: "u1", Limit: 5, Token: token})
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	c, err := Prepare(Query{UserID: "u2", Limit: 5, Token: token})
	require.NoError(t, err)
	assert.Equal(t, "a", c.After[model.KeyImageID])
}

func TestPrepareRejectsTokenOutsideRange(t *testing.T) {
	token := model.EncodeToken(model.Position{
		model.KeyImageID: "a", model.KeyUserID: "u1", model.KeyUploadDate: "2024-01-15T00:00:00.000000Z",
	})

	for name, q := range map[string]Query{
		"before start": {Start: "2024-02-01T00:00:00.000000Z"},
		"after end":    {End: "2024-01-10T00:00:00.000000Z"},
	} {
		t.Run(name, func(t *testing.T) {
			q.UserID, q.Limit, q.Token = "u1", 5, token
			_, err := Prepare(q)
			assert.ErrorIs(t, err, model.ErrInvalidToken)
		})
	}

	c, err := Prepare(Query{UserID: "u1", Limit: 5, Token: token,
		Start: "2024-01-15T00:00:00.000000Z", End: "2024-01-15T00:00:00.000000Z"})
	require.NoError(t, err)
	assert.Equal(t, "a", c.After[model.KeyImageID])
}

func TestClockNeverGoesBackwards(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	c := NewClock(func() time.Time { t := times[i]; i++; return t })

	assert.Equal(t, base, c.Now())
	assert.Equal(t, base, c.Now())
	assert.Equal(t, base.Add(time.Second), c.Now())
}

func TestClockStampKeepsExistingDate(t *testing.T) {
	c := NewClock(nil)
	img := model.Image{UploadDate: "2020-01-01T00:00:00.000000Z"}
	c.Stamp(&img)
	assert.Equal(t, "2020-01-01T00:00:00.000000Z", img.UploadDate)

	img.UploadDate = ""
	c.Stamp(&img)
	assert.NotEmpty(t, img.UploadDate)
}
