package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JinxX404/BookNest-fullstack/internal/events"
	"github.com/JinxX404/BookNest-fullstack/internal/storage/sqlite"
)

func newRatingApp(t *testing.T) (*fiber.App, *events.Bus) {
	t.Helper()
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	bus := events.NewBus()
	handler := NewRatingHandler(db, bus, nil, 1, 5)

	app := fiber.New()
	app.Post("/api/v1/ratings", handler.UpsertRating)
	return app, bus
}

func postRating(t *testing.T, app *fiber.App, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/ratings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestUpsertRatingCreates(t *testing.T) {
	app, bus := newRatingApp(t)
	eventCh, cancel := bus.Subscribe()
	defer cancel()

	status, out := postRating(t, app, `{"user_id": 7, "isbn13": "9780000000001", "score": 4.5}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, float64(1), out["rating_count"])

	select {
	case ev := <-eventCh:
		assert.Equal(t, int64(7), ev.UserID)
		assert.Equal(t, 1, ev.RatingCount)
		assert.True(t, ev.Created)
	case <-time.After(time.Second):
		t.Fatal("no rating event published")
	}
}

func TestUpsertRatingOverwrite(t *testing.T) {
	app, bus := newRatingApp(t)

	status, _ := postRating(t, app, `{"user_id": 7, "isbn13": "9780000000001", "score": 4}`)
	require.Equal(t, fiber.StatusCreated, status)

	eventCh, cancel := bus.Subscribe()
	defer cancel()

	// Same book again: count must not grow and the event must carry the
	// update, not a creation, or downstream consumers would double-count.
	status, out := postRating(t, app, `{"user_id": 7, "isbn13": "9780000000001", "score": 2}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, float64(1), out["rating_count"])
	assert.Equal(t, float64(2), out["score"])
	assert.Equal(t, false, out["created"])

	select {
	case ev := <-eventCh:
		assert.Equal(t, 1, ev.RatingCount)
		assert.False(t, ev.Created)
	case <-time.After(time.Second):
		t.Fatal("no rating event published")
	}
}

func TestUpsertRatingValidation(t *testing.T) {
	app, _ := newRatingApp(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"user_id": `},
		{"missing user", `{"isbn13": "9780000000001", "score": 4}`},
		{"negative user", `{"user_id": -1, "isbn13": "9780000000001", "score": 4}`},
		{"missing isbn", `{"user_id": 7, "score": 4}`},
		{"score too low", `{"user_id": 7, "isbn13": "9780000000001", "score": 0.5}`},
		{"score too high", `{"user_id": 7, "isbn13": "9780000000001", "score": 5.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := postRating(t, app, tt.body)
			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.NotEmpty(t, out["error"])
		})
	}
}
