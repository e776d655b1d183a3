package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikldr/sortear/internal/auth"
	"github.com/erikldr/sortear/internal/draw"
	"github.com/erikldr/sortear/internal/models"
	"github.com/erikldr/sortear/internal/store"
)

var testSecret = []byte("server-test-secret")

type testEnv struct {
	server *httptest.Server
	mem    *store.MemoryStore
	engine *draw.Engine
	promo  models.Promotion
	token  string
}

func newTestEnv(t *testing.T, participantCount int) *testEnv {
	t.Helper()

	mem := store.NewMemoryStore()
	promo := models.Promotion{
		ID:       uuid.New(),
		Name:     "morning show giveaway",
		Status:   models.PromotionStatusActive,
		Policy:   models.RepeatWinAllow,
		StartsAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2034, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	mem.PutPromotion(promo)
	for i := 0; i < participantCount; i++ {
		mem.PutParticipant(models.Participant{
			ID:           uuid.New(),
			PromotionID:  promo.ID,
			Name:         fmt.Sprintf("listener %d", i+1),
			Phone:        fmt.Sprintf("+551199999%04d", i),
			RegisteredAt: promo.StartsAt.Add(24 * time.Hour),
		})
	}

	engine := draw.New(mem, nil, draw.Config{})
	srv := New(engine, mem, testSecret)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	token, err := auth.Token(testSecret, "ops@example.com")
	require.NoError(t, err)

	return &testEnv{server: ts, mem: mem, engine: engine, promo: promo, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestCreateDrawEndpoint(t *testing.T) {
	env := newTestEnv(t, 5)

	resp := env.do(t, http.MethodPost, "/promotions/"+env.promo.ID.String()+"/draws",
		map[string]interface{}{"description": "top of the hour", "count": 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var d models.Draw
	decodeBody(t, resp, &d)
	assert.Equal(t, env.promo.ID, d.PromotionID)
	assert.Equal(t, models.DrawStatePending, d.State)
	assert.Equal(t, 2, d.RequestedCount)
}

func TestCreateDrawUnknownPromotion(t *testing.T) {
	env := newTestEnv(t, 1)

	resp := env.do(t, http.MethodPost, "/promotions/"+uuid.NewString()+"/draws",
		map[string]interface{}{"count": 1})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateDrawInvalidPromotionID(t *testing.T) {
	env := newTestEnv(t, 1)

	resp := env.do(t, http.MethodPost, "/promotions/not-a-uuid/draws",
		map[string]interface{}{"count": 1})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExecuteEndpoint(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()

	d, err := env.engine.CreateDraw(ctx, env.promo.ID, "", 2)
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/draws/"+d.ID.String()+"/execute",
		map[string]interface{}{"count": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		DrawID  uuid.UUID `json:"drawId"`
		Winners []struct {
			ParticipantID uuid.UUID `json:"participantId"`
			Position      int       `json:"position"`
		} `json:"winners"`
	}
	decodeBody(t, resp, &result)
	assert.Equal(t, d.ID, result.DrawID)
	require.Len(t, result.Winners, 2)
	assert.Equal(t, 0, result.Winners[0].Position)

	// The operator from the bearer token must land on the winner records.
	records, err := env.mem.ListWinners(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ops@example.com", records[0].Operator)

	// Re-execution of a completed draw conflicts.
	resp = env.do(t, http.MethodPost, "/draws/"+d.ID.String()+"/execute",
		map[string]interface{}{"count": 2})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestExecuteEndpointInsufficientEligible(t *testing.T) {
	env := newTestEnv(t, 3)

	d, err := env.engine.CreateDraw(context.Background(), env.promo.ID, "", 10)
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/draws/"+d.ID.String()+"/execute",
		map[string]interface{}{"count": 10})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body struct {
		Error     string `json:"error"`
		Requested int    `json:"requested"`
		Eligible  int    `json:"eligible"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, 10, body.Requested)
	assert.Equal(t, 3, body.Eligible)
	assert.NotEmpty(t, body.Error)
}

func TestExecuteEndpointUnknownDraw(t *testing.T) {
	env := newTestEnv(t, 1)

	resp := env.do(t, http.MethodPost, "/draws/"+uuid.NewString()+"/execute",
		map[string]interface{}{"count": 1})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExecuteEndpointRejectsBadToken(t *testing.T) {
	env := newTestEnv(t, 1)
	env.token = "forged.token.value"

	resp := env.do(t, http.MethodPost, "/draws/"+uuid.NewString()+"/execute",
		map[string]interface{}{"count": 1})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetDrawEndpoint(t *testing.T) {
	env := newTestEnv(t, 2)

	d, err := env.engine.CreateDraw(context.Background(), env.promo.ID, "afternoon", 1)
	require.NoError(t, err)

	resp := env.do(t, http.MethodGet, "/draws/"+d.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.Draw
	decodeBody(t, resp, &got)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, "afternoon", got.Description)

	resp = env.do(t, http.MethodGet, "/draws/"+uuid.NewString(), nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListDrawsEndpoint(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()

	_, err := env.engine.CreateDraw(ctx, env.promo.ID, "one", 1)
	require.NoError(t, err)
	_, err = env.engine.CreateDraw(ctx, env.promo.ID, "two", 1)
	require.NoError(t, err)

	resp := env.do(t, http.MethodGet, "/promotions/"+env.promo.ID.String()+"/draws", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var draws []models.Draw
	decodeBody(t, resp, &draws)
	assert.Len(t, draws, 2)
}

func TestWinnersEndpoint(t *testing.T) {
	env := newTestEnv(t, 4)
	ctx := context.Background()

	d, err := env.engine.CreateDraw(ctx, env.promo.ID, "", 2)
	require.NoError(t, err)
	_, err = env.engine.Execute(ctx, d.ID, 2, "ops")
	require.NoError(t, err)

	resp := env.do(t, http.MethodGet, "/draws/"+d.ID.String()+"/winners", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []models.WinnerRecord
	decodeBody(t, resp, &records)
	require.Len(t, records, 2)
	assert.Equal(t, d.ID, records[0].DrawID)
}

func TestReplayEndpoint(t *testing.T) {
	env := newTestEnv(t, 4)
	ctx := context.Background()

	d, err := env.engine.CreateDraw(ctx, env.promo.ID, "", 2)
	require.NoError(t, err)
	_, err = env.engine.Execute(ctx, d.ID, 2, "ops")
	require.NoError(t, err)

	resp := env.do(t, http.MethodGet, "/draws/"+d.ID.String()+"/replay", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result draw.ReplayResult
	decodeBody(t, resp, &result)
	assert.True(t, result.Match)
	assert.Equal(t, d.ID, result.DrawID)
}

func TestReplayEndpointRejectsPendingDraw(t *testing.T) {
	env := newTestEnv(t, 2)

	d, err := env.engine.CreateDraw(context.Background(), env.promo.ID, "", 1)
	require.NoError(t, err)

	resp := env.do(t, http.MethodGet, "/draws/"+d.ID.String()+"/replay", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}
