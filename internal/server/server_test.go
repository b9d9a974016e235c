package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/litgraph/internal/queue"
	mid "github.com/OFFIS-RIT/litgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/litgraph/pkg/common"
	"github.com/OFFIS-RIT/litgraph/pkg/graph"
	"github.com/OFFIS-RIT/litgraph/pkg/store"
	"github.com/OFFIS-RIT/litgraph/pkg/store/memory"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	keys   []string
	bodies [][]byte
	err    error
}

func (p *capturePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.bodies = append(p.bodies, msg.Body)
	return nil
}

func testServer(t *testing.T) (*mid.App, *memory.Store, *capturePublisher) {
	t.Helper()
	st := memory.New()
	pub := &capturePublisher{}
	app := &mid.App{
		Runs:      st,
		Queue:     pub,
		QueueName: queue.DefaultRunQueue,
		Validate: func(ctx context.Context, paperID string) (graph.ValidationReport, error) {
			if paperID != "p1" {
				return graph.ValidationReport{}, store.ErrNotFound
			}
			return graph.ValidationReport{PaperID: "p1", ConsistencyOK: true}, nil
		},
	}
	return app, st, pub
}

func do(t *testing.T, app *mid.App, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	New(app).ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	app, _, _ := testServer(t)
	rec := do(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCreateRunEnqueues(t *testing.T) {
	app, st, pub := testServer(t)

	rec := do(t, app, http.MethodPost, "/api/runs", `{"seed":"arXiv:1706.03762","limit":3}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		Run common.Run `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Run.ID)
	assert.Equal(t, common.RunQueued, resp.Run.Status)

	stored, err := st.GetRun(context.Background(), resp.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Limit)

	require.Equal(t, []string{"litgraph_runs"}, pub.keys)
	req, err := queue.DecodeRunRequest(pub.bodies[0])
	require.NoError(t, err)
	assert.Equal(t, queue.RunRequest{RunID: resp.Run.ID, Seed: "arXiv:1706.03762", Limit: 3}, req)
}

func TestCreateRunRejectsInvalidBody(t *testing.T) {
	app, _, pub := testServer(t)

	for _, body := range []string{`{"limit":3}`, `{"seed":"p1","limit":0}`, `not json`} {
		rec := do(t, app, http.MethodPost, "/api/runs", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, pub.keys)
}

type updateRecorder struct {
	store.RunStore
	updated []common.Run
}

func (r *updateRecorder) UpdateRun(ctx context.Context, run common.Run) error {
	r.updated = append(r.updated, run)
	return r.RunStore.UpdateRun(ctx, run)
}

func TestCreateRunMarksRunFailedWhenQueueIsDown(t *testing.T) {
	app, st, pub := testServer(t)
	pub.err = errors.New("channel closed")
	runs := &updateRecorder{RunStore: st}
	app.Runs = runs

	rec := do(t, app, http.MethodPost, "/api/runs", `{"seed":"p1","limit":1}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	require.Len(t, runs.updated, 1)
	stored, err := st.GetRun(context.Background(), runs.updated[0].ID)
	require.NoError(t, err)
	assert.Equal(t, common.RunFailed, stored.Status)
}

func TestGetRun(t *testing.T) {
	app, st, _ := testServer(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRun(ctx, common.Run{ID: "r1", SeedID: "p1", Limit: 1, Status: common.RunRunning}))
	require.NoError(t, st.SaveTask(ctx, common.Task{RunID: "r1", PaperID: "p1", State: common.TaskPending}))

	rec := do(t, app, http.MethodGet, "/api/runs/r1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Run   common.Run    `json:"run"`
		Tasks []common.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, common.RunRunning, resp.Run.Status)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, "p1", resp.Tasks[0].PaperID)

	rec = do(t, app, http.MethodGet, "/api/runs/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunReportWithoutBucket(t *testing.T) {
	app, _, _ := testServer(t)
	rec := do(t, app, http.MethodGet, "/api/runs/r1/report", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaperValidation(t *testing.T) {
	app, _, _ := testServer(t)

	rec := do(t, app, http.MethodGet, "/api/papers/p1/validation", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report graph.ValidationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.ConsistencyOK)

	rec = do(t, app, http.MethodGet, "/api/papers/unknown/validation", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBearerAuth(t *testing.T) {
	app, _, _ := testServer(t)
	secret := []byte("test-secret")
	app.Keyfunc = func(token *jwt.Token) (any, error) {
		return secret, nil
	}

	rec := do(t, app, http.MethodGet, "/api/papers/p1/validation", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString(secret)
	require.NoError(t, err)
	rec = do(t, app, http.MethodGet, "/api/papers/p1/validation", "", map[string]string{"Authorization": "Bearer " + signed})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, app, http.MethodGet, "/api/papers/p1/validation", "", map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// health stays open
	rec = do(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
