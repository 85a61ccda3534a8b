package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/beamsim/beamsim/internal/world"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/gin-gonic/gin"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type call struct {
	name string
	args []any
}

type fakeController struct {
	mu    sync.Mutex
	calls []call
	snap  *core.Snapshot
	err   error
}

func (f *fakeController) record(name string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name, args})
	return f.err
}

func (f *fakeController) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeController) Spawn(req core.SpawnRequest) (core.ActorID, error) {
	return 7, f.record("Spawn", req)
}
func (f *fakeController) Remove(id core.ActorID) error { return f.record("Remove", id) }
func (f *fakeController) Reset(id core.ActorID) error  { return f.record("Reset", id) }
func (f *fakeController) SetInput(id core.ActorID, in core.InputSnapshot) error {
	return f.record("SetInput", id, in)
}
func (f *fakeController) ToggleHooks(id core.ActorID, group int) error {
	return f.record("ToggleHooks", id, group)
}
func (f *fakeController) AddAffector(req core.AffectorRequest) (core.AffectorID, error) {
	return 3, f.record("AddAffector", req)
}
func (f *fakeController) MoveAffector(actorID core.ActorID, id core.AffectorID, pin mgl32.Vec3) error {
	return f.record("MoveAffector", actorID, id, pin)
}
func (f *fakeController) RemoveAffector(actorID core.ActorID, id core.AffectorID) error {
	return f.record("RemoveAffector", actorID, id)
}
func (f *fakeController) SetGravity(g mgl32.Vec3) error { return f.record("SetGravity", g) }
func (f *fakeController) Pause() error                  { return f.record("Pause") }
func (f *fakeController) Resume() error                 { return f.record("Resume") }
func (f *fakeController) Latest() *core.Snapshot        { return f.snap }
func (f *fakeController) Stats() world.Stats {
	return world.Stats{Tick: 1500, Actors: 2, Nodes: 40, Beams: 120, Spawned: 3, Rejected: 1}
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHealthWithoutAuth(t *testing.T) {
	s := NewServer(&fakeController{}, "secret", nil)
	w := do(t, s.Handler(), http.MethodGet, "/api/v1/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAuth(t *testing.T) {
	s := NewServer(&fakeController{}, "secret", nil)
	h := s.Handler()

	good, err := IssueToken("secret", "tester", time.Minute)
	require.NoError(t, err)
	wrong, err := IssueToken("other", "tester", time.Minute)
	require.NoError(t, err)
	expired, err := IssueToken("secret", "tester", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong secret", wrong, http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"garbage", "not.a.token", http.StatusUnauthorized},
		{"valid", good, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodGet, "/api/v1/status", "", tt.token)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthRejectsNonBearer(t *testing.T) {
	s := NewServer(&fakeController{}, "secret", nil)
	r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueTokenEmptySecret(t *testing.T) {
	_, err := IssueToken("", "x", time.Minute)
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	s := NewServer(&fakeController{}, "", nil)
	w := do(t, s.Handler(), http.MethodGet, "/api/v1/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tick":1500,"actors":2,"nodes":40,"beams":120,"paused":false,"spawned":3,"rejected":1}`, w.Body.String())
}

func TestSnapshot(t *testing.T) {
	ctrl := &fakeController{}
	h := NewServer(ctrl, "", nil).Handler()

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/snapshot", "", "").Code)

	ctrl.snap = &core.Snapshot{Tick: 10, Actors: []core.ActorSnapshot{{ID: 4, EngineRPM: 800, Gear: 1}}}
	w := do(t, h, http.MethodGet, "/api/v1/snapshot", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got core.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, uint64(10), got.Tick)

	w = do(t, h, http.MethodGet, "/api/v1/snapshot/4", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var a core.ActorSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	assert.Equal(t, float32(800), a.EngineRPM)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/snapshot/5", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/snapshot/x", "", "").Code)
}

func TestSpawn(t *testing.T) {
	ctrl := &fakeController{}
	h := NewServer(ctrl, "", nil).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/actors",
		`{"definition":"truck","config":"heavy","position":[1,2,3],"rotation":[0,0,1,0]}`, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"id":7}`, w.Body.String())

	c := ctrl.last()
	require.Equal(t, "Spawn", c.name)
	req := c.args[0].(core.SpawnRequest)
	assert.Equal(t, "truck", req.Definition)
	assert.Equal(t, "heavy", req.Config)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, req.Position)
	assert.Equal(t, mgl32.Quat{W: 0, V: mgl32.Vec3{0, 1, 0}}, req.Rotation)
}

func TestSpawnDefaultsRotation(t *testing.T) {
	ctrl := &fakeController{}
	h := NewServer(ctrl, "", nil).Handler()

	require.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/v1/actors", `{"definition":"crate"}`, "").Code)
	req := ctrl.last().args[0].(core.SpawnRequest)
	assert.Equal(t, mgl32.QuatIdent(), req.Rotation)
}

func TestSpawnBadBody(t *testing.T) {
	ctrl := &fakeController{}
	h := NewServer(ctrl, "", nil).Handler()

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/actors", `{}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/actors", `{`, "").Code)
	assert.Empty(t, ctrl.calls)
}

func TestActorRequests(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   call
	}{
		{"remove", http.MethodDelete, "/api/v1/actors/2", "", call{"Remove", []any{core.ActorID(2)}}},
		{"reset", http.MethodPost, "/api/v1/actors/2/reset", "", call{"Reset", []any{core.ActorID(2)}}},
		{"input", http.MethodPut, "/api/v1/actors/2/input", `{"throttle":0.5,"gear":1}`,
			call{"SetInput", []any{core.ActorID(2), core.InputSnapshot{Throttle: 0.5, Gear: core.GearUp}}}},
		{"hooks", http.MethodPost, "/api/v1/actors/2/hooks", `{"group":3}`, call{"ToggleHooks", []any{core.ActorID(2), 3}}},
		{"hooks no body", http.MethodPost, "/api/v1/actors/2/hooks", "", call{"ToggleHooks", []any{core.ActorID(2), 0}}},
		{"move affector", http.MethodPut, "/api/v1/actors/2/affectors/9", `{"value":[0,5,0]}`,
			call{"MoveAffector", []any{core.ActorID(2), core.AffectorID(9), mgl32.Vec3{0, 5, 0}}}},
		{"remove affector", http.MethodDelete, "/api/v1/actors/2/affectors/9", "",
			call{"RemoveAffector", []any{core.ActorID(2), core.AffectorID(9)}}},
		{"gravity", http.MethodPut, "/api/v1/gravity", `{"value":[0,-1.62,0]}`, call{"SetGravity", []any{mgl32.Vec3{0, -1.62, 0}}}},
		{"pause", http.MethodPost, "/api/v1/pause", "", call{"Pause", nil}},
		{"resume", http.MethodPost, "/api/v1/resume", "", call{"Resume", nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{}
			w := do(t, NewServer(ctrl, "", nil).Handler(), tt.method, tt.path, tt.body, "")
			require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
			assert.Equal(t, tt.want, ctrl.last())
		})
	}
}

func TestBadIDs(t *testing.T) {
	ctrl := &fakeController{}
	h := NewServer(ctrl, "", nil).Handler()

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodDelete, "/api/v1/actors/abc", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodDelete, "/api/v1/actors/-1", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodDelete, "/api/v1/actors/1/affectors/x", "", "").Code)
	assert.Empty(t, ctrl.calls)
}

func TestAddAffector(t *testing.T) {
	ctrl := &fakeController{}
	h := NewServer(ctrl, "", nil).Handler()

	w := do(t, h, http.MethodPost, "/api/v1/actors/1/affectors",
		`{"kind":"scripted_force","nodes":[0,1],"force":[0,100,0],"ramp":0.5,"duration":2}`, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"id":3}`, w.Body.String())

	req := ctrl.last().args[0].(core.AffectorRequest)
	assert.Equal(t, core.AffectorScriptedForce, req.Kind)
	assert.Equal(t, core.ActorID(1), req.Actor)
	assert.Equal(t, []int{0, 1}, req.Nodes)
	assert.Equal(t, mgl32.Vec3{0, 100, 0}, req.Force)
	assert.Equal(t, float32(0.5), req.Ramp)

	w = do(t, h, http.MethodPost, "/api/v1/actors/1/affectors", `{"kind":"tractor_beam","nodes":[0]}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorsMapToStatus(t *testing.T) {
	ctrl := &fakeController{err: world.ErrClosed}
	h := NewServer(ctrl, "", nil).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/api/v1/pause", "", "").Code)

	ctrl.err = world.ErrUnknownActor
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/actors/8/reset", "", "").Code)
}

func TestStartAndShutdown(t *testing.T) {
	s := NewServer(&fakeController{}, "", nil)
	addr, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}
