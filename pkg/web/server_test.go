package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-semiconductor/internal/log"
	"github.com/teslashibe/go-semiconductor/pkg/conductor"
	"github.com/teslashibe/go-semiconductor/pkg/pose"
	"github.com/teslashibe/go-semiconductor/pkg/protocol"
	"github.com/teslashibe/go-semiconductor/pkg/song"
)

type fakeController struct {
	mu      sync.Mutex
	actions []string
	samples []pose.Sample
	loaded  *song.Song
	err     error
	state   conductor.State
}

func (f *fakeController) act(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, name)
	return f.err
}

func (f *fakeController) StartCalibration(context.Context) error { return f.act("calibrate") }
func (f *fakeController) Restart(context.Context) error          { return f.act("restart") }
func (f *fakeController) Stop(context.Context) error             { return f.act("stop") }
func (f *fakeController) Resume(context.Context) error           { return f.act("resume") }

func (f *fakeController) Load(_ context.Context, s *song.Song) error {
	if err := f.act("load"); err != nil {
		return err
	}
	f.mu.Lock()
	f.loaded = s
	f.mu.Unlock()
	return nil
}

func (f *fakeController) Submit(s pose.Sample) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, s)
	return true
}

func (f *fakeController) Snapshot() conductor.Snapshot {
	return conductor.Snapshot{State: f.state, Velocity: 1}
}

type fakeEstimator struct {
	got []byte
}

func (e *fakeEstimator) EstimateJPEG(jpeg []byte, ts time.Time) (pose.Sample, error) {
	e.got = jpeg
	return pose.Sample{Timestamp: ts}, nil
}

func newTestServer(t *testing.T) (*Server, *fakeController) {
	t.Helper()
	ctrl := &fakeController{state: conductor.StateIdle}
	cfg := DefaultConfig()
	cfg.CountdownStep = 5 * time.Millisecond
	s := NewServer(cfg, ctrl, log.Discard())
	t.Cleanup(s.close)
	return s, ctrl
}

func do(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func TestServer_Status(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := do(t, s, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "idle", body["state"])
}

func TestServer_Actions(t *testing.T) {
	s, ctrl := newTestServer(t)

	for path, want := range map[string]string{
		"/api/calibration": "calibrate",
		"/api/restart":     "restart",
		"/api/stop":        "stop",
		"/api/resume":      "resume",
	} {
		code, _ := do(t, s, http.MethodPost, path, "")
		assert.Equal(t, http.StatusOK, code, path)
		assert.Equal(t, want, ctrl.actions[len(ctrl.actions)-1])
	}
}

func TestServer_ActionConflict(t *testing.T) {
	s, ctrl := newTestServer(t)
	ctrl.err = conductor.ErrInvalidTransition

	code, body := do(t, s, http.MethodPost, "/api/resume", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body["error"], "not valid")
}

func TestServer_ListSongs(t *testing.T) {
	s, _ := newTestServer(t)

	code, body := do(t, s, http.MethodGet, "/api/songs", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["songs"], song.DefaultSong)
}

func TestServer_LoadSong(t *testing.T) {
	s, ctrl := newTestServer(t)

	code, _ := do(t, s, http.MethodPut, "/api/song", `{"name":"demo"}`)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, ctrl.loaded)
	assert.Equal(t, "Ode to the Baton", ctrl.loaded.Header.Name)

	code, _ = do(t, s, http.MethodPut, "/api/song", `{"name":"no-such-song"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, s, http.MethodPut, "/api/song", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	ctrl.err = conductor.ErrBusy
	code, _ = do(t, s, http.MethodPut, "/api/song", `{"name":"demo"}`)
	assert.Equal(t, http.StatusConflict, code)
}

func TestServer_NoController(t *testing.T) {
	s := NewServer(DefaultConfig(), nil, log.Discard())
	t.Cleanup(s.close)

	code, body := do(t, s, http.MethodPut, "/api/song", `{"name":"demo"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "conductor not attached", body["error"])

	code, _ = do(t, s, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestServer_WebsocketNeedsUpgrade(t *testing.T) {
	s, _ := newTestServer(t)

	code, _ := do(t, s, http.MethodGet, "/ws/status", "")
	assert.Equal(t, http.StatusUpgradeRequired, code)
}

func TestServer_PoseMessage(t *testing.T) {
	s, ctrl := newTestServer(t)
	now := time.UnixMilli(5000)

	msg, err := protocol.NewPoseMessage(pose.Sample{
		Keypoints: map[pose.Name]pose.Keypoint{
			pose.RightWrist: {X: 0.5, Y: 0.25, Confidence: 0.9},
		},
	})
	require.NoError(t, err)
	data, err := msg.Bytes()
	require.NoError(t, err)

	reply, err := s.handlePoseMessage(data, now)
	require.NoError(t, err)
	assert.Nil(t, reply)

	require.Len(t, ctrl.samples, 1)
	assert.True(t, ctrl.samples[0].Timestamp.Equal(now), "stamped on arrival")
	kp, ok := ctrl.samples[0].Get(pose.RightWrist)
	require.True(t, ok)
	assert.InDelta(t, 0.25, kp.Y, 1e-9)
}

func TestServer_FrameMessage(t *testing.T) {
	s, ctrl := newTestServer(t)

	msg, err := protocol.NewFrameMessage(2, 2, []byte{0xff, 0xd8}, 1)
	require.NoError(t, err)
	data, err := msg.Bytes()
	require.NoError(t, err)

	_, err = s.handlePoseMessage(data, time.Now())
	assert.Error(t, err, "frames rejected without an estimator")

	est := &fakeEstimator{}
	s.SetEstimator(est)
	_, err = s.handlePoseMessage(data, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, est.got)
	assert.Len(t, ctrl.samples, 1)
}

func TestServer_PingAndUnknown(t *testing.T) {
	s, _ := newTestServer(t)

	ping, err := protocol.NewPingMessage("p1")
	require.NoError(t, err)
	data, err := ping.Bytes()
	require.NoError(t, err)

	reply, err := s.handlePoseMessage(data, time.Now())
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, protocol.TypePong, reply.Type)

	_, err = s.handlePoseMessage([]byte(`{"type":"tempo"}`), time.Now())
	assert.Error(t, err)

	_, err = s.handlePoseMessage([]byte(`not json`), time.Now())
	assert.Error(t, err)
}

func TestServer_CountdownCompletes(t *testing.T) {
	s, _ := newTestServer(t)

	select {
	case <-s.RenderCountdown():
	case <-time.After(2 * time.Second):
		t.Fatal("countdown never finished")
	}
}

func TestServer_CountdownAbortsOnShutdown(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.CountdownStep = time.Hour

	done := s.RenderCountdown()
	s.close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown ignored shutdown")
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func TestServer_CountdownAbortsWhenStateChanges(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.CountdownStep = time.Hour

	done := s.RenderCountdown()
	s.RenderState(conductor.Snapshot{State: conductor.StateCountdown})
	select {
	case <-done:
		t.Fatal("countdown stopped while still counting down")
	case <-time.After(20 * time.Millisecond):
	}

	// Restart publishes idle
	s.RenderState(conductor.Snapshot{State: conductor.StateIdle})
	waitClosed(t, done, "countdown kept running after restart")
}

func TestServer_NewCountdownReplacesOld(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.CountdownStep = time.Hour

	first := s.RenderCountdown()
	second := s.RenderCountdown()
	waitClosed(t, first, "old countdown kept running")

	select {
	case <-second:
		t.Fatal("new countdown stopped early")
	default:
	}
	s.close()
	waitClosed(t, second, "countdown ignored shutdown")
}

func TestServer_RenderStateKeepsLatest(t *testing.T) {
	s, _ := newTestServer(t)

	s.RenderState(conductor.Snapshot{State: conductor.StateCalibrating})
	s.RenderState(conductor.Snapshot{State: conductor.StateConducting, Tempo: 96})

	latest := s.latest.Load()
	require.NotNil(t, latest)
	assert.Equal(t, conductor.StateConducting, latest.State)
	assert.Equal(t, 96.0, latest.Tempo)
}
