package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/VoxArm/internal/arm"
	"github.com/cjeanneret/VoxArm/internal/control"
	"github.com/cjeanneret/VoxArm/internal/voice"
)

type fixedState control.State

func (s fixedState) State() control.State { return control.State(s) }

type fixedPose arm.Waypoint

func (p fixedPose) Snapshot() arm.Waypoint { return arm.Waypoint(p) }

type listPresets struct {
	names []string
	err   error
}

func (l listPresets) List(context.Context) ([]string, error) { return l.names, l.err }

func newTestServer(t *testing.T, deps Deps) (*Server, *voice.ChanListener) {
	t.Helper()
	listener := voice.NewChanListener(4)
	if deps.Submitter == nil {
		deps.Submitter = listener
	}
	s, err := NewServer(":0", deps, http.NotFoundHandler())
	require.NoError(t, err)
	s.handlers.staticFS = fstest.MapFS{
		"index.html": {Data: []byte("<html>VoxArm</html>")},
	}
	return s, listener
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, bytes.NewReader(body)))
	return rec
}

func TestValidateUtterance(t *testing.T) {
	text, err := ValidateUtterance("  rotate red 90 degrees \n")
	require.NoError(t, err)
	assert.Equal(t, "rotate red 90 degrees", text)

	for name, in := range map[string]string{
		"empty":    "",
		"blank":    "   ",
		"too long": strings.Repeat("a", MaxUtteranceLen+1),
		"bad utf8": "rotate \xff",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateUtterance(in)
			assert.Error(t, err)
		})
	}
}

func TestHandleUtterance_Queues(t *testing.T) {
	s, listener := newTestServer(t, Deps{})

	rec := do(t, s.Router(), http.MethodPost, "/utterance", []byte(`{"text":" pick up red and put over blue "}`))

	require.Equal(t, http.StatusAccepted, rec.Code)
	got, err := listener.AwaitUtterance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pick up red and put over blue", got)
}

func TestHandleUtterance_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	cases := map[string][]byte{
		"invalid json": []byte("{not json"),
		"empty text":   []byte(`{"text":""}`),
		"oversized":    []byte(`{"text":"` + strings.Repeat("x", 10*MaxUtteranceLen) + `"}`),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, s.Router(), http.MethodPost, "/utterance", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleUtterance_GetNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	rec := do(t, s.Router(), http.MethodGet, "/utterance", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleUtterance_ListenerClosed(t *testing.T) {
	s, listener := newTestServer(t, Deps{})
	listener.Close()

	rec := do(t, s.Router(), http.MethodPost, "/utterance", []byte(`{"text":"exit"}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleUtterance_QueueFull(t *testing.T) {
	full := voice.NewChanListener(0)
	s, _ := newTestServer(t, Deps{Submitter: full})

	h := s.Router()
	req := httptest.NewRequest(http.MethodPost, "/utterance", strings.NewReader(`{"text":"exit"}`))
	ctx, cancel := context.WithTimeout(req.Context(), 20*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandleState(t *testing.T) {
	s, _ := newTestServer(t, Deps{
		State: fixedState(control.Executing),
		Pose:  fixedPose(arm.Pose(120, 30, 0, 0, 30)),
	})

	rec := do(t, s.Router(), http.MethodGet, "/state", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "executing", resp.State)
	assert.Equal(t, 120, resp.Pose["base"])
	assert.Equal(t, 30, resp.Pose["gripper"])
}

func TestHandleState_NotRunning(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	rec := do(t, s.Router(), http.MethodGet, "/state", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlePresets(t *testing.T) {
	s, _ := newTestServer(t, Deps{Presets: listPresets{names: []string{"home", "wave"}}})

	rec := do(t, s.Router(), http.MethodGet, "/presets", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"presets":["home","wave"]}`, rec.Body.String())
}

func TestHandlePresets_Empty(t *testing.T) {
	s, _ := newTestServer(t, Deps{Presets: listPresets{}})
	rec := do(t, s.Router(), http.MethodGet, "/presets", nil)
	assert.JSONEq(t, `{"presets":[]}`, rec.Body.String())
}

func TestHandlePresets_StoreDown(t *testing.T) {
	s, _ := newTestServer(t, Deps{Presets: listPresets{err: errors.New("connection refused")}})
	rec := do(t, s.Router(), http.MethodGet, "/presets", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServeIndex(t *testing.T) {
	s, _ := newTestServer(t, Deps{})

	rec := do(t, s.Router(), http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "VoxArm")
}

func TestEmbeddedIndexExists(t *testing.T) {
	data, err := staticFiles.ReadFile("static/index.html")
	require.NoError(t, err)
	assert.Contains(t, string(data), "/status/stream")
}

func TestHandleStatusStream(t *testing.T) {
	b := NewStatusBroadcaster()
	s, _ := newTestServer(t, Deps{Broadcaster: b})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	b.Broadcast("info", "streamed")

	buf := make([]byte, 512)
	var got strings.Builder
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !strings.Contains(got.String(), "streamed") {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			break
		}
	}
	assert.Contains(t, got.String(), ": connected")
	assert.Contains(t, got.String(), `"msg":"streamed"`)
}

func TestHandleWebSocket_SubmitAndReceive(t *testing.T) {
	b := NewStatusBroadcaster()
	s, listener := newTestServer(t, Deps{Broadcaster: b})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("rotate blue 90 degrees")))

	got, err := listener.AwaitUtterance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rotate blue 90 degrees", got)

	var reply StatusEvent
	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "queued: rotate blue 90 degrees", reply.Msg)

	b.PublishAnnouncement(control.Announcement{Text: "Rotation complete", At: time.Now()})
	var evt StatusEvent
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, KindAnnounce, evt.Kind)
	assert.Equal(t, "Rotation complete", evt.Msg)
}

func TestHandleWebSocket_RejectsBlank(t *testing.T) {
	s, _ := newTestServer(t, Deps{})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("   ")))
	var reply StatusEvent
	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Level)
}
