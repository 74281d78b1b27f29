//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/botkit/internal/config"
	"github.com/ashureev/botkit/internal/domain"
	"github.com/ashureev/botkit/internal/events"
	"github.com/ashureev/botkit/internal/nlu"
	"github.com/ashureev/botkit/internal/service"
	"github.com/ashureev/botkit/internal/store"
)

const trainBody = `{
	"language": "EN",
	"password": "s3cret",
	"seed": 42,
	"unknownField": true,
	"entities": [{"name": "city", "type": "list", "values": [{"name": "Paris"}, {"name": "London"}]}],
	"topics": [
		{"name": "travel", "intents": [
			{"name": "book_flight", "utterances": ["book a flight to paris", "fly me to london"],
			 "slots": [{"name": "destination", "entities": ["city"]}]}
		]},
		{"name": "smalltalk", "intents": [
			{"name": "greeting", "utterances": ["hello there", "good morning"]}
		]}
	]
}`

type testServer struct {
	router http.Handler
	bus    *events.Bus
}

func newTestServer(t *testing.T, httpCfg config.HTTPConfig) *testServer {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "nlu.db"))
	require.NoError(t, err)

	engine := nlu.NewEngine(nlu.Options{})
	bus := events.NewBus(events.Options{})
	models := service.NewModelService(repo, engine, nil)
	sessions := service.NewTrainSessionService(bus, nil)
	trainer := service.NewTrainService(engine, models, sessions, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		trainer.Shutdown()
		bus.Close()
		_ = repo.Close()
	})

	if httpCfg.AllowedOrigins == nil {
		httpCfg.AllowedOrigins = []string{"*"}
	}
	info := Info{
		Version:   "test",
		Specs:     Specs{EngineVersion: engine.Version(), SpecHash: engine.SpecificationHash()},
		Languages: []string{"en", "fr"},
	}
	router := NewRouter(ctx, httpCfg,
		NewHealthHandler(repo),
		NewNLUHandler(models, trainer, sessions, info),
		NewRenderHandler("https://bot.example"),
		NewEventsHandler(bus, httpCfg.AllowedOrigins),
	)
	return &testServer{router: router, bus: bus}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]json.RawMessage) {
	t.Helper()
	return s.doWithPassword(t, method, path, body, "")
}

func (s *testServer) doWithPassword(t *testing.T, method, path, body, password string) (int, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if password != "" {
		req.Header.Set(PasswordHeader, password)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var got map[string]json.RawMessage
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got), "body: %s", w.Body.String())
	}
	return w.Code, got
}

func (s *testServer) trainAndWait(t *testing.T) string {
	t.Helper()
	code, got := s.do(t, http.MethodPost, "/train", trainBody)
	require.Equal(t, http.StatusOK, code)

	var modelID string
	require.NoError(t, json.Unmarshal(got["modelId"], &modelID))

	require.Eventually(t, func() bool {
		code, got := s.doWithPassword(t, http.MethodGet, "/train/"+modelID, "", "s3cret")
		if code != http.StatusOK {
			return false
		}
		var session domain.TrainSession
		_ = json.Unmarshal(got["session"], &session)
		return session.Status == domain.TrainStatusDone
	}, 5*time.Second, 20*time.Millisecond)
	return modelID
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusNotFound, "nope")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != `{"success":false,"error":"nope"}` {
		t.Errorf("Unexpected body %s", body)
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.NewValidationError("language", "bad"), http.StatusBadRequest},
		{"model not found", domain.ErrModelNotFound, http.StatusNotFound},
		{"session not found", domain.ErrSessionNotFound, http.StatusNotFound},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeServiceError(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}

func TestInfo(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})

	code, got := s.do(t, http.MethodGet, "/info", "")
	require.Equal(t, http.StatusOK, code)

	var info Info
	require.NoError(t, json.Unmarshal(got["info"], &info))
	assert.Equal(t, nlu.EngineVersion, info.Specs.EngineVersion)
	assert.NotEmpty(t, info.Specs.SpecHash)
	assert.Equal(t, []string{"en", "fr"}, info.Languages)
}

func TestTrain_SameInputSameModelID(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})

	first := s.trainAndWait(t)
	code, got := s.do(t, http.MethodPost, "/train", trainBody)
	require.Equal(t, http.StatusOK, code)

	var second string
	require.NoError(t, json.Unmarshal(got["modelId"], &second))
	assert.Equal(t, first, second)
	assert.True(t, strings.HasSuffix(first, ".42.en"), "model id %s", first)
}

func TestTrain_Validation(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})

	tests := []struct {
		name string
		body string
	}{
		{"unsupported language", `{"language":"zz","topics":[{"name":"a","intents":[{"name":"b","utterances":["c"]}]}]}`},
		{"no topics", `{"language":"en","topics":[]}`},
		{"malformed", `{"language":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, got := s.do(t, http.MethodPost, "/train", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.JSONEq(t, `false`, string(got["success"]))
		})
	}
}

func TestGetTrainingSession_Unknown(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})

	code, got := s.do(t, http.MethodGet, "/train/nope.nope.1.en", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `false`, string(got["success"]))
}

func TestGetTrainingSession_PasswordSources(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})
	modelID := s.trainAndWait(t)

	code, _ := s.do(t, http.MethodGet, "/train/"+modelID, `{"password":"s3cret"}`)
	assert.Equal(t, http.StatusOK, code)

	// Passwords are not read from the query string.
	code, _ = s.do(t, http.MethodGet, "/train/"+modelID+"?password=s3cret", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPredict(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})
	modelID := s.trainAndWait(t)

	code, got := s.do(t, http.MethodPost, "/predict/"+modelID, `{"sentence":"book a flight to london","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, code)

	var prediction domain.Prediction
	require.NoError(t, json.Unmarshal(got["prediction"], &prediction))
	topic, intent := prediction.TopIntent()
	assert.Equal(t, "travel", topic)
	require.NotNil(t, intent)
	assert.Equal(t, "book_flight", intent.Name)

	// A wrong password behaves like a missing model.
	code, _ = s.do(t, http.MethodPost, "/predict/"+modelID, `{"sentence":"hello","password":"wrong"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/predict/"+modelID, `{"sentence":"  ","password":"s3cret"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestModels_ListAndDelete(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})
	modelID := s.trainAndWait(t)

	code, got := s.doWithPassword(t, http.MethodGet, "/models", "", "s3cret")
	require.Equal(t, http.StatusOK, code)
	var models []domain.Model
	require.NoError(t, json.Unmarshal(got["models"], &models))
	require.Len(t, models, 1)
	assert.Equal(t, modelID, models[0].ModelID)

	code, got = s.do(t, http.MethodGet, "/models", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(got["models"]))

	code, _ = s.do(t, http.MethodDelete, "/models/"+modelID, `{"password":"s3cret"}`)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodDelete, "/models/"+modelID, `{"password":"s3cret"}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCancel_NothingRunning(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})

	code, _ := s.do(t, http.MethodPost, "/train/abc.def.1.en/cancel", `{}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRenderContent(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})

	body := `{"channel":"web","carousel":{"items":[{"title":"A","image":"/a.png","actions":[{"action":"Open URL","title":"Go","url":"BOT_URL/x"}]}]}}`
	code, got := s.do(t, http.MethodPost, "/content/render", body)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(got["payload"]), `"picture":"https://bot.example/a.png"`)
	assert.Contains(t, string(got["payload"]), `"url":"https://bot.example/x"`)

	code, _ = s.do(t, http.MethodPost, "/content/render", `{"carousel":{"items":[{"title":"A","actions":[{"action":"Dial","title":"x"}]}]}}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/content/render", `{"carousel":{"items":[{"title":""}]}}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRouter_Auth(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{AuthToken: "tok"})

	code, _ := s.do(t, http.MethodGet, "/info", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodGet, "/models", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_BodySize(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{BodySize: 64})

	code, _ := s.do(t, http.MethodPost, "/train", trainBody)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
}

func TestRouter_RateLimit(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{Limit: 1, LimitWindow: time.Hour})

	code, _ := s.do(t, http.MethodGet, "/info", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodGet, "/info", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})

	code, got := s.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `"healthy"`, string(got["status"]))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEvents_SSEReplayAndLive(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	s.bus.PublishTrainSession("", domain.TrainSession{ModelID: "m1", Status: domain.TrainStatusPending})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?lastEventId=0", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && name != "":
				return name, data
			}
		}
	}

	name, data := readEvent()
	assert.Equal(t, events.TopicStatusBar, name)
	assert.Contains(t, data, `"modelId":"m1"`)

	name, _ = readEvent()
	assert.Equal(t, "connected", name)

	s.bus.PublishTrainSession("", domain.TrainSession{ModelID: "m2", Status: domain.TrainStatusTraining})
	name, data = readEvent()
	assert.Equal(t, events.TopicStatusBar, name)
	assert.Contains(t, data, `"modelId":"m2"`)
}

func TestEvents_FilteredByPassword(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/ws?lastEventId=0"

	var conns []*websocket.Conn
	defer func() {
		for _, conn := range conns {
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}
	}()
	dial := func(password string) *websocket.Conn {
		opts := &websocket.DialOptions{}
		if password != "" {
			opts.HTTPHeader = http.Header{PasswordHeader: []string{password}}
		}
		conn, _, err := websocket.Dial(ctx, wsURL, opts)
		require.NoError(t, err)
		conns = append(conns, conn)
		return conn
	}
	owner := dial("s3cret")
	stranger := dial("wrong")
	anonymous := dial("")
	require.Eventually(t, func() bool { return s.bus.Subscribers() == 3 }, time.Second, 10*time.Millisecond)

	s.bus.PublishTrainSession(domain.HashPassword("s3cret"), domain.TrainSession{ModelID: "m1", Status: domain.TrainStatusPending})
	// A marker visible only to password-less streams, so the others are read up to a known point.
	s.bus.PublishTrainSession("", domain.TrainSession{ModelID: "marker", Status: domain.TrainStatusPending})
	s.bus.PublishTrainSession(domain.HashPassword("wrong"), domain.TrainSession{ModelID: "marker", Status: domain.TrainStatusPending})

	readModel := func(conn *websocket.Conn) string {
		var ev events.Event
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		status, err := events.DecodeStatus(ev)
		require.NoError(t, err)
		return status.TrainSession.ModelID
	}
	assert.Equal(t, "m1", readModel(owner))
	assert.Equal(t, "marker", readModel(stranger))
	assert.Equal(t, "marker", readModel(anonymous))

	// SSE replay applies the same gate.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?lastEventId=0&modelId=m1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		assert.NotContains(t, line, `"modelId":"m1"`)
		if strings.HasPrefix(line, "event: connected") {
			break
		}
	}
}

func TestEvents_WebSocket(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/events/ws?modelId=m2", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return s.bus.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	s.bus.PublishTrainSession("", domain.TrainSession{ModelID: "m1", Status: domain.TrainStatusPending})
	s.bus.PublishTrainSession("", domain.TrainSession{ModelID: "m2", Status: domain.TrainStatusPending})

	var ev events.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	status, err := events.DecodeStatus(ev)
	require.NoError(t, err)
	assert.Equal(t, "m2", status.TrainSession.ModelID)
	assert.True(t, bytes.Contains(ev.Payload, []byte(`"type":"nlu"`)))
}
