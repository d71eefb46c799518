package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"webcamshooter/internal/api"
	"webcamshooter/internal/camera"
	"webcamshooter/internal/config"
	"webcamshooter/internal/logging"
	"webcamshooter/internal/render"
	"webcamshooter/internal/session"
)

type testServer struct {
	server   *Server
	session  *session.Session
	acquirer *camera.MockAcquirer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Camera.Driver = "testpattern"
	cfg.Shooter.SurfaceWidth = 32
	cfg.Shooter.SurfaceHeight = 24

	acquirer := camera.NewMockAcquirer()
	sess, err := session.New(session.Options{
		Acquirer:  acquirer,
		Shooter:   cfg.Shooter,
		Filter:    cfg.Filter,
		Scheduler: render.NewManualScheduler(),
		Log:       logging.Discard(),
	})
	if err != nil {
		t.Fatalf("session.New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = sess.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	return &testServer{
		server:   New(cfg, sess, logging.Discard()),
		session:  sess,
		acquirer: acquirer,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- ts.server.Start(ctx)
	}()

	// サーバーが起動するまで少し待つ
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}

func TestServerEndpoints(t *testing.T) {
	ts := newTestServer(t)

	testCases := []struct {
		name           string
		method         string
		endpoint       string
		expectedStatus int
	}{
		{"ルートエンドポイント", http.MethodGet, "/", http.StatusOK},
		{"ヘルスチェックエンドポイント", http.MethodGet, "/health", http.StatusOK},
		{"ステータスエンドポイント", http.MethodGet, "/api/status", http.StatusOK},
		{"フィルター取得", http.MethodGet, "/api/filter", http.StatusOK},
		{"ギャラリー取得", http.MethodGet, "/api/gallery", http.StatusOK},
		{"空のスロット", http.MethodGet, "/api/gallery/0", http.StatusNotFound},
		{"範囲外のスロット", http.MethodGet, "/api/gallery/24", http.StatusNotFound},
		{"不正なスロット", http.MethodGet, "/api/gallery/abc", http.StatusBadRequest},
		{"ストリームなしで停止", http.MethodPost, "/api/stream/stop", http.StatusConflict},
		{"存在しないパス", http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, tc.method, tc.endpoint, "")
			if rec.Code != tc.expectedStatus {
				t.Errorf("Expected status %d, got %d (%s)", tc.expectedStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetStatus_Initial(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/status", "")
	status := decode[api.StatusResponse](t, rec)

	if status.State != api.Invalid {
		t.Errorf("Expected state %q, got %q", api.Invalid, status.State)
	}
	if status.Driver != "testpattern" {
		t.Errorf("Expected driver testpattern, got %q", status.Driver)
	}
	if status.Surface.Width != 32 || status.Surface.Height != 24 {
		t.Errorf("Unexpected surface %+v", status.Surface)
	}
	if status.Gallery.Size != 24 || status.Gallery.Cursor != 0 {
		t.Errorf("Unexpected gallery info %+v", status.Gallery)
	}
	if status.StreamId != nil {
		t.Error("Expected no stream id before start")
	}
}

func TestStopStream_NoActiveStream(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/stream/stop", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", rec.Code)
	}
	resp := decode[api.ErrorResponse](t, rec)
	if resp.Error != "no_active_stream" {
		t.Errorf("Expected no_active_stream, got %q", resp.Error)
	}
}

func TestStartAndStopStream(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/stream/start", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d (%s)", rec.Code, rec.Body.String())
	}

	// 取得は非同期に完了する
	deadline := time.Now().Add(2 * time.Second)
	for {
		status := decode[api.StatusResponse](t, ts.do(t, http.MethodGet, "/api/status", ""))
		if status.State == api.Streaming {
			if status.StreamId == nil || *status.StreamId == "" {
				t.Error("Expected stream id while streaming")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for streaming state")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec = ts.do(t, http.MethodPost, "/api/stream/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	resp := decode[api.StreamResponse](t, rec)
	if resp.State != api.NotStreaming {
		t.Errorf("Expected not_streaming, got %q", resp.State)
	}

	if !ts.acquirer.LastStream().Track().Stopped() {
		t.Error("Expected track to be stopped")
	}
}

func TestTakePhotoAndFetchSnapshot(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/photo", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	photo := decode[api.PhotoResponse](t, rec)
	if photo.Slot != 0 || photo.Cursor != 1 {
		t.Errorf("Expected slot 0 / cursor 1, got %d / %d", photo.Slot, photo.Cursor)
	}
	if photo.Snapshot.Url != "/api/gallery/0" || photo.Snapshot.Width != 32 || photo.Snapshot.Height != 24 {
		t.Errorf("Unexpected snapshot info %+v", photo.Snapshot)
	}

	t.Run("jpeg", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/gallery/0", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Expected image/jpeg, got %q", ct)
		}
		body := rec.Body.Bytes()
		if len(body) < 2 || body[0] != 0xFF || body[1] != 0xD8 {
			t.Error("Expected JPEG body")
		}
		if rec.Body.Len() != photo.Snapshot.Size {
			t.Errorf("Expected %d bytes, got %d", photo.Snapshot.Size, rec.Body.Len())
		}
	})

	t.Run("dataurl", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/gallery/0?format=dataurl", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if !strings.HasPrefix(rec.Body.String(), render.DataURLPrefix) {
			t.Errorf("Expected data URL, got %.40q", rec.Body.String())
		}
	})

	t.Run("gallery", func(t *testing.T) {
		gallery := decode[api.GalleryResponse](t, ts.do(t, http.MethodGet, "/api/gallery", ""))
		if gallery.Cursor != 1 || len(gallery.Slots) != 24 {
			t.Fatalf("Unexpected gallery %d / %d", gallery.Cursor, len(gallery.Slots))
		}
		if !gallery.Slots[0].Filled || gallery.Slots[0].Snapshot == nil {
			t.Error("Expected slot 0 to be filled")
		}
		if gallery.Slots[1].Filled {
			t.Error("Expected slot 1 to be empty")
		}
	})
}

func TestGallery_Wraps(t *testing.T) {
	ts := newTestServer(t)

	var last api.PhotoResponse
	for i := 0; i < 25; i++ {
		rec := ts.do(t, http.MethodPost, "/api/photo", "")
		if rec.Code != http.StatusCreated {
			t.Fatalf("photo %d: expected 201, got %d", i, rec.Code)
		}
		last = decode[api.PhotoResponse](t, rec)
	}

	if last.Slot != 0 || last.Cursor != 1 {
		t.Errorf("Expected 25th photo in slot 0 with cursor 1, got %d / %d", last.Slot, last.Cursor)
	}
}

func TestSetFilterBound(t *testing.T) {
	testCases := []struct {
		name           string
		path           string
		body           string
		expectedStatus int
	}{
		{"赤の下限", "/api/filter/red/min", `{"value": 50}`, http.StatusOK},
		{"青の上限", "/api/filter/blue/max", `{"value": 0}`, http.StatusOK},
		{"不正なチャンネル", "/api/filter/alpha/min", `{"value": 50}`, http.StatusBadRequest},
		{"不正な境界", "/api/filter/red/mid", `{"value": 50}`, http.StatusBadRequest},
		{"範囲外の値", "/api/filter/red/min", `{"value": 256}`, http.StatusBadRequest},
		{"負の値", "/api/filter/green/max", `{"value": -1}`, http.StatusBadRequest},
		{"値なし", "/api/filter/red/min", `{}`, http.StatusBadRequest},
		{"不正なJSON", "/api/filter/red/min", `{`, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(t, http.MethodPut, tc.path, tc.body)
			if rec.Code != tc.expectedStatus {
				t.Errorf("Expected status %d, got %d (%s)", tc.expectedStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSetFilterBound_Persists(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/api/filter/red/min", `{"value": 50}`)
	got := decode[api.FilterSettings](t, rec)
	if got.Red.Min != 50 || got.Red.Max != 255 {
		t.Errorf("Unexpected red range %+v", got.Red)
	}

	// min > max も受け付ける
	ts.do(t, http.MethodPut, "/api/filter/red/max", `{"value": 10}`)
	got = decode[api.FilterSettings](t, ts.do(t, http.MethodGet, "/api/filter", ""))
	if got.Red.Min != 50 || got.Red.Max != 10 {
		t.Errorf("Expected red 50-10, got %+v", got.Red)
	}
}

func TestReplaceFilter(t *testing.T) {
	ts := newTestServer(t)

	body := `{"red":{"min":10,"max":20},"green":{"min":0,"max":255},"blue":{"min":200,"max":100}}`
	rec := ts.do(t, http.MethodPut, "/api/filter", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	got := decode[api.FilterSettings](t, ts.do(t, http.MethodGet, "/api/filter", ""))
	if got.Red.Min != 10 || got.Red.Max != 20 || got.Blue.Min != 200 || got.Blue.Max != 100 {
		t.Errorf("Unexpected filter %+v", got)
	}

	rec = ts.do(t, http.MethodPut, "/api/filter", `{"red":{"min":0,"max":300},"green":{"min":0,"max":255},"blue":{"min":0,"max":255}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if resp := decode[api.ErrorResponse](t, rec); resp.Error != "invalid_filter" {
		t.Errorf("Expected invalid_filter, got %q", resp.Error)
	}

	// 失敗した置き換えは反映されない
	got = decode[api.FilterSettings](t, ts.do(t, http.MethodGet, "/api/filter", ""))
	if got.Red.Max != 20 {
		t.Errorf("Filter must be unchanged after rejected replace, got %+v", got.Red)
	}
}

func TestIndex(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/", "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Expected text/html, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "/api/preview") {
		t.Error("Expected index to reference preview stream")
	}
}

func TestEventsWebSocket(t *testing.T) {
	ts := newTestServer(t)

	httpServer := httptest.NewServer(ts.server.Handler())
	defer httpServer.Close()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var initial map[string]any
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if initial["type"] != "state" || initial["state"] != "invalid" {
		t.Errorf("Unexpected initial event %v", initial)
	}

	// 撮影イベントが届く
	if rec := ts.do(t, http.MethodPost, "/api/photo", ""); rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	for {
		var event map[string]any
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		if event["type"] == "photo" {
			if event["slot"] != float64(0) {
				t.Errorf("Expected slot 0, got %v", event["slot"])
			}
			return
		}
	}
}

func TestPreviewStream_ClientGone(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/preview", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.server.Handler().ServeHTTP(rec, req)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Preview stream did not end after client disconnect")
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Errorf("Expected multipart content type, got %q", ct)
	}
}
