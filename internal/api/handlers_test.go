package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rvslideshow/internal/cache"
	"rvslideshow/internal/media"
	"rvslideshow/internal/playback"
	"rvslideshow/internal/remote"
	"rvslideshow/internal/slideshow"
	"rvslideshow/internal/storage"
)

type testEnv struct {
	store   *storage.SQLiteStorage
	handler *Handler
	player  *playback.Controller
	server  *httptest.Server
	dir     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "library.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	c, err := cache.NewLRUCache(16, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	source := slideshow.NewService(store, c, rand.New(rand.NewPCG(3, 4)), zerolog.Nop())
	player := playback.NewController(playback.Dependencies{Source: source}, zerolog.Nop())
	t.Cleanup(player.Close)

	h := NewHandler(store, zerolog.Nop(), "Library")
	h.SetSource(source)
	h.SetController(player)
	h.SetDefaults(playback.Config{CadenceMs: 20, WindowSize: 4})

	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return &testEnv{store: store, handler: h, player: player, server: ts, dir: dir}
}

func (e *testEnv) addFolder(t *testing.T, name string, items ...string) {
	t.Helper()
	folderPath := filepath.Join(e.dir, name)
	if err := os.MkdirAll(folderPath, 0755); err != nil {
		t.Fatal(err)
	}
	if err := e.store.CreateFolder(&storage.Folder{ID: "id-" + name, Name: name, Path: folderPath, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	for _, item := range items {
		path := filepath.Join(folderPath, item)
		if err := os.WriteFile(path, []byte("content of "+item), 0644); err != nil {
			t.Fatal(err)
		}
		kind, _ := media.KindOf(item)
		m := &storage.MediaItem{
			ID:          item,
			FolderID:    "id-" + name,
			Title:       strings.TrimSuffix(item, filepath.Ext(item)),
			Path:        path,
			Kind:        kind,
			ContentType: media.GetContentType(item),
			Size:        int64(len("content of " + item)),
			ModifiedAt:  time.Now(),
			CreatedAt:   time.Now(),
		}
		if err := e.store.CreateMediaItem(m); err != nil {
			t.Fatal(err)
		}
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+"/api/v1"+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func decodeError(t *testing.T, data []byte) ErrorDetail {
	t.Helper()
	var env ErrorResponse
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("not an error envelope: %s", data)
	}
	return env.Error
}

func TestHealthAndLibrary(t *testing.T) {
	env := newTestEnv(t)
	env.addFolder(t, "A", "a1.jpg", "clip.mp4", "song.mp3")

	resp, data := env.do(t, http.MethodGet, "/health", "")
	var health HealthResponse
	json.Unmarshal(data, &health)
	if resp.StatusCode != http.StatusOK || health.Status != "ok" || health.Session != playback.StateIdle {
		t.Errorf("health = %d %+v", resp.StatusCode, health)
	}

	_, data = env.do(t, http.MethodGet, "/library/tree", "")
	var tree LibraryTreeResponse
	if err := json.Unmarshal(data, &tree); err != nil {
		t.Fatal(err)
	}
	if tree.Name != "Library" || len(tree.Folders) != 1 {
		t.Fatalf("tree = %+v", tree)
	}
	if f := tree.Folders[0]; f.ID != "id-A" || f.Images != 1 || f.Videos != 1 || len(f.Media) != 3 {
		t.Errorf("folder node = %+v", f)
	}

	_, data = env.do(t, http.MethodGet, "/library/stats", "")
	var stats LibraryStatsResponse
	json.Unmarshal(data, &stats)
	if stats.Total != 3 || stats.Counts[storage.KindAudio] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	resp, data = env.do(t, http.MethodGet, "/media/a1.jpg", "")
	var mr MediaResponse
	json.Unmarshal(data, &mr)
	if resp.StatusCode != http.StatusOK || mr.Media.ID != "a1.jpg" || mr.ContentURL != "/api/v1/media/a1.jpg/content" {
		t.Errorf("media = %d %+v", resp.StatusCode, mr)
	}

	resp, data = env.do(t, http.MethodGet, "/media/nope", "")
	if resp.StatusCode != http.StatusNotFound || decodeError(t, data).Code != "MEDIA_NOT_FOUND" {
		t.Errorf("missing media = %d %s", resp.StatusCode, data)
	}
}

func TestMediaContent(t *testing.T) {
	env := newTestEnv(t)
	env.addFolder(t, "A", "a1.jpg", "clip.mp4", "song.mp3")
	if err := env.store.UpdateMediaMetadata("clip.mp4", 2500, 1920, 1080); err != nil {
		t.Fatal(err)
	}

	resp, data := env.do(t, http.MethodGet, "/media/clip.mp4/content", "")
	if resp.StatusCode != http.StatusOK || string(data) != "content of clip.mp4" {
		t.Fatalf("content = %d %q", resp.StatusCode, data)
	}
	h := resp.Header
	if h.Get(remote.HeaderMediaKind) != "video" || h.Get(remote.HeaderMediaDuration) != "2500" || h.Get(remote.HeaderMediaWidth) != "1920" {
		t.Errorf("headers = %v", h)
	}
	if h.Get("X-Cache") != "MISS" || h.Get("Content-Type") != "video/mp4" {
		t.Errorf("first read: X-Cache=%q Content-Type=%q", h.Get("X-Cache"), h.Get("Content-Type"))
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/media/clip.mp4/content", nil)
	req.Header.Set("Range", "bytes=0-6")
	ranged, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(ranged.Body)
	ranged.Body.Close()
	if ranged.StatusCode != http.StatusPartialContent || string(body) != "content" || ranged.Header.Get("X-Cache") != "HIT" {
		t.Errorf("range = %d %q cache=%q", ranged.StatusCode, body, ranged.Header.Get("X-Cache"))
	}

	resp, data = env.do(t, http.MethodGet, "/media/song.mp3/content", "")
	if resp.StatusCode != http.StatusOK || string(data) != "content of song.mp3" || resp.Header.Get("X-Cache") != "" {
		t.Errorf("audio = %d %q", resp.StatusCode, data)
	}

	if err := os.Remove(filepath.Join(env.dir, "A", "a1.jpg")); err != nil {
		t.Fatal(err)
	}
	resp, data = env.do(t, http.MethodGet, "/media/a1.jpg/content", "")
	if resp.StatusCode != http.StatusNotFound || decodeError(t, data).Code != "FILE_NOT_FOUND" {
		t.Errorf("deleted file = %d %s", resp.StatusCode, data)
	}
}

func TestRemoteClientAgainstServer(t *testing.T) {
	env := newTestEnv(t)
	env.addFolder(t, "A", "a1.jpg", "a2.jpg")
	env.addFolder(t, "B", "b1.jpg")
	if err := env.store.UpdateMediaMetadata("a1.jpg", 0, 640, 480); err != nil {
		t.Fatal(err)
	}

	client := remote.NewClient(env.server.URL, 5*time.Second, zerolog.Nop())
	ctx := context.Background()
	sel := playback.Selection{Folders: []string{"A", "B"}, StartFolder: "B"}

	if err := client.ResetSession(ctx); err != nil {
		t.Fatalf("ResetSession() failed: %v", err)
	}
	ids, err := client.List(ctx, sel)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"b1.jpg", "a1.jpg", "a2.jpg"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("List() = %v, want %v", ids, want)
	}

	first, err := client.Next(ctx, sel, 1)
	if err != nil || first != "b1.jpg" {
		t.Fatalf("Next(1) = %q, %v", first, err)
	}
	again, _ := client.Next(ctx, sel, 1)
	if again != first {
		t.Errorf("repeated Next(1) = %q, want %q", again, first)
	}
	if _, err := client.Next(ctx, sel, 4); !errors.Is(err, playback.ErrEndOfSequence) {
		t.Errorf("Next(4) = %v, want ErrEndOfSequence", err)
	}

	var se *remote.StatusError
	if _, err := client.Next(ctx, sel, 0); !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Errorf("Next(0) = %v, want a 400 StatusError", err)
	}

	m, err := client.Fetch(ctx, "a1.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if m.Kind != playback.KindImage || string(m.Data) != "content of a1.jpg" || m.Width != 640 || m.Height != 480 {
		t.Errorf("Fetch() = %+v", m)
	}
	if _, err := client.Fetch(ctx, "missing"); !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("Fetch(missing) = %v", err)
	}
}

func TestRemoteSourceDrivesController(t *testing.T) {
	env := newTestEnv(t)
	env.addFolder(t, "A", "a1.jpg", "a2.jpg")

	var mu sync.Mutex
	var shown []string
	presenter := playback.PresenterFunc(func(ctx context.Context, m *playback.Media) error {
		mu.Lock()
		defer mu.Unlock()
		shown = append(shown, m.ID+":"+string(m.Data))
		return nil
	})
	client := remote.NewClient(env.server.URL, 5*time.Second, zerolog.Nop())
	player := playback.NewController(playback.Dependencies{Source: client, Presenter: presenter}, zerolog.Nop())
	defer player.Close()

	s, err := player.Start(context.Background(), playback.Config{SelectedFolders: []string{"A"}, CadenceMs: 10})
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("remote session did not end")
	}

	mu.Lock()
	defer mu.Unlock()
	if want := []string{"a1.jpg:content of a1.jpg", "a2.jpg:content of a2.jpg"}; !reflect.DeepEqual(shown, want) {
		t.Errorf("shown = %v, want %v", shown, want)
	}
	if s.Status().Reason != playback.ReasonExhausted {
		t.Errorf("reason = %q", s.Status().Reason)
	}
}

func TestSessionControl(t *testing.T) {
	env := newTestEnv(t)
	env.addFolder(t, "A", "a1.jpg", "a2.jpg")

	resp, data := env.do(t, http.MethodPost, "/session/pause", "")
	if resp.StatusCode != http.StatusConflict || decodeError(t, data).Code != "NO_ACTIVE_SESSION" {
		t.Errorf("pause without session = %d %s", resp.StatusCode, data)
	}

	// The defaults carry no folders.
	resp, data = env.do(t, http.MethodPost, "/session/start", "")
	if resp.StatusCode != http.StatusBadRequest || decodeError(t, data).Code != "INVALID_CONFIG" {
		t.Errorf("start without folders = %d %s", resp.StatusCode, data)
	}

	resp, data = env.do(t, http.MethodPost, "/session/start", `{"selected_folders":["Empty"]}`)
	if resp.StatusCode != http.StatusUnprocessableEntity || decodeError(t, data).Code != "SESSION_FAILED" {
		t.Errorf("start on empty selection = %d %s", resp.StatusCode, data)
	}

	resp, data = env.do(t, http.MethodPost, "/session/start", `{"selected_folders":["A"],"loop":true}`)
	var sr SessionResponse
	json.Unmarshal(data, &sr)
	if resp.StatusCode != http.StatusCreated || sr.State != playback.StatePlaying || sr.SessionID == "" {
		t.Fatalf("start = %d %s", resp.StatusCode, data)
	}

	resp, data = env.do(t, http.MethodPost, "/session/pause", "")
	json.Unmarshal(data, &sr)
	if resp.StatusCode != http.StatusOK || sr.State != playback.StatePaused {
		t.Errorf("pause = %d %s", resp.StatusCode, data)
	}

	resp, data = env.do(t, http.MethodPost, "/session/resume", "")
	json.Unmarshal(data, &sr)
	if resp.StatusCode != http.StatusOK || sr.State != playback.StatePlaying {
		t.Errorf("resume = %d %s", resp.StatusCode, data)
	}

	_, data = env.do(t, http.MethodGet, "/session", "")
	json.Unmarshal(data, &sr)
	if sr.State != playback.StatePlaying {
		t.Errorf("session = %s", data)
	}

	resp, data = env.do(t, http.MethodPost, "/session/stop", "")
	json.Unmarshal(data, &sr)
	if resp.StatusCode != http.StatusOK || sr.State != playback.StateTerminated || sr.Reason != playback.ReasonStopped {
		t.Errorf("stop = %d %s", resp.StatusCode, data)
	}

	resp, _ = env.do(t, http.MethodPost, "/session/resume", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("resume after stop = %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/session/start", `{"selected_folders":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed start = %d", resp.StatusCode)
	}
}

func TestSessionEventsWebsocket(t *testing.T) {
	env := newTestEnv(t)
	env.addFolder(t, "A", "a1.jpg")

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/v1/session/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	type wireEvent struct {
		Type      playback.EventType `json:"type"`
		SessionID string             `json:"session_id"`
		Payload   json.RawMessage    `json:"payload"`
	}
	read := func() wireEvent {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var ev wireEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event: %v", err)
		}
		return ev
	}

	if ev := read(); ev.Type != eventSnapshot {
		t.Fatalf("first event = %q, want snapshot", ev.Type)
	}

	resp, data := env.do(t, http.MethodPost, "/session/start", `{"selected_folders":["A"]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start = %d %s", resp.StatusCode, data)
	}

	var displayed, ended bool
	for !ended {
		ev := read()
		switch ev.Type {
		case playback.EventItemDisplayed:
			var p playback.ItemDisplayedPayload
			json.Unmarshal(ev.Payload, &p)
			if p.ID != "a1.jpg" || p.Seq != 1 {
				t.Errorf("displayed payload = %+v", p)
			}
			displayed = true
		case playback.EventSessionEnded:
			var p playback.SessionEndedPayload
			json.Unmarshal(ev.Payload, &p)
			if p.Reason != playback.ReasonExhausted {
				t.Errorf("ended payload = %+v", p)
			}
			ended = true
		}
	}
	if !displayed {
		t.Error("no item_displayed event before session_ended")
	}
}

func TestSessionHistory(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"s1", "s2", "s3"} {
		rec := &storage.SessionRecord{
			ID:        id,
			Folders:   []string{"A"},
			CreatedAt: now,
			EndedAt:   now.Add(time.Duration(i) * time.Minute),
			Reason:    playback.ReasonStopped,
		}
		if err := env.store.SaveSession(rec); err != nil {
			t.Fatal(err)
		}
	}

	_, data := env.do(t, http.MethodGet, "/sessions?limit=2", "")
	var sr SessionsResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		t.Fatal(err)
	}
	if len(sr.Sessions) != 2 || sr.Sessions[0].ID != "s3" {
		t.Errorf("sessions = %+v", sr.Sessions)
	}

	resp, _ := env.do(t, http.MethodGet, "/sessions?limit=abc", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit = %d", resp.StatusCode)
	}
}

type fakeIndexer struct {
	scanning atomic.Bool
	calls    atomic.Int32
}

func (f *fakeIndexer) Index(ctx context.Context) (*media.ScanStats, error) {
	f.calls.Add(1)
	return &media.ScanStats{}, nil
}

func (f *fakeIndexer) IsScanning() bool { return f.scanning.Load() }

func TestScanLibrary(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/library/scan", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("scan without indexer = %d", resp.StatusCode)
	}

	idx := &fakeIndexer{}
	env.handler.SetIndexer(idx)

	resp, data := env.do(t, http.MethodPost, "/library/scan", "")
	if resp.StatusCode != http.StatusAccepted || !bytes.Contains(data, []byte(`"started"`)) {
		t.Errorf("scan = %d %s", resp.StatusCode, data)
	}
	deadline := time.Now().Add(time.Second)
	for idx.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if idx.calls.Load() != 1 {
		t.Errorf("Index called %d times", idx.calls.Load())
	}

	idx.scanning.Store(true)
	resp, data = env.do(t, http.MethodPost, "/library/scan", "")
	if resp.StatusCode != http.StatusOK || !bytes.Contains(data, []byte(`"in_progress"`)) {
		t.Errorf("scan while scanning = %d %s", resp.StatusCode, data)
	}
}

func TestPoster(t *testing.T) {
	env := newTestEnv(t)
	env.addFolder(t, "A", "a1.jpg", "clip.mp4")

	resp, _ := env.do(t, http.MethodGet, "/media/clip.mp4/poster", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("poster without generator = %d", resp.StatusCode)
	}

	posterDir := t.TempDir()
	env.handler.SetPosterGenerator(media.NewPosterGenerator(posterDir, nil, zerolog.Nop()))
	if err := os.WriteFile(filepath.Join(posterDir, "clip.mp4.jpg"), []byte("poster"), 0644); err != nil {
		t.Fatal(err)
	}

	resp, data := env.do(t, http.MethodGet, "/media/clip.mp4/poster", "")
	if resp.StatusCode != http.StatusOK || string(data) != "poster" || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("poster = %d %q", resp.StatusCode, data)
	}

	resp, data = env.do(t, http.MethodGet, "/media/a1.jpg/poster", "")
	if resp.StatusCode != http.StatusBadRequest || decodeError(t, data).Code != "NOT_A_VIDEO" {
		t.Errorf("image poster = %d %s", resp.StatusCode, data)
	}
}
