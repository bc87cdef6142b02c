package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dgallion1/tategaki/internal/config"
	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/session"
	"github.com/dgallion1/tategaki/internal/stats"
	"github.com/dgallion1/tategaki/internal/store"
	"github.com/dgallion1/tategaki/internal/surface"
)

func testConfig() config.Config {
	return config.Config{
		PageWidth:       800,
		ReferenceHeight: 400,
		FontSize:        16,
		LineHeight:      1.75,
		MaxUploadBytes:  1 << 20,
	}
}

func newTestServer(t *testing.T, cfg config.Config) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	set := stats.NewSet(time.Minute)
	mgr := session.NewManager(st, session.Config{
		PageWidth:       cfg.PageWidth,
		ReferenceHeight: cfg.ReferenceHeight,
		SaveDebounce:    time.Hour,
		Viewport:        surface.Viewport{Width: 1000, Height: 400},
		Stats:           set,
		Logger:          log,
	}, time.Minute)
	srv := httptest.NewServer(NewServer(st, mgr, set, nil, log, cfg))
	t.Cleanup(func() {
		srv.Close()
		mgr.Stop()
		st.Close()
	})
	return srv, st
}

func do(t *testing.T, method, url string, body io.Reader, ctype string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func doJSON(t *testing.T, method, url string, v any) *http.Response {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, _ := json.Marshal(v)
		body = bytes.NewReader(b)
	}
	return do(t, method, url, body, "application/json")
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func upload(t *testing.T, url, filename string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write(data)
	mw.Close()
	return do(t, http.MethodPost, url, &buf, mw.FormDataContentType())
}

// column serializes n one-character paragraphs.
func column(t *testing.T, n int) string {
	t.Helper()
	tree := content.NewTree()
	for range n {
		p := tree.Create(content.NewParagraph())
		r := tree.Create(content.NewText("行"))
		if err := tree.Append(p, r); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := tree.Append(tree.Root(), p); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	blob, err := content.DefaultRegistry().Serialize(tree)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	return string(blob)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	resp := do(t, http.MethodGet, srv.URL+"/health", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = "secret"
	srv, _ := newTestServer(t, cfg)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/documents", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestDocumentLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	base := srv.URL + "/api/documents"

	resp := do(t, http.MethodPost, base, nil, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	doc := decode[store.Document](t, resp)
	if doc.Title != store.DefaultTitle {
		t.Errorf("expected default title, got %q", doc.Title)
	}

	body := column(t, 3)
	resp = doJSON(t, http.MethodPatch, base+"/"+doc.ID, map[string]string{"content": body, "title": "三行"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPatch, base+"/"+doc.ID, map[string]string{"content": `{"root":`})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("corrupt content: expected 422, got %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, base+"/"+doc.ID+"/stats", nil, "")
	st := decode[content.Stats](t, resp)
	if st.Characters != 3 || st.Lines != 3 {
		t.Errorf("unexpected stats %+v", st)
	}

	resp = do(t, http.MethodGet, base, nil, "")
	list := decode[struct {
		Documents []documentSummary `json:"documents"`
	}](t, resp)
	if len(list.Documents) != 1 || list.Documents[0].Title != "三行" || list.Documents[0].Characters != 3 {
		t.Errorf("unexpected list %+v", list.Documents)
	}

	resp = do(t, http.MethodDelete, base+"/"+doc.ID, nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, base+"/"+doc.ID, nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestImportTextAndExport(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	base := srv.URL + "/api/documents"

	resp := upload(t, base+"/import", "青空.txt", []byte("｜青空《あおぞら》文庫\n"))
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("import: expected 201, got %d: %s", resp.StatusCode, b)
	}
	doc := decode[store.Document](t, resp)
	if doc.Title != "青空" {
		t.Errorf("title should come from the filename, got %q", doc.Title)
	}

	resp = do(t, http.MethodGet, base+"/"+doc.ID+"/export?format=txt", nil, "")
	text, _ := io.ReadAll(resp.Body)
	if string(text) != "｜青空《あおぞら》文庫\n" {
		t.Errorf("unexpected text export %q", text)
	}

	for _, format := range []string{"json", "xz"} {
		resp = do(t, http.MethodGet, base+"/"+doc.ID+"/export?format="+format, nil, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("export %s: expected 200, got %d", format, resp.StatusCode)
		}
		if cd := resp.Header.Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") {
			t.Errorf("export %s: unexpected disposition %q", format, cd)
		}
		data, _ := io.ReadAll(resp.Body)

		resp = upload(t, base+"/import", "copy.tategaki."+map[string]string{"json": "json", "xz": "json.xz"}[format], data)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("re-import %s: expected 201, got %d", format, resp.StatusCode)
		}
		copied := decode[store.Document](t, resp)
		if copied.ID == doc.ID || copied.Title != "青空" || copied.Content != doc.Content {
			t.Errorf("re-import %s: unexpected document %+v", format, copied)
		}
		if !copied.CreatedAt.Equal(doc.CreatedAt) {
			t.Errorf("re-import %s: creation time not kept", format)
		}
	}

	resp = do(t, http.MethodGet, base+"/"+doc.ID+"/export?format=docx", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown format: expected 400, got %d", resp.StatusCode)
	}
}

func TestImportRejectsBadFiles(t *testing.T) {
	srv, st := newTestServer(t, testConfig())
	url := srv.URL + "/api/documents/import"

	tests := []struct {
		name     string
		filename string
		data     string
		want     int
	}{
		{"missing content", "a.json", `{"title":"題"}`, http.StatusBadRequest},
		{"not json", "b.json", `題名`, http.StatusBadRequest},
		{"corrupt content", "c.json", `{"title":"題","content":"{\"root\":"}`, http.StatusUnprocessableEntity},
		{"unsupported", "d.exe", `MZ`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := upload(t, url, tt.filename, []byte(tt.data))
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
	docs, err := st.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("rejected imports must not store documents, got %d", len(docs))
	}
}

func TestPaginatePreview(t *testing.T) {
	srv, st := newTestServer(t, testConfig())
	ctx := context.Background()
	doc, _ := st.Create(ctx, "長い")
	if err := st.SaveContent(ctx, doc.ID, column(t, 60), doc.Title); err != nil {
		t.Fatalf("SaveContent: %v", err)
	}

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/documents/"+doc.ID+"/paginate",
		surface.Viewport{Width: 1000, Height: 400})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	out := decode[struct {
		Result struct {
			PageCount int `json:"pageCount"`
		} `json:"result"`
		Indicators    []json.RawMessage `json:"indicators"`
		ShowPageBreak bool              `json:"showPageBreak"`
	}](t, resp)
	if out.Result.PageCount != 3 || len(out.Indicators) != 2 {
		t.Errorf("unexpected pagination %+v", out)
	}
	if !out.ShowPageBreak {
		t.Error("page breaks are shown by default")
	}
}

func TestSettings(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	url := srv.URL + "/api/settings"

	resp := doJSON(t, http.MethodPatch, url, map[string]bool{"showPageBreak": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", resp.StatusCode)
	}
	got := decode[store.Settings](t, do(t, http.MethodGet, url, nil, ""))
	if got.ShowPageBreak {
		t.Error("setting did not persist")
	}
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	resp := do(t, http.MethodGet, srv.URL+"/api/stats", nil, "")
	out := decode[map[string]json.RawMessage](t, resp)
	for _, key := range []string{"sessions", "saves", "timings"} {
		if _, ok := out[key]; !ok {
			t.Errorf("missing %q in stats", key)
		}
	}
}

func readEvent(t *testing.T, conn *websocket.Conn, match func(session.Event) bool) session.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev session.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if match(ev) {
			return ev
		}
	}
}

func TestLiveSession(t *testing.T) {
	srv, st := newTestServer(t, testConfig())
	ctx := context.Background()
	doc, _ := st.Create(ctx, "生")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/documents/" + doc.ID + "/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	first := readEvent(t, conn, func(ev session.Event) bool { return ev.Type == session.EventState })
	if first.Title != "生" {
		t.Fatalf("expected the initial state, got %+v", first)
	}

	if err := conn.WriteJSON(session.Command{Op: session.OpInsertText, Text: "吾輩は猫"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	ev := readEvent(t, conn, func(ev session.Event) bool {
		return ev.Type == session.EventState && ev.Stats != nil && ev.Stats.Characters > 0
	})
	if ev.Stats.Characters != 4 {
		t.Errorf("expected 4 characters, got %d", ev.Stats.Characters)
	}

	if err := conn.WriteJSON(session.Command{Op: "nonsense"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	readEvent(t, conn, func(ev session.Event) bool { return ev.Type == session.EventError })

	// Reading through the API saves the live edits first.
	resp := do(t, http.MethodGet, srv.URL+"/api/documents/"+doc.ID+"/stats", nil, "")
	if got := decode[content.Stats](t, resp); got.Characters != 4 {
		t.Errorf("expected the live edit to be saved, got %+v", got)
	}
}

func TestLiveSessionMissingDocument(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/documents/nope/live"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected the dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %v", resp)
	}
}
