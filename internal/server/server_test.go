package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ocrdesk/internal/appctx"
	"ocrdesk/internal/config"
	"ocrdesk/internal/logger"
	"ocrdesk/internal/ocr"
	"ocrdesk/internal/session"
	"ocrdesk/internal/workflow"
)

type serviceFunc func(ctx context.Context, u ocr.Upload) (*ocr.Result, error)

func (f serviceFunc) Recognize(ctx context.Context, u ocr.Upload) (*ocr.Result, error) {
	return f(ctx, u)
}

func textService(text string) ocr.Service {
	return serviceFunc(func(context.Context, ocr.Upload) (*ocr.Result, error) {
		return &ocr.Result{Text: text}, nil
	})
}

func testConfig() *config.Config {
	return &config.Config{
		MaxConcurrentOCR: 1,
		MaxUploadBytes:   1 << 10,
		ThemeDefault:     "light",
		RateLimitEvery:   time.Millisecond,
		RateLimitBurst:   10000,
	}
}

func newTestServer(t *testing.T, svc ocr.Service, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	log := logger.Discard()
	reg := session.NewRegistry(func(id string, n workflow.Notifier) *workflow.Controller {
		return workflow.New(svc, workflow.Options{MaxUploadBytes: cfg.MaxUploadBytes, Notifier: n, Logger: &log})
	}, time.Hour)

	srv, err := New(cfg, reg, appctx.NewMemoryAuth(bcrypt.MinCost))
	if err != nil {
		t.Fatal(err)
	}
	srv.log = log
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func decodeState(t *testing.T, res *http.Response) stateResponse {
	t.Helper()
	defer res.Body.Close()
	var st stateResponse
	if err := json.NewDecoder(res.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	return st
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	res, err := http.Post(ts.URL+"/api/sessions", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", res.StatusCode)
	}
	st := decodeState(t, res)
	if st.ID == "" {
		t.Fatal("missing session id")
	}
	return st.ID
}

func uploadFile(t *testing.T, ts *httptest.Server, id, name, mediaType string, data []byte, source string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("source", source); err != nil {
		t.Fatal(err)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	h.Set("Content-Type", mediaType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	res, err := http.Post(ts.URL+"/api/sessions/"+id+"/file", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func post(t *testing.T, ts *httptest.Server, path string, v any) *http.Response {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(b)
	}
	res, err := http.Post(ts.URL+path, "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestUploadConvertExport(t *testing.T) {
	_, ts := newTestServer(t, textService("Hello"), testConfig())
	id := createSession(t, ts)

	res := uploadFile(t, ts, id, "scan.pdf", "application/pdf", []byte("%PDF-1.4 test"), "drop")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", res.StatusCode)
	}
	st := decodeState(t, res)
	if st.File == nil || st.File.Source != "drop" || st.PreviewURL == "" {
		t.Fatalf("state after upload = %+v", st)
	}

	res = post(t, ts, "/api/sessions/"+id+"/convert", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("convert status = %d", res.StatusCode)
	}
	st = decodeState(t, res)
	if st.HTML != "<p>Hello</p>" || !st.HasResult || !st.CanExport {
		t.Fatalf("state after convert = %+v", st)
	}

	res, err := http.Get(ts.URL + "/api/sessions/" + id + "/export/txt")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if got := res.Header.Get("Content-Disposition"); got != `attachment; filename="scan_edited.txt"` {
		t.Fatalf("Content-Disposition = %q", got)
	}
	data, _ := io.ReadAll(res.Body)
	if string(data) != "Hello" {
		t.Fatalf("body = %q", data)
	}

	res, err = http.Get(ts.URL + "/api/sessions/" + id + "/export/pdf")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf export status = %d, type = %q", res.StatusCode, res.Header.Get("Content-Type"))
	}
	if got := res.Header.Get("Content-Disposition"); got != `attachment; filename="scan_edited.pdf"` {
		t.Fatalf("Content-Disposition = %q", got)
	}
}

func TestExportEmptyIsNoContent(t *testing.T) {
	_, ts := newTestServer(t, textService(""), testConfig())
	id := createSession(t, ts)

	for _, kind := range []string{"txt", "pdf"} {
		res, err := http.Get(ts.URL + "/api/sessions/" + id + "/export/" + kind)
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusNoContent {
			t.Fatalf("%s export status = %d, want 204", kind, res.StatusCode)
		}
	}
}

func TestOversizedUploadQueuesOneNotice(t *testing.T) {
	_, ts := newTestServer(t, textService(""), testConfig())
	id := createSession(t, ts)

	res := uploadFile(t, ts, id, "big.png", "image/png", make([]byte, 4<<10), "picker")
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", res.StatusCode)
	}
	st := decodeState(t, res)
	if st.Success || st.Code != "validation" || st.File != nil {
		t.Fatalf("state = %+v", st)
	}
	if len(st.Notices) != 1 || st.Notices[0].Kind != workflow.NoticeValidation {
		t.Fatalf("notices = %+v", st.Notices)
	}

	res, err := http.Get(ts.URL + "/api/sessions/" + id)
	if err != nil {
		t.Fatal(err)
	}
	if st := decodeState(t, res); len(st.Notices) != 0 {
		t.Fatal("notices should be drained by the previous response")
	}
}

func TestConvertWithoutFile(t *testing.T) {
	_, ts := newTestServer(t, textService(""), testConfig())
	id := createSession(t, ts)

	res := post(t, ts, "/api/sessions/"+id+"/convert", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
	st := decodeState(t, res)
	if st.Code != "no_file" || len(st.Notices) != 1 || st.Notices[0].Message != "Please select a file." {
		t.Fatalf("state = %+v", st)
	}
}

func TestConvertFailureSetsPlaceholder(t *testing.T) {
	failing := serviceFunc(func(context.Context, ocr.Upload) (*ocr.Result, error) {
		return nil, ocr.NewOCRError("Recognize", ocr.ErrConversionFailed, "status 500")
	})
	_, ts := newTestServer(t, failing, testConfig())
	id := createSession(t, ts)
	uploadFile(t, ts, id, "scan.pdf", "application/pdf", []byte("%PDF-1.4"), "picker").Body.Close()

	res := post(t, ts, "/api/sessions/"+id+"/convert", nil)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", res.StatusCode)
	}
	st := decodeState(t, res)
	if st.Text != workflow.PlaceholderError || st.HasResult || st.Loading {
		t.Fatalf("state = %+v", st)
	}
	if len(st.Notices) != 1 || st.Notices[0].Kind != workflow.NoticeConversion {
		t.Fatalf("notices = %+v", st.Notices)
	}
}

func TestConvertAtCapacity(t *testing.T) {
	srv, ts := newTestServer(t, textService("x"), testConfig())
	id := createSession(t, ts)
	uploadFile(t, ts, id, "scan.pdf", "application/pdf", []byte("%PDF-1.4"), "picker").Body.Close()

	if !srv.ocrSem.TryAcquire(1) {
		t.Fatal("semaphore should be free")
	}
	defer srv.ocrSem.Release(1)

	res := post(t, ts, "/api/sessions/"+id+"/convert", nil)
	defer res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", res.StatusCode)
	}
	var body errorResponse
	json.NewDecoder(res.Body).Decode(&body)
	if body.Code != "ocr_capacity" || body.Success {
		t.Fatalf("body = %+v", body)
	}
}

func TestConvertWithoutFileAtCapacity(t *testing.T) {
	srv, ts := newTestServer(t, textService("x"), testConfig())
	id := createSession(t, ts)

	if !srv.ocrSem.TryAcquire(1) {
		t.Fatal("semaphore should be free")
	}
	defer srv.ocrSem.Release(1)

	res := post(t, ts, "/api/sessions/"+id+"/convert", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
	st := decodeState(t, res)
	if st.Code != "no_file" || len(st.Notices) != 1 {
		t.Fatalf("state = %+v", st)
	}
}

func TestConvertSurvivesClientDisconnect(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ctxErr := make(chan error, 1)
	svc := serviceFunc(func(ctx context.Context, u ocr.Upload) (*ocr.Result, error) {
		close(started)
		<-release
		ctxErr <- ctx.Err()
		if _, ok := ctx.Deadline(); !ok {
			return nil, errors.New("conversion context has no deadline")
		}
		return &ocr.Result{Text: "kept"}, nil
	})
	cfg := testConfig()
	cfg.OCRTimeout = time.Minute
	srv, ts := newTestServer(t, svc, cfg)
	id := createSession(t, ts)
	uploadFile(t, ts, id, "scan.pdf", "application/pdf", []byte("%PDF-1.4"), "picker").Body.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/sessions/"+id+"/convert", nil)
	go func() {
		if res, err := http.DefaultClient.Do(req); err == nil {
			res.Body.Close()
		}
	}()
	<-started
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	if err := <-ctxErr; err != nil {
		t.Fatalf("conversion context error = %v, want nil", err)
	}
	sess, err := srv.sessions.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for sess.Controller.Snapshot().Loading && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if st := sess.Controller.Snapshot(); st.Text != "kept" || !st.HasResult {
		t.Fatalf("state after disconnect = %+v", st)
	}
}

func TestExportWhileConvertingIsConflict(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	svc := serviceFunc(func(context.Context, ocr.Upload) (*ocr.Result, error) {
		close(started)
		<-release
		return &ocr.Result{Text: "done"}, nil
	})
	_, ts := newTestServer(t, svc, testConfig())
	id := createSession(t, ts)
	uploadFile(t, ts, id, "scan.pdf", "application/pdf", []byte("%PDF-1.4"), "picker").Body.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if res, err := http.Post(ts.URL+"/api/sessions/"+id+"/convert", "application/json", nil); err == nil {
			res.Body.Close()
		}
	}()
	<-started

	for _, kind := range []string{"txt", "pdf"} {
		res, err := http.Get(ts.URL + "/api/sessions/" + id + "/export/" + kind)
		if err != nil {
			t.Fatal(err)
		}
		var body errorResponse
		json.NewDecoder(res.Body).Decode(&body)
		res.Body.Close()
		if res.StatusCode != http.StatusConflict || body.Code != "busy" {
			t.Fatalf("%s export = %d %+v, want 409 busy", kind, res.StatusCode, body)
		}
	}

	close(release)
	<-done
}

func TestPreviewRevokedAfterReplacement(t *testing.T) {
	_, ts := newTestServer(t, textService(""), testConfig())
	id := createSession(t, ts)

	first := decodeState(t, uploadFile(t, ts, id, "a.pdf", "application/pdf", []byte("%PDF-a"), "picker"))
	res, err := http.Get(ts.URL + first.PreviewURL)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || string(data) != "%PDF-a" {
		t.Fatalf("preview status = %d, body = %q", res.StatusCode, data)
	}

	decodeState(t, uploadFile(t, ts, id, "b.pdf", "application/pdf", []byte("%PDF-b"), "picker"))
	res, err = http.Get(ts.URL + first.PreviewURL)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusGone {
		t.Fatalf("status = %d, want 410", res.StatusCode)
	}
}

func TestCommandsAndActive(t *testing.T) {
	_, ts := newTestServer(t, textService("Hello"), testConfig())
	id := createSession(t, ts)
	uploadFile(t, ts, id, "scan.pdf", "application/pdf", []byte("%PDF-1.4"), "picker").Body.Close()
	post(t, ts, "/api/sessions/"+id+"/convert", nil).Body.Close()

	res := post(t, ts, "/api/sessions/"+id+"/commands", map[string]any{"command": "bold", "from": 0, "to": 5})
	if st := decodeState(t, res); st.HTML != "<p><strong>Hello</strong></p>" || !st.CanUndo {
		t.Fatalf("state = %+v", st)
	}

	res, err := http.Get(ts.URL + "/api/sessions/" + id + "/active?from=0&to=5")
	if err != nil {
		t.Fatal(err)
	}
	var active struct {
		Active []string `json:"active"`
	}
	json.NewDecoder(res.Body).Decode(&active)
	res.Body.Close()
	if !strings.Contains(strings.Join(active.Active, ","), "bold") {
		t.Fatalf("active = %v", active.Active)
	}

	res = post(t, ts, "/api/sessions/"+id+"/commands", map[string]any{"command": "sparkle"})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown command status = %d, want 400", res.StatusCode)
	}
}

func TestResetKeepsSession(t *testing.T) {
	_, ts := newTestServer(t, textService("Hello"), testConfig())
	id := createSession(t, ts)
	before := decodeState(t, uploadFile(t, ts, id, "scan.pdf", "application/pdf", []byte("%PDF-1.4"), "picker"))
	if before.File == nil {
		t.Fatal("upload should select the file")
	}
	post(t, ts, "/api/sessions/"+id+"/convert", nil).Body.Close()

	res := post(t, ts, "/api/sessions/"+id+"/reset", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d, want 200", res.StatusCode)
	}
	st := decodeState(t, res)
	if st.ID != id || st.PickerEpoch != before.PickerEpoch+1 {
		t.Fatalf("id = %q epoch = %d, want %q epoch %d", st.ID, st.PickerEpoch, id, before.PickerEpoch+1)
	}
	if st.File != nil || st.Preview != nil || st.HasResult || st.CanExport || st.Text != "" {
		t.Fatalf("state after reset = %+v", st)
	}

	res, err := http.Get(ts.URL + "/api/sessions/" + id)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("session status after reset = %d, want 200", res.StatusCode)
	}
	if st := decodeState(t, res); st.PickerEpoch != before.PickerEpoch+1 {
		t.Fatalf("epoch = %d after reset", st.PickerEpoch)
	}
}

func TestSessionLifecycle(t *testing.T) {
	_, ts := newTestServer(t, textService(""), testConfig())
	id := createSession(t, ts)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/"+id, nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", res.StatusCode)
	}

	res, err = http.Get(ts.URL + "/api/sessions/" + id)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
}

func TestPages(t *testing.T) {
	_, ts := newTestServer(t, textService(""), testConfig())
	client := noRedirect()

	tests := []struct {
		path   string
		status int
	}{
		{"/", http.StatusOK},
		{"/About", http.StatusOK},
		{"/about", http.StatusOK},
		{"/OCR_CONVERT", http.StatusOK},
		{"/OCR_History", http.StatusOK},
		{"/signIn", http.StatusOK},
		{"/nowhere", http.StatusNotFound},
		{"/Profile", http.StatusFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res, err := client.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			res.Body.Close()
			if res.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.status)
			}
			if tt.status == http.StatusFound && res.Header.Get("Location") != "/signIn" {
				t.Fatalf("Location = %q", res.Header.Get("Location"))
			}
		})
	}
}

func TestSignUpOpensProfile(t *testing.T) {
	_, ts := newTestServer(t, textService(""), testConfig())
	client := noRedirect()

	res, err := client.PostForm(ts.URL+"/signUp", url.Values{
		"email":    {"ada@example.com"},
		"name":     {"Ada"},
		"password": {"correct horse"},
	})
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", res.StatusCode)
	}
	var auth *http.Cookie
	for _, c := range res.Cookies() {
		if c.Name == appctx.AuthCookie {
			auth = c
		}
	}
	if auth == nil {
		t.Fatal("missing auth cookie")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/profile", nil)
	req.AddCookie(auth)
	res, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), "Ada") {
		t.Fatalf("status = %d, body = %s", res.StatusCode, body)
	}
}

func TestThemeToggle(t *testing.T) {
	_, ts := newTestServer(t, textService(""), testConfig())

	res := post(t, ts, "/api/theme/toggle", nil)
	defer res.Body.Close()
	var body struct {
		Theme string `json:"theme"`
	}
	json.NewDecoder(res.Body).Decode(&body)
	if body.Theme != "dark" {
		t.Fatalf("theme = %q, want dark", body.Theme)
	}
	found := false
	for _, c := range res.Cookies() {
		if c.Name == appctx.ThemeCookie && c.Value == "dark" {
			found = true
		}
	}
	if !found {
		t.Fatal("theme cookie not set")
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitEvery = time.Hour
	cfg.RateLimitBurst = 1
	_, ts := newTestServer(t, textService(""), cfg)

	first, err := http.Get(ts.URL + "/api/theme")
	if err != nil {
		t.Fatal(err)
	}
	first.Body.Close()
	second, err := http.Get(ts.URL + "/api/theme")
	if err != nil {
		t.Fatal(err)
	}
	second.Body.Close()
	if first.StatusCode != http.StatusOK || second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("statuses = %d, %d", first.StatusCode, second.StatusCode)
	}
	if second.Header.Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}
