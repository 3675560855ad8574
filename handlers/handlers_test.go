package handlers_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smtp-mailer/database"
	"smtp-mailer/handlers"
	"smtp-mailer/logger"
	"smtp-mailer/services"
	"smtp-mailer/utils"
)

type memoryStore struct {
	mu        sync.Mutex
	entries   []database.EmailLog
	lastLimit int
	findErr   error
	panicMsg  string
}

func (m *memoryStore) Create(_ context.Context, entry database.EmailLog) (database.EmailLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := entry.Validate(); err != nil {
		return database.EmailLog{}, err
	}
	entry.ID = strconv.Itoa(len(m.entries) + 1)
	entry.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(len(m.entries)) * time.Second)
	entry.UpdatedAt = entry.CreatedAt
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *memoryStore) FindByID(_ context.Context, id string) (database.EmailLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return database.EmailLog{}, database.ErrNotFound
}

func (m *memoryStore) FindRecent(_ context.Context, limit int) ([]database.EmailLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.lastLimit = limit
	recent := slices.Clone(m.entries)
	slices.Reverse(recent)
	if len(recent) > limit {
		recent = recent[:limit]
	}
	return recent, nil
}

func (m *memoryStore) all() []database.EmailLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

type fakeTransport struct {
	mu        sync.Mutex
	messageID string
	err       error
	sent      []services.Message
}

func (f *fakeTransport) Send(_ context.Context, msg services.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.err != nil {
		return "", f.err
	}
	return f.messageID, nil
}

func (f *fakeTransport) Verify(context.Context) error { return nil }

func (f *fakeTransport) calls() []services.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}

type testApp struct {
	router     http.Handler
	store      *memoryStore
	transport  *fakeTransport
	uploadsDir string
	staticDir  string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store := &memoryStore{}
	transport := &fakeTransport{messageID: "<abc@example.com>"}

	uploads, err := utils.NewUploads(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "style.css"), []byte("body{}"), 0644))

	log := logger.Discard()
	router := handlers.NewRouter(handlers.Deps{
		Logs:      store,
		Mailer:    services.NewMailService(transport, store, "noreply@example.com", log),
		Uploads:   uploads,
		StaticDir: staticDir,
		Logger:    log,
	})

	return &testApp{router: router, store: store, transport: transport, uploadsDir: uploads.Dir(), staticDir: staticDir}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

type upload struct {
	name    string
	content []byte
}

func sendRequest(t *testing.T, fields map[string]string, files ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		w, err := mw.CreateFormFile(utils.AttachmentsField, f.name)
		require.NoError(t, err)
		_, err = w.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/send", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func uploadedFiles(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestIndex(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `action="/send"`)
	assert.NotContains(t, rec.Body.String(), "message-area")
}

func TestSend_MissingRequiredFields(t *testing.T) {
	t.Parallel()
	tests := map[string]map[string]string{
		"missing to":       {"subject": "Hi", "message": "Hello"},
		"missing subject":  {"to": "a@example.com", "message": "Hello"},
		"blank to":         {"to": "   ", "subject": "Hi"},
		"nothing supplied": {},
	}

	for name, fields := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			app := newTestApp(t)

			rec := app.do(sendRequest(t, fields, upload{"a.txt", []byte("a")}))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "&#34;to&#34; and &#34;subject&#34; are required.")
			assert.Empty(t, app.store.all(), "no log entry for invalid input")
			assert.Empty(t, app.transport.calls())
			assert.Empty(t, uploadedFiles(t, app.uploadsDir))
		})
	}
}

func TestSend_Success(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(sendRequest(t, map[string]string{"to": "a@example.com", "subject": "Hi"}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email sent: &lt;abc@example.com&gt;")

	calls := app.transport.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "noreply@example.com", calls[0].From)
	assert.Equal(t, "a@example.com", calls[0].To)
	assert.Equal(t, "Hi", calls[0].Subject)
	assert.Contains(t, calls[0].HTML, "Hi there,")

	entries := app.store.all()
	require.Len(t, entries, 1)
	assert.Equal(t, database.StatusSent, entries[0].Status)
	assert.Nil(t, entries[0].Error)
	assert.LessOrEqual(t, len([]rune(entries[0].HTMLPreview)), services.PreviewLength)
	assert.True(t, strings.HasPrefix(calls[0].HTML, entries[0].HTMLPreview))
	assert.Empty(t, entries[0].Attachments)
}

func TestSend_FieldsStoredAsSubmitted(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(sendRequest(t, map[string]string{"to": " a@example.com ", "subject": "  Quarterly report "}))
	require.Equal(t, http.StatusOK, rec.Code)

	calls := app.transport.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, " a@example.com ", calls[0].To)

	entries := app.store.all()
	require.Len(t, entries, 1)
	assert.Equal(t, " a@example.com ", entries[0].ToEmail)
	assert.Equal(t, "  Quarterly report ", entries[0].Subject)
}

func TestSend_NameAndMessage(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(sendRequest(t, map[string]string{
		"to":      "a@example.com",
		"subject": "Hi",
		"name":    "Grace",
		"message": "See you <soon>",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	calls := app.transport.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].HTML, "Hi Grace,")
	assert.Contains(t, calls[0].HTML, "See you &lt;soon&gt;")
}

func TestSend_URLEncodedForm(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	form := url.Values{"to": {"a@example.com"}, "subject": {"Hi"}}
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := app.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, app.store.all(), 1)
}

func TestSend_WithAttachments(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(sendRequest(t,
		map[string]string{"to": "a@example.com", "subject": "Files"},
		upload{"report.pdf", []byte("%PDF-1.4")},
		upload{"notes.txt", []byte("hello")},
	))
	require.Equal(t, http.StatusOK, rec.Code)

	calls := app.transport.calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Attachments, 2)
	assert.Equal(t, "report.pdf", calls[0].Attachments[0].Filename)
	assert.Equal(t, "notes.txt", calls[0].Attachments[1].Filename)

	entries := app.store.all()
	require.Len(t, entries, 1)
	assert.Equal(t, calls[0].Attachments, entries[0].Attachments)

	for _, a := range entries[0].Attachments {
		assert.Equal(t, app.uploadsDir, filepath.Dir(a.Path))
		assert.True(t, strings.HasSuffix(a.Path, "-"+a.Filename))
		_, err := os.Stat(a.Path)
		assert.NoError(t, err, "uploaded files stay on disk")
	}
}

func TestSend_TransportFailure(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.transport.err = errors.New("dial tcp 10.0.0.1:587: i/o timeout")

	rec := app.do(sendRequest(t, map[string]string{"to": "a@example.com", "subject": "Hi"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to send email. Check SMTP credentials and logs.")
	assert.NotContains(t, rec.Body.String(), "i/o timeout")

	entries := app.store.all()
	require.Len(t, entries, 1)
	assert.Equal(t, database.StatusFailed, entries[0].Status)
	require.NotNil(t, entries[0].Error)
	assert.Equal(t, "dial tcp 10.0.0.1:587: i/o timeout", *entries[0].Error)
	assert.Empty(t, entries[0].HTMLPreview)
}

func TestSend_TooManyAttachments(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	files := make([]upload, utils.MaxAttachments+1)
	for i := range files {
		files[i] = upload{name: "f" + strconv.Itoa(i) + ".txt", content: []byte("x")}
	}

	rec := app.do(sendRequest(t, map[string]string{"to": "a@example.com", "subject": "Hi"}, files...))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Attachments are limited to 5 files of 10 MiB each.")
	assert.Empty(t, app.transport.calls())
	assert.Empty(t, app.store.all())
	assert.Empty(t, uploadedFiles(t, app.uploadsDir))
}

func TestSend_AttachmentTooLarge(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	big := upload{name: "big.bin", content: bytes.Repeat([]byte{'a'}, utils.MaxAttachmentSize+1)}
	rec := app.do(sendRequest(t, map[string]string{"to": "a@example.com", "subject": "Hi"}, big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, app.transport.calls())
	assert.Empty(t, app.store.all())
	assert.Empty(t, uploadedFiles(t, app.uploadsDir))
}

func TestHistory_NewestFirstAndLimited(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	for i := range handlers.HistoryLimit + 5 {
		_, err := app.store.Create(context.Background(), database.EmailLog{
			ToEmail: "a@example.com",
			Subject: "Subject " + strconv.Itoa(i+1),
			Status:  database.StatusSent,
		})
		require.NoError(t, err)
	}

	rec := app.do(httptest.NewRequest(http.MethodGet, "/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, handlers.HistoryLimit, app.store.lastLimit)

	body := rec.Body.String()
	assert.Equal(t, handlers.HistoryLimit, strings.Count(body, `href="/history/`))
	newest := strings.Index(body, `href="/history/205"`)
	older := strings.Index(body, `href="/history/204"`)
	require.NotEqual(t, -1, newest)
	require.NotEqual(t, -1, older)
	assert.Less(t, newest, older)
	assert.NotContains(t, body, `href="/history/5"`, "oldest entries fall outside the limit")
	assert.Contains(t, body, `href="/history/6"`)
}

func TestHistory_StoreError(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.store.findErr = errors.New("connection refused")

	rec := app.do(httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Server error", rec.Body.String())
}

func TestHistory_PanicRecovered(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	app.store.panicMsg = "boom"

	rec := app.do(httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Server error", rec.Body.String())
}

func TestHistoryDetail(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(sendRequest(t,
		map[string]string{"to": "a@example.com", "subject": "With file"},
		upload{"cv.pdf", []byte("%PDF")},
	))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(httptest.NewRequest(http.MethodGet, "/history/1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "With file")
	assert.Contains(t, rec.Body.String(), "cv.pdf")
}

func TestHistoryDetail_NotFound(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/history/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestStaticAssets(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/public/style.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())
}
