package drive

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gdrive "google.golang.org/api/drive/v3"
	goption "google.golang.org/api/option"

	"monthbook/internal/upload"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestEnabled(t *testing.T) {
	dir := t.TempDir()
	creds := writeFile(t, dir, "sa.json", "{}")

	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"no folder", Config{CredentialsFile: creds}, false},
		{"missing file", Config{CredentialsFile: filepath.Join(dir, "nope.json"), FolderID: "f"}, false},
		{"directory", Config{CredentialsFile: dir, FolderID: "f"}, false},
		{"configured", Config{CredentialsFile: creds, FolderID: " f "}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.cfg).Enabled())
		})
	}
}

func TestUploadDisabled(t *testing.T) {
	_, err := New(Config{}).Upload(context.Background(), upload.Object{})
	assert.True(t, errors.Is(err, upload.ErrDisabled))
}

func TestUploadClientInitFailureIsRetried(t *testing.T) {
	dir := t.TempDir()
	creds := writeFile(t, dir, "sa.json", "{}")
	var builds atomic.Int32
	u := newWithBuilder(Config{CredentialsFile: creds, FolderID: "f"}, func(context.Context) (*gdrive.Service, error) {
		builds.Add(1)
		return nil, errors.New("bad key")
	})

	for range 2 {
		_, err := u.Upload(context.Background(), upload.Object{Path: creds, Name: "x"})
		assert.True(t, errors.Is(err, upload.ErrUnavailable))
	}
	assert.Equal(t, int32(2), builds.Load())
}

func newTestUploader(t *testing.T, handler http.HandlerFunc) (*Uploader, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	creds := writeFile(t, dir, "sa.json", "{}")
	report := writeFile(t, dir, "report-2025-01-123.xlsx", "hello")

	u := newWithBuilder(Config{CredentialsFile: creds, FolderID: "folder-9"}, func(ctx context.Context) (*gdrive.Service, error) {
		return gdrive.NewService(ctx,
			goption.WithEndpoint(srv.URL+"/"),
			goption.WithHTTPClient(srv.Client()),
			goption.WithoutAuthentication(),
		)
	})
	return u, report
}

func TestUploadSendsFileToFolder(t *testing.T) {
	var gotBody, gotQuery string
	u, report := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			gotQuery = r.URL.Query().Get("q")
			_, _ = io.WriteString(w, `{"files":[]}`)
		case http.MethodPost:
			assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			_, _ = io.WriteString(w, `{"id":"file-1","name":"report-2025-01.xlsx","webViewLink":"https://drive.test/file-1","size":"5"}`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	res, err := u.Upload(context.Background(), upload.Object{
		Path:        report,
		Name:        "report-2025-01.xlsx",
		ContentType: "application/octet-stream",
	})
	require.NoError(t, err)
	assert.Equal(t, upload.Result{Target: Target, RemoteID: "file-1", Link: "https://drive.test/file-1", SizeBytes: 5}, res)
	assert.Equal(t, "name = 'report-2025-01.xlsx' and 'folder-9' in parents and trashed = false", gotQuery)
	assert.True(t, strings.Contains(gotBody, "folder-9"), "metadata must name the parent folder")
	assert.True(t, strings.Contains(gotBody, "report-2025-01.xlsx"), "remote name is the report name, not the local file name")
	assert.True(t, strings.Contains(gotBody, "hello"), "media part must carry the file")
}

func TestUploadUpdatesExistingFile(t *testing.T) {
	var created atomic.Int32
	var updatedPath, gotBody string
	u, report := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"files":[{"id":"file-7"}]}`)
		case http.MethodPatch:
			updatedPath = r.URL.Path
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			_, _ = io.WriteString(w, `{"id":"file-7","name":"report-2025-01.xlsx","webViewLink":"https://drive.test/file-7","size":"5"}`)
		case http.MethodPost:
			created.Add(1)
			w.WriteHeader(http.StatusConflict)
		}
	})

	res, err := u.Upload(context.Background(), upload.Object{
		Path:        report,
		Name:        "report-2025-01.xlsx",
		ContentType: "application/octet-stream",
	})
	require.NoError(t, err)
	assert.Equal(t, "file-7", res.RemoteID)
	assert.Equal(t, "https://drive.test/file-7", res.Link)
	assert.True(t, strings.HasSuffix(updatedPath, "/files/file-7"), updatedPath)
	assert.True(t, strings.Contains(gotBody, "hello"))
	assert.Zero(t, created.Load(), "an existing report must not be duplicated")
}

func TestUploadLookupFailure(t *testing.T) {
	u, report := newTestUploader(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := u.Upload(context.Background(), upload.Object{Path: report, Name: "report-2025-01.xlsx"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drive lookup")
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `report-o\'brien.xlsx`, escapeQuery(`report-o'brien.xlsx`))
	assert.Equal(t, `a\\b`, escapeQuery(`a\b`))
}
