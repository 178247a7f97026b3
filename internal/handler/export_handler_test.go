package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnjithKrishna7/exam-seat-allocator/pkg/storage"
)

func newExportHandlerFixture(t *testing.T) (*ExportHandler, *storage.LocalStorage, *storage.SignedURLSigner) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	return NewExportHandler(store, signer, nil), store, signer
}

func performDownload(handler *ExportHandler, target string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	handler.Download(c)
	return w
}

func TestDownloadServesSignedFile(t *testing.T) {
	handler, store, signer := newExportHandlerFixture(t)

	_, err := store.Save("run-1/allocation.csv", []byte("Hall,Seat_No\nHall 1,1\n"))
	require.NoError(t, err)
	token, _, err := signer.Generate("run-1", "run-1/allocation.csv")
	require.NoError(t, err)

	w := performDownload(handler, "/exports/download?token="+token)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "allocation.csv")
	assert.Contains(t, w.Body.String(), "Hall 1")
}

func TestDownloadWithoutToken(t *testing.T) {
	handler, _, _ := newExportHandlerFixture(t)

	w := performDownload(handler, "/exports/download")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadTamperedToken(t *testing.T) {
	handler, store, _ := newExportHandlerFixture(t)
	other := storage.NewSignedURLSigner("different-secret", time.Hour)

	_, err := store.Save("run-1/allocation.csv", []byte("data"))
	require.NoError(t, err)
	token, _, err := other.Generate("run-1", "run-1/allocation.csv")
	require.NoError(t, err)

	w := performDownload(handler, "/exports/download?token="+token)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestDownloadMissingFile(t *testing.T) {
	handler, _, signer := newExportHandlerFixture(t)

	token, _, err := signer.Generate("run-9", "run-9/seating_plan.pdf")
	require.NoError(t, err)

	w := performDownload(handler, "/exports/download?token="+token)
	require.Equal(t, http.StatusNotFound, w.Code)
}
