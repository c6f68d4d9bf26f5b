package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/foliora/internal/blob"
)

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// mockBlobStore はblob.Storeのモック実装。
type mockBlobStore struct {
	objects map[string]string
	getErr  error
}

func (m *mockBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = make(map[string]string)
	}
	m.objects[key] = string(data)
	return nil
}

func (m *mockBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, blob.Object, error) {
	if m.getErr != nil {
		return nil, blob.Object{}, m.getErr
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, blob.Object{}, blob.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(data)), blob.Object{ContentType: "image/png", Size: int64(len(data))}, nil
}

func (m *mockBlobStore) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checker    HealthChecker
		wantStatus int
	}{
		{"DB疎通あり", &mockHealthChecker{}, http.StatusOK},
		{"DB疎通なし", &mockHealthChecker{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
		{"チェッカー未設定", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Health(tt.checker)(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestUploadHandler_Serve(t *testing.T) {
	store := &mockBlobStore{objects: map[string]string{"abc-me.png": "PNGDATA"}}
	h := NewUploadHandler(store)

	t.Run("存在するファイルを返す", func(t *testing.T) {
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/uploads/abc-me.png", nil), "key", "abc-me.png")
		w := httptest.NewRecorder()

		h.Serve(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("Content-Type = %q", ct)
		}
		if w.Body.String() != "PNGDATA" {
			t.Errorf("body = %q", w.Body.String())
		}
	})

	t.Run("存在しないファイルは404", func(t *testing.T) {
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/uploads/missing.png", nil), "key", "missing.png")
		w := httptest.NewRecorder()

		h.Serve(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("不正なキーは404", func(t *testing.T) {
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/uploads/x", nil), "key", "..")
		w := httptest.NewRecorder()

		h.Serve(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("ストレージ障害は500", func(t *testing.T) {
		failing := NewUploadHandler(&mockBlobStore{getErr: errors.New("s3 unavailable")})
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/uploads/abc-me.png", nil), "key", "abc-me.png")
		w := httptest.NewRecorder()

		failing.Serve(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})
}
