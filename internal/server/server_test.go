package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shudh/internal/config"
	"shudh/pkg/database"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DATABASE_URL", "sqlite://:memory:")
	t.Setenv("IMAGES_DIR", filepath.Join(t.TempDir(), "images"))

	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Connect(ctx, database.Config{
		URL:    "sqlite://:memory:",
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(ctx, db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func TestNew_ListensOnAllInterfacesWithKeepAlive(t *testing.T) {
	cfg := testConfig(t)
	srv := New(cfg, Deps{DB: testDB(t), Logger: zap.NewNop()})

	assert.Equal(t, "0.0.0.0:8000", srv.HTTPServer().Addr)
	assert.Equal(t, KeepAliveTimeout, srv.HTTPServer().IdleTimeout)
	assert.Equal(t, 120*time.Second, KeepAliveTimeout)
}

func TestNew_PortFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9001")
	cfg := testConfig(t)
	srv := New(cfg, Deps{DB: testDB(t)})

	assert.Equal(t, "0.0.0.0:9001", srv.HTTPServer().Addr)
}

func TestRoutes(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Storage.ImagesDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.ImagesDir, "pic.jpg"), []byte("jpg"), 0644))

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	srv := New(cfg, Deps{DB: testDB(t), Redis: client, Logger: zap.NewNop()})
	h := srv.Handler()

	tests := []struct {
		path string
		code int
	}{
		{"/", http.StatusOK},
		{"/api/health", http.StatusOK},
		{"/api/data", http.StatusOK},
		{"/api/stats", http.StatusOK},
		{"/api/operations/1", http.StatusNotFound},
		{"/images/pic.jpg", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		req.Header.Set("Origin", "https://dashboard.example")
		h.ServeHTTP(w, req)
		assert.Equal(t, tt.code, w.Code, tt.path)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"), tt.path)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	h.ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServe_GracefulShutdown(t *testing.T) {
	cfg := testConfig(t)
	srv := New(cfg, Deps{DB: testDB(t), Logger: zap.NewNop()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_ = resp.Body.Close()
	assert.Equal(t, "healthy", body["status"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", port)
	srv := New(testConfig(t), Deps{DB: testDB(t)})

	err = srv.Run(context.Background())
	assert.ErrorContains(t, err, "failed to listen")
}

func TestCORSConfig(t *testing.T) {
	all := corsConfig([]string{"*"})
	assert.True(t, all.AllowAllOrigins)

	some := corsConfig([]string{"https://a.example", "https://b.example"})
	assert.False(t, some.AllowAllOrigins)
	assert.True(t, some.AllowCredentials)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, some.AllowOrigins)
}
