package fileapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cluebotng/trainer/internal/metrics"
	"github.com/cluebotng/trainer/pkg/log"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
)

const shutdownTimeout = 10 * time.Second

// Config describes the directory served and the key
// required to store files in it.
type Config struct {
	BaseDir string
	APIKey  string
	Port    int
}

type server struct {
	base string
	key  string
}

// New builds the file API routes. The base directory must exist.
func New(cfg Config) (*echo.Echo, error) {
	base, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("invalid base directory: %w", err)
	}
	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("invalid base directory: %v", cfg.BaseDir)
	}
	if cfg.APIKey == "" {
		log.Warn("no file api key configured, uploads will be rejected")
	}

	s := &server{base: base, key: cfg.APIKey}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/health", Health)
	e.GET("/*", s.browse)
	e.POST("/*", s.store)

	return e, nil
}

// Start serves the file API with metrics until ctx is done.
func Start(ctx context.Context, cfg Config) error {
	e, err := New(cfg)
	if err != nil {
		return err
	}

	prometheus.NewPrometheus("cbng_trainer_fileapi", nil).Use(e)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error("file api shutdown failure", "error", err)
		}
	}()

	log.Info("serving file api", "base_dir", cfg.BaseDir, "port", cfg.Port)
	if err := e.Start(fmt.Sprintf(":%v", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Health reports the service is up.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// resolve maps a request path into the base directory. ok is
// false when the path escapes it.
func (s *server) resolve(c echo.Context) (string, bool) {
	target := filepath.Join(s.base, filepath.FromSlash(c.Request().URL.Path))
	rel, err := filepath.Rel(s.base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

func (s *server) authorized(c echo.Context) bool {
	if s.key == "" {
		return false
	}
	parts := strings.SplitN(c.Request().Header.Get(echo.HeaderAuthorization), " ", 2)
	if len(parts) != 2 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(s.key)) == 1
}

func (s *server) store(c echo.Context) error {
	code, err := s.write(c)
	metrics.FileUploadsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
	if err != nil {
		log.Error("failed to store file", "path", c.Request().URL.Path, "error", err)
	}
	return c.NoContent(code)
}

func (s *server) write(c echo.Context) (int, error) {
	target, ok := s.resolve(c)
	if !ok {
		return http.StatusForbidden, nil
	}
	if !s.authorized(c) {
		return http.StatusUnauthorized, nil
	}
	if target == s.base {
		return http.StatusBadRequest, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return http.StatusInternalServerError, err
	}

	// existing files are kept, the content is assumed to match
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	switch {
	case errors.Is(err, os.ErrExist):
		if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
			return http.StatusBadRequest, nil
		}
		return http.StatusOK, nil
	case err != nil:
		return http.StatusInternalServerError, err
	}

	if _, err := io.Copy(f, c.Request().Body); err != nil {
		f.Close()
		os.Remove(target)
		return http.StatusInternalServerError, err
	}
	if err := f.Close(); err != nil {
		os.Remove(target)
		return http.StatusInternalServerError, err
	}

	log.Info("stored file", "path", target)
	return http.StatusCreated, nil
}

func (s *server) browse(c echo.Context) error {
	target, ok := s.resolve(c)
	if !ok {
		return c.NoContent(http.StatusForbidden)
	}

	info, err := os.Stat(target)
	if err != nil {
		return c.NoContent(http.StatusNotFound)
	}

	if info.IsDir() {
		return s.listing(c, target)
	}

	if strings.HasSuffix(target, ".log") {
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	}
	return c.File(target)
}
