package server

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/bundle-hub/internal/container"
)

// FileHandler 从发布目录读取文件，HEAD 只返回 Content-Length 供补丁探测使用。
type FileHandler struct {
	root   string
	logger *logrus.Logger
}

// NewFileHandler constructs a handler rooted at the build output directory.
func NewFileHandler(root string, logger *logrus.Logger) *FileHandler {
	return &FileHandler{root: root, logger: logger}
}

// Handle 解析相对路径并输出文件内容，路径越界或目录请求返回 404。
func (h *FileHandler) Handle(c fiber.Ctx, relPath string) error {
	started := time.Now()
	requestID := RequestID(c)
	method := c.Method()

	clean := container.CleanPath(relPath)
	if clean == "" || clean != strings.TrimPrefix(strings.ReplaceAll(relPath, `\`, "/"), "/") {
		h.logResult(method, relPath, requestID, fiber.StatusNotFound, 0, started, nil)
		return writeError(c, fiber.StatusNotFound, "content_not_found")
	}
	full := filepath.Join(h.root, filepath.FromSlash(clean))

	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			h.logResult(method, clean, requestID, fiber.StatusNotFound, 0, started, nil)
			return writeError(c, fiber.StatusNotFound, "content_not_found")
		}
		h.logResult(method, clean, requestID, fiber.StatusInternalServerError, 0, started, err)
		return writeError(c, fiber.StatusInternalServerError, "content_unreadable")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		h.logResult(method, clean, requestID, fiber.StatusNotFound, 0, started, err)
		return writeError(c, fiber.StatusNotFound, "content_not_found")
	}

	if contentType := mime.TypeByExtension(filepath.Ext(clean)); contentType != "" {
		c.Set(fiber.HeaderContentType, contentType)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	}
	c.Status(fiber.StatusOK)
	c.Response().Header.SetContentLength(int(info.Size()))

	if method == http.MethodHead {
		h.logResult(method, clean, requestID, fiber.StatusOK, info.Size(), started, nil)
		return nil
	}

	n, err := io.Copy(c.Response().BodyWriter(), f)
	h.logResult(method, clean, requestID, fiber.StatusOK, n, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("read content failed: %v", err))
	}
	return nil
}

func (h *FileHandler) logResult(method, path, requestID string, status int, bytes int64, started time.Time, err error) {
	fields := logrus.Fields{
		"action":     "serve_content",
		"method":     method,
		"path":       path,
		"status":     status,
		"bytes":      bytes,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("content_failed")
		return
	}
	h.logger.WithFields(fields).Debug("content_served")
}
