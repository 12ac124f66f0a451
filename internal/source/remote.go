package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/any-hub/bundle-hub/internal/cache"
	"github.com/any-hub/bundle-hub/internal/catalog"
	"github.com/any-hub/bundle-hub/internal/container"
	"github.com/any-hub/bundle-hub/internal/errs"
	"github.com/any-hub/bundle-hub/internal/logging"
)

// Remote 通过 HTTP 拉取 bundle，磁盘缓存作为透明层：哈希已缓存时直接读取本地副本。
type Remote struct {
	stream     string
	catalogURL string
	baseURL    string
	client     *http.Client
	limiter    *rate.Limiter
	store      cache.Store
	opener     container.Opener
	logger     *logrus.Logger
}

func (s *Remote) Kind() Kind { return KindRemote }

func (s *Remote) ReadCatalog(ctx context.Context) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, s.catalogURL)
	if err != nil {
		return nil, errs.Transfer("read_catalog", s.catalogURL, err)
	}
	defer resp.Body.Close()
	if err := statusError("read_catalog", s.catalogURL, resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Transfer("read_catalog", s.catalogURL, err)
	}
	return data, nil
}

func (s *Remote) ReadBundle(ctx context.Context, entry catalog.BundleEntry) ([]byte, error) {
	locator := s.locator(entry)
	result, err := s.store.Get(ctx, locator)
	if errors.Is(err, cache.ErrNotFound) {
		if _, err := s.Fetch(ctx, entry); err != nil {
			return nil, err
		}
		result, err = s.store.Get(ctx, locator)
	}
	if err != nil {
		return nil, errs.Transfer("read_bundle", entry.Name, err)
	}
	defer result.Reader.Close()
	data, err := io.ReadAll(result.Reader)
	if err != nil {
		return nil, errs.Transfer("read_bundle", entry.Name, err)
	}
	return data, nil
}

func (s *Remote) OpenBundle(ctx context.Context, entry catalog.BundleEntry) (container.Archive, error) {
	data, err := s.ReadBundle(ctx, entry)
	if err != nil {
		return nil, err
	}
	archive, err := s.opener.Open(entry.Name, data)
	if err != nil {
		return nil, errs.Decode("open_bundle", entry.Name, err)
	}
	return archive, nil
}

// ProbeSize 以 HEAD 请求读取 Content-Length；源站未返回长度时按 0 计。
func (s *Remote) ProbeSize(ctx context.Context, entry catalog.BundleEntry) (int64, error) {
	target, err := s.bundleURL(entry.Name)
	if err != nil {
		return 0, errs.Transfer("probe_size", entry.Name, err)
	}
	resp, err := s.do(ctx, http.MethodHead, target)
	if err != nil {
		return 0, errs.Transfer("probe_size", entry.Name, err)
	}
	defer resp.Body.Close()
	if err := statusError("probe_size", entry.Name, resp); err != nil {
		return 0, err
	}
	if resp.ContentLength < 0 {
		s.log().WithFields(logging.BundleFields("probe_size", s.stream, entry.Name, entry.Hash.String())).
			Warn("origin_missing_content_length")
		return 0, nil
	}
	return resp.ContentLength, nil
}

func (s *Remote) CachedVersions(ctx context.Context, bundle string) ([]catalog.Hash128, error) {
	return s.store.Versions(ctx, s.stream, bundle)
}

// Fetch 下载 bundle 并按 catalog 哈希校验后写入缓存；已缓存时不发起请求。
func (s *Remote) Fetch(ctx context.Context, entry catalog.BundleEntry) (int64, error) {
	versions, err := s.store.Versions(ctx, s.stream, entry.Name)
	if err != nil {
		return 0, errs.Transfer("fetch_bundle", entry.Name, err)
	}
	if slices.Contains(versions, entry.Hash) {
		return 0, nil
	}

	target, err := s.bundleURL(entry.Name)
	if err != nil {
		return 0, errs.Transfer("fetch_bundle", entry.Name, err)
	}
	resp, err := s.do(ctx, http.MethodGet, target)
	if err != nil {
		return 0, errs.Transfer("fetch_bundle", entry.Name, err)
	}
	defer resp.Body.Close()
	if err := statusError("fetch_bundle", entry.Name, resp); err != nil {
		return 0, err
	}

	stored, err := s.store.Put(ctx, s.locator(entry), resp.Body, cache.PutOptions{})
	if err != nil {
		return 0, errs.Transfer("fetch_bundle", entry.Name, err)
	}
	s.log().WithFields(logging.BundleFields("fetch_bundle", s.stream, entry.Name, entry.Hash.String())).
		WithField("bytes", stored.SizeBytes).
		Debug("bundle_cached")
	return stored.SizeBytes, nil
}

func (s *Remote) locator(entry catalog.BundleEntry) cache.Locator {
	return cache.Locator{Stream: s.stream, Bundle: entry.Name, Hash: entry.Hash}
}

func (s *Remote) bundleURL(name string) (string, error) {
	clean := container.CleanPath(name)
	if clean == "" {
		return "", fmt.Errorf("invalid bundle name %q", name)
	}
	return url.JoinPath(s.baseURL, strings.Split(clean, "/")...)
}

func (s *Remote) do(ctx context.Context, method, target string) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	return s.client.Do(req)
}

func (s *Remote) log() *logrus.Logger {
	if s.logger == nil {
		return logging.Discard()
	}
	return s.logger
}

func statusError(op, name string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	cause := fmt.Errorf("unexpected status %d", resp.StatusCode)
	if resp.StatusCode == http.StatusNotFound {
		return errs.NotFound(op, name, cause)
	}
	return errs.Transfer(op, name, cause)
}
