// Package source abstracts where bundle and catalog bytes come from. The
// variant is chosen once per Manager from the load mode (or the simulate
// switch) and held for its lifetime: Local reads files under a root, Remote
// fetches over HTTP with the verified disk cache as a transparent layer, and
// Dev serves objects straight from the authoring source tree.
package source

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/any-hub/bundle-hub/internal/cache"
	"github.com/any-hub/bundle-hub/internal/catalog"
	"github.com/any-hub/bundle-hub/internal/container"
	"github.com/any-hub/bundle-hub/internal/errs"
	"github.com/any-hub/bundle-hub/internal/settings"
)

// Kind 标识 Source 变体。
type Kind int

const (
	KindLocal Kind = iota
	KindRemote
	KindDev
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	case KindDev:
		return "dev"
	default:
		return "unknown"
	}
}

// Source 是 loader 与 patch engine 共同依赖的内容读取能力。
type Source interface {
	Kind() Kind
	// ReadCatalog 返回 catalog 原始字节。
	ReadCatalog(ctx context.Context) ([]byte, error)
	// ReadBundle 返回 bundle 原始字节；Remote 会在缓存未命中时先拉取。
	ReadBundle(ctx context.Context, entry catalog.BundleEntry) ([]byte, error)
	// OpenBundle 读取并打开 bundle，返回运行时 archive。
	OpenBundle(ctx context.Context, entry catalog.BundleEntry) (container.Archive, error)
	// ProbeSize 查询 bundle 的传输大小，不下载正文。
	ProbeSize(ctx context.Context, entry catalog.BundleEntry) (int64, error)
	// CachedVersions 列出本地缓存中该 bundle 的全部哈希版本。
	CachedVersions(ctx context.Context, bundle string) ([]catalog.Hash128, error)
	// Fetch 将 bundle 校验后写入缓存，不打开它；返回写入的字节数。
	Fetch(ctx context.Context, entry catalog.BundleEntry) (int64, error)
}

// Endpoint 描述一次 Source 构造所需的地址。
type Endpoint struct {
	Mode    catalog.LoadMode
	Catalog string
	Bundles string
}

// Factory 持有各变体共享的依赖，进程内复用同一份 HTTP 客户端与缓存。
type Factory struct {
	Stream      string
	ContentRoot string
	Client      *http.Client
	Limiter     *rate.Limiter
	Store       cache.Store
	Opener      container.Opener
	Logger      *logrus.Logger
}

// ForSettings 构造只用于读取 catalog 的 Source。
func (f *Factory) ForSettings(s settings.Settings) (Source, error) {
	return f.New(Endpoint{Mode: s.LoadMode, Catalog: s.BaseLocation})
}

// ForCatalog 在 catalog 解码后构造读取 bundle 的 Source；catalog 未声明
// base location 时回退为 catalog 所在目录。
func (f *Factory) ForCatalog(catalogLocation string, c *catalog.Catalog) (Source, error) {
	bundles := c.BaseLocation
	if strings.TrimSpace(bundles) == "" {
		bundles = parentLocation(catalogLocation)
	}
	return f.New(Endpoint{Mode: c.LoadMode, Catalog: catalogLocation, Bundles: bundles})
}

// New 按加载模式选择变体。
func (f *Factory) New(ep Endpoint) (Source, error) {
	ep.Catalog = settings.ExpandLocation(ep.Catalog, f.ContentRoot)
	ep.Bundles = settings.ExpandLocation(ep.Bundles, f.ContentRoot)
	opener := f.Opener
	if opener == nil {
		opener = container.ZipOpener{}
	}
	switch ep.Mode {
	case catalog.Local:
		return &Local{catalogPath: ep.Catalog, root: ep.Bundles, opener: opener}, nil
	case catalog.Remote:
		if f.Client == nil || f.Store == nil {
			return nil, errs.Transfer("new_source", f.Stream, errMissingRemoteDeps)
		}
		limiter := f.Limiter
		if limiter == nil {
			limiter = rate.NewLimiter(rate.Inf, 0)
		}
		return &Remote{
			stream:     f.Stream,
			catalogURL: ep.Catalog,
			baseURL:    ep.Bundles,
			client:     f.Client,
			limiter:    limiter,
			store:      f.Store,
			opener:     opener,
			logger:     f.Logger,
		}, nil
	default:
		return nil, errs.Decode("new_source", f.Stream, errUnknownMode(ep.Mode))
	}
}

func parentLocation(location string) string {
	idx := strings.LastIndexAny(location, `/\`)
	if idx <= 0 {
		return "."
	}
	return location[:idx]
}
