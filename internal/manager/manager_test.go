package manager

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/bundle-hub/internal/catalog"
	"github.com/any-hub/bundle-hub/internal/config"
	"github.com/any-hub/bundle-hub/internal/container"
	"github.com/any-hub/bundle-hub/internal/errs"
	"github.com/any-hub/bundle-hub/internal/logging"
	"github.com/any-hub/bundle-hub/internal/patch"
	"github.com/any-hub/bundle-hub/internal/settings"
	"github.com/any-hub/bundle-hub/internal/source"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type fixture struct {
	deps    Deps
	bundles map[string][]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{Global: config.GlobalConfig{
		StoragePath:            filepath.Join(root, "cache"),
		SettingsRoot:           filepath.Join(root, "settings"),
		ContentRoot:            filepath.Join(root, "content"),
		MaxRetries:             1,
		InitialBackoff:         config.Duration(time.Millisecond),
		UpstreamTimeout:        config.Duration(5 * time.Second),
		MaxConcurrentTransfers: 2,
	}}
	require.NoError(t, os.MkdirAll(cfg.Global.ContentRoot, 0o755))
	deps, err := NewDeps(cfg, logging.Discard(), nil)
	require.NoError(t, err)
	return &fixture{
		deps: deps,
		bundles: map[string][]byte{
			"prefabs":  zipBytes(t, map[string]string{"assets/Hero.prefab": "hero", "scenes/Town.scene": "town"}),
			"textures": zipBytes(t, map[string]string{"assets/hero.png": "png"}),
		},
	}
}

func (f *fixture) catalog(base string, mode catalog.LoadMode) *catalog.Catalog {
	return catalog.New(base, mode,
		catalog.BundleEntry{
			Name:         "prefabs",
			Hash:         catalog.HashBytes(f.bundles["prefabs"]),
			Dependencies: []string{"textures"},
			Objects:      map[string]string{"Hero": "assets/Hero.prefab", "Town": "scenes/Town.scene"},
		},
		catalog.BundleEntry{
			Name:    "textures",
			Hash:    catalog.HashBytes(f.bundles["textures"]),
			Objects: map[string]string{"HeroTexture": "assets/hero.png"},
		},
	)
}

func (f *fixture) writeLocal(t *testing.T, key string) {
	t.Helper()
	dir := filepath.Join(f.deps.Config.Global.ContentRoot, key)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, data := range f.bundles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	encoded, err := catalog.Encode(f.catalog("", catalog.Local))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, catalog.FileName), encoded, 0o644))
	require.NoError(t, settings.Save(f.deps.Config.Global.SettingsRoot, key, settings.Settings{
		BaseLocation: settings.ContentRootPlaceholder + "/" + key + "/" + catalog.FileName,
		LoadMode:     catalog.Local,
	}))
}

func TestInitializeLocalStream(t *testing.T) {
	f := newFixture(t)
	f.writeLocal(t, "Game")
	ctx := context.Background()

	m, err := Initialize(ctx, "Game", f.deps)
	require.NoError(t, err)
	require.Equal(t, source.KindLocal, m.SourceKind())
	require.Len(t, m.Catalog().Bundles, 2)

	plan := m.ReadyPatch(ctx)
	require.Equal(t, patch.Ready, plan.State)
	require.True(t, plan.Empty())
	require.Equal(t, patch.Success, m.ApplyPatch(ctx, plan).State)

	b, err := m.LoadBundle(ctx, "prefabs", true)
	require.NoError(t, err)
	require.True(t, b.Available())

	snap := m.Snapshot()
	require.Equal(t, "Game", snap.Key)
	require.Equal(t, "local", snap.LoadMode)
	require.Len(t, snap.Bundles, 2)
	require.NoError(t, m.Close(ctx))
	require.Empty(t, m.Snapshot().Bundles)
}

func TestObjectRefcountThroughManager(t *testing.T) {
	f := newFixture(t)
	f.writeLocal(t, "Game")
	ctx := context.Background()
	m, err := Initialize(ctx, "Game", f.deps)
	require.NoError(t, err)

	first, err := m.LoadObject(ctx, "prefabs", "Hero")
	require.NoError(t, err)
	second, err := m.LoadObjectAsync(ctx, "prefabs", "Hero").Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)

	value, err := m.Object(first)
	require.NoError(t, err)
	obj, ok := value.(*container.Object)
	require.True(t, ok)
	require.Equal(t, "hero", string(obj.Data))

	require.NoError(t, m.UnloadObject("prefabs", "Hero"))
	_, err = m.Object(first)
	require.NoError(t, err)
	require.NoError(t, m.UnloadObjectHandle("prefabs", first))
	_, err = m.Object(first)
	require.ErrorIs(t, err, errs.ErrResourceUnavailable)

	_, err = m.LoadObject(ctx, "missing", "Hero")
	require.ErrorIs(t, err, errs.ErrUnknownBundle)
}

func TestInitializeMissingSettings(t *testing.T) {
	f := newFixture(t)
	_, err := Initialize(context.Background(), "Game", f.deps)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestInitializeRejectsInvalidKey(t *testing.T) {
	f := newFixture(t)
	_, err := Initialize(context.Background(), "../escape", f.deps)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRemoteStreamPatchLifecycle(t *testing.T) {
	f := newFixture(t)
	files := map[string][]byte{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, filepath.Base(r.URL.Path), time.Time{}, bytes.NewReader(body))
	}))
	defer srv.Close()

	encoded, err := catalog.Encode(f.catalog(srv.URL+"/Game", catalog.Remote))
	require.NoError(t, err)
	files["/Game/"+catalog.FileName] = encoded
	for name, data := range f.bundles {
		files["/Game/"+name] = data
	}
	require.NoError(t, settings.Save(f.deps.Config.Global.SettingsRoot, "Game", settings.Settings{
		BaseLocation: srv.URL + "/Game/" + catalog.FileName,
		LoadMode:     catalog.Remote,
	}))

	ctx := context.Background()
	m, err := Initialize(ctx, "Game", f.deps)
	require.NoError(t, err)
	require.Equal(t, source.KindRemote, m.SourceKind())

	plan := m.ReadyPatch(ctx)
	require.Equal(t, patch.Ready, plan.State)
	require.ElementsMatch(t, []string{"prefabs", "textures"}, plan.Bundles)
	require.Equal(t, int64(len(f.bundles["prefabs"])+len(f.bundles["textures"])), plan.TotalBytes)

	applied := m.ApplyPatch(ctx, plan)
	require.Equal(t, patch.Success, applied.State)

	versions, err := f.deps.Store.Versions(ctx, "Game", "prefabs")
	require.NoError(t, err)
	require.Equal(t, []catalog.Hash128{catalog.HashBytes(f.bundles["prefabs"])}, versions)

	again := m.ReadyPatch(ctx)
	require.Equal(t, patch.Ready, again.State)
	require.True(t, again.Empty())

	h, err := m.LoadObject(ctx, "textures", "HeroTexture")
	require.NoError(t, err)
	value, err := m.Object(h)
	require.NoError(t, err)
	require.Equal(t, "png", string(value.(*container.Object).Data))
}

func TestRemoteStreamFailedPatch(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := f.catalog(srv.URL+"/Game", catalog.Remote)
	encoded, err := catalog.Encode(c)
	require.NoError(t, err)
	catalogSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(encoded)
	}))
	defer catalogSrv.Close()
	require.NoError(t, settings.Save(f.deps.Config.Global.SettingsRoot, "Game", settings.Settings{
		BaseLocation: catalogSrv.URL + "/catalog.bin",
		LoadMode:     catalog.Remote,
	}))

	ctx := context.Background()
	m, err := Initialize(ctx, "Game", f.deps)
	require.NoError(t, err)

	plan := m.ReadyPatch(ctx)
	require.Equal(t, patch.NotReady, plan.State)
	require.Equal(t, plan, m.ApplyPatch(ctx, plan))
}

func TestRegistryKeepsFailedStreams(t *testing.T) {
	f := newFixture(t)
	f.writeLocal(t, "Game")
	f.deps.Config.Streams = []config.StreamConfig{{Key: "Game"}, {Key: "Tools"}}

	registry, err := NewRegistry(context.Background(), f.deps)
	require.NoError(t, err)

	m, ok := registry.Lookup("Game")
	require.True(t, ok)
	require.Equal(t, "Game", m.Key())
	_, ok = registry.Lookup("Tools")
	require.False(t, ok)

	status := registry.Status()
	require.Len(t, status, 2)
	require.Equal(t, "Game", status[0].Key)
	require.NotNil(t, status[0].Snapshot)
	require.Equal(t, "Tools", status[1].Key)
	require.NotEmpty(t, status[1].Error)
	require.Nil(t, status[1].Snapshot)

	require.NoError(t, registry.Close(context.Background(), nil))
}
