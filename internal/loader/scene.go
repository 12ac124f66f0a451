package loader

import (
	"context"
	"sort"
	"sync"
)

// SceneHost 是进程级场景状态的外部原语。Loader 只在引用计数从 0 变为 1 时调用
// LoadScene，回到 0 时调用 UnloadScene。
type SceneHost interface {
	LoadScene(ctx context.Context, bundle, path string) error
	UnloadScene(ctx context.Context, bundle, path string) error
}

// SceneTable 是默认 SceneHost：只记录当前激活的场景。
type SceneTable struct {
	mu     sync.Mutex
	active map[string]string
}

func NewSceneTable() *SceneTable {
	return &SceneTable{active: make(map[string]string)}
}

func (t *SceneTable) LoadScene(ctx context.Context, bundle, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[path] = bundle
	return nil
}

func (t *SceneTable) UnloadScene(_ context.Context, _, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, path)
	return nil
}

// Active 返回已激活场景路径，按字典序排列。
func (t *SceneTable) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.active))
	for p := range t.active {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
