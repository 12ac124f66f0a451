package loader

import "sort"

// BundleState 是单个 bundle 的诊断视图。
type BundleState struct {
	Name      string        `json:"name"`
	Available bool          `json:"available"`
	Error     string        `json:"error,omitempty"`
	Objects   []ObjectState `json:"objects,omitempty"`
	Scenes    []ObjectState `json:"scenes,omitempty"`
}

// ObjectState 描述一个被跟踪的对象或场景。
type ObjectState struct {
	Path string `json:"path"`
	Refs int    `json:"refs"`
}

// Snapshot 返回当前缓存状态，按名称排序。
func (l *Loader) Snapshot() []BundleState {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]BundleState, 0, len(l.bundles))
	for name, b := range l.bundles {
		state := BundleState{
			Name:      name,
			Available: b.Available(),
			Objects:   trackedStates(b.objects),
			Scenes:    trackedStates(b.scenes),
		}
		if b.err != nil {
			state.Error = b.err.Error()
		}
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LiveHandles 返回 arena 中仍有效的对象句柄数量。
func (l *Loader) LiveHandles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.arena.live()
}

func trackedStates(m map[string]*tracked) []ObjectState {
	if len(m) == 0 {
		return nil
	}
	out := make([]ObjectState, 0, len(m))
	for path, t := range m {
		out = append(out, ObjectState{Path: path, Refs: t.refs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
