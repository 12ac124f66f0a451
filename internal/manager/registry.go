package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Stream 记录一个已配置内容流的初始化结果，供诊断接口输出。
type Stream struct {
	Key     string
	Manager *Manager
	// Err 非空表示初始化失败，Manager 为 nil。
	Err error
}

// Registry 按配置顺序持有进程内所有内容流的 Manager。
type Registry struct {
	streams map[string]*Stream
	ordered []*Stream
}

// NewRegistry 依次初始化配置中声明的全部内容流。单个流初始化失败不会中断其他流，
// 失败原因保留在对应 Stream.Err 中；只有重复 key 会直接返回错误。
func NewRegistry(ctx context.Context, deps Deps) (*Registry, error) {
	if deps.Config == nil {
		return nil, errors.New("config is nil")
	}
	keys := deps.Config.StreamKeys()
	registry := &Registry{
		streams: make(map[string]*Stream, len(keys)),
	}
	for _, key := range keys {
		if _, exists := registry.streams[key]; exists {
			return nil, fmt.Errorf("duplicate stream key %s", key)
		}
		m, err := Initialize(ctx, key, deps)
		entry := &Stream{Key: key, Manager: m, Err: err}
		registry.streams[key] = entry
		registry.ordered = append(registry.ordered, entry)
	}
	return registry, nil
}

// Lookup 返回已成功初始化的 Manager。
func (r *Registry) Lookup(key string) (*Manager, bool) {
	if r == nil {
		return nil, false
	}
	entry, ok := r.streams[key]
	if !ok || entry.Manager == nil {
		return nil, false
	}
	return entry.Manager, true
}

// List 按配置顺序返回所有内容流（包含初始化失败的流）。
func (r *Registry) List() []Stream {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	result := make([]Stream, len(r.ordered))
	for i, entry := range r.ordered {
		result[i] = *entry
	}
	return result
}

// StreamStatus 是 /-/bundles 输出的单个流状态。
type StreamStatus struct {
	Key      string    `json:"key"`
	Error    string    `json:"error,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// Status 汇总所有流的快照。
func (r *Registry) Status() []StreamStatus {
	streams := r.List()
	result := make([]StreamStatus, 0, len(streams))
	for _, s := range streams {
		status := StreamStatus{Key: s.Key}
		if s.Err != nil {
			status.Error = s.Err.Error()
		}
		if s.Manager != nil {
			snap := s.Manager.Snapshot()
			status.Snapshot = &snap
		}
		result = append(result, status)
	}
	return result
}

// Close 卸载所有流，返回遇到的全部错误。
func (r *Registry) Close(ctx context.Context, logger *logrus.Logger) error {
	var errList []error
	for _, s := range r.List() {
		if s.Manager == nil {
			continue
		}
		if err := s.Manager.Close(ctx); err != nil {
			if logger != nil {
				logger.WithFields(logrus.Fields{"action": "close", "key": s.Key}).WithError(err).Warn("stream close failed")
			}
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}
