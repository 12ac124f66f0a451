// Package patch diffs a catalog against the verified bundle cache and
// executes the resulting download plan. Probe and fetch failures never
// raise: they are folded into the plan state so callers retry the whole
// cycle.
package patch

import "fmt"

// State 是补丁计划的阶段，只会沿 NotReady → Ready → {Success, Fail} 前进。
type State int

const (
	NotReady State = iota
	Ready
	Success
	Fail
)

func (s State) String() string {
	switch s {
	case NotReady:
		return "NotReady"
	case Ready:
		return "Ready"
	case Success:
		return "Success"
	case Fail:
		return "Fail"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText 让 JSON 输出可读的状态名。
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Plan 是 ReadyPatch 的产物与 ApplyPatch 的输入；Bundles 反映计划而非执行结果。
type Plan struct {
	State      State    `json:"state"`
	Bundles    []string `json:"bundle_names"`
	TotalBytes int64    `json:"total_bytes"`
}

// Empty 表示无需下载任何内容。
func (p Plan) Empty() bool {
	return len(p.Bundles) == 0
}
