package catalog

import (
	"fmt"
	"strings"
)

// LoadMode 决定 catalog 与 bundle 字节的读取方式。
type LoadMode int

const (
	// Local 表示内容随应用一起分发，直接从本地文件读取。
	Local LoadMode = iota
	// Remote 表示内容需通过网络获取，并经由本地缓存复用。
	Remote
)

func (m LoadMode) String() string {
	switch m {
	case Local:
		return "local"
	case Remote:
		return "remote"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseLoadMode 接受 local/remote（大小写不敏感）。
func ParseLoadMode(raw string) (LoadMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "local":
		return Local, nil
	case "remote":
		return Remote, nil
	default:
		return 0, fmt.Errorf("unsupported load mode %q", raw)
	}
}
