// Package errs 定义 bundle 生命周期中对调用方可见的错误分类。
// 所有包都通过 errors.Is 判断分类，而不是比较错误字符串。
package errs

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound 表示 settings/catalog/缓存条目不存在。
	ErrNotFound = errors.New("not found")
	// ErrDecode 表示持久化字节无法解析，或 catalog 自身不一致（循环依赖等）。
	ErrDecode = errors.New("decode error")
	// ErrTransfer 表示网络或文件读取失败，包括哈希校验不通过与取消。
	ErrTransfer = errors.New("transfer error")
	// ErrUnknownBundle 表示 bundle 名称不在 catalog 中。
	ErrUnknownBundle = errors.New("unknown bundle")
	// ErrUnknownObject 表示对象名称不在 catalog 中且未启用宽松回退。
	ErrUnknownObject = errors.New("unknown object")
	// ErrResourceUnavailable 表示依赖的 bundle 加载失败，或句柄已失效。
	ErrResourceUnavailable = errors.New("resource unavailable")
)

// Error 携带分类、操作名与目标名，便于日志与调用方同时使用。
type Error struct {
	Kind error
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	if e.Name != "" {
		b.WriteString(e.Name)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the classification and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New 构造带分类的错误；cause 可以为 nil。
func New(kind error, op, name string, cause error) error {
	return &Error{Kind: kind, Op: op, Name: name, Err: cause}
}

// NotFound 等便捷构造器覆盖最常见的分类。
func NotFound(op, name string, cause error) error {
	return New(ErrNotFound, op, name, cause)
}

func Decode(op, name string, cause error) error {
	return New(ErrDecode, op, name, cause)
}

func Transfer(op, name string, cause error) error {
	return New(ErrTransfer, op, name, cause)
}

func UnknownBundle(op, name string) error {
	return New(ErrUnknownBundle, op, name, nil)
}

func UnknownObject(op, name string) error {
	return New(ErrUnknownObject, op, name, nil)
}

func Unavailable(op, name string, cause error) error {
	return New(ErrResourceUnavailable, op, name, cause)
}

// KindOf 返回错误所属分类；无法识别时返回 nil。
func KindOf(err error) error {
	for _, kind := range []error{
		ErrNotFound,
		ErrDecode,
		ErrTransfer,
		ErrUnknownBundle,
		ErrUnknownObject,
		ErrResourceUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
