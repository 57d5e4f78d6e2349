package logging

import (
	"context"
	"errors"
	"log/slog"
)

// fanoutHandler 把一条日志分发给多个目标 (stdout 与切割文件)。
// 每个目标按自己的级别过滤；某个目标写入失败不影响其余目标，错误合并后返回。
type fanoutHandler []slog.Handler

func newMultiHandler(handlers ...slog.Handler) slog.Handler {
	return fanoutHandler(handlers)
}

// Enabled 任一目标接受该级别即返回 true。
func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		// Record 内部的属性切片可能被下游追加，分发前各自复制一份
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanoutHandler) derive(fn func(slog.Handler) slog.Handler) fanoutHandler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}
