package logger

import (
	"log/slog"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

// replaceAttr expands error attributes carrying a coded domain error into a
// group with the message and the code, so logs can be filtered by code.
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	err, ok := a.Value.Any().(error)
	if !ok {
		return a
	}
	code := domain.GetErrorCode(err)
	if code == "" {
		return slog.String(a.Key, err.Error())
	}
	return slog.Group(a.Key,
		slog.String("msg", err.Error()),
		slog.String("code", code),
	)
}
