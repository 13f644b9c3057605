package logger

import (
	"context"
	"log/slog"
	"strings"
)

const maskedValue = "***"

// maskers maps lower-cased attribute keys to the rewrite applied to their value.
var maskers = map[string]func(string) string{
	"password":      hide,
	"token":         hide,
	"secret":        hide,
	"api_key":       hide,
	"authorization": hide,
	"dsn":           hide,
	"email":         maskEmail,
	"account_name":  maskEmail,
}

// MaskingHandler redacts credentials and account e-mails before records reach next.
type MaskingHandler struct {
	next slog.Handler
}

func NewMaskingHandler(next slog.Handler) *MaskingHandler {
	return &MaskingHandler{next: next}
}

func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, redact(attr))
	}
	return &MaskingHandler{next: h.next.WithAttrs(out)}
}

func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{next: h.next.WithGroup(name)}
}

func (h *MaskingHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(redact(attr))
		return true
	})
	return h.next.Handle(ctx, clean)
}

func redact(attr slog.Attr) slog.Attr {
	value := attr.Value.Resolve()

	if value.Kind() == slog.KindGroup {
		members := value.Group()
		args := make([]any, 0, len(members))
		for _, member := range members {
			args = append(args, redact(member))
		}
		return slog.Group(attr.Key, args...)
	}

	if mask, ok := maskers[strings.ToLower(attr.Key)]; ok {
		return slog.String(attr.Key, mask(value.String()))
	}
	return attr
}

func hide(string) string { return maskedValue }

// maskEmail keeps the first character of the local part and the domain,
// so "player@example.com" becomes "p***@example.com".
func maskEmail(v string) string {
	at := strings.LastIndexByte(v, '@')
	if at <= 0 {
		return maskedValue
	}
	return v[:1] + maskedValue + v[at:]
}
