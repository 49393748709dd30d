package bot

import (
	"context"
	"html"
	"strings"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/notify"
)

// logNotifier writes alerts to the log when Telegram is disabled.
// Suppression follows the same policy as the Telegram dispatcher.
type logNotifier struct {
	logger *zap.Logger
	policy notify.Config
}

func (n *logNotifier) Broadcast(_ context.Context, kind domain.ChangeKind, text string) (int, error) {
	if n.policy.Suppressed(kind) {
		n.logger.Debug("Notification suppressed", zap.Stringer("kind", kind))
		return 0, nil
	}
	n.logger.Info("Position change", zap.Stringer("kind", kind), zap.String("message", stripTags(text)))
	return 1, nil
}

func (n *logNotifier) Announce(_ context.Context, text string) (int, error) {
	n.logger.Info("Notice", zap.String("message", stripTags(text)))
	return 1, nil
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return html.UnescapeString(b.String())
}
