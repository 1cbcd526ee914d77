package messaging

import (
	"context"
	"log/slog"

	"github.com/Bossianity/Project-WAPi/internal/flow"
	"github.com/Bossianity/Project-WAPi/internal/models"
)

// sendText delivers text in chunks. Failures are logged; the turn is still
// recorded.
func (d *Dispatcher) sendText(ctx context.Context, to, text string) {
	if text == "" {
		return
	}
	if n, err := SendChunked(ctx, d.svc, to, text); err != nil {
		slog.Error("Dispatcher.sendText: send failed", "to", to, "delivered", n, "error", err)
	}
}

// sendResult delivers an assistant result and returns the text recorded in
// history for it.
func (d *Dispatcher) sendResult(ctx context.Context, to string, res models.Result, lang string) string {
	switch res.Kind {
	case models.ResultImage, models.ResultGallery:
		if len(res.URLs) == 0 {
			d.sendText(ctx, to, res.Caption)
			return res.Caption
		}
		for i, url := range res.URLs {
			caption := ""
			if i == 0 {
				caption = res.Caption
			}
			if err := d.svc.SendImage(ctx, to, caption, url); err != nil {
				slog.Warn("Dispatcher.sendResult: image send failed", "to", to, "url", url, "error", err)
				fallback := d.text(d.policy.Texts.ImageFailed, lang)
				d.sendText(ctx, to, fallback)
				return fallback
			}
		}
		return res.Flatten()
	default:
		d.sendText(ctx, to, res.Text)
		return res.Text
	}
}

// sendReplies delivers flow prompts in order. Interactive prompts that the
// gateway rejects are resent as numbered text menus.
func (d *Dispatcher) sendReplies(ctx context.Context, to string, replies []flow.Reply) {
	for _, r := range replies {
		switch {
		case r.Buttons != nil:
			if err := d.svc.SendButtons(ctx, to, *r.Buttons); err != nil {
				slog.Warn("Dispatcher.sendReplies: buttons rejected, sending text menu", "to", to, "error", err)
				d.sendText(ctx, to, RenderButtonMenu(*r.Buttons))
			}
		case r.List != nil:
			if err := d.svc.SendList(ctx, to, *r.List); err != nil {
				slog.Warn("Dispatcher.sendReplies: list rejected, sending text menu", "to", to, "error", err)
				d.sendText(ctx, to, RenderListMenu(*r.List))
			}
		default:
			d.sendText(ctx, to, r.Text)
		}
	}
}
