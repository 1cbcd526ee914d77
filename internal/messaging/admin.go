package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Bossianity/Project-WAPi/internal/policy"
	"github.com/Bossianity/Project-WAPi/internal/util"
	"github.com/Bossianity/Project-WAPi/internal/worker"
)

// command is a parsed admin command.
type command struct {
	op     string // pause_all, resume_all, pause, resume, exempt, pause_usage, resume_usage, exempt_usage, outreach
	target string
}

// parseCommand recognises the admin command set. Matching is
// case-insensitive; the outreach sheet argument keeps its case.
func parseCommand(body string) (command, bool) {
	orig := strings.Fields(body)
	f := strings.Fields(strings.ToLower(body))
	switch {
	case len(f) == 2 && f[1] == "all" && f[0] == "stop",
		len(f) == 3 && f[0] == "bot" && f[1] == "pause" && f[2] == "all":
		return command{op: "pause_all"}, true
	case len(f) == 2 && f[1] == "all" && f[0] == "start",
		len(f) == 3 && f[0] == "bot" && f[1] == "resume" && f[2] == "all":
		return command{op: "resume_all"}, true
	case len(f) == 2 && f[0] == "stop" && util.PhoneDigits(f[1]) != "":
		return command{op: "pause", target: f[1]}, true
	case len(f) == 2 && f[0] == "start" && util.PhoneDigits(f[1]) != "":
		return command{op: "resume", target: f[1]}, true
	case len(f) >= 3 && f[0] == "bot" && f[1] == "start" && f[2] == "outreach":
		c := command{op: "outreach"}
		if len(orig) > 3 {
			c.target = orig[3]
		}
		return c, true
	case len(f) >= 2 && f[0] == "bot" && f[1] == "pause":
		if len(f) == 3 {
			return command{op: "pause", target: f[2]}, true
		}
		return command{op: "pause_usage"}, true
	case len(f) >= 2 && f[0] == "bot" && f[1] == "resume":
		if len(f) == 3 {
			return command{op: "resume", target: f[2]}, true
		}
		return command{op: "resume_usage"}, true
	case len(f) >= 2 && f[0] == "bot" && f[1] == "exempt":
		if len(f) == 3 {
			return command{op: "exempt", target: f[2]}, true
		}
		return command{op: "exempt_usage"}, true
	}
	return command{}, false
}

func (d *Dispatcher) isAdmin(sender string) bool {
	return len(d.admins) == 0 || d.admins[sender]
}

// handleAdmin executes an admin command and sends exactly one
// acknowledgement. It reports whether body was a command.
func (d *Dispatcher) handleAdmin(ctx context.Context, sender, body string) bool {
	cmd, ok := parseCommand(body)
	if !ok || !d.isAdmin(sender) {
		return false
	}
	slog.Info("Dispatcher.handleAdmin: command received", "from", sender, "op", cmd.op, "target", cmd.target)
	d.sendText(ctx, sender, d.runCommand(ctx, sender, cmd))
	return true
}

func (d *Dispatcher) runCommand(ctx context.Context, sender string, cmd command) string {
	t := d.policy.Texts
	lang := policy.LangEnglish
	var err error
	switch cmd.op {
	case "pause_all":
		if err = d.pauses.PauseAll(ctx); err == nil {
			return d.text(t.PausedAll, lang)
		}
	case "resume_all":
		if err = d.pauses.ResumeAll(ctx); err == nil {
			return d.text(t.ResumedAll, lang)
		}
	case "pause", "resume", "exempt":
		target := util.NormalizeJID(cmd.target)
		if target == "" {
			return d.runCommand(ctx, sender, command{op: cmd.op + "_usage"})
		}
		vars := map[string]string{"target": target}
		switch cmd.op {
		case "pause":
			if err = d.pauses.Pause(ctx, target); err == nil {
				return policy.Fill(d.text(t.PausedUser, lang), vars)
			}
		case "resume":
			if err = d.pauses.Resume(ctx, target); err == nil {
				return policy.Fill(d.text(t.ResumedUser, lang), vars)
			}
		default:
			if err = d.pauses.Exempt(ctx, target); err == nil {
				return policy.Fill(d.text(t.ExemptedUser, lang), vars)
			}
		}
	case "pause_usage":
		return d.text(t.PauseUsage, lang)
	case "resume_usage":
		return d.text(t.ResumeUsage, lang)
	case "exempt_usage":
		return d.text(t.ExemptUsage, lang)
	case "outreach":
		return d.startOutreach(sender, cmd.target)
	}
	slog.Error("Dispatcher.runCommand: pause registry failed", "op", cmd.op, "error", err)
	return d.text(t.TransportFailure, lang)
}

func (d *Dispatcher) startOutreach(sender, spec string) string {
	t := d.policy.Texts
	lang := policy.LangEnglish
	if spec == "" {
		spec = d.opts.DefaultSheetID
	}
	if spec == "" {
		return d.text(t.OutreachNoSheet, lang)
	}
	sheetID := util.ExtractSheetID(spec)
	if !util.LooksLikeSheetID(sheetID) {
		return policy.Fill(d.text(t.OutreachBadSheet, lang), map[string]string{"sheet": spec})
	}
	if d.opts.Campaigns == nil || d.opts.Pool == nil {
		return d.text(t.OutreachDisabled, lang)
	}
	campaigns := d.opts.Campaigns
	err := d.opts.Pool.Submit("outreach:"+sheetID, func(ctx context.Context) error {
		summary := campaigns.Run(ctx, sheetID, sender)
		slog.Info("Dispatcher.startOutreach: campaign finished", "sheet", sheetID, "summary", summary)
		return nil
	})
	if err != nil {
		if !errors.Is(err, worker.ErrQueueFull) {
			slog.Error("Dispatcher.startOutreach: submit failed", "sheet", sheetID, "error", err)
		}
		return d.text(t.OutreachQueueFull, lang)
	}
	return policy.Fill(d.text(t.OutreachStarted, lang), map[string]string{"sheet": sheetID})
}
