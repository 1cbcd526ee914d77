package messaging

import (
	"fmt"
	"strings"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

// RenderButtonMenu renders a button message as text for providers without
// interactive messages. Options are numbered from 1 so users can answer
// with the number.
func RenderButtonMenu(msg models.ButtonMessage) string {
	var b strings.Builder
	writeLine(&b, msg.Header)
	writeLine(&b, msg.Body)
	b.WriteString("\n")
	n := 0
	for _, btn := range msg.Buttons {
		if btn.Type == models.ButtonURL {
			fmt.Fprintf(&b, "%s: %s\n", btn.Title, btn.URL)
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. %s\n", n, btn.Title)
	}
	writeLine(&b, msg.Footer)
	return strings.TrimSpace(b.String())
}

// RenderListMenu renders a list message as a numbered text menu.
func RenderListMenu(msg models.ListMessage) string {
	var b strings.Builder
	writeLine(&b, msg.Header)
	writeLine(&b, msg.Body)
	b.WriteString("\n")
	n := 0
	for _, s := range msg.Sections {
		if s.Title != "" {
			fmt.Fprintf(&b, "%s\n", s.Title)
		}
		for _, r := range s.Rows {
			n++
			if r.Description != "" {
				fmt.Fprintf(&b, "%d. %s (%s)\n", n, r.Title, r.Description)
			} else {
				fmt.Fprintf(&b, "%d. %s\n", n, r.Title)
			}
		}
	}
	writeLine(&b, msg.Footer)
	return strings.TrimSpace(b.String())
}

func writeLine(b *strings.Builder, s string) {
	if s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}
}
