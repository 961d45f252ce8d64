// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package view

import (
	"io"
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/huddlechat/huddle/chat"
	"github.com/huddlechat/huddle/lib/directory"
	"github.com/huddlechat/huddle/lib/ref"
)

// Theme is the color palette. Colors are ANSI 256 codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color
	Accent     lipgloss.Color
	OwnMessage lipgloss.Color
	Notice     lipgloss.Color
	Direct     lipgloss.Color
}

// DefaultTheme suits a dark terminal.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("243"),
	Accent:     lipgloss.Color("75"),
	OwnMessage: lipgloss.Color("114"),
	Notice:     lipgloss.Color("214"),
	Direct:     lipgloss.Color("176"),
}

// ellipsis marks truncated lines.
const ellipsis = "…"

// Renderer formats projection items as single terminal lines no wider
// than Width cells.
type Renderer struct {
	width int

	normal  lipgloss.Style
	faint   lipgloss.Style
	accent  lipgloss.Style
	own     lipgloss.Style
	notice  lipgloss.Style
	direct  lipgloss.Style
	current lipgloss.Style
}

// NewRenderer creates a Renderer for output. profile selects the color
// depth; termenv.Ascii renders plain text. A width of zero or less
// disables truncation.
func NewRenderer(output io.Writer, profile termenv.Profile, width int, theme Theme) *Renderer {
	renderer := lipgloss.NewRenderer(output, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)
	return &Renderer{
		width:   width,
		normal:  renderer.NewStyle().Foreground(theme.NormalText),
		faint:   renderer.NewStyle().Foreground(theme.FaintText),
		accent:  renderer.NewStyle().Foreground(theme.Accent).Bold(true),
		own:     renderer.NewStyle().Foreground(theme.OwnMessage),
		notice:  renderer.NewStyle().Foreground(theme.Notice).Italic(true),
		direct:  renderer.NewStyle().Foreground(theme.Direct),
		current: renderer.NewStyle().Foreground(theme.Accent).Bold(true).Reverse(true),
	}
}

// SetWidth changes the truncation width.
func (r *Renderer) SetWidth(width int) { r.width = width }

// Sanitize makes remote text safe to print on one line: escape
// sequences are removed, and newlines and other control characters
// become spaces.
func Sanitize(text string) string {
	stripped := ansi.Strip(text)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, stripped)
}

func (r *Renderer) fit(line string) string {
	if r.width <= 0 {
		return line
	}
	return ansi.Truncate(line, r.width, ellipsis)
}

// Room renders one room row. The active room is highlighted.
func (r *Renderer) Room(item RoomItem, active bool) string {
	label := Sanitize(item.Label)
	marker := "#"
	style := r.normal
	switch {
	case item.Direct:
		marker = ""
		style = r.direct
	case item.Private:
		marker = "*"
	}
	if active {
		style = r.current
	}
	return r.fit(style.Render(marker + label))
}

// Message renders "HH:MM sender: text". Messages from self use the
// own-message color.
func (r *Renderer) Message(message chat.Message, self ref.UserID) string {
	sender := r.accent
	if message.SenderID == self {
		sender = r.own
	}
	line := r.faint.Render(message.Timestamp.Format("15:04")) + " " +
		sender.Render(Sanitize(message.SenderID.Localpart())) + r.faint.Render(":") + " " +
		r.normal.Render(Sanitize(message.Text))
	return r.fit(line)
}

// User renders a directory entry as "name <email>".
func (r *Renderer) User(user directory.User) string {
	line := r.normal.Render(Sanitize(user.DisplayName()))
	if user.Email != "" && user.Email != user.DisplayName() {
		line += " " + r.faint.Render("<"+Sanitize(user.Email)+">")
	}
	return r.fit(line)
}

// Notice renders a status or error notice.
func (r *Renderer) Notice(text string) string {
	return r.fit(r.notice.Render(Sanitize(text)))
}

// Rooms renders a room list with activeRoom highlighted.
func (r *Renderer) Rooms(list *RoomList, activeRoom ref.RoomID) []string {
	lines := make([]string, 0, len(list.Items()))
	for _, item := range list.Items() {
		lines = append(lines, r.Room(item, item.ID == activeRoom))
	}
	return lines
}

// Messages renders a message list, followed by its notice if set.
func (r *Renderer) Messages(list *MessageList, self ref.UserID) []string {
	lines := make([]string, 0, len(list.Items())+1)
	for _, message := range list.Items() {
		lines = append(lines, r.Message(message, self))
	}
	if notice := list.Notice(); notice != "" {
		lines = append(lines, r.Notice(notice))
	}
	return lines
}

// Users renders a user list, or its notice when the directory failed.
func (r *Renderer) Users(list *UserList) []string {
	if notice := list.Notice(); notice != "" {
		return []string{r.Notice(notice)}
	}
	lines := make([]string, 0, len(list.Items()))
	for _, user := range list.Items() {
		lines = append(lines, r.User(user))
	}
	return lines
}
