// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"strings"
	"testing"
)

func TestNewTextMessage(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantFormatted string
	}{
		{name: "plain prose", body: "hello there", wantFormatted: ""},
		{name: "two paragraphs", body: "first\n\nsecond", wantFormatted: ""},
		{name: "emphasis", body: "this is **bold**", wantFormatted: "<p>this is <strong>bold</strong></p>"},
		{name: "inline code", body: "run `make`", wantFormatted: "<p>run <code>make</code></p>"},
		{name: "list", body: "- one\n- two", wantFormatted: "<ul>\n<li>one</li>\n<li>two</li>\n</ul>"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			content := NewTextMessage(test.body)
			if content.MsgType != "m.text" {
				t.Errorf("MsgType = %q", content.MsgType)
			}
			if content.Body != test.body {
				t.Errorf("Body = %q, want %q", content.Body, test.body)
			}
			if content.FormattedBody != test.wantFormatted {
				t.Errorf("FormattedBody = %q, want %q", content.FormattedBody, test.wantFormatted)
			}
			wantFormat := ""
			if test.wantFormatted != "" {
				wantFormat = FormatHTML
			}
			if content.Format != wantFormat {
				t.Errorf("Format = %q, want %q", content.Format, wantFormat)
			}
		})
	}
}

func TestNewTextMessageOmitsRawHTML(t *testing.T) {
	content := NewTextMessage("**hi** <script>alert(1)</script>")
	if strings.Contains(content.FormattedBody, "<script>") {
		t.Errorf("raw HTML passed through: %q", content.FormattedBody)
	}
}
