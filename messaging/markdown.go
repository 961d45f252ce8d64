// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// FormatHTML is the Matrix format identifier for HTML formatted_body.
const FormatHTML = "org.matrix.custom.html"

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

// markdown returns the shared goldmark instance. Raw HTML in the
// source is omitted by goldmark's default renderer.
func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownInstance
}

// NewTextMessage creates an m.text message. When the body contains
// Markdown markup, an HTML formatted_body is attached; plain prose is
// sent as body only.
func NewTextMessage(body string) MessageContent {
	content := MessageContent{
		MsgType: "m.text",
		Body:    body,
	}
	if formatted, ok := renderMarkdown(body); ok {
		content.Format = FormatHTML
		content.FormattedBody = formatted
	}
	return content
}

// renderMarkdown converts body to HTML. The second result is false
// when the body has no markup beyond paragraphs of text.
func renderMarkdown(body string) (string, bool) {
	source := []byte(body)
	instance := markdown()
	document := instance.Parser().Parse(text.NewReader(source))
	if !hasMarkup(document) {
		return "", false
	}
	var buffer bytes.Buffer
	if err := instance.Renderer().Render(&buffer, source, document); err != nil {
		return "", false
	}
	return strings.TrimSpace(buffer.String()), true
}

func hasMarkup(document ast.Node) bool {
	found := false
	_ = ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node.Kind() {
		case ast.KindDocument, ast.KindParagraph, ast.KindText:
			return ast.WalkContinue, nil
		}
		found = true
		return ast.WalkStop, nil
	})
	return found
}
