package web

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// contentRenderer turns comment markdown into sanitized HTML.
type contentRenderer struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

func newContentRenderer() *contentRenderer {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "span")

	return &contentRenderer{
		markdown: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM, // tables, strikethrough, task lists
				extension.Linkify,
				extension.Typographer,
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithXHTML(),
				html.WithUnsafe(), // raw HTML is sanitized afterwards
			),
		),
		policy: policy,
	}
}

func (cr *contentRenderer) Render(content string) (string, error) {
	var buf bytes.Buffer

	err := cr.markdown.Convert([]byte(content), &buf)
	if err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}

	return cr.policy.Sanitize(buf.String()), nil
}
