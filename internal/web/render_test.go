package web

import (
	"strings"
	"testing"
)

func TestRenderMarkdown(t *testing.T) {
	html, err := RenderMarkdown("**bold** and a [link](https://go.dev)")
	if err != nil {
		t.Fatalf("RenderMarkdown() error: %v", err)
	}
	if !strings.Contains(html, "<strong>bold</strong>") {
		t.Errorf("output %q missing bold markup", html)
	}
	if !strings.Contains(html, `href="https://go.dev"`) {
		t.Errorf("output %q missing link", html)
	}
}

func TestRenderMarkdownEscapesRawHTML(t *testing.T) {
	html, err := RenderMarkdown(`before <script>alert(1)</script> after`)
	if err != nil {
		t.Fatalf("RenderMarkdown() error: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Errorf("output %q contains raw script tag", html)
	}
}

func TestRenderMarkdownTables(t *testing.T) {
	src := "| a | b |\n|---|---|\n| 1 | 2 |"
	html, err := RenderMarkdown(src)
	if err != nil {
		t.Fatalf("RenderMarkdown() error: %v", err)
	}
	if !strings.Contains(html, "<table>") {
		t.Errorf("output %q missing table markup, GFM extension not active", html)
	}
}
