package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentRenderer_Render(t *testing.T) {
	t.Parallel()

	renderer := newContentRenderer()

	tests := []struct {
		name        string
		input       string
		contains    []string
		notContains []string
	}{
		{
			name:     "emphasis",
			input:    "**bold** and _italic_",
			contains: []string{"<strong>bold</strong>", "<em>italic</em>"},
		},
		{
			name:        "script is stripped",
			input:       "<script>alert(1)</script>hello",
			contains:    []string{"hello"},
			notContains: []string{"<script", "alert(1)"},
		},
		{
			name:        "event handlers are stripped",
			input:       `<img src="https://example.com/a.png" onerror="alert(1)">`,
			notContains: []string{"onerror"},
		},
		{
			name:     "bare links are linkified",
			input:    "see https://example.com",
			contains: []string{`href="https://example.com"`},
		},
		{
			name:     "code keeps its language class",
			input:    "```go\nfmt.Println()\n```",
			contains: []string{`<code class="language-go">`},
		},
		{
			name:     "line breaks are kept",
			input:    "first\nsecond",
			contains: []string{"<br"},
		},
		{
			name:     "strikethrough",
			input:    "~~gone~~",
			contains: []string{"<del>gone</del>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := renderer.Render(tt.input)
			require.NoError(t, err)

			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}

			for _, unwanted := range tt.notContains {
				assert.NotContains(t, got, unwanted)
			}
		})
	}
}
