// Package render converts markdown window content to sanitized HTML for the
// browser. Rendering happens server side so the frontend never has to trust
// notebook content.
package render

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	policy = newPolicy()
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	// Notebook outputs embed images as data URIs.
	p.AllowDataURIImages()
	p.AllowAttrs("class").OnElements("code", "pre", "span")
	return p
}

// Markdown renders GFM markdown to HTML and strips anything the sanitizer
// does not allow. Raw HTML in the source never reaches the output.
func Markdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("markdown render failed: %w", err)
	}
	return policy.Sanitize(buf.String()), nil
}

// SanitizeHTML cleans HTML produced by a kernel, for example a rich
// text/html display payload, before it is shown in an output window.
func SanitizeHTML(source string) string {
	return policy.Sanitize(source)
}
