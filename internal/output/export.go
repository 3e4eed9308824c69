package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
)

const (
	FormatJSON = "json"
	FormatHTML = "html"

	ContentTypeJSON = "application/json; charset=utf-8"
	ContentTypeHTML = "text/html; charset=utf-8"
)

// ErrUnsupportedFormat indicates an export format other than json or html
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Artifact is a rendered file ready for download
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Filename builds a filesystem-safe artifact name from its parts
func Filename(ext string, parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(unsafeFilenameChars.ReplaceAllString(p, "_"), "_")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, "output")
	}
	return strings.Join(cleaned, "-") + "." + ext
}

// Export renders payload in the requested format. title labels the HTML
// document and names the file.
func Export(format, title string, payload any) (*Artifact, error) {
	switch format {
	case FormatJSON, "":
		data, err := ExportJSON(payload)
		if err != nil {
			return nil, err
		}
		return &Artifact{Filename: Filename("json", title), ContentType: ContentTypeJSON, Data: data}, nil
	case FormatHTML:
		data, err := ExportHTML(title, payload)
		if err != nil {
			return nil, err
		}
		return &Artifact{Filename: Filename("html", title), ContentType: ContentTypeHTML, Data: data}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ExportJSON pretty-prints the payload. String payloads holding JSON are
// exported as the decoded structure, other strings as a JSON string.
func ExportJSON(payload any) ([]byte, error) {
	value := payload
	if text, ok := payload.(string); ok {
		if parsed := parseStructured(text); parsed != nil {
			value = parsed
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return nil, fmt.Errorf("encode json export: %w", err)
	}
	return buf.Bytes(), nil
}

var htmlDocument = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 960px; margin: 2rem auto; line-height: 1.5; }
pre { background: #f5f5f5; padding: 1rem; overflow-x: auto; white-space: pre-wrap; }
img { max-width: 100%; display: block; margin: 1rem 0; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{- range .Images}}
<img src="{{.}}" alt="">
{{- end}}
{{- if .Markdown}}
<article>{{.Markdown}}</article>
{{- end}}
{{- if .Pre}}
<pre>{{.Pre}}</pre>
{{- end}}
{{- if .Empty}}
<p><em>No output</em></p>
{{- end}}
</body>
</html>
`))

type htmlPage struct {
	Title    string
	Images   []string
	Markdown template.HTML
	Pre      string
	Empty    bool
}

// ExportHTML renders the payload as a standalone HTML document
func ExportHTML(title string, payload any) ([]byte, error) {
	c := Classify(payload)
	page := htmlPage{Title: title, Images: c.ImageURLs}

	switch {
	case c.Kind == KindEmpty:
		page.Empty = true
	case c.HasJSON():
		pretty, err := ExportJSON(c.JSON)
		if err != nil {
			return nil, err
		}
		page.Pre = string(pretty)
	case c.Kind == KindMarkdown:
		var md bytes.Buffer
		if err := goldmark.Convert([]byte(c.Text), &md); err != nil {
			return nil, fmt.Errorf("render markdown: %w", err)
		}
		page.Markdown = template.HTML(md.String())
	default:
		page.Pre = c.Text
	}

	var buf bytes.Buffer
	if err := htmlDocument.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("render html export: %w", err)
	}
	return buf.Bytes(), nil
}
