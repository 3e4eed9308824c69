// Package output classifies stage output payloads and renders them as
// downloadable artifacts.
package output

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Kind is the rendering branch chosen for a payload
type Kind string

const (
	KindEmpty           Kind = "EMPTY"
	KindImageCollection Kind = "IMAGE_COLLECTION"
	KindStructuredJSON  Kind = "STRUCTURED_JSON"
	KindMarkdown        Kind = "MARKDOWN"
	KindPlainText       Kind = "PLAIN_TEXT"
)

// imageFields are checked in this order on the payload's top-level object
var imageFields = []string{"images", "image_urls", "imageUrls", "image_url", "imageUrl", "image", "generated_images"}

// urlFields are looked up on objects inside an image array
var urlFields = []string{"url", "image_url", "imageUrl", "src", "href"}

var (
	headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
	boldPattern    = regexp.MustCompile(`\*\*[^*\n]+\*\*`)
	linkPattern    = regexp.MustCompile(`\[[^\]\n]+\]\([^)\s]+\)`)
)

// Classification is the tagged result of inspecting one payload. Images and
// JSON can both be populated: a JSON string that carries image URLs is
// rendered as an image collection and as structured data.
type Classification struct {
	Kind Kind `json:"kind"`

	// ImageURLs is set for KindImageCollection, in payload order
	ImageURLs []string `json:"image_urls,omitempty"`

	// JSON holds the decoded value whenever the payload is structured or a
	// string that parses as JSON. A string holding JSON null leaves it nil.
	JSON any `json:"json,omitempty"`

	// Text holds the original string for string payloads
	Text string `json:"text,omitempty"`
}

// HasJSON reports whether a structured value is available for rendering
func (c Classification) HasJSON() bool {
	return c.JSON != nil
}

// CopyText is the clipboard form of the payload: pretty JSON when
// structured, the original text otherwise, or one image url per line.
func (c Classification) CopyText() string {
	if c.HasJSON() {
		if pretty, err := ExportJSON(c.JSON); err == nil {
			return strings.TrimRight(string(pretty), "\n")
		}
	}
	if c.Text != "" {
		return c.Text
	}
	return strings.Join(c.ImageURLs, "\n")
}

// Classify inspects a stage output. JSON parse failures are expected and only
// select a different branch.
func Classify(payload any) Classification {
	if payload == nil {
		return Classification{Kind: KindEmpty}
	}

	text, isString := payload.(string)
	structured := payload
	parsed := false
	if isString {
		structured, parsed = parseJSON(text)
	}

	var c Classification
	if isString {
		c.Text = text
	}
	if structured != nil {
		c.JSON = structured
	}

	if urls := ExtractImageURLs(structured); len(urls) > 0 {
		c.Kind = KindImageCollection
		c.ImageURLs = urls
		return c
	}

	switch {
	case !isString, parsed:
		c.Kind = KindStructuredJSON
	case IsMarkdown(text):
		c.Kind = KindMarkdown
	default:
		c.Kind = KindPlainText
	}
	return c
}

// parseJSON decodes text as any JSON value, scalars included
func parseJSON(text string) (any, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, false
	}
	return v, true
}

// parseStructured returns the decoded object or array, or nil when text is
// not JSON or decodes to a scalar
func parseStructured(text string) any {
	v, ok := parseJSON(text)
	if !ok {
		return nil
	}
	switch v.(type) {
	case map[string]any, []any:
		return v
	}
	return nil
}

// IsMarkdown reports whether text contains heading, bold or link markup
func IsMarkdown(text string) bool {
	return headingPattern.MatchString(text) || boldPattern.MatchString(text) || linkPattern.MatchString(text)
}

// ExtractImageURLs flattens image references found under the known field
// names of an object payload. Non-string and empty entries are dropped.
func ExtractImageURLs(payload any) []string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}

	var urls []string
	for _, field := range imageFields {
		urls = append(urls, collectURLs(obj[field])...)
	}
	return urls
}

func collectURLs(v any) []string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return []string{t}
		}
	case []any:
		var urls []string
		for _, item := range t {
			switch it := item.(type) {
			case string:
				if it != "" {
					urls = append(urls, it)
				}
			case map[string]any:
				if u := urlFromObject(it); u != "" {
					urls = append(urls, u)
				}
			}
		}
		return urls
	case map[string]any:
		if u := urlFromObject(t); u != "" {
			return []string{u}
		}
	}
	return nil
}

func urlFromObject(obj map[string]any) string {
	for _, field := range urlFields {
		if s, ok := obj[field].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
