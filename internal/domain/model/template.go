package model

import (
	"regexp"
	"strings"
	"time"

	"telegram-ai-stars/internal/domain"
)

type TemplateCategory string

const (
	TemplateText  TemplateCategory = "text"
	TemplateImage TemplateCategory = "image"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Template is a prompt pattern with {named} placeholders.
type Template struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Pattern    string           `json:"pattern"`
	Category   TemplateCategory `json:"category"`
	UsageCount int              `json:"usage_count"`
	CreatedAt  time.Time        `json:"created_at"`
}

// NewTemplate validates id, category and pattern.
func NewTemplate(id, title, pattern string, category TemplateCategory, now time.Time) (*Template, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.TrimSpace(pattern) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if category != TemplateText && category != TemplateImage {
		return nil, domain.ErrInvalidArgument
	}
	if title == "" {
		title = id
	}
	return &Template{ID: id, Title: title, Pattern: pattern, Category: category, CreatedAt: now}, nil
}

// Placeholders lists distinct field names in order of first appearance.
func (t Template) Placeholders() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(t.Pattern, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Fill substitutes every placeholder. A missing or blank value fails with
// MissingPlaceholderError naming the first such field.
func (t Template) Fill(values map[string]string) (string, error) {
	for _, name := range t.Placeholders() {
		if strings.TrimSpace(values[name]) == "" {
			return "", &domain.MissingPlaceholderError{Field: name}
		}
	}
	return placeholderRe.ReplaceAllStringFunc(t.Pattern, func(m string) string {
		return strings.TrimSpace(values[m[1:len(m)-1]])
	}), nil
}

// Kind maps the category to the generation it feeds.
func (t Template) Kind() Kind {
	if t.Category == TemplateImage {
		return KindImage
	}
	return KindText
}

// ParseTemplateValues reads "name=value" lines or, for single-field
// templates, takes the whole text as the value.
func ParseTemplateValues(t Template, text string) map[string]string {
	fields := t.Placeholders()
	out := map[string]string{}
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if len(fields) == 1 && len(out) == 0 {
		out[fields[0]] = strings.TrimSpace(text)
	}
	return out
}

func DefaultTemplates(now time.Time) []*Template {
	return []*Template{
		{ID: "portrait", Title: "Portrait", Category: TemplateImage, CreatedAt: now,
			Pattern: "portrait of {subject}, {style} style, soft studio lighting"},
		{ID: "landscape", Title: "Landscape", Category: TemplateImage, CreatedAt: now,
			Pattern: "breathtaking landscape of {place} at {time_of_day}, wide angle"},
		{ID: "post", Title: "Social post", Category: TemplateText, CreatedAt: now,
			Pattern: "Write a short social media post about {topic} for {audience}."},
		{ID: "summary", Title: "Summary", Category: TemplateText, CreatedAt: now,
			Pattern: "Summarize the following text in three sentences: {text}"},
	}
}
