package digest

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/kiranshivaraju/errdigest/pkg/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Rendered is a digest in both delivery formats.
type Rendered struct {
	Markdown string
	HTML     string
	Text     string
}

const reportTemplate = `# Daily exception report for "{{ inline .ClientID }}"

Report date: {{ day .ReportDate }}

| Versions | Exceptions | Occurrences |
| --- | --- | --- |
| {{ .VersionCount }} | {{ .ExceptionCount }} | {{ .OccurrenceCount }} |
{{ range .Versions }}
## Version {{ inline .Version }} ({{ .Occurrences }} occurrences)
{{ range .Records }}
### {{ inline .ErrorType }} x{{ .Count }}

Runtime {{ inline .Runtime }}, user {{ inline .UserName }} ({{ inline .UserID }}), first seen {{ stamp .ActualDateTime }}

{{ fenced .ErrorMessage }}

{{ fenced .Stacktrace }}
{{ end }}{{ end }}`

var (
	tmpl = template.Must(template.New("report").Funcs(template.FuncMap{
		"inline": escapeInline,
		"fenced": fencedBlock,
		"day":    func(t time.Time) string { return t.Format(models.ReportDateLayout) },
		"stamp":  func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05 MST") },
	}).Parse(reportTemplate))

	markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

	tagPattern = regexp.MustCompile(`<[^>]+>`)
)

// Render produces the Markdown source, its HTML conversion and a plain text
// fallback. Rendering the same digest twice yields identical output.
func Render(d *Digest) (Rendered, error) {
	var src bytes.Buffer
	if err := tmpl.Execute(&src, d); err != nil {
		return Rendered{}, fmt.Errorf("execute report template: %w", err)
	}

	var out bytes.Buffer
	if err := markdown.Convert(src.Bytes(), &out); err != nil {
		return Rendered{}, fmt.Errorf("convert report markdown: %w", err)
	}

	return Rendered{
		Markdown: src.String(),
		HTML:     out.String(),
		Text:     StripTags(out.String()),
	}, nil
}

// StripTags removes markup from rendered HTML and unescapes entities.
func StripTags(s string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(s, ""))
}

// escapeInline makes user supplied text safe inside a Markdown line.
func escapeInline(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 0x80 && isPunct(byte(r)):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isPunct(c byte) bool {
	return strings.IndexByte("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", c) >= 0
}

// fencedBlock wraps s in a code fence longer than any backtick run inside it.
func fencedBlock(s string) string {
	longest, run := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	fence := strings.Repeat("`", max(3, longest+1))
	return fence + "\n" + strings.TrimRight(s, "\n") + "\n" + fence
}
