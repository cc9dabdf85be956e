// Package note renders transcripts and summaries as Markdown notes with
// YAML front matter, cross-linked in the wiki-link style of Obsidian vaults.
package note

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/fmueller/voxnote/internal/audio"
)

const (
	TranscriptionSuffix = "_transcription"
	SummarySuffix       = "_summary"

	createdLayout = "2006-01-02 15:04:05"
)

var (
	DefaultTranscriptionTags = []string{"audio-transcription", "auto-generated"}
	DefaultSummaryTags       = []string{"audio-summary", "auto-generated"}
)

// Meta describes the recording a note belongs to.
type Meta struct {
	AudioPath string
	Info      audio.Info
	Created   time.Time
}

type Renderer struct {
	// Vault is the root wiki-links and the source field are made relative
	// to. Empty means links use the path as given.
	Vault             string
	TranscriptionTags []string
	SummaryTags       []string
	// Generator names the backend in the note footer.
	Generator string
}

type frontMatter struct {
	Tags                []string `yaml:"tags"`
	Created             string   `yaml:"created"`
	Source              string   `yaml:"source"`
	Duration            string   `yaml:"duration"`
	FileSize            string   `yaml:"file_size,omitempty"`
	TranscriptionLength int      `yaml:"transcription_length,omitempty"`
}

func (r Renderer) Transcription(m Meta, text string) ([]byte, error) {
	source := r.relative(m.AudioPath)
	duration := FormatDuration(m.Info.Duration)
	size := FormatSize(m.Info.Size)

	var b bytes.Buffer
	if err := writeFrontMatter(&b, frontMatter{
		Tags:     tagsOr(r.TranscriptionTags, DefaultTranscriptionTags),
		Created:  m.Created.Format(createdLayout),
		Source:   source,
		Duration: duration,
		FileSize: size,
	}); err != nil {
		return nil, err
	}

	fmt.Fprintf(&b, "# %s - Transcription\n\n", stem(m.AudioPath))
	b.WriteString("## Metadata\n")
	fmt.Fprintf(&b, "- **Source file**: [[%s]]\n", source)
	fmt.Fprintf(&b, "- **Duration**: %s\n", duration)
	fmt.Fprintf(&b, "- **File size**: %s\n", size)
	fmt.Fprintf(&b, "- **Transcribed at**: %s\n\n", m.Created.Format(createdLayout))
	b.WriteString("## Transcript\n\n")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n\n")
	r.footer(&b)
	return b.Bytes(), nil
}

func (r Renderer) Summary(m Meta, transcript, summary string) ([]byte, error) {
	source := r.relative(m.AudioPath)
	duration := FormatDuration(m.Info.Duration)
	chars := len([]rune(transcript))
	link := stem(m.AudioPath) + TranscriptionSuffix

	var b bytes.Buffer
	if err := writeFrontMatter(&b, frontMatter{
		Tags:                tagsOr(r.SummaryTags, DefaultSummaryTags),
		Created:             m.Created.Format(createdLayout),
		Source:              source,
		Duration:            duration,
		TranscriptionLength: chars,
	}); err != nil {
		return nil, err
	}

	fmt.Fprintf(&b, "# %s - Summary\n\n", stem(m.AudioPath))
	b.WriteString("## Metadata\n")
	fmt.Fprintf(&b, "- **Source file**: [[%s]]\n", source)
	fmt.Fprintf(&b, "- **Transcript**: [[%s]]\n", link)
	fmt.Fprintf(&b, "- **Duration**: %s\n", duration)
	fmt.Fprintf(&b, "- **Characters**: %s\n", groupThousands(chars))
	fmt.Fprintf(&b, "- **Summarized at**: %s\n\n", m.Created.Format(createdLayout))
	b.WriteString("## Summary\n\n")
	b.WriteString(strings.TrimSpace(summary))
	b.WriteString("\n\n---\n\n")
	b.WriteString("## Related notes\n")
	fmt.Fprintf(&b, "- [[%s|Full transcript]]\n\n", link)
	r.footer(&b)
	return b.Bytes(), nil
}

func (r Renderer) footer(b *bytes.Buffer) {
	b.WriteString("---\n")
	if r.Generator != "" {
		fmt.Fprintf(b, "*This note was generated automatically with %s.*\n", r.Generator)
		return
	}
	b.WriteString("*This note was generated automatically.*\n")
}

func (r Renderer) relative(path string) string {
	if r.Vault == "" {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(r.Vault, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func writeFrontMatter(b *bytes.Buffer, fm frontMatter) error {
	data, err := yaml.Marshal(fm)
	if err != nil {
		return fmt.Errorf("encode front matter: %w", err)
	}
	b.WriteString("---\n")
	b.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString("---\n\n")
	return nil
}

// ParseFrontMatter splits a rendered note into its decoded front matter and
// body.
func ParseFrontMatter(note []byte, v any) ([]byte, error) {
	rest, ok := bytes.CutPrefix(note, []byte("---\n"))
	if !ok {
		return nil, fmt.Errorf("note has no front matter")
	}
	head, body, ok := bytes.Cut(rest, []byte("\n---\n"))
	if !ok {
		return nil, fmt.Errorf("unterminated front matter")
	}
	if err := yaml.Unmarshal(head, v); err != nil {
		return nil, fmt.Errorf("decode front matter: %w", err)
	}
	return bytes.TrimLeft(body, "\n"), nil
}

// TranscriptionPath is where the transcript note of audioPath is written.
func TranscriptionPath(audioPath string) string {
	return filepath.Join(filepath.Dir(audioPath), stem(audioPath)+TranscriptionSuffix+".md")
}

func SummaryPath(audioPath string) string {
	return filepath.Join(filepath.Dir(audioPath), stem(audioPath)+SummarySuffix+".md")
}

// IsGenerated reports whether path looks like a note written by this
// package.
func IsGenerated(path string) bool {
	s := stem(path)
	return filepath.Ext(path) == ".md" &&
		(strings.HasSuffix(s, TranscriptionSuffix) || strings.HasSuffix(s, SummarySuffix))
}

// FormatDuration renders d as "1h 23m 45s", dropping leading zero units.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "unknown"
	}
	total := int(d.Seconds())
	h, m, s := total/3600, total%3600/60, total%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func FormatSize(n int64) string {
	return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
}

func groupThousands(n int) string {
	s := fmt.Sprint(n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func tagsOr(tags, fallback []string) []string {
	if len(tags) > 0 {
		return tags
	}
	return fallback
}
