package backend

import (
	"fmt"
	"strings"
)

// MaxSummaryInput caps how many characters of a transcript go into the
// summary prompt.
const MaxSummaryInput = 15000

const omissionNote = "\n\n[... transcript truncated for summarization ...]"

// TranscriptionPrompt is the fixed instruction sent with every audio piece.
func TranscriptionPrompt(a Audio) string {
	var b strings.Builder
	if a.Segmented() {
		fmt.Fprintf(&b, "Transcribe this audio file. It is part %d of %d, covering %.1fs to %.1fs of the original recording. ",
			a.Index+1, a.Total, a.Start.Seconds(), a.End.Seconds())
	} else {
		b.WriteString("Transcribe this audio file. ")
	}
	b.WriteString("Write the transcript in the language that is spoken. ")
	b.WriteString("Drop filler words such as \"uh\" and \"um\" and make the text easy to read while keeping its content. ")
	b.WriteString("Return only the transcript.")
	return b.String()
}

// SummaryPrompt asks for a structured Markdown summary of a transcript.
func SummaryPrompt(req SummaryRequest) string {
	var b strings.Builder
	b.WriteString("Read the following audio transcript and write a structured summary.\n\n")
	b.WriteString("Summary format:\n")
	b.WriteString("1. **Main topics**: bullet points\n")
	b.WriteString("2. **Key points**: the most important information as bullet points\n")
	b.WriteString("3. **Conclusion**: a short paragraph that captures the essentials\n")
	b.WriteString("4. **Keywords**: important terms and concepts, each with a short explanation\n\n")
	if ctx := strings.TrimSpace(req.Context); ctx != "" {
		fmt.Fprintf(&b, "Context: %s\n\n", ctx)
	}
	b.WriteString("Transcript:\n---\n")
	b.WriteString(TruncateTranscript(req.Transcript, MaxSummaryInput))
	b.WriteString("\n---\n\n")
	b.WriteString("Write the summary in clear Markdown, in the language of the transcript.")
	return b.String()
}

// TruncateTranscript keeps the first limit characters of text and appends an
// omission note when anything was cut.
func TruncateTranscript(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + omissionNote
}
