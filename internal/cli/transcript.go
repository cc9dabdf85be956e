package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// blankAudioToken is what speech models tend to return for silence.
const blankAudioToken = "[BLANK_AUDIO]"

func isBlankTranscript(transcript string) bool {
	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		return true
	}

	return strings.EqualFold(trimmed, blankAudioToken)
}

func noSpeechHint(audioPath string) string {
	return fmt.Sprintf("No speech detected in %s. Check that the recording is not silent.", filepath.Base(audioPath))
}

func writeTranscript(w io.Writer, transcript, summary string) {
	fmt.Fprintln(w, strings.TrimSpace(transcript))
	if strings.TrimSpace(summary) == "" {
		return
	}
	fmt.Fprintf(w, "\n## Summary\n\n%s\n", strings.TrimSpace(summary))
}
