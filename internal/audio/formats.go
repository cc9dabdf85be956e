package audio

import (
	"path/filepath"
	"slices"
	"strings"
)

var extensions = []string{".mp3", ".m4a", ".wav", ".aac", ".flac", ".ogg", ".opus", ".webm", ".wma"}

var mimeTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".webm": "audio/webm",
	".wma":  "audio/x-ms-wma",
}

// Extensions lists the file extensions treated as audio.
func Extensions() []string {
	return slices.Clone(extensions)
}

func IsAudioFile(path string) bool {
	return slices.Contains(extensions, strings.ToLower(filepath.Ext(path)))
}

func IsWAV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}

// MIMEType returns the content type sent to backends for a file.
func MIMEType(path string) string {
	if m, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return m
	}
	return "application/octet-stream"
}
