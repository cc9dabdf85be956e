package ledger

import (
	"math"
	"os"
	"path/filepath"
	"time"
)

type Report struct {
	Version         string
	CreatedAt       time.Time
	LastUpdated     time.Time
	TotalFiles      int
	StatusBreakdown map[Status]int
	TotalSizeGB     float64
	TotalHours      float64
	Statistics      Statistics
}

func (l *Ledger) Report() Report {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc := l.state.doc
	breakdown := map[Status]int{StatusPending: 0, StatusCompleted: 0, StatusFailed: 0}
	for _, e := range doc.Files {
		breakdown[e.Status]++
	}

	return Report{
		Version:         doc.Version,
		CreatedAt:       doc.CreatedAt,
		LastUpdated:     doc.LastUpdated,
		TotalFiles:      len(doc.Files),
		StatusBreakdown: breakdown,
		TotalSizeGB:     round2(float64(doc.Statistics.TotalSizeBytes) / (1 << 30)),
		TotalHours:      round2(doc.Statistics.TotalDurationSeconds / 3600),
		Statistics:      doc.Statistics,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// PathForVault returns where a vault keeps its ledger: inside .obsidian
// when the vault has one, otherwise at the vault root.
func PathForVault(vault string) string {
	obsidian := filepath.Join(vault, ".obsidian")
	if isDir(obsidian) {
		return filepath.Join(obsidian, ".transcription_db.json")
	}
	return filepath.Join(vault, ".transcription_db.json")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
