// Package audit keeps an append-only text trail of job stage transitions
// under .adforge/logs. The trail is best-effort: write failures never block
// or fail the pipeline, they just leave a gap in the file.
package audit

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adforge/adforge/internal/pipeline"
)

// Trail persists one line per observed job transition.
type Trail struct {
	path string
	mu   sync.Mutex
}

// New creates a trail that appends to the provided path.
func New(path string) (*Trail, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create trail dir: %w", err)
	}
	return &Trail{path: path}, nil
}

// Path returns the file backing this trail.
func (t *Trail) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// Record appends one transition line for the given snapshot.
func (t *Trail) Record(snap pipeline.ProgressSnapshot) {
	if t == nil {
		return
	}
	detail := strings.TrimSpace(snap.Message)
	if snap.Error != "" {
		detail = strings.TrimSpace(snap.Error)
	}
	line := fmt.Sprintf("%s %s %-17s %3d%% %s\n",
		time.Now().UTC().Format(time.RFC3339),
		snap.JobID,
		string(snap.Stage),
		snap.Percent,
		detail,
	)
	t.mu.Lock()
	defer t.mu.Unlock()
	file, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line)
}

// Tail returns up to maxLines of the most recent entries along with the
// total number of lines in the trail.
func (t *Trail) Tail(maxLines int) ([]string, int) {
	return t.tail(maxLines, func(string) bool { return true })
}

// TailJob returns up to maxLines of the most recent entries for one job,
// along with that job's total line count.
func (t *Trail) TailJob(jobID string, maxLines int) ([]string, int) {
	marker := " " + jobID + " "
	return t.tail(maxLines, func(line string) bool {
		return strings.Contains(line, marker)
	})
}

func (t *Trail) tail(maxLines int, keep func(string) bool) ([]string, int) {
	if t == nil || maxLines <= 0 {
		return nil, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	file, err := os.Open(t.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); keep(line) {
			lines = append(lines, line)
		}
	}
	total := len(lines)
	if total == 0 {
		return nil, 0
	}
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}
