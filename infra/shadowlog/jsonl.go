// Package shadowlog keeps an append-only JSONL audit trail of shadow
// decisions with size based rotation.
package shadowlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/consolidation/core/model"
)

// Config sets the file location and rotation policy.
type Config struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 100
	}
}

// Entry is one line of the audit file.
type Entry struct {
	LoggedAt time.Time            `json:"logged_at"`
	Decision model.DecisionRecord `json:"decision"`
}

// RotatingJSONL appends shadow decisions to a rotating JSONL file.
type RotatingJSONL struct {
	mu   sync.Mutex
	out  *lumberjack.Logger
	path string
	now  func() time.Time
}

// Open prepares the file, creating its directory if needed.
func Open(cfg Config) (*RotatingJSONL, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("shadow audit path is required")
	}
	cfg.SetDefaults()
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &RotatingJSONL{
		out: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
		path: cfg.Path,
		now:  time.Now,
	}, nil
}

// Append writes rec as one JSON line.
func (s *RotatingJSONL) Append(rec model.DecisionRecord) error {
	line, err := json.Marshal(Entry{LoggedAt: s.now().UTC(), Decision: rec})
	if err != nil {
		return err
	}
	line = append(line, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.out.Write(line)
	return err
}

// Query reads the current and rotated files and returns entries for
// parcelID (all parcels when empty) logged at or after since, oldest first.
// Compressed backups are skipped.
func (s *RotatingJSONL) Query(parcelID string, since time.Time) ([]Entry, error) {
	ext := filepath.Ext(s.path)
	base := s.path[:len(s.path)-len(ext)]
	files, err := filepath.Glob(base + "*" + ext)
	if err != nil {
		return nil, err
	}
	var res []Entry
	for _, f := range files {
		entries, err := readFile(f)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if parcelID != "" && e.Decision.ParcelID != parcelID {
				continue
			}
			if !since.IsZero() && e.LoggedAt.Before(since) {
				continue
			}
			res = append(res, e)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].LoggedAt.Before(res[j].LoggedAt) })
	return res, nil
}

func readFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = file.Close() }()
	var out []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, scanner.Err()
}

// Close closes the underlying writer.
func (s *RotatingJSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}
