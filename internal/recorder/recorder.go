// Package recorder persists the conversation transcript of each fill
// session as a JSONL file, one entry per message or applied answer, so a
// traversal can be replayed after the fact.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// MaxTranscripts bounds how many transcript files are kept on disk.
	MaxTranscripts = 20
	// DefaultDir is used when no directory is configured.
	DefaultDir = "data/transcripts"
)

// Entry is one record in a session transcript.
type Entry struct {
	Timestamp time.Time   `json:"ts"`
	Kind      string      `json:"kind"`
	Text      string      `json:"text,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Recorder writes per-session transcripts with bounded retention.
// Sessions record concurrently; each holds its own file.
type Recorder struct {
	mu      sync.Mutex
	baseDir string
	open    map[string]*transcript
}

type transcript struct {
	file    *os.File
	encoder *json.Encoder
}

// NewRecorder creates the transcript directory if needed.
func NewRecorder(baseDir string) (*Recorder, error) {
	if baseDir == "" {
		baseDir = DefaultDir
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{
		baseDir: baseDir,
		open:    make(map[string]*transcript),
	}, nil
}

// StartSession opens a transcript for the session, rotating old files so
// at most MaxTranscripts remain.
func (r *Recorder) StartSession(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.open[sessionID]; ok {
		_ = t.file.Close()
		delete(r.open, sessionID)
	}

	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate transcripts: %w", err)
	}

	filename := fmt.Sprintf("session_%s_%d.jsonl", sessionID, time.Now().UnixMilli())
	f, err := os.Create(filepath.Join(r.baseDir, filename))
	if err != nil {
		return err
	}

	r.open[sessionID] = &transcript{file: f, encoder: json.NewEncoder(f)}
	return nil
}

// Record appends one entry to the session's transcript. Recording for an
// unknown session is a no-op so callers never have to guard it.
func (r *Recorder) Record(sessionID, kind, text string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.open[sessionID]
	if !ok {
		return
	}
	_ = t.encoder.Encode(Entry{
		Timestamp: time.Now(),
		Kind:      kind,
		Text:      text,
		Data:      data,
	})
}

// EndSession closes the session's transcript file.
func (r *Recorder) EndSession(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.open[sessionID]
	if !ok {
		return nil
	}
	delete(r.open, sessionID)
	return t.file.Close()
}

// Close finishes all open transcripts.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for id, t := range r.open {
		if cerr := t.file.Close(); cerr != nil {
			err = cerr
		}
		delete(r.open, id)
	}
	return err
}

// List returns the transcript file names on disk, newest first.
func (r *Recorder) List() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	files, err := r.transcriptFiles()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names, nil
}

// ReadTranscript decodes the newest transcript recorded for the session.
// Open sessions read fine; the encoder writes complete lines.
func (r *Recorder) ReadTranscript(sessionID string) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	files, err := r.transcriptFiles()
	if err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf("session_%s_", sessionID)
	for _, f := range files {
		if !strings.HasPrefix(f.Name, prefix) {
			continue
		}
		raw, err := os.Open(filepath.Join(r.baseDir, f.Name))
		if err != nil {
			return nil, err
		}
		defer raw.Close()

		var entries []Entry
		dec := json.NewDecoder(raw)
		for {
			var e Entry
			if err := dec.Decode(&e); err != nil {
				break
			}
			entries = append(entries, e)
		}
		return entries, nil
	}
	return nil, fmt.Errorf("no transcript for session %s", sessionID)
}

type transcriptFile struct {
	Name string
	Time time.Time
}

// transcriptFiles lists the .jsonl files in the base directory, newest first.
// Callers hold the mutex.
func (r *Recorder) transcriptFiles() ([]transcriptFile, error) {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		return nil, err
	}

	var files []transcriptFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, transcriptFile{e.Name(), info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Time.After(files[j].Time)
	})
	return files, nil
}

// rotate keeps only the newest MaxTranscripts-1 files to make room for one.
func (r *Recorder) rotate() error {
	files, err := r.transcriptFiles()
	if err != nil {
		return err
	}

	if len(files) >= MaxTranscripts {
		keep := MaxTranscripts - 1
		for i := keep; i < len(files); i++ {
			_ = os.Remove(filepath.Join(r.baseDir, files[i].Name))
		}
	}
	return nil
}
