package resources

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// WriteCounter counts the number of bytes written to it, and every 10
// seconds it logs the number of bytes processed so far.
type WriteCounter struct {
	Total    uint64
	Last     time.Time
	Reported bool
	Path     string
	Size     uint64
	Logger   *slog.Logger
}

func (wc *WriteCounter) Write(p []byte) (int, error) {
	n := len(p)
	wc.Total += uint64(n)
	if time.Since(wc.Last).Seconds() > 10 {
		wc.Reported = true
		wc.Last = time.Now()
		logger := wc.Logger
		if logger == nil {
			logger = slog.Default()
		}
		if wc.Size > 0 {
			logger.Info(fmt.Sprintf("Processing %s... %s / %s completed.",
				wc.Path, humanize.Bytes(wc.Total), humanize.Bytes(wc.Size)))
		} else {
			logger.Info(fmt.Sprintf("Processing %s... %s completed.",
				wc.Path, humanize.Bytes(wc.Total)))
		}
	}
	return n, nil
}

// NewWriteCounter returns a counter for path primed with its size on disk,
// if it can be determined.
func NewWriteCounter(path string, logger *slog.Logger) *WriteCounter {
	wc := &WriteCounter{Path: path, Last: time.Now(), Logger: logger}
	if stat, err := os.Stat(path); err == nil {
		wc.Size = uint64(stat.Size())
	}
	return wc
}

// AtomicFile is written to a temporary sibling and renamed into place on
// Commit, so readers never observe a partially written artifact.
type AtomicFile struct {
	*bufio.Writer
	path string
	tmp  *os.File
	done bool
}

// CreateAtomic opens a temporary file next to path.
func CreateAtomic(path string) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	return &AtomicFile{
		Writer: bufio.NewWriterSize(tmp, 1024*1024),
		path:   path,
		tmp:    tmp,
	}, nil
}

// Commit flushes, syncs and renames the temporary file over path.
func (af *AtomicFile) Commit() error {
	if af.done {
		return fmt.Errorf("%s: already committed or aborted", af.path)
	}
	af.done = true
	if err := af.Flush(); err != nil {
		af.discard()
		return fmt.Errorf("flushing %s: %w", af.path, err)
	}
	if err := af.tmp.Sync(); err != nil {
		af.discard()
		return fmt.Errorf("syncing %s: %w", af.path, err)
	}
	if err := af.tmp.Close(); err != nil {
		os.Remove(af.tmp.Name())
		return fmt.Errorf("closing %s: %w", af.path, err)
	}
	if err := os.Rename(af.tmp.Name(), af.path); err != nil {
		os.Remove(af.tmp.Name())
		return fmt.Errorf("renaming %s: %w", af.path, err)
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (af *AtomicFile) Abort() {
	if af.done {
		return
	}
	af.done = true
	af.discard()
}

func (af *AtomicFile) discard() {
	af.tmp.Close()
	os.Remove(af.tmp.Name())
}

// WriteFileAtomic writes data to path through an AtomicFile.
func WriteFileAtomic(path string, data []byte) error {
	af, err := CreateAtomic(path)
	if err != nil {
		return err
	}
	if _, err := af.Write(data); err != nil {
		af.Abort()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return af.Commit()
}
