package bpe_prep

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/wbrown/bpe_prep/resources"
)

// StatusTracker records which pipeline stages have completed. Every change
// is persisted before the call returns.
type StatusTracker struct {
	path   string
	stages map[string]bool
}

type statusFile struct {
	Stages map[string]bool `json:"stages"`
}

// LoadStatus reads the status at path. A missing file is an empty status.
func LoadStatus(path string) (*StatusTracker, error) {
	tracker := &StatusTracker{path: path, stages: make(map[string]bool)}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return tracker, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}
	var status statusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedArtifact, path, err)
	}
	for stage, done := range status.Stages {
		if done {
			tracker.stages[stage] = true
		}
	}
	return tracker, nil
}

func (tracker *StatusTracker) Path() string {
	return tracker.path
}

func (tracker *StatusTracker) IsComplete(stage string) bool {
	return tracker.stages[stage]
}

// Completed lists the completed stages.
func (tracker *StatusTracker) Completed() []string {
	stages := make([]string, 0, len(tracker.stages))
	for stage := range tracker.stages {
		stages = append(stages, stage)
	}
	return stages
}

// MarkComplete records stage as done and persists the status.
func (tracker *StatusTracker) MarkComplete(stage string) error {
	tracker.stages[stage] = true
	return tracker.save()
}

// Reset forgets every stage, so the next run starts over.
func (tracker *StatusTracker) Reset() error {
	clear(tracker.stages)
	return tracker.save()
}

func (tracker *StatusTracker) save() error {
	data, err := json.Marshal(statusFile{Stages: tracker.stages})
	if err != nil {
		return err
	}
	if err := resources.WriteFileAtomic(tracker.path, data); err != nil {
		return fmt.Errorf("persisting status: %w", err)
	}
	return nil
}
