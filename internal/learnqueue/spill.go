package learnqueue

import (
	"encoding/gob"
	"errors"
	"os"
)

func init() {
	// Metadata values come from JSON-shaped callers (map[string]any); gob
	// needs every concrete type that can appear behind an interface{}
	// registered up front.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register("")
	gob.Register(float64(0))
	gob.Register(false)
}

// saveSpill gob-encodes tasks to path, overwriting any existing file. It is
// the on-disk counterpart to the teacher's DB-backed recovery: tasks here
// may never have reached the store, so they cannot be recovered by
// re-querying it the way RecoverPendingEnrichments does.
func saveSpill(path string, tasks []*Task) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(tasks)
}

// loadSpill reads and removes path's spill file, returning its tasks. A
// missing file is not an error: it means the previous shutdown was clean.
func loadSpill(path string) ([]*Task, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var tasks []*Task
	if err := gob.NewDecoder(f).Decode(&tasks); err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil {
		return nil, err
	}
	return tasks, nil
}
