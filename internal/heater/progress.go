package heater

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var checkpointBucket = []byte("checkpoints")

// Checkpoints records finished heating steps in a local bbolt file so a
// restarted round skips work it already completed. Keys are
// account/round/step; a round is the UTC date the loop started.
type Checkpoints struct {
	db *bolt.DB
}

// OpenCheckpoints opens (or creates) the checkpoint file.
func OpenCheckpoints(path string) (*Checkpoints, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init checkpoint bucket: %w", err)
	}
	return &Checkpoints{db: db}, nil
}

// Close releases the file lock.
func (c *Checkpoints) Close() error { return c.db.Close() }

func checkpointKey(account int64, round, step string) []byte {
	return []byte(fmt.Sprintf("%d/%s/%s", account, round, step))
}

// IsDone reports whether the step already completed in the round. A nil
// receiver (checkpoints disabled) always reports false.
func (c *Checkpoints) IsDone(account int64, round, step string) bool {
	if c == nil {
		return false
	}
	var done bool
	_ = c.db.View(func(tx *bolt.Tx) error {
		done = tx.Bucket(checkpointBucket).Get(checkpointKey(account, round, step)) != nil
		return nil
	})
	return done
}

// MarkDone records the completion of a step.
func (c *Checkpoints) MarkDone(account int64, round, step string) error {
	if c == nil {
		return nil
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		stamp := []byte(time.Now().UTC().Format(time.RFC3339))
		return tx.Bucket(checkpointBucket).Put(checkpointKey(account, round, step), stamp)
	})
}
