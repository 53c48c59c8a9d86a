package lib

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/types"
	bolt "go.etcd.io/bbolt"
)

var checkpointBucket = []byte("checkpoints")

// BoltCheckpoint keeps checkpoints of several devices in one bolt database,
// keyed by device stash name.
type BoltCheckpoint struct {
	db  *bolt.DB
	key []byte
}

// OpenBoltCheckpoint opens (creating if needed) the database at path and
// scopes the checkpoint to device.
func OpenBoltCheckpoint(path, device string) (*BoltCheckpoint, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltCheckpoint{db: db, key: []byte(GetStashName(device))}, nil
}

// Load returns the saved checkpoint. ok is false when none exists.
func (c *BoltCheckpoint) Load() (index int, cmdline string, ok bool, err error) {
	var cp types.Checkpoint
	err = c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(checkpointBucket).Get(c.key)
		if raw == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(raw, &cp)
	})
	if err != nil {
		return 0, "", false, fmt.Errorf("corrupt checkpoint record: %w", err)
	}
	return cp.Index, cp.Cmdline, ok, nil
}

// Save records index and cmdline. Bolt fsyncs on commit.
func (c *BoltCheckpoint) Save(index int, cmdline string) error {
	raw, err := json.Marshal(types.Checkpoint{Index: index, Cmdline: cmdline})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(checkpointBucket).Put(c.key, raw)
	})
}

// Clear deletes the device's checkpoint.
func (c *BoltCheckpoint) Clear() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(checkpointBucket).Delete(c.key)
	})
}

// Close releases the database.
func (c *BoltCheckpoint) Close() error {
	return c.db.Close()
}
