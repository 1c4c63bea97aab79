package chain

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/stampchain-io/vault-plugin-stamps/txbuilder"
)

var txBucket = []byte("transactions")

// BoltCache is a TxCache persisted in a bbolt file, so repeated CLI runs
// do not refetch the same previous transactions.
type BoltCache struct {
	db *bolt.DB
}

// OpenBoltCache opens or creates the cache file at path.
func OpenBoltCache(path string) (*BoltCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("chain: open cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(txBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("chain: init cache %s: %w", path, err)
	}
	return &BoltCache{db: db}, nil
}

// Get returns the stored transaction. Unreadable entries count as misses.
func (c *BoltCache) Get(txid string) (*txbuilder.PrevTx, bool) {
	var prev *txbuilder.PrevTx
	_ = c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(txBucket).Get([]byte(txid))
		if data == nil {
			return nil
		}
		var p txbuilder.PrevTx
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		prev = &p
		return nil
	})
	return prev, prev != nil
}

// Put stores tx.
func (c *BoltCache) Put(prev *txbuilder.PrevTx) error {
	data, err := json.Marshal(prev)
	if err != nil {
		return fmt.Errorf("chain: encode %s: %w", prev.TxID, err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(txBucket).Put([]byte(prev.TxID), data)
	})
}

// Close releases the cache file.
func (c *BoltCache) Close() error {
	return c.db.Close()
}
