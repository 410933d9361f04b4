// Package store persists the durable record of known sessions.
//
// The original design kept the whole collection in one JSON document and
// rewrote it on every mutation, which loses updates when two
// read-modify-write cycles interleave. Here every mutation runs inside a
// bbolt write transaction, so mutations are serialized by the storage engine
// and the lost-update race is gone while the load/save contract stays the
// same for callers.
package store

import (
	"context"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/lk2023060901/sessiongate-go/internal/json"
	"github.com/lk2023060901/sessiongate-go/pkg/log"
	"github.com/lk2023060901/sessiongate-go/pkg/metrics"
	"github.com/lk2023060901/sessiongate-go/pkg/util/serr"
)

// SessionRecord is the durable record of one known session.
// At most one record exists per session id.
type SessionRecord struct {
	Session string `json:"session"`
	Ready   bool   `json:"ready"`
}

// persistedRecord is the on-disk shape. Seq preserves insertion order so
// Load returns records in the order they were first created.
type persistedRecord struct {
	SessionRecord
	Seq uint64 `json:"seq"`
}

var bucketSessions = []byte("sessions")

// BoltStore is a bbolt-backed session store.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// Open opens (or creates) the store at path. A missing file is materialized
// as an empty store; a file that is not a valid database fails with
// ErrStoreCorrupt.
func Open(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, serr.WrapErrStoreCorrupt(path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, serr.WrapErrStoreIoFailed(path, err)
	}
	return &BoltStore{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Path returns the file backing this store.
func (s *BoltStore) Path() string {
	return s.path
}

// Load returns every record in insertion order. Undecodable content fails
// with ErrStoreCorrupt; an empty store yields an empty slice.
func (s *BoltStore) Load(ctx context.Context) ([]SessionRecord, error) {
	defer s.observe("load")()

	var persisted []persistedRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(k, v []byte) error {
			var rec persistedRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return serr.WrapErrStoreCorrupt(s.path, err)
			}
			persisted = append(persisted, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(persisted, func(i, j int) bool { return persisted[i].Seq < persisted[j].Seq })

	records := make([]SessionRecord, 0, len(persisted))
	for _, rec := range persisted {
		records = append(records, rec.SessionRecord)
	}
	return records, nil
}

// Put inserts the record when no record exists for its session id yet.
// It reports whether a record was actually inserted; an existing record is
// left untouched.
func (s *BoltStore) Put(ctx context.Context, rec SessionRecord) (bool, error) {
	defer s.observe("put")()

	inserted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b.Get([]byte(rec.Session)) != nil {
			return nil
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(persistedRecord{SessionRecord: rec, Seq: seq})
		if err != nil {
			return err
		}
		if err := b.Put([]byte(rec.Session), data); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, serr.WrapErrStorePersist("put", err)
	}
	return inserted, nil
}

// SetReady updates the ready flag of the record for the given session id.
// It reports whether a matching record existed; a miss is not an error, the
// caller decides how to handle it.
func (s *BoltStore) SetReady(ctx context.Context, session string, ready bool) (bool, error) {
	defer s.observe("set_ready")()

	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data := b.Get([]byte(session))
		if data == nil {
			return nil
		}
		var rec persistedRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return serr.WrapErrStoreCorrupt(s.path, err)
		}
		rec.Ready = ready
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(session), out); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, serr.WrapErrStorePersist("set_ready", err)
	}
	return found, nil
}

// Delete removes the record for the given session id, reporting whether one
// existed.
func (s *BoltStore) Delete(ctx context.Context, session string) (bool, error) {
	defer s.observe("delete")()

	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b.Get([]byte(session)) == nil {
			return nil
		}
		if err := b.Delete([]byte(session)); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, serr.WrapErrStorePersist("delete", err)
	}
	return found, nil
}

// Save atomically replaces the whole persisted collection with records,
// preserving the given order.
func (s *BoltStore) Save(ctx context.Context, records []SessionRecord) error {
	defer s.observe("save")()

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketSessions); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketSessions)
		if err != nil {
			return err
		}
		for _, rec := range records {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(persistedRecord{SessionRecord: rec, Seq: seq})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(rec.Session), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return serr.WrapErrStorePersist("save", err)
	}
	return nil
}

// IndexOf scans records for the given session id, first match wins.
// Returns -1 when absent.
func IndexOf(records []SessionRecord, session string) int {
	for i, rec := range records {
		if rec.Session == session {
			return i
		}
	}
	return -1
}

func (s *BoltStore) observe(op string) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		metrics.StoreOpDuration.WithLabelValues(op).Observe(float64(elapsed.Microseconds()) / 1000.0)
		if elapsed > time.Second {
			log.RatedWarn(1, "slow store operation",
				zap.String("op", op),
				zap.Duration("elapsed", elapsed),
			)
		}
	}
}
