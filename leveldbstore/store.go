// Package leveldbstore persists cached results in an embedded LevelDB
// database, so they survive restarts.
package leveldbstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ffscout/scouter"
)

// Key prefixes. Records live under R+id, and the expiry index under
// E+expiry+id so that a sweep is a single range scan.
const (
	recordPrefix byte = 'R'
	expiryPrefix byte = 'E'
)

type Store struct {
	db    *leveldb.DB
	ttl   time.Duration
	clock scouter.Clock

	// Writers read the previous expiry to move its index entry, so they
	// must not interleave.
	writeMu sync.Mutex
}

type Option func(*Store)

// WithClock changes the clock used to stamp and check expiries.
func WithClock(clock scouter.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// Open opens, or creates, the database at path.
func Open(path string, ttl time.Duration, opts ...Option) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldbstore: open %s: %w", path, err)
	}
	return New(db, ttl, opts...), nil
}

// OpenMemory opens a database that is only kept in memory.
func OpenMemory(ttl time.Duration, opts ...Option) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("leveldbstore: open memory storage: %w", err)
	}
	return New(db, ttl, opts...), nil
}

// New wraps an open database. The store takes ownership of db.
func New(db *leveldb.DB, ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		panic("ttl must be greater than 0")
	}
	s := &Store{
		db:    db,
		ttl:   ttl,
		clock: scouter.NewClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(id scouter.ID) []byte {
	key := make([]byte, 9)
	key[0] = recordPrefix
	binary.BigEndian.PutUint64(key[1:], uint64(id))
	return key
}

func expiryKey(expiry time.Time, id scouter.ID) []byte {
	key := make([]byte, 17)
	key[0] = expiryPrefix
	binary.BigEndian.PutUint64(key[1:], uint64(expiry.UnixMilli()))
	binary.BigEndian.PutUint64(key[9:], uint64(id))
	return key
}

// Get reads every id from one snapshot.
func (s *Store) Get(_ context.Context, ids []scouter.ID) (map[scouter.ID]*scouter.CachedResult, error) {
	snapshot, err := s.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("leveldbstore: snapshot: %w", err)
	}
	defer snapshot.Release()

	now := s.clock.Now()
	results := make(map[scouter.ID]*scouter.CachedResult, len(ids))
	for _, id := range ids {
		results[id] = nil

		data, err := snapshot.Get(recordKey(id), nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("leveldbstore: get %d: %w", id, err)
		}

		cached, err := scouter.UnmarshalCachedResult(data)
		if err != nil {
			return nil, fmt.Errorf("leveldbstore: decode %d: %w", id, err)
		}
		if cached.Expired(now) {
			continue
		}
		results[id] = &cached
	}
	return results, nil
}

// Update writes every result in a single batch.
func (s *Store) Update(_ context.Context, results []scouter.Result) error {
	if len(results) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	expiry := s.clock.Now().Add(s.ttl)
	batch := new(leveldb.Batch)
	for _, result := range results {
		id := result.ID()
		if err := s.unindex(batch, id); err != nil {
			return err
		}

		data, err := scouter.MarshalCachedResult(scouter.CachedResult{Result: result, Expiry: expiry})
		if err != nil {
			return err
		}
		batch.Put(recordKey(id), data)
		batch.Put(expiryKey(expiry, id), nil)
	}

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldbstore: write batch: %w", err)
	}
	return nil
}

// unindex removes the expiry index entry of the record currently stored for id.
func (s *Store) unindex(batch *leveldb.Batch, id scouter.ID) error {
	data, err := s.db.Get(recordKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("leveldbstore: get %d: %w", id, err)
	}
	old, err := scouter.UnmarshalCachedResult(data)
	if err != nil {
		// The record is overwritten anyway.
		return nil
	}
	batch.Delete(expiryKey(old.Expiry, id))
	return nil
}

// SweepExpired deletes every record whose expiry is at or before now.
func (s *Store) SweepExpired(_ context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.clock.Now()
	searchRange := &ldb_util.Range{
		Start: []byte{expiryPrefix},
		Limit: expiryKey(now.Add(time.Millisecond), 0),
	}

	iter := s.db.NewIterator(searchRange, nil)
	batch := new(leveldb.Batch)
	var swept int
	for iter.Next() {
		key := iter.Key()
		if len(key) != 17 {
			continue
		}
		id := scouter.ID(binary.BigEndian.Uint64(key[9:]))
		batch.Delete(append([]byte(nil), key...))
		batch.Delete(recordKey(id))
		swept++
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("leveldbstore: scan expiry index: %w", err)
	}

	if swept == 0 {
		return 0, nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("leveldbstore: write batch: %w", err)
	}
	return swept, nil
}

// Dump returns every record, expired or not.
func (s *Store) Dump(_ context.Context) ([]scouter.CachedResult, error) {
	iter := s.db.NewIterator(ldb_util.BytesPrefix([]byte{recordPrefix}), nil)
	defer iter.Release()

	dump := make([]scouter.CachedResult, 0)
	for iter.Next() {
		cached, err := scouter.UnmarshalCachedResult(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("leveldbstore: decode %x: %w", iter.Key(), err)
		}
		dump = append(dump, cached)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("leveldbstore: scan records: %w", err)
	}
	return dump, nil
}
