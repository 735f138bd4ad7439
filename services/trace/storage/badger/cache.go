// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/fstrace/services/trace/events"
)

// ErrCacheCorrupted indicates a cached entry failed its checksum or decode.
var ErrCacheCorrupted = errors.New("trace cache entry corrupted")

// keyPrefix versions the entry layout. Bump it when events.Event changes.
const keyPrefix = "trace/v1/"

// CacheKey identifies a parsed trace: the file as it is on disk plus the
// parser settings that shaped the events.
type CacheKey struct {
	Path      string
	Size      int64
	ModTime   int64 // UnixNano
	Operation string
	Normalize bool
}

// KeyFor stats file and builds its CacheKey.
func KeyFor(file, operation string, normalize bool) (CacheKey, error) {
	info, err := os.Stat(file)
	if err != nil {
		return CacheKey{}, fmt.Errorf("stat %s: %w", file, err)
	}
	return CacheKey{
		Path:      file,
		Size:      info.Size(),
		ModTime:   info.ModTime().UnixNano(),
		Operation: operation,
		Normalize: normalize,
	}, nil
}

func (k CacheKey) bytes() []byte {
	return fmt.Appendf(nil, "%s%s|%d|%d|%s|%t", keyPrefix, k.Path, k.Size, k.ModTime, k.Operation, k.Normalize)
}

// TraceCache stores parsed traces in BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type TraceCache struct {
	db *DB
}

// NewTraceCache wraps db. The caller keeps ownership of db.
func NewTraceCache(db *DB) *TraceCache {
	return &TraceCache{db: db}
}

// Get returns the cached trace for key. ok is false on a miss.
func (c *TraceCache) Get(ctx context.Context, key CacheKey) (tr events.Trace, ok bool, err error) {
	err = c.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key.bytes())
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeTrace(val)
			if err != nil {
				return err
			}
			tr, ok = decoded, true
			return nil
		})
	})
	if err != nil {
		return events.Trace{}, false, err
	}
	return tr, ok, nil
}

// Put stores tr under key.
func (c *TraceCache) Put(ctx context.Context, key CacheKey, tr events.Trace) error {
	data, err := encodeTrace(tr)
	if err != nil {
		return err
	}
	return c.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(key.bytes(), data)
	})
}

// Purge deletes every cached trace.
func (c *TraceCache) Purge() error {
	return c.db.DropPrefix([]byte(keyPrefix))
}

// encodeTrace gob-encodes tr behind a 4-byte CRC32: [crc][gob data].
func encodeTrace(tr events.Trace) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&tr); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	out := make([]byte, 4+buf.Len())
	binary.BigEndian.PutUint32(out[:4], crc32.ChecksumIEEE(buf.Bytes()))
	copy(out[4:], buf.Bytes())
	return out, nil
}

func decodeTrace(data []byte) (events.Trace, error) {
	if len(data) < 5 {
		return events.Trace{}, fmt.Errorf("%w: entry too short", ErrCacheCorrupted)
	}
	want := binary.BigEndian.Uint32(data[:4])
	if got := crc32.ChecksumIEEE(data[4:]); got != want {
		return events.Trace{}, fmt.Errorf("%w: crc mismatch", ErrCacheCorrupted)
	}
	var tr events.Trace
	if err := gob.NewDecoder(bytes.NewReader(data[4:])).Decode(&tr); err != nil {
		return events.Trace{}, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return tr, nil
}
