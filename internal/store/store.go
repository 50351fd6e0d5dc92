// Package store provides persistent storage for the scoring service. It
// uses BoltDB as the underlying engine to keep an append-only audit log of
// scored requests and the decisions made on them, with efficient
// time-range queries for review tooling.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"riskgate/internal/policy"
)

const decisionsBucket = "decisions"

// DecisionRecord is one audited scoring decision.
type DecisionRecord struct {
	RequestID   string          `json:"request_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Probability float64         `json:"probability"`
	Decision    policy.Decision `json:"decision"`
	Uncertainty float64         `json:"uncertainty"`
	CostRisk    float64         `json:"cost_risk"`
}

// Store provides thread-safe persistence of decision records.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the decision database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "riskgate-data.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(decisionsBucket)); err != nil {
			return fmt.Errorf("create decisions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StoreDecision appends a decision record. Records are keyed by timestamp
// so range scans return them in time order.
func (s *Store) StoreDecision(rec DecisionRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(decisionsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal decision record: %w", err)
		}

		key := fmt.Sprintf("%020d_%s", rec.Timestamp.UnixNano(), rec.RequestID)
		return b.Put([]byte(key), data)
	})
}

// GetDecisionsInRange retrieves decision records within a time range, both
// ends inclusive, in time order.
func (s *Store) GetDecisionsInRange(start, end time.Time) ([]DecisionRecord, error) {
	var records []DecisionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(decisionsBucket))
		c := b.Cursor()

		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%020d", end.UnixNano()+1))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) < 0; k, v = c.Next() {
			var rec DecisionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

// RecentDecisions returns up to limit most recent records, newest first.
func (s *Store) RecentDecisions(limit int) ([]DecisionRecord, error) {
	var records []DecisionRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(decisionsBucket))
		c := b.Cursor()

		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var rec DecisionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}
