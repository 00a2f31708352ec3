package core

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	goeen_log "github.com/eencloud/goeen/log"
)

// Single TTL constant for all records (business rule)
const recordTTL = 72 * time.Hour

// ErrTransactionNotFound is returned when no record exists for an ID.
var ErrTransactionNotFound = fmt.Errorf("transaction not found")

// TransactionRecord is the journal entry for one payment attempt
type TransactionRecord struct {
	TransactionID   string
	ReferenceNumber string
	Amount          int64
	Status          string
	ResponseCode    string
	MaskedPAN       string
	Order           string
	Gateway         string
	Message         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TransactionStore journals every payment attempt so status queries
// survive a restart
type TransactionStore struct {
	db      *badger.DB
	maxSize int64
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *goeen_log.Logger
}

func NewTransactionStore(dir string, maxSizeGB int, logger *goeen_log.Logger) (*TransactionStore, error) {
	maxSize := int64(maxSizeGB) * 1024 * 1024 * 1024

	// Check for stale lock file and attempt cleanup
	if err := cleanupStaleLock(dir, logger); err != nil {
		logger.Warningf("Failed to cleanup potential stale lock: %v", err)
	}

	opts := badger.DefaultOptions(dir).
		WithValueLogFileSize(1 << 20). // 1MB value log files
		WithMemTableSize(32 << 20).    // 32MB mem tables
		WithNumMemtables(3).
		WithNumCompactors(4).
		WithSyncWrites(false).
		WithBlockCacheSize(64 << 20).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	store := &TransactionStore{
		db:      db,
		maxSize: maxSize,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}

	go store.maintenanceWorker()

	return store, nil
}

func recordKey(transactionID string) []byte {
	return []byte("txn_" + transactionID)
}

// Put writes or overwrites the record for its transaction ID
func (s *TransactionStore) Put(rec TransactionRecord) error {
	if rec.TransactionID == "" {
		return fmt.Errorf("record has no transaction ID")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = time.Now()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.TransactionID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store transaction: %w", err)
	}

	s.logger.Debugf("Journaled transaction %s (%s)", rec.TransactionID, rec.Status)
	return nil
}

// Get returns the record for transactionID or ErrTransactionNotFound
func (s *TransactionStore) Get(transactionID string) (TransactionRecord, error) {
	var rec TransactionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(transactionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return TransactionRecord{}, ErrTransactionNotFound
	}
	if err != nil {
		return TransactionRecord{}, err
	}
	return rec, nil
}

// UpdateStatus rewrites the status and message of an existing record
func (s *TransactionStore) UpdateStatus(transactionID, status, message string) error {
	rec, err := s.Get(transactionID)
	if err != nil {
		return err
	}
	rec.Status = status
	rec.Message = message
	return s.Put(rec)
}

// List returns up to limit records, newest first.
// Key-only iteration would lose the timestamps, so values are loaded.
func (s *TransactionStore) List(limit int) ([]TransactionRecord, error) {
	var records []TransactionRecord

	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		it := txn.NewIterator(itOpts)
		defer it.Close()

		prefix := []byte("txn_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec TransactionRecord
			if it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &rec) }) == nil {
				records = append(records, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortRecordsByCreatedAtDesc(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func sortRecordsByCreatedAtDesc(records []TransactionRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

func (s *TransactionStore) maintenanceWorker() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runMaintenance()
		}
	}
}

func (s *TransactionStore) runMaintenance() {
	// 1. Age-based cleanup
	s.cleanupByAge()

	// 2. Size-based cleanup if database is getting full
	s.cleanupBySize()

	// 3. BadgerDB garbage collection
	if err := s.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
		s.logger.Errorf("Transaction store value log GC failed: %v", err)
	}
}

func (s *TransactionStore) cleanupByAge() {
	now := time.Now()
	var keysToDelete [][]byte

	if err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte("txn_")); it.ValidForPrefix([]byte("txn_")); it.Next() {
			var rec TransactionRecord
			if it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &rec) }) == nil {
				if now.Sub(rec.CreatedAt) > recordTTL {
					keysToDelete = append(keysToDelete, it.Item().KeyCopy(nil))
				}
			}
		}
		return nil
	}); err != nil {
		s.logger.Errorf("Age cleanup scan failed: %v", err)
		return
	}

	if len(keysToDelete) > 0 {
		if err := s.db.Update(func(txn *badger.Txn) error {
			for _, key := range keysToDelete {
				if err := txn.Delete(key); err != nil {
					s.logger.Errorf("Failed to delete key: %v", err)
				}
			}
			return nil
		}); err != nil {
			s.logger.Errorf("Age cleanup delete failed: %v", err)
		} else {
			s.logger.Infof("Cleaned up %d transactions older than %v", len(keysToDelete), recordTTL)
		}
	}
}

func (s *TransactionStore) cleanupBySize() {
	currentSize := s.getApproximateSize()

	if currentSize > s.maxSize*70/100 && currentSize < s.maxSize*80/100 {
		s.logger.Warningf("Database at 70%% capacity (%d MB / %d MB)", currentSize/1024/1024, s.maxSize/1024/1024)
	}

	if currentSize < s.maxSize*80/100 {
		return // Not full enough
	}

	s.logger.Errorf("Database at 80%% capacity - starting cleanup (%d MB / %d MB)", currentSize/1024/1024, s.maxSize/1024/1024)
	targetSize := s.maxSize * 60 / 100
	var keysToDelete [][]byte

	if err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte("txn_")); it.ValidForPrefix([]byte("txn_")); it.Next() {
			if s.getApproximateSize() <= targetSize {
				break
			}
			keysToDelete = append(keysToDelete, it.Item().KeyCopy(nil))
		}
		return nil
	}); err != nil {
		s.logger.Errorf("Size cleanup scan failed: %v", err)
		return
	}

	if len(keysToDelete) > 0 {
		if err := s.db.Update(func(txn *badger.Txn) error {
			for _, key := range keysToDelete {
				if err := txn.Delete(key); err != nil {
					s.logger.Errorf("Failed to delete key: %v", err)
				}
			}
			return nil
		}); err != nil {
			s.logger.Errorf("Size cleanup delete failed: %v", err)
		} else {
			s.logger.Infof("Size cleanup: deleted %d oldest transactions", len(keysToDelete))
		}
	}
}

func (s *TransactionStore) getApproximateSize() int64 {
	lsm, vlog := s.db.Size()
	return lsm + vlog
}

// GetDB returns the underlying Badger database for metrics access
func (s *TransactionStore) GetDB() *badger.DB {
	return s.db
}

func (s *TransactionStore) Close() error {
	s.cancel()
	return s.db.Close()
}

// cleanupStaleLock attempts to remove stale BadgerDB lock files.
// Safe on startup: if another process held the directory, Open would
// fail anyway.
func cleanupStaleLock(dir string, logger *goeen_log.Logger) error {
	lockFile := filepath.Join(dir, "LOCK")

	if _, err := os.Stat(lockFile); os.IsNotExist(err) {
		return nil // No lock file, nothing to clean
	}

	logger.Infof("Found potential stale lock file, attempting cleanup: %s", lockFile)

	if err := os.Remove(lockFile); err != nil {
		return fmt.Errorf("failed to remove stale lock file: %w", err)
	}

	logger.Infof("Successfully removed stale lock file: %s", lockFile)
	return nil
}
