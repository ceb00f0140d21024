package registry

import (
	"encoding/json"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/veilbook/darkpool/internal/domain"
)

// Store is the durable commitment/nullifier map (Badger).
//
// Keyspaces:
//
//	c:<id>         commitment record (JSON)
//	d:<digest>     digest index -> commitment id; present while live AND after
//	               consumption (tombstone), so a consumed digest can never be
//	               resubmitted
//	n:<nullifier>  spent nullifier set
type Store struct {
	db *badger.DB
}

// OpenStore opens the registry database at path. An empty path opens an
// in-memory instance (tests, local runs without a data dir).
func OpenStore(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "registry: open badger")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type storedCommitment struct {
	ID           string          `json:"id"`
	Digest       common.Hash     `json:"digest"`
	Owner        common.Address  `json:"owner"`
	EscrowAmount decimal.Decimal `json:"escrow_amount"`
	CreatedAt    time.Time       `json:"created_at"`
	Consumed     bool            `json:"consumed"`
}

func keyCommitment(id string) []byte    { return append([]byte("c:"), id...) }
func keyDigest(d common.Hash) []byte    { return append([]byte("d:"), d[:]...) }
func keyNullifier(n common.Hash) []byte { return append([]byte("n:"), n[:]...) }

// PutCommitment stores a fresh commitment and claims its digest.
// Fails with domain.ErrDigestInUse if the digest was ever claimed before,
// consumed or not.
func (s *Store) PutCommitment(c *domain.Commitment) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyDigest(c.Digest)); err == nil {
			return errors.Wrapf(domain.ErrDigestInUse, "digest %s", c.Digest.Hex())
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		raw, err := json.Marshal(storedCommitment{
			ID:           c.ID,
			Digest:       c.Digest,
			Owner:        c.Owner,
			EscrowAmount: c.EscrowAmount,
			CreatedAt:    c.CreatedAt,
			Consumed:     c.Consumed,
		})
		if err != nil {
			return err
		}
		if err := txn.Set(keyCommitment(c.ID), raw); err != nil {
			return err
		}
		return txn.Set(keyDigest(c.Digest), []byte(c.ID))
	})
}

// GetCommitment loads a commitment by id.
func (s *Store) GetCommitment(id string) (*domain.Commitment, error) {
	var out *domain.Commitment
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyCommitment(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return errors.Wrapf(domain.ErrUnauthorized, "unknown commitment %s", id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var sc storedCommitment
			if err := json.Unmarshal(val, &sc); err != nil {
				return err
			}
			out = &domain.Commitment{
				ID:           sc.ID,
				Digest:       sc.Digest,
				Owner:        sc.Owner,
				EscrowAmount: sc.EscrowAmount,
				CreatedAt:    sc.CreatedAt,
				Consumed:     sc.Consumed,
			}
			return nil
		})
	})
	return out, err
}

// ConsumeAndSpend marks the commitment consumed and the nullifier spent in
// one transaction (the reveal path). The digest tombstone is kept.
// Fails with domain.ErrNullifierReused if the nullifier was spent before,
// regardless of which commitment spent it.
func (s *Store) ConsumeAndSpend(id string, nullifier common.Hash) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyNullifier(nullifier)); err == nil {
			return errors.Wrapf(domain.ErrNullifierReused, "nullifier %s", nullifier.Hex())
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := s.markConsumed(txn, id); err != nil {
			return err
		}
		return txn.Set(keyNullifier(nullifier), []byte{1})
	})
}

// Consume marks the commitment consumed without spending a nullifier.
// Used on the cancel path, where the digest tombstone alone blocks replay.
func (s *Store) Consume(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.markConsumed(txn, id)
	})
}

func (s *Store) markConsumed(txn *badger.Txn, id string) error {
	item, err := txn.Get(keyCommitment(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.Wrapf(domain.ErrUnauthorized, "unknown commitment %s", id)
		}
		return err
	}
	var sc storedCommitment
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &sc)
	}); err != nil {
		return err
	}
	if sc.Consumed {
		return errors.Wrapf(domain.ErrUnauthorized, "commitment %s already consumed", id)
	}
	sc.Consumed = true
	raw, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	return txn.Set(keyCommitment(id), raw)
}

// IsNullifierSpent reports whether the nullifier has ever been spent.
func (s *Store) IsNullifierSpent(n common.Hash) (bool, error) {
	spent := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(keyNullifier(n))
		if err == nil {
			spent = true
			return nil
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	return spent, err
}
