package records

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/crytic/crossguard/logging"
	"github.com/crytic/crossguard/replay"
	"github.com/crytic/crossguard/types"
	"github.com/crytic/crossguard/utils"
	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// DatabaseFileName is the name of the results database inside the working directory.
const DatabaseFileName = "results.db"

var (
	findingsBucket      = []byte("findings")
	replaysBucket       = []byte("replays")
	verificationsBucket = []byte("verifications")
	unknownBucket       = []byte("unknown")
)

// ErrNotFound is returned by readers when no record exists under the requested key.
var ErrNotFound = errors.New("record not found")

// Store persists the artifacts of detection and replay runs in a bbolt database. It is safe for concurrent use.
type Store struct {
	db     *bbolt.DB
	logger *logging.Logger
}

// Open opens (or creates) the results database in workDir.
func Open(workDir string) (*Store, error) {
	if err := utils.MakeDirectory(workDir); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(filepath.Join(workDir, DatabaseFileName), 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "could not open results database")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{findingsBucket, replaysBucket, verificationsBucket, unknownBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}

	return &Store{
		db:     db,
		logger: logging.GlobalLogger.NewSubLogger("module", logging.RECORDS_SERVICE),
	}, nil
}

// Path returns the location of the database file.
func (s *Store) Path() string {
	return s.db.Path()
}

// Close closes the database.
func (s *Store) Close() error {
	return errors.WithStack(s.db.Close())
}

// AppendFinding adds finding to the findings recorded for its victim contract.
func (s *Store) AppendFinding(finding *types.Finding) error {
	key := finding.VictimContract.Bytes()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(findingsBucket)
		findings := make([]types.Finding, 0, 1)
		if data := bucket.Get(key); data != nil {
			if err := json.Unmarshal(data, &findings); err != nil {
				return err
			}
		}
		findings = append(findings, *finding)
		data, err := json.Marshal(findings)
		if err != nil {
			return err
		}
		return bucket.Put(key, data)
	})
	if err != nil {
		return errors.Wrap(err, "could not store finding")
	}
	s.logger.Debug("Stored finding for victim contract ", finding.VictimContract.Hex())
	return nil
}

// Findings returns the findings recorded for victim, oldest first.
func (s *Store) Findings(victim common.Address) ([]types.Finding, error) {
	findings := make([]types.Finding, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(findingsBucket).Get(victim.Bytes())
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &findings)
	})
	return findings, errors.WithStack(err)
}

// VictimContracts returns the victim contracts with at least one finding, in ascending order.
func (s *Store) VictimContracts() ([]common.Address, error) {
	contracts := make([]common.Address, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(findingsBucket).ForEach(func(k, _ []byte) error {
			contracts = append(contracts, common.BytesToAddress(k))
			return nil
		})
	})
	return contracts, errors.WithStack(err)
}

// PutReplayRecord stores the record of the replayed transaction txHash, replacing any previous one.
func (s *Store) PutReplayRecord(txHash common.Hash, record *replay.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.WithStack(err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(replaysBucket).Put(txHash.Bytes(), data)
	})
	return errors.Wrap(err, "could not store replay record")
}

// ReplayRecord returns the record of the replayed transaction txHash. It returns ErrNotFound if there is none.
func (s *Store) ReplayRecord(txHash common.Hash) (*replay.Record, error) {
	var record *replay.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(replaysBucket).Get(txHash.Bytes())
		if data == nil {
			return ErrNotFound
		}
		record = &replay.Record{}
		return json.Unmarshal(data, record)
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return record, nil
}

// PutVerification stores verification under its transaction hash.
func (s *Store) PutVerification(verification *types.Verification) error {
	data, err := json.Marshal(verification)
	if err != nil {
		return errors.WithStack(err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(verificationsBucket).Put(verification.TxHash.Bytes(), data)
	})
	return errors.Wrap(err, "could not store verification")
}

// Verifications returns every stored verification ordered by transaction hash.
func (s *Store) Verifications() ([]types.Verification, error) {
	verifications := make([]types.Verification, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(verificationsBucket).ForEach(func(_, v []byte) error {
			var verification types.Verification
			if err := json.Unmarshal(v, &verification); err != nil {
				return err
			}
			verifications = append(verifications, verification)
			return nil
		})
	})
	return verifications, errors.WithStack(err)
}

// AddUnknownContracts records contracts that could not be attributed to an application, so that the dapp table can
// be extended.
func (s *Store) AddUnknownContracts(contracts []common.Address) error {
	if len(contracts) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(unknownBucket)
		for _, contract := range contracts {
			if err := bucket.Put(contract.Bytes(), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "could not store unknown contracts")
}

// UnknownContracts returns the recorded unattributed contracts in ascending order.
func (s *Store) UnknownContracts() ([]common.Address, error) {
	contracts := make([]common.Address, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(unknownBucket).ForEach(func(k, _ []byte) error {
			contracts = append(contracts, common.BytesToAddress(k))
			return nil
		})
	})
	return contracts, errors.WithStack(err)
}
