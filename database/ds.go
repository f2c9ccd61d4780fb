package database

import (
	"github.com/dgraph-io/badger"
)

// Ds is a small badger-backed datastore used for upload-session state.
type Ds struct {
	Db *badger.DB
}

// NewDs opens (and creates if needed) a badger database at path.
func NewDs(path string) (*Ds, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Ds{Db: db}, nil
}

func (ds *Ds) SetAndCommit(key, val []byte) error {
	txn := ds.Db.NewTransaction(true)
	defer txn.Discard()

	if err := txn.Set(key, val); err != nil {
		return err
	}

	return txn.Commit()
}

// Get returns the stored value, or nil if the key does not exist.
func (ds *Ds) Get(key []byte) ([]byte, error) {
	txn := ds.Db.NewTransaction(false)
	defer txn.Discard()

	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var valCopy []byte
	err = item.Value(func(val []byte) error {
		valCopy = append([]byte{}, val...)
		return nil
	})

	return valCopy, err
}

func (ds *Ds) Delete(key []byte) error {
	txn := ds.Db.NewTransaction(true)
	defer txn.Discard()

	if err := txn.Delete(key); err != nil {
		return err
	}

	return txn.Commit()
}

func (ds *Ds) Close() error {
	return ds.Db.Close()
}
