package repositories

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

// OpenDurable opens the on-disk store backing the device identity.
func OpenDurable(path string) (*badger.DB, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open durable store at %s: %w", path, err)
	}
	return db, nil
}

// OpenEphemeral opens an in-memory store. Nothing written to it survives the process.
func OpenEphemeral() (*badger.DB, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open ephemeral store: %w", err)
	}
	return db, nil
}

// get returns the raw value for key, ok=false when the key is absent.
func get(db *badger.DB, key string) ([]byte, bool, error) {
	var value []byte
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case err == badger.ErrKeyNotFound:
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return value, true, nil
}

func getRecord(db *badger.DB, key string, v any) (bool, error) {
	raw, ok, err := get(db, key)
	if err != nil || !ok {
		return false, err
	}
	if err := cbor.Unmarshal(raw, v); err != nil {
		return false, &decodeError{key: key, err: err}
	}
	return true, nil
}

// decodeError marks a record that was read but could not be decoded, as
// opposed to a storage failure.
type decodeError struct {
	key string
	err error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.key, e.err)
}

func (e *decodeError) Unwrap() error {
	return e.err
}

func isDecodeError(err error) bool {
	var target *decodeError
	return errors.As(err, &target)
}

func encodeRecord(v any) ([]byte, error) {
	return cbor.Marshal(v)
}
