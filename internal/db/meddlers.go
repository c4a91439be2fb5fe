package db

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

func init() {
	meddler.Register("hash", HexMeddler[common.Hash]{parse: common.HexToHash})
	meddler.Register("address", HexMeddler[common.Address]{parse: common.HexToAddress})
}

// hexValue is a fixed size chain value stored as its 0x hex string.
type hexValue interface {
	comparable
	Hex() string
}

// HexMeddler stores T or *T as a hex string column. NULL maps to a nil pointer or the
// zero value.
type HexMeddler[T hexValue] struct {
	parse func(string) T
}

func (m HexMeddler[T]) PreRead(_ any) (any, error) {
	return new(sql.NullString), nil
}

func (m HexMeddler[T]) PostRead(fieldAddr, scanTarget any) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	switch ptr := fieldAddr.(type) {
	case **T:
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		value := m.parse(ns.String)
		*ptr = &value
	case *T:
		var zero T
		*ptr = zero
		if ns.Valid {
			*ptr = m.parse(ns.String)
		}
	default:
		return fmt.Errorf("expected *%T or **%T, got %T", *new(T), *new(T), fieldAddr)
	}

	return nil
}

func (m HexMeddler[T]) PreWrite(field any) (any, error) {
	switch value := field.(type) {
	case *T:
		if value == nil {
			return nil, nil
		}
		return (*value).Hex(), nil
	case T:
		return value.Hex(), nil
	default:
		return nil, fmt.Errorf("expected %T or *%T, got %T", *new(T), *new(T), field)
	}
}
