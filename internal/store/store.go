package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Collection names are stable storage keys. Renaming one orphans existing
// data, so new code must reuse these constants instead of raw strings.
const (
	CollectionUsers         = "users"
	CollectionUserRoles     = "userRoles"
	CollectionOrganizations = "organizations"
	CollectionFarms         = "farms"
	CollectionActivityLogs  = "activityLogs"

	// CollectionFarmAccess is the legacy single-tier access collection kept
	// for systems that still read the old shape.
	CollectionFarmAccess = "farmAccess"
)

var ErrNotFound = errors.New("store: document not found")

type Op int

const (
	OpEqual Op = iota
	OpNotEqual
)

// Filter matches documents whose field compares to Value. Values are
// compared after JSON normalization, so int(1) and float64(1) are equal.
type Filter struct {
	Field string
	Op    Op
	Value any
}

func Where(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

type Ordering struct {
	Field string
	Desc  bool
}

type WriteOp struct {
	Collection string
	ID         string
	Record     any
}

// DocumentStore is the narrow persistence contract the access-control core
// requires from its environment. Implementations must guarantee atomic
// single-document writes; multi-document transactions are not required.
type DocumentStore interface {
	Put(ctx context.Context, collection, id string, record any) error
	Get(ctx context.Context, collection, id string, out any) error
	Query(ctx context.Context, collection string, filters []Filter, order []Ordering) ([]json.RawMessage, error)
	BatchWrite(ctx context.Context, ops []WriteOp) error
}

// Decode unmarshals raw query results into typed records.
func Decode[T any](raws []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
