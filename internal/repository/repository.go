package repository

import "context"

type CallRepository interface {
	// SaveCall stores the record and returns the identifier assigned by the store.
	SaveCall(ctx context.Context, record CallRecord) (string, error)
}

type Repository interface {
	CallRepository
}
