package errors

import "errors"

var (
	ErrNotFound = errors.New("job cart not found")

	// ErrClaimExists is returned when the provider already recorded a
	// decision on the job cart.
	ErrClaimExists = errors.New("claim already exists")

	ErrClaimNotFound = errors.New("claim not found")
)
