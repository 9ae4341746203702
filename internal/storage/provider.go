// Package storage selects and constructs the artifact store backend.
package storage

import "recap/internal/ports"

// Aliases keep call-sites on one import.
type (
	Provider        = ports.StorageProvider
	PutObjectInput  = ports.PutObjectInput
	PutObjectOutput = ports.PutObjectOutput
	SignedURLOutput = ports.SignedURLOutput
)
