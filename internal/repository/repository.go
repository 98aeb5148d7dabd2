package repository

import (
	"embed"
)

// Migrations holds the schema of the durable slot table.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Repositories holds the stores backing the session.
type Repositories struct {
	// Credentials backs the two expiring token slots.
	Credentials BlobStore
	// Profile backs the durable profile snapshot slot.
	Profile ProfileRepository
}

// NewRepositories wires the slot stores.
func NewRepositories(credentials, durable BlobStore) *Repositories {
	return &Repositories{
		Credentials: credentials,
		Profile:     NewProfileRepository(durable),
	}
}
