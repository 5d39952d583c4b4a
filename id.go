package featureforge

import "github.com/machinalis/featureforge/id"

// ID is the identifier type for workers and runs.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
