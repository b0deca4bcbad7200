// pkg/model/contributor.go
package model

import "fmt"

// Sentinel values written in place of PII. Fixed for the lifetime of the
// process; downstream reporting keys on these exact strings.
const (
	SentinelName  = "DELETED_USER"
	SentinelEmail = "deleted_user@deleted.com"

	// DeactivatedStatus marks a contributor record as no longer active
	DeactivatedStatus = "INACTIVE"
)

// Contributor identifies one contributor across every store. Immutable
// input to every phase; never generated here.
type Contributor struct {
	ID    string
	Email string
	Name  string
}

// SaltedSentinelEmail returns an alternate sentinel email derived from the
// contributor id, used when the plain sentinel collides with a previous
// deletion's sentinel under a uniqueness constraint.
func SaltedSentinelEmail(contributorID string) string {
	salt := contributorID
	if len(salt) > 8 {
		salt = salt[:8]
	}
	return fmt.Sprintf("deleted_user_%s@deleted.com", salt)
}

// AssociationSet holds everything the resolver learned about a
// contributor's cross-store footprint. Built fresh per run.
type AssociationSet struct {
	ContributorID string

	// ProjectIDs is the union of project associations from every source
	ProjectIDs []string

	// Indices are the search indices derived from the project ids
	Indices []string

	// ShardFailures records distribution shards that could not be read
	ShardFailures []ShardError
}

// ShardError records one unreachable distribution shard
type ShardError struct {
	Shard int
	Err   error
}

// SearchIndices returns the per-project index names for a set of
// project ids
func SearchIndices(projectIDs []string) []string {
	indices := make([]string, 0, len(projectIDs))
	for _, id := range projectIDs {
		indices = append(indices, "project-"+id)
	}
	return indices
}
