// pkg/relational/tables.go
package relational

// deleteTable is a dependent table whose contributor rows are removed
// outright rather than masked
type deleteTable struct {
	Name     string
	IDColumn string
}

// maskTable is a table whose PII columns are overwritten with sentinels
type maskTable struct {
	Name        string
	IDColumn    string
	EmailColumn string
	NameColumn  string // empty when the table has no name column
	HasStatus   bool
}

// auditTable only gets a row count in the report; its rows carry no PII
// but their presence is worth recording
type auditTable struct {
	Name     string
	IDColumn string
}

// Deletions run before updates. The job mapping table goes first: it
// gates platform access, so even a run that fails later has revoked
// the contributor's ability to pick up work.
var deleteTables = []deleteTable{
	{Name: "kepler_crowd_contributor_job_mapping_t", IDColumn: "contributor_id"},
	{Name: "kepler_project_contributor_mapping_t", IDColumn: "contributor_id"},
	{Name: "kepler_project_contributor_stats_t", IDColumn: "contributor_id"},
	{Name: "kepler_team_member_t", IDColumn: "contributor_id"},
}

// The primary record is keyed by id; every other table references it
// through contributor_id.
var maskTables = []maskTable{
	{Name: "kepler_crowd_contributors_t", IDColumn: "id", EmailColumn: "email", NameColumn: "name", HasStatus: true},
	{Name: "kepler_contributor_profile_t", IDColumn: "contributor_id", EmailColumn: "email_address", NameColumn: "display_name", HasStatus: false},
	{Name: "kepler_contributor_payment_t", IDColumn: "contributor_id", EmailColumn: "payment_email", HasStatus: false},
}

var auditTables = []auditTable{
	{Name: "kepler_judgments_t", IDColumn: "contributor_id"},
	{Name: "kepler_contributor_activity_t", IDColumn: "contributor_id"},
}

// mercuryMappingTable links the legacy account system by email address
const mercuryMappingTable = "mercury_contributor_mapping_t"
