package aggregates

// WriteTxOwnership says who opens and commits the transaction of a write.
type WriteTxOwnership string

const (
	// WriteTxOwnedByAggregate: every write method runs in one transaction it opens itself.
	WriteTxOwnedByAggregate WriteTxOwnership = "aggregate_owned"
)

// ReadPolicy says which reads an aggregate may perform.
type ReadPolicy string

const (
	// ReadPolicyInvariantScoped limits reads to those a write decision depends on.
	ReadPolicyInvariantScoped ReadPolicy = "invariant_scoped_reads"
	// ReadPolicyTableRepoQueries leaves listings and lookups to the table repos.
	ReadPolicyTableRepoQueries ReadPolicy = "table_repo_queries"
)

type Contract struct {
	Name             string
	WriteTxOwnership WriteTxOwnership
	ReadPolicy       ReadPolicy
	Notes            string
}

// Aggregate is implemented by every aggregate and reports its contract.
type Aggregate interface {
	Contract() Contract
}

func (c Contract) RequiresAggregateOwnedTx() bool {
	return c.WriteTxOwnership == WriteTxOwnedByAggregate
}
