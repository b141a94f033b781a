package entry

// DefaultLimit caps query results when the caller does not set one.
const DefaultLimit = 50

// QueryOptions captures the filter, pagination, and limit parameters of
// a single retrieval call. Zero values mean "not set".
type QueryOptions struct {
	// BatchID restricts results to one batch and lets the scan narrow
	// its listing prefix to that batch's directory.
	BatchID string

	// Tag keeps only entries carrying the tag.
	Tag string

	// FamilyHash keeps only entries with this correlation key.
	FamilyHash string

	// UUIDs keeps only entries whose uuid is in the set.
	UUIDs []string

	// BeforeSequence implements keyset pagination: only entries whose
	// sequence is strictly less than this value are returned. Entries
	// without a sequence are not excluded by this filter.
	BeforeSequence int64

	// Limit is the maximum number of results. Normalize substitutes
	// DefaultLimit when it is not positive.
	Limit int
}

// Normalize enforces a positive limit.
func (o *QueryOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
}

// Matches tests a reconstructed result against every set filter field.
func (o *QueryOptions) Matches(r *Result) bool {
	if o.BatchID != "" && r.BatchID != o.BatchID {
		return false
	}
	if o.Tag != "" && !hasString(r.Tags, o.Tag) {
		return false
	}
	if o.FamilyHash != "" && r.FamilyHash != o.FamilyHash {
		return false
	}
	if o.BeforeSequence > 0 && r.Sequence != nil && *r.Sequence >= o.BeforeSequence {
		return false
	}
	if len(o.UUIDs) > 0 && !hasString(o.UUIDs, r.UUID) {
		return false
	}
	return true
}

func hasString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
