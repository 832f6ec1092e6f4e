package memory

// retrieveOptions accumulates options for [Engine.Retrieve].
// Unexported — callers configure it via [RetrieveOpt] functional options.
type retrieveOptions struct {
	subject     string
	categories  []string
	minStrength float64
	limit       int
}

// RetrieveOpt is a functional option for [Engine.Retrieve].
type RetrieveOpt func(*retrieveOptions)

// AboutSubject restricts retrieval to memories about the given subject
// (a player id, another agent's id, or a topic key). Empty matches all.
func AboutSubject(subject string) RetrieveOpt {
	return func(o *retrieveOptions) { o.subject = subject }
}

// WithCategories boosts memories whose category matches one of the given
// topic categories. Matching memories rank ahead of equally strong
// non-matching ones; non-matching memories are still returned.
func WithCategories(categories ...string) RetrieveOpt {
	return func(o *retrieveOptions) {
		o.categories = append(o.categories, categories...)
	}
}

// WithMinStrength raises the visibility floor above the default 0.05.
// Values below the default are ignored; the retrieval floor never lowers.
func WithMinStrength(min float64) RetrieveOpt {
	return func(o *retrieveOptions) { o.minStrength = min }
}

// WithLimit caps the number of memories returned.
// A value of 0 applies the engine default.
func WithLimit(n int) RetrieveOpt {
	return func(o *retrieveOptions) { o.limit = n }
}

// RetrieveParams holds the resolved parameters from a slice of [RetrieveOpt].
// Storage backends read these instead of the unexported options type.
type RetrieveParams struct {
	Subject     string
	Categories  []string
	MinStrength float64
	Limit       int
}

// ApplyRetrieveOpts applies functional options and returns the resolved
// parameters as a [RetrieveParams].
func ApplyRetrieveOpts(opts []RetrieveOpt) RetrieveParams {
	o := &retrieveOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return RetrieveParams{
		Subject:     o.subject,
		Categories:  o.categories,
		MinStrength: o.minStrength,
		Limit:       o.limit,
	}
}
