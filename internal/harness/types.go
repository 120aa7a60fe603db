package harness

// Row is one solution with every bound value written in N-Triples
// syntax.
type Row map[string]string

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when the expectation and every assertion hold.
	Pass bool `json:"pass"`

	// Plan is the optimized tree in algebra.Format form.
	Plan string `json:"plan"`

	// Vars are the result variables in projection order.
	Vars []string `json:"vars,omitempty"`

	// Rows are the solutions in the order the federation produced them.
	Rows []Row `json:"rows"`

	// Ask holds the answer of an ASK query.
	Ask *bool `json:"ask,omitempty"`

	// QueryError is the evaluation error, if the query failed.
	QueryError string `json:"query_error,omitempty"`

	// Dispatches counts the requests each member received, by member id.
	Dispatches map[string]int `json:"dispatches"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Rows:       []Row{},
		Dispatches: make(map[string]int),
		Errors:     []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
