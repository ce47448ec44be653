package datastore

// Status is the lifecycle state of a long-running step (localize, import).
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Result captures the outcome of a long-running step. Producers create a
// Result and never mutate it afterward; callers treat it as a value.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Percent int    `json:"percent,omitempty"`
}

// Terminal reports whether the result will no longer change.
func (r Result) Terminal() bool {
	return r.Status == StatusDone || r.Status == StatusError
}

// Labels used as result-map keys. Each collaborator carries an explicit,
// stable label instead of deriving one from its runtime type name.
const (
	LabelLocalizer = "ResourceLocalizer"
	LabelImporter  = "Importer"

	// MessageKey carries the synthetic acknowledgement returned by a
	// deferred import instead of a per-collaborator result map.
	MessageKey = "message"
)
