package engine

// Report is the count summary every batch run returns. Partial success is
// never hidden: per-item failures show up in Errors.
type Report struct {
	Processed  int            `json:"processed"`
	Affected   int            `json:"affected"`
	Errors     int            `json:"errors"`
	Duplicates int            `json:"duplicates"`
	Details    map[string]int `json:"details,omitempty"`
}

// Add increments a named detail counter. Zero increments are ignored.
func (r *Report) Add(key string, n int) {
	if n == 0 {
		return
	}
	if r.Details == nil {
		r.Details = make(map[string]int)
	}
	r.Details[key] += n
}

// DefaultPageSize bounds every batch page.
const DefaultPageSize = 100
