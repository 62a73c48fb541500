package bench

import (
	"time"

	"github.com/google/uuid"
)

// Report is a finished run together with the metadata needed to tell runs
// apart once they leave the process.
type Report struct {
	ID        string
	Example   string
	Rank      int
	NVP       int
	StartedAt time.Time
	Results   *Results
}

// NewReport wraps res with a fresh run id.
func NewReport(example string, rank, nvp int, started time.Time, res *Results) Report {
	return Report{
		ID:        uuid.NewString(),
		Example:   example,
		Rank:      rank,
		NVP:       nvp,
		StartedAt: started.UTC(),
		Results:   res,
	}
}
