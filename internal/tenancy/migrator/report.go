package migrator

import (
	"github.com/tansive/tenancy/internal/common/apperrors"
	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
)

// TargetReport is the outcome for one database.
type TargetReport struct {
	Database string   `json:"database" yaml:"database"`
	Batch    int      `json:"batch,omitempty" yaml:"batch,omitempty"`
	Ran      []string `json:"ran,omitempty" yaml:"ran,omitempty"`
	Applied  []string `json:"applied" yaml:"applied"`
	Pending  []string `json:"pending" yaml:"pending"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// Err returns the failure of this target, nil on success.
func (t *TargetReport) Err() error {
	return t.err
}

// Report is the outcome of a run over every selected database, in selection order.
type Report struct {
	Selector string          `json:"selector" yaml:"selector"`
	Targets  []*TargetReport `json:"targets" yaml:"targets"`
}

// Failed returns the targets that did not complete.
func (r *Report) Failed() []*TargetReport {
	var failed []*TargetReport
	for _, t := range r.Targets {
		if t.err != nil {
			failed = append(failed, t)
		}
	}
	return failed
}

// Err aggregates the failures of every target, nil when all succeeded.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	if len(failed) == 1 {
		return failed[0].err
	}
	errs := make([]error, 0, len(failed))
	for _, t := range failed {
		errs = append(errs, t.err)
	}
	return dberror.ErrMigration.Msg("migrations failed on several databases").Err(errs...)
}

// ExitCode is 0 when every target succeeded.
func (r *Report) ExitCode() int {
	return apperrors.ExitCode(r.Err())
}
