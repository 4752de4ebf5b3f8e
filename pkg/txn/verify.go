package txn

import (
	"fmt"

	"github.com/cuemby/truss/pkg/events"
	"github.com/cuemby/truss/pkg/verify"
)

// Verify reconciles name's installed files (or every installed trove,
// when name is empty) against their recorded hashes and publishes a
// completion event with the outcome counts.
func (m *Manager) Verify(name string) (*verify.Report, error) {
	var (
		report *verify.Report
		err    error
	)
	if name == "" {
		report, err = verify.All(m.store.DB(), m.installRoot)
	} else {
		report, err = verify.Trove(m.store.DB(), m.installRoot, name)
	}
	if err != nil {
		return nil, wrap(StorageError, "verify", err)
	}

	m.publish(events.EventVerifyCompleted, fmt.Sprintf("verify: %d ok, %d modified, %d missing", report.OK, report.Modified, report.Missing), nil)
	return report, nil
}
