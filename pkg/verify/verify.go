package verify

import (
	"fmt"
	"os"

	"github.com/cuemby/truss/pkg/cas"
	"github.com/cuemby/truss/pkg/log"
	"github.com/cuemby/truss/pkg/metrics"
	"github.com/cuemby/truss/pkg/storage"
	"github.com/cuemby/truss/pkg/types"
	"github.com/rs/zerolog"
)

// FileResult is the outcome of reconciling a single FileRecord against
// the install root.
type FileResult struct {
	Path   string
	Status cas.VerifyStatus
}

// Report summarizes a verification run over one or more troves.
type Report struct {
	OK       int
	Modified int
	Missing  int
	Files    []FileResult
}

// Trove runs Verify scoped to a single installed trove, reconciling
// every FileRecord it owns against the on-disk tree rooted at
// installRoot.
func Trove(q storage.Queryer, installRoot, name string) (*Report, error) {
	logger := log.WithComponent("verify")
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.VerifyDuration)

	trove, err := storage.GetTroveByName(q, name)
	if err != nil {
		return nil, fmt.Errorf("verify: lookup %s: %w", name, err)
	}
	records, err := storage.ListFileRecordsByTrove(q, trove.ID)
	if err != nil {
		return nil, fmt.Errorf("verify: list files for %s: %w", name, err)
	}

	report := reconcile(logger, installRoot, records)
	logger.Info().Str("trove", name).Int("ok", report.OK).Int("modified", report.Modified).Int("missing", report.Missing).Msg("verify complete")
	return report, nil
}

// All runs Verify over every installed trove's FileRecords.
func All(q storage.Queryer, installRoot string) (*Report, error) {
	logger := log.WithComponent("verify")
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.VerifyDuration)

	troves, err := storage.ListTroves(q)
	if err != nil {
		return nil, fmt.Errorf("verify: list troves: %w", err)
	}

	combined := &Report{}
	for _, t := range troves {
		records, err := storage.ListFileRecordsByTrove(q, t.ID)
		if err != nil {
			return nil, fmt.Errorf("verify: list files for %s: %w", t.Name, err)
		}
		r := reconcile(logger, installRoot, records)
		combined.OK += r.OK
		combined.Modified += r.Modified
		combined.Missing += r.Missing
		combined.Files = append(combined.Files, r.Files...)
	}
	logger.Info().Int("ok", combined.OK).Int("modified", combined.Modified).Int("missing", combined.Missing).Msg("verify complete")
	return combined, nil
}

func reconcile(logger zerolog.Logger, installRoot string, records []types.FileRecord) *Report {
	report := &Report{Files: make([]FileResult, 0, len(records))}
	for _, rec := range records {
		status := reconcileOne(installRoot, rec)
		switch status {
		case cas.VerifyOK:
			report.OK++
		case cas.VerifyModified:
			report.Modified++
			metrics.VerifyMismatchesTotal.Inc()
			logger.Warn().Str("path", rec.Path).Msg("file content modified since install")
		case cas.VerifyMissing:
			report.Missing++
			metrics.VerifyMismatchesTotal.Inc()
			logger.Warn().Str("path", rec.Path).Msg("file missing since install")
		}
		report.Files = append(report.Files, FileResult{Path: rec.Path, Status: status})
	}
	return report
}

func reconcileOne(installRoot string, rec types.FileRecord) cas.VerifyStatus {
	targetPath := installRoot + rec.Path

	if rec.IsSymlink() {
		got, err := os.Readlink(targetPath)
		if err != nil {
			if os.IsNotExist(err) {
				return cas.VerifyMissing
			}
			return cas.VerifyModified
		}
		if got != rec.LinkTarget {
			return cas.VerifyModified
		}
		return cas.VerifyOK
	}

	status, err := cas.Verify(targetPath, rec.SHA256)
	if err != nil {
		return cas.VerifyModified
	}
	return status
}
