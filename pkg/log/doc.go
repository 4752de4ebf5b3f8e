/*
Package log provides structured logging for the package manager core
using zerolog.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	txnLog := log.WithComponent("txn")
	txnLog.Info().Int64("changeset_id", 42).Msg("changeset applied")

Component loggers (WithComponent, WithChangeset, WithTrove,
WithRepository) attach context fields once so callers don't repeat
Str/Int calls at every log site.
*/
package log
