/*
Package config loads the core's YAML configuration file: the state
store root directory, an initial repository list, HTTP retry/backoff
tuning, sync concurrency, and log level/format.

Unmarshal applies defaults before parsing so a mostly-empty document is
valid, then validates the result; LoadFile reads a file from disk and
calls Unmarshal. pkg/facade.Open reads only Root and Repositories: the
HTTP, sync-concurrency and logging fields are parsed and validated but
Open does not apply them, and cmd/truss takes its log settings from its
own flags. Every field has a conservative default, so callers embedding
this core as a library can skip the file entirely and pass
pkg/facade.Open the result of Unmarshal(nil).
*/
package config
