/*
Package readers defines the uniform capability every format-specific
package reader exposes, plus suffix-then-magic-byte format detection.

Each of the rpm, deb and arch subpackages implements Reader over its own
wire format but returns the same types.Trove/types.Dependency/
types.FileRecord shapes, so pkg/txn never needs to know which archive
format produced them.
*/
package readers
