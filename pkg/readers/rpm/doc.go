/*
Package rpm parses RPM packages: the lead, signature and header tag
tables, and the CPIO payload they describe. No RPM library appears
anywhere in the reference corpus this reader was grounded on, so the
tag-table and CPIO decoders are hand-rolled against encoding/binary and
archive layout documentation rather than ported from an existing
package (see DESIGN.md).
*/
package rpm
