/*
Package deb parses Debian binary packages: the outer ar(1) archive,
the inner control and data tarballs, and the RFC-822-like control
stanza they carry.

The outer ar container has no library anywhere in the reference corpus
(justified stdlib use, see DESIGN.md); everything below the ar layer —
control-paragraph decoding, dependency-relation parsing and per-member
decompression — reuses pault.ag/go/debian/{control,dependency,deb}
exactly as paultag-go-archive's packages.go does.
*/
package deb
