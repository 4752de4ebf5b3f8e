/*
Package arch parses pacman packages: a tar archive (optionally
zstd/xz/gzip compressed) carrying a .PKGINFO key=value metadata file
and the package's regular files.

No Arch Linux package-metadata library appears anywhere in the
reference corpus, so .PKGINFO decoding is hand-rolled over
archive/tar plus the same zstd/xz decoders the delta engine and
repository catalog already depend on (justified stdlib/ecosystem use,
see DESIGN.md).
*/
package arch
