/*
Package repocatalog parses the native upstream index format of each
supported repository and turns it into types.RepositoryPackage rows,
plus the sync protocol that keeps the State Store's repository tables
current.

Format is picked heuristically from the repository's name and URL
(arch/pacman, Fedora, Debian/Ubuntu, else JSON). The Debian parser
reuses pault.ag/go/debian/control the same way pkg/readers/deb does;
Arch and Fedora have no such library in the reference corpus and are
hand-rolled (see DESIGN.md).
*/
package repocatalog
