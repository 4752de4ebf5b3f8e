package repocatalog

import "strings"

// Format identifies which upstream index layout a repository publishes.
type Format string

const (
	FormatArch   Format = "arch"
	FormatDebian Format = "debian"
	FormatFedora Format = "fedora"
	FormatJSON   Format = "json"
)

// DetectFormat picks a Format from a repository's name and URL, per
// spec.md §4.3's heuristic: look for ecosystem markers, else fall back
// to the JSON format.
func DetectFormat(name, url string) Format {
	hay := strings.ToLower(name + " " + url)
	switch {
	case strings.Contains(hay, "arch") || strings.Contains(hay, "pkgbuild"):
		return FormatArch
	case strings.Contains(hay, "fedora") || strings.Contains(hay, "/releases/"):
		return FormatFedora
	case strings.Contains(hay, "debian") || strings.Contains(hay, "ubuntu") || strings.Contains(hay, "/dists/"):
		return FormatDebian
	default:
		return FormatJSON
	}
}
