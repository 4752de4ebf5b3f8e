package repocatalog

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/truss/pkg/types"
)

// jsonPackage mirrors the fallback JSON document's package entries:
// {name, version, arch, description, checksum, size, download_url,
// dependencies, delta_from?}.
type jsonPackage struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Architecture string            `json:"arch"`
	Description  string            `json:"description"`
	Checksum     string            `json:"checksum"`
	ChecksumType string            `json:"checksum_type"`
	Size         int64             `json:"size"`
	DownloadURL  string            `json:"download_url"`
	Dependencies []jsonDependency  `json:"dependencies"`
	DeltaFrom    string            `json:"delta_from"`
	Metadata     map[string]string `json:"metadata"`
}

type jsonDependency struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Constraint string `json:"constraint"`
}

type jsonRepo struct {
	Packages []jsonPackage `json:"packages"`
}

// ParseJSON decodes the fallback repository format used when a
// repository's native index can't be identified, per spec.md §4.3.
func ParseJSON(data []byte) ([]types.RepositoryPackage, error) {
	var repo jsonRepo
	if err := json.Unmarshal(data, &repo); err != nil {
		return nil, fmt.Errorf("repocatalog: decode json repository: %w", err)
	}

	out := make([]types.RepositoryPackage, 0, len(repo.Packages))
	for _, p := range repo.Packages {
		checksumType := p.ChecksumType
		if checksumType == "" {
			checksumType = "sha256"
		}
		pkg := types.RepositoryPackage{
			Name:         p.Name,
			Version:      p.Version,
			Architecture: p.Architecture,
			Description:  p.Description,
			Checksum:     p.Checksum,
			ChecksumType: checksumType,
			Size:         p.Size,
			DownloadURL:  p.DownloadURL,
			Metadata:     p.Metadata,
		}
		if pkg.Metadata == nil {
			pkg.Metadata = map[string]string{}
		}
		if p.DeltaFrom != "" {
			pkg.Metadata["delta_from"] = p.DeltaFrom
		}
		for _, d := range p.Dependencies {
			kind := types.DependencyRuntime
			if d.Kind != "" {
				kind = types.DependencyKind(d.Kind)
			}
			pkg.Dependencies = append(pkg.Dependencies, types.Dependency{
				Name: d.Name, Kind: kind, Constraint: d.Constraint,
			})
		}
		out = append(out, pkg)
	}
	return out, nil
}
