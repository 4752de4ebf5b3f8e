package resolver

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/truss/pkg/storage"
	"github.com/cuemby/truss/pkg/types"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGraphTopoSortOrdersDependenciesFirst(t *testing.T) {
	g := NewGraph()
	app := g.addNode(Node{Name: "app"})
	lib := g.addNode(Node{Name: "libfoo"})
	base := g.addNode(Node{Name: "libc"})
	g.addEdge(app, lib, Edge{Kind: types.DependencyRuntime})
	g.addEdge(lib, base, Edge{Kind: types.DependencyRuntime})

	order, err := g.TopoSort()
	require.NoError(t, err)
	require.Len(t, order, 3)

	pos := map[string]int{}
	for i, id := range order {
		pos[g.Node(id).Name] = i
	}
	assert.Less(t, pos["libc"], pos["libfoo"])
	assert.Less(t, pos["libfoo"], pos["app"])
}

func TestGraphTopoSortDetectsCycle(t *testing.T) {
	g := NewGraph()
	a := g.addNode(Node{Name: "a"})
	b := g.addNode(Node{Name: "b"})
	c := g.addNode(Node{Name: "c"})
	g.addEdge(a, b, Edge{Kind: types.DependencyRuntime})
	g.addEdge(b, c, Edge{Kind: types.DependencyRuntime})
	g.addEdge(c, a, Edge{Kind: types.DependencyRuntime})

	_, err := g.TopoSort()
	require.Error(t, err)
	var cycleErr *CircularDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cycleErr.Members)
}

func TestGraphBreakingSet(t *testing.T) {
	g := NewGraph()
	base := g.addNode(Node{Name: "libssl", Installed: true})
	mid := g.addNode(Node{Name: "curl", Installed: true})
	top := g.addNode(Node{Name: "wget", Installed: true})
	g.addEdge(mid, base, Edge{Kind: types.DependencyRuntime})
	g.addEdge(top, mid, Edge{Kind: types.DependencyRuntime})

	breaking := g.BreakingSet(base)
	names := make([]string, len(breaking))
	for i, n := range breaking {
		names[i] = n.Name
	}
	assert.ElementsMatch(t, []string{"curl", "wget"}, names)
}

func TestGraphAddNodeDedupsAndUpgradesPlaceholder(t *testing.T) {
	g := NewGraph()
	placeholder := g.addNode(Node{Name: "libfoo", Missing: true})
	resolved := g.addNode(Node{Name: "libfoo", Version: "1.0", TroveID: 42})

	assert.Equal(t, placeholder, resolved)
	assert.False(t, g.Node(placeholder).Missing)
	assert.Equal(t, "1.0", g.Node(placeholder).Version)
	assert.Equal(t, 1, g.Len())
}

func TestParseEVR(t *testing.T) {
	cases := []struct {
		in   string
		want EVR
	}{
		{"1.2.3-1", EVR{Version: "1.2.3", Release: "1"}},
		{"2:1.2.3-1", EVR{Epoch: 2, Version: "1.2.3", Release: "1"}},
		{"1.2.3", EVR{Version: "1.2.3"}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ParseEVR(c.in), c.in)
	}
}

func TestCompareEVREpochDominates(t *testing.T) {
	a := ParseEVR("1:1.0-1")
	b := ParseEVR("9.0-1")
	assert.Positive(t, CompareEVR(a, b))
}

func TestCompareEVRNumericOutranksAlpha(t *testing.T) {
	a := ParseEVR("1.0a")
	b := ParseEVR("1.0.1")
	assert.Negative(t, CompareEVR(a, b))
}

func TestCompareEVRTildeSortsBelowEmpty(t *testing.T) {
	a := ParseEVR("1.0~rc1")
	b := ParseEVR("1.0")
	assert.Negative(t, CompareEVR(a, b))
}

func TestCompareEVREqualSegments(t *testing.T) {
	a := ParseEVR("1.2.3-1")
	b := ParseEVR("1.2.3-1")
	assert.Zero(t, CompareEVR(a, b))
}

func TestSatisfiesConstraint(t *testing.T) {
	assert.True(t, SatisfiesConstraint("1.5.0", ">= 1.2.0"))
	assert.False(t, SatisfiesConstraint("1.1.0", ">= 1.2.0"))
	assert.True(t, SatisfiesConstraint("1.2.0", "= 1.2.0"))
	assert.True(t, SatisfiesConstraint("9.9.9", ""))
}

func TestBuildFromInstalledResolvesEdgesAndPlaceholders(t *testing.T) {
	s := openTestStore(t)

	var app, lib *types.Trove
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		app = &types.Trove{Name: "app", Version: "1.0", Architecture: "x86_64", Kind: types.TroveKindPackage}
		if err := storage.CreateTrove(tx, app); err != nil {
			return err
		}
		lib = &types.Trove{Name: "libfoo", Version: "2.0", Architecture: "x86_64", Kind: types.TroveKindPackage}
		if err := storage.CreateTrove(tx, lib); err != nil {
			return err
		}
		if err := storage.PutDependency(tx, types.Dependency{TroveID: app.ID, Name: "libfoo", Kind: types.DependencyRuntime, Constraint: ">= 1.0"}); err != nil {
			return err
		}
		return storage.PutDependency(tx, types.Dependency{TroveID: app.ID, Name: "libbar", Kind: types.DependencyRuntime})
	})
	require.NoError(t, err)

	g, err := BuildFromInstalled(s.DB())
	require.NoError(t, err)

	libID, ok := g.Lookup("libfoo")
	require.True(t, ok)
	assert.True(t, g.Node(libID).Installed)

	missingID, ok := g.Lookup("libbar")
	require.True(t, ok)
	assert.True(t, g.Node(missingID).Missing)
}

func TestPlanRemovalReportsBreakingSet(t *testing.T) {
	s := openTestStore(t)

	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		base := &types.Trove{Name: "libssl", Version: "3.0", Architecture: "x86_64", Kind: types.TroveKindPackage}
		if err := storage.CreateTrove(tx, base); err != nil {
			return err
		}
		curl := &types.Trove{Name: "curl", Version: "8.0", Architecture: "x86_64", Kind: types.TroveKindPackage}
		if err := storage.CreateTrove(tx, curl); err != nil {
			return err
		}
		return storage.PutDependency(tx, types.Dependency{TroveID: curl.ID, Name: "libssl", Kind: types.DependencyRuntime})
	})
	require.NoError(t, err)

	plan, err := PlanRemoval(s.DB(), "libssl")
	require.NoError(t, err)
	assert.Equal(t, []string{"curl"}, plan.Breaking)
}
