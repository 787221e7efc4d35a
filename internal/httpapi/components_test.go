package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/taylordash/taylordash/internal/models"
)

func TestIntroducesCycle_DirectCycle(t *testing.T) {
	// a already depends on b; adding b->a would close a 2-node cycle.
	edges := []models.ComponentDependency{
		{ComponentID: "a", DependsOnID: "b"},
	}
	assert.True(t, introducesCycle(edges, "b", "a"))
}

func TestIntroducesCycle_TransitiveCycle(t *testing.T) {
	// a->b->c already exists; adding c->a closes the loop.
	edges := []models.ComponentDependency{
		{ComponentID: "a", DependsOnID: "b"},
		{ComponentID: "b", DependsOnID: "c"},
	}
	assert.True(t, introducesCycle(edges, "c", "a"))
}

func TestIntroducesCycle_NoCycleForUnrelatedEdge(t *testing.T) {
	edges := []models.ComponentDependency{
		{ComponentID: "a", DependsOnID: "b"},
	}
	assert.False(t, introducesCycle(edges, "c", "d"))
}

func TestIntroducesCycle_DiamondIsFine(t *testing.T) {
	// a depends on b and c, both of which depend on d. Adding a->d again
	// (convergence, not a cycle) must not be rejected.
	edges := []models.ComponentDependency{
		{ComponentID: "a", DependsOnID: "b"},
		{ComponentID: "a", DependsOnID: "c"},
		{ComponentID: "b", DependsOnID: "d"},
		{ComponentID: "c", DependsOnID: "d"},
	}
	assert.False(t, introducesCycle(edges, "a", "d"))
}
