package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemalens/schemalens-engine/pkg/graph"
	"github.com/schemalens/schemalens-engine/pkg/models"
	"github.com/schemalens/schemalens-engine/pkg/schema"
)

func expansionCard() *schema.Card {
	card := planningCard()
	card.Tables["sales.regions"] = &schema.TableProfile{
		Key: "sales.regions", Schema: "sales", Name: "regions",
		Archetype: schema.ArchetypeReference,
		Columns: []schema.ColumnProfile{
			{Name: "id", Role: schema.RoleKey, IsPrimaryKey: true},
			{Name: "name", Role: schema.RoleCategory},
		},
		PrimaryKey:  []string{"id"},
		RowEstimate: 40,
	}
	card.Tables["sales.customers"].ForeignKeys = []schema.FKEdge{
		{LocalColumn: "region_id", RemoteTableKey: "sales.regions", RemoteColumn: "id"},
	}
	card.Tables["hist.orders_archive"] = &schema.TableProfile{
		Key: "hist.orders_archive", Schema: "hist", Name: "orders_archive",
		Archetype: schema.ArchetypeOperational,
		Columns: []schema.ColumnProfile{
			{Name: "id", Role: schema.RoleKey, IsPrimaryKey: true},
			{Name: "order_id", Role: schema.RoleID, IsForeignKey: true},
		},
		PrimaryKey: []string{"id"},
		ForeignKeys: []schema.FKEdge{
			{LocalColumn: "order_id", RemoteTableKey: "sales.orders", RemoteColumn: "id"},
		},
		IsArchive:   true,
		RowEstimate: 900000,
	}
	return card
}

func TestExpandFollowsFKsToDepthTwo(t *testing.T) {
	card := expansionCard()
	g := graph.Build(card.Tables)
	seeds := []models.TableSearchHit{{TableKey: "sales.orders", Score: 0.9}}

	out := expand(card, g, seeds, 8, ExpandFKFollowing, true)

	keys := make(map[string]string)
	for _, rt := range out {
		keys[rt.TableKey] = rt.Origin
	}
	assert.Equal(t, models.OriginSeed, keys["sales.orders"])
	assert.Equal(t, models.OriginExpanded, keys["sales.customers"])
	// regions is two hops from the seed.
	assert.Equal(t, models.OriginExpanded, keys["sales.regions"])
	_, hasArchive := keys["hist.orders_archive"]
	assert.False(t, hasArchive)
}

func TestExpandSimpleStopsAtNeighbors(t *testing.T) {
	card := expansionCard()
	g := graph.Build(card.Tables)
	seeds := []models.TableSearchHit{{TableKey: "sales.orders", Score: 0.9}}

	out := expand(card, g, seeds, 8, ExpandSimple, true)

	keys := make(map[string]bool)
	for _, rt := range out {
		keys[rt.TableKey] = true
	}
	assert.True(t, keys["sales.customers"])
	assert.False(t, keys["sales.regions"])
}

func TestExpandPreservesSeedsUnderBudget(t *testing.T) {
	card := expansionCard()
	g := graph.Build(card.Tables)
	seeds := []models.TableSearchHit{
		{TableKey: "sales.orders", Score: 0.9},
		{TableKey: "sales.regions", Score: 0.2},
	}

	out := expand(card, g, seeds, 2, ExpandFKFollowing, true)

	require.Len(t, out, 2)
	assert.Equal(t, "sales.orders", out[0].TableKey)
	assert.Equal(t, "sales.regions", out[1].TableKey)
}

func TestExpandArchiveIncludedWhenNotStrict(t *testing.T) {
	card := expansionCard()
	g := graph.Build(card.Tables)
	seeds := []models.TableSearchHit{{TableKey: "sales.orders", Score: 0.9}}

	out := expand(card, g, seeds, 8, ExpandFKFollowing, false)

	found := false
	for _, rt := range out {
		if rt.TableKey == "hist.orders_archive" {
			found = true
		}
	}
	assert.True(t, found)
}
