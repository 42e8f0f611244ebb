package predictor

import (
	"strings"

	"github.com/avockley/prewarm/pkg/warmstore"
)

// RouteData maps a route prefix to the data the host needs when it lands there.
// The table is ordered: the first matching prefix wins.
type RouteData struct {
	Prefix       string
	Requirements []warmstore.DataRequirement
}

// DefaultRouteData returns the built-in route table for the insurance-product
// admin screens. Deployments override it in prewarm.yml.
func DefaultRouteData() []RouteData {
	return []RouteData{
		{
			Prefix: "/products",
			Requirements: []warmstore.DataRequirement{
				{Category: "products", Identifier: "all"},
				{Category: "coverages", Identifier: "all"},
			},
		},
		{
			Prefix: "/coverage",
			Requirements: []warmstore.DataRequirement{
				{Category: "coverages", Identifier: "all"},
				{Category: "forms", Identifier: "all"},
			},
		},
		{
			Prefix: "/forms",
			Requirements: []warmstore.DataRequirement{
				{Category: "forms", Identifier: "all"},
			},
		},
		{
			Prefix: "/pricing",
			Requirements: []warmstore.DataRequirement{
				{Category: "pricing", Identifier: "all"},
				{Category: "rules", Identifier: "all"},
			},
		},
		{
			Prefix: "/tasks",
			Requirements: []warmstore.DataRequirement{
				{Category: "tasks", Identifier: "all"},
			},
		},
		{
			Prefix: "/rules",
			Requirements: []warmstore.DataRequirement{
				{Category: "rules", Identifier: "all"},
			},
		},
	}
}

// RequirementsForRoute returns the requirements of the first table entry whose
// prefix the route starts with. No match yields nil: some routes legitimately
// have nothing worth prefetching.
func RequirementsForRoute(table []RouteData, route string) []warmstore.DataRequirement {
	for _, entry := range table {
		if strings.HasPrefix(route, entry.Prefix) {
			return entry.Requirements
		}
	}
	return nil
}
