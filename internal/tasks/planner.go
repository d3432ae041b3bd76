package tasks

import (
	"fmt"
	"sort"

	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/shared"
)

// Plan orders the selected categories so that every category comes after the
// selected categories it depends on. Dependencies that are not selected are
// ignored rather than added. Ties keep catalog order, so the result is
// deterministic.
//
// Options do not influence the order today; they are accepted so the planner
// stays the single place that decides execution order.
func Plan(selected []models.Category, options models.MigrationOptions) ([]models.Category, error) {
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no categories selected", shared.ErrInvalidInput)
	}

	inSet := make(map[models.Category]bool, len(selected))
	for _, c := range selected {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: unknown category %q", shared.ErrInvalidInput, c)
		}
		inSet[c] = true
	}

	indegree := make(map[models.Category]int, len(inSet))
	dependents := make(map[models.Category][]models.Category)
	for c := range inSet {
		indegree[c] = 0
	}
	for c := range inSet {
		for _, dep := range c.Dependencies() {
			if inSet[dep] {
				indegree[c]++
				dependents[dep] = append(dependents[dep], c)
			}
		}
	}

	var ready []models.Category
	for c, n := range indegree {
		if n == 0 {
			ready = append(ready, c)
		}
	}

	order := make([]models.Category, 0, len(inSet))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].Index() < ready[j].Index() })
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, d := range dependents[next] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) != len(inSet) {
		return nil, fmt.Errorf("%w: category dependencies form a cycle", shared.ErrInvalidInput)
	}
	return order, nil
}
