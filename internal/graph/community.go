package graph

import (
	"math/rand"
	"sort"
	"strings"
)

// Config tunes Leiden community detection (spec §4.L defaults).
type Config struct {
	Resolution     float64
	MaxIterations  int
	MinImprovement float64
	Seed           *int64
}

// DefaultConfig matches spec §4.L's stated defaults.
func DefaultConfig() Config {
	return Config{
		Resolution:     1.0,
		MaxIterations:  100,
		MinImprovement: 1e-6,
	}
}

// DetectCommunities runs Leiden community detection over the graph's
// current adjacency matrix and returns each entity's assigned
// community id. It does not mutate the graph; call ApplyCommunities to
// persist the result onto the entities and build named Community
// records.
func DetectCommunities(g *Graph, cfg Config) map[EntityID]int {
	entityIDs, matrix := g.AdjacencyMatrix()
	n := len(entityIDs)
	if n == 0 {
		return map[EntityID]int{}
	}

	communities := make([]int, n)
	for i := range communities {
		communities[i] = i
	}

	degrees := make([]float64, n)
	totalWeight := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			degrees[i] += matrix[i][j]
		}
		totalWeight += degrees[i]
	}
	totalWeight /= 2.0

	result := make(map[EntityID]int, n)
	if totalWeight == 0 {
		for i, id := range entityIDs {
			result[id] = i
		}
		return result
	}

	var src rand.Source
	if cfg.Seed != nil {
		src = rand.NewSource(*cfg.Seed)
	} else {
		src = rand.NewSource(1) //nolint:gosec // deterministic fallback, not a security boundary
	}
	rng := rand.New(src) //nolint:gosec // community topology, not a security boundary

	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 100
	}

	for iter := 0; iter < maxIterations; iter++ {
		oldModularity := computeModularity(matrix, communities, degrees, totalWeight, cfg.Resolution)

		improved := localMovingPhase(matrix, communities, degrees, totalWeight, cfg.Resolution, rng)
		refinementPhase(matrix, communities)

		newModularity := computeModularity(matrix, communities, degrees, totalWeight, cfg.Resolution)
		improvement := newModularity - oldModularity

		if !improved || improvement < cfg.MinImprovement {
			break
		}
		renumberCommunities(communities)
	}
	renumberCommunities(communities)

	for i, id := range entityIDs {
		result[id] = communities[i]
	}
	return result
}

// localMovingPhase visits nodes in random order and moves each one to
// whichever neighboring community yields the greatest modularity gain,
// if any gain beats staying put. Returns whether any node moved.
func localMovingPhase(matrix [][]float64, communities []int, degrees []float64, totalWeight, resolution float64, rng *rand.Rand) bool {
	n := len(communities)
	order := rng.Perm(n)
	improved := false

	for _, node := range order {
		currentCommunity := communities[node]

		neighborCommunities := make(map[int]float64)
		for j := 0; j < n; j++ {
			if j == node {
				continue
			}
			w := matrix[node][j]
			if w > 0 {
				neighborCommunities[communities[j]] += w
			}
		}
		if _, ok := neighborCommunities[currentCommunity]; !ok {
			neighborCommunities[currentCommunity] = 0
		}

		candidates := make([]int, 0, len(neighborCommunities))
		for candidate := range neighborCommunities {
			candidates = append(candidates, candidate)
		}
		sort.Ints(candidates)

		bestCommunity := currentCommunity
		bestGain := 0.0
		edgeToCurrent := neighborCommunities[currentCommunity]

		for _, candidate := range candidates {
			if candidate == currentCommunity {
				continue
			}
			edgeToCandidate := neighborCommunities[candidate]
			gain := modularityGain(node, candidate, currentCommunity, edgeToCandidate, edgeToCurrent, communities, degrees, totalWeight, resolution)
			if gain > bestGain {
				bestGain = gain
				bestCommunity = candidate
			}
		}

		if bestCommunity != currentCommunity {
			communities[node] = bestCommunity
			improved = true
		}
	}
	return improved
}

// modularityGain computes the change in modularity from moving node
// out of oldCommunity and into newCommunity, following the standard
// Louvain delta-Q formula.
func modularityGain(node, newCommunity, oldCommunity int, edgeToNew, edgeToOld float64, communities []int, degrees []float64, totalWeight, resolution float64) float64 {
	nodeDegree := degrees[node]

	newCommDegree := 0.0
	for i, c := range communities {
		if c == newCommunity {
			newCommDegree += degrees[i]
		}
	}

	oldCommDegree := 0.0
	for i, c := range communities {
		if c == oldCommunity {
			oldCommDegree += degrees[i]
		}
	}
	oldCommDegree -= nodeDegree

	gainNew := edgeToNew - resolution*nodeDegree*newCommDegree/(2*totalWeight)
	gainOld := edgeToOld - resolution*nodeDegree*oldCommDegree/(2*totalWeight)
	return gainNew - gainOld
}

// refinementPhase checks, within each community, whether every member
// is reachable from any other member via positive-weight edges
// restricted to that community's own node set. Any member that is not
// reachable is split out into a fresh singleton community id (n +
// node, guaranteed unused since all real community ids start below n
// before renumbering).
func refinementPhase(matrix [][]float64, communities []int) {
	n := len(communities)

	byCommunity := make(map[int][]int)
	for node, c := range communities {
		byCommunity[c] = append(byCommunity[c], node)
	}

	for _, members := range byCommunity {
		if len(members) <= 1 {
			continue
		}
		inCommunity := make(map[int]bool, len(members))
		for _, m := range members {
			inCommunity[m] = true
		}

		visited := make(map[int]bool, len(members))
		stack := []int{members[0]}
		visited[members[0]] = true
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, neighbor := range members {
				if visited[neighbor] || matrix[node][neighbor] <= 0 {
					continue
				}
				visited[neighbor] = true
				stack = append(stack, neighbor)
			}
		}

		for _, m := range members {
			if !visited[m] {
				communities[m] = n + m
			}
		}
	}
}

// computeModularity evaluates the standard Newman-Girvan modularity
// Q = (1/2m) * sum_{i,j same community} [A_ij - resolution*k_i*k_j/2m].
func computeModularity(matrix [][]float64, communities []int, degrees []float64, totalWeight, resolution float64) float64 {
	if totalWeight == 0 {
		return 0
	}
	n := len(communities)
	q := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if communities[i] != communities[j] {
				continue
			}
			q += matrix[i][j] - resolution*degrees[i]*degrees[j]/(2*totalWeight)
		}
	}
	return q / (2 * totalWeight)
}

// renumberCommunities relabels community ids contiguously from 0,
// preserving first-seen order.
func renumberCommunities(communities []int) {
	next := 0
	seen := make(map[int]int)
	for i, c := range communities {
		id, ok := seen[c]
		if !ok {
			id = next
			seen[c] = id
			next++
		}
		communities[i] = id
	}
}

// ApplyCommunities writes a DetectCommunities result onto the graph's
// entities and builds a named, keyworded Community record for each
// distinct id: the name is the comma-joined names of up to three of its
// members, and the keywords are up to ten distinct underscore-delimited
// name segments longer than two characters across its members. Which
// members and segments are picked follows map iteration order, so it
// can differ between runs.
func ApplyCommunities(g *Graph, assignment map[EntityID]int) {
	byCommunity := make(map[int][]EntityID)
	for id, communityID := range assignment {
		g.SetCommunity(id, communityID)
		byCommunity[communityID] = append(byCommunity[communityID], id)
	}

	for communityID, members := range byCommunity {
		c := Community{ID: communityID, Members: members}

		var names []string
		keywordSet := make(map[string]bool)
		for i, id := range members {
			e, ok := g.entityByID(id)
			if !ok {
				continue
			}
			if i < 3 {
				names = append(names, e.Name)
			}
			for _, segment := range strings.Split(e.Name, "_") {
				if len(segment) > 2 {
					keywordSet[segment] = true
				}
			}
		}
		c.Name = strings.Join(names, ", ")

		for k := range keywordSet {
			c.Keywords = append(c.Keywords, k)
			if len(c.Keywords) == 10 {
				break
			}
		}

		g.AddCommunity(c)
	}
}
