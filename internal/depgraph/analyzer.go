// Package depgraph implements the optional dependency analyzer (spec.md
// §4.8): before admitting ready tasks to the claim pool, ask a worker to
// infer blocker edges among them, then apply the edges with cycle
// rejection.
package depgraph

import (
	"context"
	"fmt"

	"github.com/wcgan7/agentctl/internal/task"
)

// Edge is one inferred dependency: From must complete before To.
type Edge struct {
	From   string
	To     string
	Reason string
}

// Analyze is invoked by a worker (or a stub in tests) to infer edges among
// candidate tasks, given the candidates and any already-analyzed
// non-terminal tasks as context.
type Analyze func(ctx context.Context, candidates, existing []task.Task) ([]Edge, error)

// Analyzer runs one dependency-analysis pass over a snapshot of tasks.
type Analyzer struct {
	analyze Analyze
}

// New constructs an Analyzer that calls analyze to infer edges.
func New(analyze Analyze) *Analyzer {
	return &Analyzer{analyze: analyze}
}

// Result is the outcome of one analysis pass: edges actually applied,
// edges rejected (with a reason), and the ids of every candidate task that
// must now be marked deps_analyzed regardless of outcome.
type Result struct {
	Applied  []Edge
	Rejected []RejectedEdge
	Analyzed []string
}

// RejectedEdge names why an inferred edge was not applied.
type RejectedEdge struct {
	Edge   Edge
	Reason string
}

// Run selects candidates (status=ready, not deps_analyzed, source != PRD
// import) from all, invokes Analyze when there are at least two candidates,
// and applies returned edges to blocked_by/blocks with DFS cycle rejection.
// It returns the updated task slice (candidates and edge endpoints
// mutated in place) alongside a Result describing what happened.
func (a *Analyzer) Run(ctx context.Context, all []task.Task) ([]task.Task, Result, error) {
	byID := make(map[string]int, len(all))
	for i, t := range all {
		byID[t.ID] = i
	}

	var candidateIdx []int
	var existing []task.Task
	for i, t := range all {
		if t.Status == task.StatusReady && !t.Metadata.DepsAnalyzed && t.Metadata.Source != "prd_import" {
			candidateIdx = append(candidateIdx, i)
		} else if !t.Status.Terminal() {
			existing = append(existing, t)
		}
	}

	var result Result
	if len(candidateIdx) < 2 {
		for _, i := range candidateIdx {
			all[i].Metadata.DepsAnalyzed = true
			result.Analyzed = append(result.Analyzed, all[i].ID)
		}
		return all, result, nil
	}

	candidates := make([]task.Task, len(candidateIdx))
	for n, i := range candidateIdx {
		candidates[n] = all[i]
	}

	edges, err := a.analyze(ctx, candidates, existing)
	if err != nil {
		return all, result, fmt.Errorf("depgraph: analyze: %w", err)
	}

	g := newGraph(all)
	for _, e := range edges {
		fromIdx, fromOK := byID[e.From]
		toIdx, toOK := byID[e.To]
		switch {
		case !fromOK || !toOK:
			result.Rejected = append(result.Rejected, RejectedEdge{e, "unknown id"})
		case e.From == e.To:
			result.Rejected = append(result.Rejected, RejectedEdge{e, "self edge"})
		case g.wouldCycle(e.From, e.To):
			result.Rejected = append(result.Rejected, RejectedEdge{e, "would create a cycle"})
		default:
			g.addEdge(e.From, e.To)
			all[toIdx].BlockedBy = appendUnique(all[toIdx].BlockedBy, e.From)
			all[fromIdx].Blocks = appendUnique(all[fromIdx].Blocks, e.To)
			all[toIdx].Metadata.InferredDeps = appendUnique(all[toIdx].Metadata.InferredDeps, e.From)
			result.Applied = append(result.Applied, e)
		}
	}

	for _, i := range candidateIdx {
		all[i].Metadata.DepsAnalyzed = true
		result.Analyzed = append(result.Analyzed, all[i].ID)
	}

	return all, result, nil
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// graph tracks blocked_by edges (from -> to meaning from blocks to, i.e. to
// depends on from) for cycle detection via DFS.
type graph struct {
	blockedBy map[string][]string
}

func newGraph(tasks []task.Task) *graph {
	g := &graph{blockedBy: make(map[string][]string, len(tasks))}
	for _, t := range tasks {
		g.blockedBy[t.ID] = append([]string(nil), t.BlockedBy...)
	}
	return g
}

func (g *graph) addEdge(from, to string) {
	g.blockedBy[to] = append(g.blockedBy[to], from)
}

// wouldCycle reports whether adding the edge "to depends on from" (i.e.
// appending from to to's blocked_by) would create a cycle. That happens
// exactly when from already transitively depends on to: walking from's own
// blocked_by chain reaches to, which after the new edge would close the
// loop.
func (g *graph) wouldCycle(from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{}
	var dfs func(node string) bool
	dfs = func(node string) bool {
		if node == to {
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		for _, dep := range g.blockedBy[node] {
			if dfs(dep) {
				return true
			}
		}
		return false
	}
	return dfs(from)
}
