// Package graph builds the directed transaction multigraph the detectors
// traverse. The graph is built once per analysis run and is read-only
// afterward, so the detectors share it across goroutines without locking.
package graph

import (
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Edge is one transaction projected onto the graph. Parallel edges between
// the same pair of accounts are preserved, never merged.
type Edge struct {
	TxID      string
	From      string
	To        string
	Amount    float64
	Timestamp time.Time
}

// Graph is a directed transaction multigraph. Nodes are account ids, one
// edge per transaction. All accessors return deterministic, sorted views so
// downstream output is reproducible across runs.
type Graph struct {
	nodes     []string
	nodeIndex map[string]struct{}

	out map[string][]Edge
	in  map[string][]Edge

	// successors/predecessors hold distinct neighbor ids, sorted.
	successors   map[string][]string
	predecessors map[string][]string

	edgeCount int
}

// Build constructs the graph from a validated transaction list. Both
// endpoints become nodes; each transaction becomes one directed edge.
// Runs in O(V+E) plus the neighbor sort.
func Build(txs []domain.Transaction) *Graph {
	g := &Graph{
		nodeIndex:    make(map[string]struct{}),
		out:          make(map[string][]Edge),
		in:           make(map[string][]Edge),
		successors:   make(map[string][]string),
		predecessors: make(map[string][]string),
	}

	succSet := make(map[string]map[string]struct{})
	predSet := make(map[string]map[string]struct{})

	for _, tx := range txs {
		g.addNode(tx.SenderID)
		g.addNode(tx.ReceiverID)

		e := Edge{
			TxID:      tx.ID,
			From:      tx.SenderID,
			To:        tx.ReceiverID,
			Amount:    tx.Amount,
			Timestamp: tx.Timestamp,
		}
		g.out[tx.SenderID] = append(g.out[tx.SenderID], e)
		g.in[tx.ReceiverID] = append(g.in[tx.ReceiverID], e)
		g.edgeCount++

		if succSet[tx.SenderID] == nil {
			succSet[tx.SenderID] = make(map[string]struct{})
		}
		succSet[tx.SenderID][tx.ReceiverID] = struct{}{}

		if predSet[tx.ReceiverID] == nil {
			predSet[tx.ReceiverID] = make(map[string]struct{})
		}
		predSet[tx.ReceiverID][tx.SenderID] = struct{}{}
	}

	sort.Strings(g.nodes)

	for node, set := range succSet {
		g.successors[node] = sortedKeys(set)
	}
	for node, set := range predSet {
		g.predecessors[node] = sortedKeys(set)
	}

	// Edge lists sorted by timestamp (then tx id) so temporal detectors
	// see a stable order without re-sorting per run.
	for _, edges := range g.out {
		sortEdges(edges)
	}
	for _, edges := range g.in {
		sortEdges(edges)
	}

	return g
}

func (g *Graph) addNode(id string) {
	if _, ok := g.nodeIndex[id]; ok {
		return
	}
	g.nodeIndex[id] = struct{}{}
	g.nodes = append(g.nodes, id)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].Timestamp.Equal(edges[j].Timestamp) {
			return edges[i].Timestamp.Before(edges[j].Timestamp)
		}
		return edges[i].TxID < edges[j].TxID
	})
}

// Nodes returns all account ids in ascending order.
func (g *Graph) Nodes() []string {
	return g.nodes
}

// HasNode reports whether the account appears in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodeIndex[id]
	return ok
}

// NodeCount returns the number of distinct accounts.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of transactions (parallel edges included).
func (g *Graph) EdgeCount() int {
	return g.edgeCount
}

// Successors returns the distinct receiving accounts of id, sorted.
func (g *Graph) Successors(id string) []string {
	return g.successors[id]
}

// Predecessors returns the distinct sending accounts of id, sorted.
func (g *Graph) Predecessors(id string) []string {
	return g.predecessors[id]
}

// OutEdges returns the outgoing edges of id ordered by timestamp.
func (g *Graph) OutEdges(id string) []Edge {
	return g.out[id]
}

// InEdges returns the incoming edges of id ordered by timestamp.
func (g *Graph) InEdges(id string) []Edge {
	return g.in[id]
}

// OutDegree returns the number of outgoing transactions for id.
func (g *Graph) OutDegree(id string) int {
	return len(g.out[id])
}

// InDegree returns the number of incoming transactions for id.
func (g *Graph) InDegree(id string) int {
	return len(g.in[id])
}

// Activity returns the total transaction count (in + out) for id. Shell
// chain detection uses this as the low-activity predicate.
func (g *Graph) Activity(id string) int {
	return len(g.in[id]) + len(g.out[id])
}

// HasEdge reports whether at least one transaction from → to exists.
func (g *Graph) HasEdge(from, to string) bool {
	for _, e := range g.out[from] {
		if e.To == to {
			return true
		}
	}
	return false
}
