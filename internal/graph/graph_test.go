package graph

import (
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func tx(id, from, to string, amount float64, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		SenderID:   from,
		ReceiverID: to,
		Amount:     amount,
		Timestamp:  at,
	}
}

func TestBuild(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	txs := []domain.Transaction{
		tx("t1", "B", "A", 100, base),
		tx("t2", "A", "C", 200, base.Add(time.Hour)),
		tx("t3", "A", "C", 300, base.Add(2*time.Hour)), // parallel edge
		tx("t4", "C", "B", 50, base.Add(3*time.Hour)),
	}

	g := Build(txs)

	t.Run("NodeCount", func(t *testing.T) {
		if g.NodeCount() != 3 {
			t.Errorf("expected 3 nodes, got %d", g.NodeCount())
		}
	})

	t.Run("EdgeCountKeepsParallelEdges", func(t *testing.T) {
		if g.EdgeCount() != 4 {
			t.Errorf("expected 4 edges, got %d", g.EdgeCount())
		}
	})

	t.Run("NodesSorted", func(t *testing.T) {
		want := []string{"A", "B", "C"}
		if !reflect.DeepEqual(g.Nodes(), want) {
			t.Errorf("expected nodes %v, got %v", want, g.Nodes())
		}
	})

	t.Run("SuccessorsDistinctAndSorted", func(t *testing.T) {
		want := []string{"C"}
		if !reflect.DeepEqual(g.Successors("A"), want) {
			t.Errorf("expected successors %v, got %v", want, g.Successors("A"))
		}
	})

	t.Run("Predecessors", func(t *testing.T) {
		want := []string{"A"}
		if !reflect.DeepEqual(g.Predecessors("C"), want) {
			t.Errorf("expected predecessors %v, got %v", want, g.Predecessors("C"))
		}
	})

	t.Run("Degrees", func(t *testing.T) {
		if g.OutDegree("A") != 2 {
			t.Errorf("expected out-degree 2 for A, got %d", g.OutDegree("A"))
		}
		if g.InDegree("A") != 1 {
			t.Errorf("expected in-degree 1 for A, got %d", g.InDegree("A"))
		}
		if g.Activity("A") != 3 {
			t.Errorf("expected activity 3 for A, got %d", g.Activity("A"))
		}
	})

	t.Run("EdgesSortedByTimestamp", func(t *testing.T) {
		edges := g.OutEdges("A")
		if len(edges) != 2 {
			t.Fatalf("expected 2 out edges for A, got %d", len(edges))
		}
		if edges[0].TxID != "t2" || edges[1].TxID != "t3" {
			t.Errorf("expected edges in timestamp order t2, t3, got %s, %s", edges[0].TxID, edges[1].TxID)
		}
	})

	t.Run("HasNodeHasEdge", func(t *testing.T) {
		if !g.HasNode("B") {
			t.Error("expected node B")
		}
		if g.HasNode("Z") {
			t.Error("did not expect node Z")
		}
		if !g.HasEdge("A", "C") {
			t.Error("expected edge A->C")
		}
		if g.HasEdge("C", "A") {
			t.Error("did not expect edge C->A")
		}
	})
}

func TestBuildEmpty(t *testing.T) {
	g := Build(nil)
	if g.NodeCount() != 0 {
		t.Errorf("expected 0 nodes, got %d", g.NodeCount())
	}
	if g.EdgeCount() != 0 {
		t.Errorf("expected 0 edges, got %d", g.EdgeCount())
	}
}

func TestBuildDeterministic(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	forward := []domain.Transaction{
		tx("t1", "A", "B", 1, base),
		tx("t2", "B", "C", 1, base),
		tx("t3", "C", "A", 1, base),
	}
	backward := []domain.Transaction{forward[2], forward[1], forward[0]}

	g1 := Build(forward)
	g2 := Build(backward)

	if !reflect.DeepEqual(g1.Nodes(), g2.Nodes()) {
		t.Errorf("node order differs across input orders: %v vs %v", g1.Nodes(), g2.Nodes())
	}
	for _, n := range g1.Nodes() {
		if !reflect.DeepEqual(g1.Successors(n), g2.Successors(n)) {
			t.Errorf("successor order for %s differs across input orders", n)
		}
	}
}
