// Package flows turns a dataset into graph and flow views: the wallet
// network, Sankey diagrams, per-wallet details and balance series.
package flows

import "github.com/rawblock/wallet-anomaly-engine/pkg/models"

// Node is a wallet in the network graph.
type Node struct {
	ID               string  `json:"id"`
	TotalReceived    float64 `json:"totalReceived"`
	TotalSent        float64 `json:"totalSent"`
	NetBalance       float64 `json:"netBalance"`
	TransactionCount int     `json:"transactionCount"`
}

// Link aggregates every transfer from Source to Target.
type Link struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Amount float64 `json:"amount"`
	Count  int     `json:"count"`
}

// Graph is the wallet network.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Sankey is the index-based form flow diagrams consume.
type Sankey struct {
	Labels  []string  `json:"labels"`
	Sources []int     `json:"sources"`
	Targets []int     `json:"targets"`
	Values  []float64 `json:"values"`
}

type edgeKey struct{ from, to string }

// aggregate folds transactions into directed links in order of first
// appearance. keep filters which transfers are considered.
func aggregate(txs []models.Transaction, keep func(models.Transaction) bool) []Link {
	index := make(map[edgeKey]int)
	links := make([]Link, 0)
	for _, tx := range txs {
		if keep != nil && !keep(tx) {
			continue
		}
		k := edgeKey{tx.FromAddr, tx.ToAddr}
		i, ok := index[k]
		if !ok {
			i = len(links)
			index[k] = i
			links = append(links, Link{Source: tx.FromAddr, Target: tx.ToAddr})
		}
		links[i].Amount += tx.Amount
		links[i].Count++
	}
	return links
}

// BuildGraph returns every wallet as a node and every known wallet pair as
// a link. Transfers naming wallets outside the set are dropped.
func BuildGraph(wallets []models.Wallet, txs []models.Transaction) Graph {
	known := make(map[string]bool, len(wallets))
	nodes := make([]Node, len(wallets))
	for i, w := range wallets {
		known[w.ID] = true
		nodes[i] = Node{
			ID:               w.ID,
			TotalReceived:    w.TotalReceived,
			TotalSent:        w.TotalSent,
			NetBalance:       w.NetBalance,
			TransactionCount: w.TransactionCount,
		}
	}
	links := aggregate(txs, func(tx models.Transaction) bool {
		return known[tx.FromAddr] && known[tx.ToAddr]
	})
	return Graph{Nodes: nodes, Links: links}
}

// BuildSankey aggregates transfers per wallet pair and labels wallets in
// order of first appearance.
func BuildSankey(txs []models.Transaction) Sankey {
	s := Sankey{
		Labels:  make([]string, 0),
		Sources: make([]int, 0),
		Targets: make([]int, 0),
		Values:  make([]float64, 0),
	}
	labelIndex := make(map[string]int)
	label := func(id string) int {
		if i, ok := labelIndex[id]; ok {
			return i
		}
		labelIndex[id] = len(s.Labels)
		s.Labels = append(s.Labels, id)
		return labelIndex[id]
	}
	for _, l := range aggregate(txs, nil) {
		s.Sources = append(s.Sources, label(l.Source))
		s.Targets = append(s.Targets, label(l.Target))
		s.Values = append(s.Values, l.Amount)
	}
	return s
}
