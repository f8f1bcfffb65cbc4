package pretrain

import (
	"sort"
)

// ArgsortDesc returns the indices of scores ordered from highest to lowest score.
// Ties keep ascending index order.
func ArgsortDesc(scores []float64) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	return idx
}

// ArraySplit cuts idx into k contiguous parts. With n = len(idx), the first n%k parts
// hold n/k+1 elements and the rest n/k, so parts are empty when k > n.
func ArraySplit(idx []int, k int) [][]int {
	n := len(idx)
	parts := make([][]int, k)
	size, extra := n/k, n%k
	start := 0
	for i := range parts {
		end := start + size
		if i < extra {
			end++
		}
		parts[i] = idx[start:end:end]
		start = end
	}
	return parts
}

// BinAverages returns the mean score of each cluster. Empty clusters average to 0.
func BinAverages(scores []float64, clusters [][]int) []float64 {
	avgs := make([]float64, len(clusters))
	for c, members := range clusters {
		if len(members) == 0 {
			continue
		}
		sum := 0.0
		for _, i := range members {
			sum += scores[i]
		}
		avgs[c] = sum / float64(len(members))
	}
	return avgs
}
