package merge

import (
	"math"
	"regexp"
	"strings"
)

// tokenPattern matches runs of two or more word characters.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// vectorize builds l2-normalised TF-IDF vectors with raw term counts and
// smoothed idf, ln((1+n)/(1+df)) + 1.
func vectorize(texts []string) []map[string]float64 {
	n := len(texts)
	counts := make([]map[string]float64, n)
	df := make(map[string]int)
	for i, text := range texts {
		tf := make(map[string]float64)
		for _, tok := range tokenize(text) {
			tf[tok]++
		}
		for tok := range tf {
			df[tok]++
		}
		counts[i] = tf
	}

	for _, tf := range counts {
		var norm float64
		for tok, c := range tf {
			w := c * (math.Log(float64(1+n)/float64(1+df[tok])) + 1)
			tf[tok] = w
			norm += w * w
		}
		if norm == 0 {
			continue
		}
		norm = math.Sqrt(norm)
		for tok := range tf {
			tf[tok] /= norm
		}
	}
	return counts
}

// CosineMatrix returns the TF-IDF cosine similarity of every pair of texts in
// condensed form: n*(n-1)/2 values in row-major upper-triangle order.
func CosineMatrix(texts []string) []float64 {
	vecs := vectorize(texts)
	n := len(vecs)
	if n < 2 {
		return nil
	}
	sim := make([]float64, n*(n-1)/2)

	idx := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim[idx] = dot(vecs[i], vecs[j])
			idx++
		}
	}
	return sim
}

// condensedIndex returns the index in the condensed matrix for pair (i, j).
func condensedIndex(n, i, j int) int {
	if i > j {
		i, j = j, i
	}
	return n*i - i*(i+1)/2 + j - i - 1
}

func dot(a, b map[string]float64) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var s float64
	for tok, w := range a {
		s += w * b[tok]
	}
	return s
}
