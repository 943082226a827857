package index

import "math"

func dotProduct(vec1, vec2 []float32) float32 {
	var product float32
	for i := range vec1 {
		product += vec1[i] * vec2[i]
	}
	return product
}

func magnitude(vec []float32) float32 {
	var sumOfSquares float32
	for _, val := range vec {
		sumOfSquares += val * val
	}
	return float32(math.Sqrt(float64(sumOfSquares)))
}

// cosineSimilarity assumes both vectors have the same dimension; callers
// validate that before scoring.
func cosineSimilarity(vec1, vec2 []float32) float32 {
	mag1 := magnitude(vec1)
	mag2 := magnitude(vec2)
	if mag1 == 0 || mag2 == 0 {
		return 0
	}
	return dotProduct(vec1, vec2) / (mag1 * mag2)
}
