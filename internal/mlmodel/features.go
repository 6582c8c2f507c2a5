// Package mlmodel provides the optional machine-learning enhancement
// layer on top of the rule-based detectors. A model is trained once per
// dataset identity from the rule-derived duplicate labels and then adds
// confidence scores to the rule output. It enriches, never overrides:
// rule findings stand unchanged whether or not a model is available.
package mlmodel

import (
	"math"

	"gl-audit-service/internal/models"
)

// FeatureNames lists the model features in extraction order
var FeatureNames = []string{
	"log_amount",
	"account_length",
	"user_length",
	"text_length",
	"day_of_week",
	"day_of_month",
	"month",
	"quarter",
	"is_debit",
}

// extractFeatures builds the numeric feature vector for one posting.
// Amounts enter as log1p to tame the scale; date parts come from the
// posting date and are zero when the date is missing.
func extractFeatures(p *models.GLPosting) []float64 {
	features := make([]float64, len(FeatureNames))

	features[0] = math.Log1p(p.Amount.InexactFloat64())
	features[1] = float64(len(p.GLAccount))
	features[2] = float64(len(p.UserName))
	features[3] = float64(len(p.Text))

	if !p.PostingDate.IsZero() {
		features[4] = float64(p.PostingDate.Weekday())
		features[5] = float64(p.PostingDate.Day())
		month := int(p.PostingDate.Month())
		features[6] = float64(month)
		features[7] = float64((month-1)/3 + 1)
	}

	if p.IsDebit() {
		features[8] = 1
	}

	return features
}

// extractMatrix builds the feature matrix for a batch in input order
func extractMatrix(postings []*models.GLPosting) [][]float64 {
	matrix := make([][]float64, len(postings))
	for i, p := range postings {
		matrix[i] = extractFeatures(p)
	}
	return matrix
}

// standardizer centers and scales features to zero mean and unit
// variance, the usual preconditioning for gradient descent
type standardizer struct {
	means []float64
	stds  []float64
}

// fitStandardizer computes per-feature mean and standard deviation.
// Constant features get a std of 1 so transform leaves them at zero.
func fitStandardizer(matrix [][]float64) *standardizer {
	if len(matrix) == 0 {
		return &standardizer{}
	}

	cols := len(matrix[0])
	s := &standardizer{
		means: make([]float64, cols),
		stds:  make([]float64, cols),
	}

	for j := 0; j < cols; j++ {
		var sum float64
		for _, row := range matrix {
			sum += row[j]
		}
		s.means[j] = sum / float64(len(matrix))

		var sumSquares float64
		for _, row := range matrix {
			diff := row[j] - s.means[j]
			sumSquares += diff * diff
		}
		s.stds[j] = math.Sqrt(sumSquares / float64(len(matrix)))
		if s.stds[j] == 0 {
			s.stds[j] = 1
		}
	}

	return s
}

// transform returns the standardized copy of a feature vector
func (s *standardizer) transform(features []float64) []float64 {
	if len(s.means) == 0 {
		return features
	}

	scaled := make([]float64, len(features))
	for j, v := range features {
		scaled[j] = (v - s.means[j]) / s.stds[j]
	}
	return scaled
}

// transformMatrix standardizes a full feature matrix
func (s *standardizer) transformMatrix(matrix [][]float64) [][]float64 {
	scaled := make([][]float64, len(matrix))
	for i, row := range matrix {
		scaled[i] = s.transform(row)
	}
	return scaled
}
