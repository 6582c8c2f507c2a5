package mlmodel

import (
	"fmt"
	"testing"
	"time"

	"gl-audit-service/internal/detector"
	"gl-audit-service/internal/models"
	auditerrors "gl-audit-service/pkg/errors"

	"github.com/shopspring/decimal"
)

func createTestPosting(id, account, amount, user string, day int) *models.GLPosting {
	amt, _ := decimal.NewFromString(amount)
	p := models.NewGLPosting(id, account, amt, models.TransactionTypeDebit, user,
		time.Date(2026, 3, day%28+1, 0, 0, 0, 0, time.UTC))
	p.DocumentNumber = "DOC-" + id
	p.DocumentType = "SA"
	p.Text = "Posting " + id
	return p
}

// createTrainingBatch builds a batch with a duplicate cluster and
// distinct fillers so the rule labels carry both classes
func createTrainingBatch(size int) ([]*models.GLPosting, *detector.DuplicateReport) {
	var postings []*models.GLPosting

	for i := 0; i < size/2; i++ {
		postings = append(postings,
			createTestPosting(fmt.Sprintf("DUP-%d", i), "100000", "500.00", "ALICE", 5))
	}
	for i := size / 2; i < size; i++ {
		postings = append(postings,
			createTestPosting(fmt.Sprintf("UNQ-%d", i), fmt.Sprintf("%d", 200000+i),
				fmt.Sprintf("%d.00", 100+i*37), "BOB", i))
	}

	report := detector.ClassifyDuplicates(postings, detector.DefaultAnalysisConfig())
	return postings, report
}

func TestTrainSkippedOnSmallBatch(t *testing.T) {
	postings, report := createTrainingBatch(5)

	model := NewDuplicateModel(nil)
	result, err := model.Train(postings, report, TrainOptions{})
	if err != nil {
		t.Fatalf("a small batch must not produce an error, got %v", err)
	}

	if result.Status != TrainingSkipped {
		t.Errorf("expected SKIPPED, got %s", result.Status)
	}
	if result.Reason == "" {
		t.Error("expected a reason naming the minimum batch size")
	}
	if model.IsTrained() {
		t.Error("a skipped run must leave the model untrained")
	}
}

func TestPredictBeforeTraining(t *testing.T) {
	model := NewDuplicateModel(nil)

	_, err := model.Predict([]*models.GLPosting{createTestPosting("T1", "100000", "1.00", "A", 1)})
	if err == nil {
		t.Fatal("expected an error before training")
	}
	if !auditerrors.HasCode(err, auditerrors.CodeModelNotTrained) {
		t.Errorf("expected model_not_trained code, got %v", err)
	}
}

func TestTrainAndPredict(t *testing.T) {
	postings, report := createTrainingBatch(40)

	model := NewDuplicateModel(nil)
	result, err := model.Train(postings, report, TrainOptions{})
	if err != nil {
		t.Fatalf("unexpected training error: %v", err)
	}

	if result.Status != TrainingCompleted {
		t.Fatalf("expected COMPLETED, got %s", result.Status)
	}
	if !model.IsTrained() {
		t.Fatal("expected a trained model")
	}

	state := result.State
	if state.SampleCount != 40 {
		t.Errorf("expected 40 samples, got %d", state.SampleCount)
	}
	if state.PositiveCount != 20 {
		t.Errorf("expected 20 positives from the duplicate cluster, got %d", state.PositiveCount)
	}
	if state.Metrics.Accuracy < 0.5 {
		t.Errorf("training accuracy implausibly low: %f", state.Metrics.Accuracy)
	}

	predictions, err := model.Predict(postings)
	if err != nil {
		t.Fatalf("unexpected prediction error: %v", err)
	}
	if len(predictions) != len(postings) {
		t.Fatalf("expected %d predictions, got %d", len(postings), len(predictions))
	}

	for _, prediction := range predictions {
		if prediction.DuplicateProbability < 0 || prediction.DuplicateProbability > 1 {
			t.Errorf("%s: probability out of range: %f",
				prediction.PostingID, prediction.DuplicateProbability)
		}
		if prediction.RiskScore < 0 || prediction.RiskScore > 25 {
			t.Errorf("%s: risk score out of range: %d", prediction.PostingID, prediction.RiskScore)
		}
	}
}

func TestTrainOncePerDataset(t *testing.T) {
	postings, report := createTrainingBatch(30)

	model := NewDuplicateModel(nil)
	first, err := model.Train(postings, report, TrainOptions{})
	if err != nil {
		t.Fatalf("unexpected training error: %v", err)
	}

	second, err := model.Train(postings, report, TrainOptions{})
	if err != nil {
		t.Fatalf("unexpected training error: %v", err)
	}

	if second.Status != TrainingUnchanged {
		t.Errorf("expected ALREADY_TRAINED on identical dataset, got %s", second.Status)
	}
	if !second.State.TrainedAt.Equal(first.State.TrainedAt) {
		t.Error("an unchanged dataset must keep the original training timestamp")
	}

	forced, err := model.Train(postings, report, TrainOptions{ForceRetrain: true})
	if err != nil {
		t.Fatalf("unexpected training error: %v", err)
	}
	if forced.Status != TrainingCompleted {
		t.Errorf("expected COMPLETED with ForceRetrain, got %s", forced.Status)
	}
}

func TestTrainDetectsDatasetChange(t *testing.T) {
	postings, report := createTrainingBatch(30)

	model := NewDuplicateModel(nil)
	if _, err := model.Train(postings, report, TrainOptions{}); err != nil {
		t.Fatalf("unexpected training error: %v", err)
	}

	changed := append([]*models.GLPosting(nil), postings...)
	changed = append(changed, createTestPosting("NEW-1", "999999", "123.45", "CAROL", 20))
	changedReport := detector.ClassifyDuplicates(changed, detector.DefaultAnalysisConfig())

	result, err := model.Train(changed, changedReport, TrainOptions{})
	if err != nil {
		t.Fatalf("unexpected training error: %v", err)
	}
	if result.Status != TrainingCompleted {
		t.Errorf("a changed dataset must retrain, got %s", result.Status)
	}
}

func TestDatasetIDOrderSensitive(t *testing.T) {
	p1 := createTestPosting("T1", "100000", "1.00", "A", 1)
	p2 := createTestPosting("T2", "100000", "2.00", "A", 2)

	forward := DatasetID([]*models.GLPosting{p1, p2})
	reversed := DatasetID([]*models.GLPosting{p2, p1})

	if forward == reversed {
		t.Error("dataset identity must be order sensitive")
	}
	if forward != DatasetID([]*models.GLPosting{p1, p2}) {
		t.Error("dataset identity must be deterministic")
	}
}

func TestEnrichGroups(t *testing.T) {
	postings, report := createTrainingBatch(30)

	model := NewDuplicateModel(nil)
	if _, err := model.Train(postings, report, TrainOptions{}); err != nil {
		t.Fatalf("unexpected training error: %v", err)
	}

	before := make([]string, len(report.Groups))
	counts := make([]int, len(report.Groups))
	for i, g := range report.Groups {
		before[i] = g.Key
		counts[i] = g.Count
	}

	if err := model.EnrichGroups(report); err != nil {
		t.Fatalf("unexpected enrichment error: %v", err)
	}

	for i, g := range report.Groups {
		if g.Key != before[i] {
			t.Errorf("group %d: enrichment must not reorder groups", i)
		}
		if g.Count != counts[i] {
			t.Errorf("group %d: enrichment must not change membership", i)
		}
		if g.MLConfidence < 0 || g.MLConfidence > 1 {
			t.Errorf("group %d: confidence out of range: %f", i, g.MLConfidence)
		}
		if g.RiskScore == 0 {
			t.Errorf("group %d: rule risk score must survive enrichment", i)
		}
	}
}

func TestEnrichGroupsBeforeTraining(t *testing.T) {
	_, report := createTrainingBatch(30)

	model := NewDuplicateModel(nil)
	err := model.EnrichGroups(report)
	if !auditerrors.HasCode(err, auditerrors.CodeModelNotTrained) {
		t.Errorf("expected model_not_trained code, got %v", err)
	}
}

func TestExtractFeatures(t *testing.T) {
	p := createTestPosting("T1", "100000", "1000.00", "ALICE", 9)

	features := extractFeatures(p)
	if len(features) != len(FeatureNames) {
		t.Fatalf("expected %d features, got %d", len(FeatureNames), len(features))
	}

	if features[1] != 6 {
		t.Errorf("expected account length 6, got %f", features[1])
	}
	if features[2] != 5 {
		t.Errorf("expected user length 5, got %f", features[2])
	}
	if features[8] != 1 {
		t.Errorf("expected debit indicator 1, got %f", features[8])
	}
}

func TestStandardizerConstantColumn(t *testing.T) {
	matrix := [][]float64{{1, 5}, {2, 5}, {3, 5}}

	s := fitStandardizer(matrix)
	scaled := s.transformMatrix(matrix)

	for i, row := range scaled {
		if row[1] != 0 {
			t.Errorf("row %d: constant column must standardize to 0, got %f", i, row[1])
		}
	}
}
