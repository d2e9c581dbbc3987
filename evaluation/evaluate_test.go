package evaluation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/blavejr/mealscout/models"
	"github.com/blavejr/mealscout/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRunner struct {
	replies map[string]models.ChatResponse
}

func (r scriptedRunner) Chat(ctx context.Context, in services.ChatInput) (models.ChatResponse, error) {
	q := models.LatestContent(in.Messages)
	resp, ok := r.replies[q]
	if !ok {
		return models.ChatResponse{}, errors.New("no scripted reply")
	}
	return resp, nil
}

func TestCalculateFScore(t *testing.T) {
	keywords := []string{"chicken", "rice", "beans"}

	assert.InDelta(t, 1.0, CalculateFScore("chicken rice beans", "chicken rice beans", keywords), 1e-9)
	assert.InDelta(t, 0.0, CalculateFScore("tofu", "chicken rice", keywords), 1e-9)
	// tp=1 (chicken), fn=1 (rice): precision 1, recall 0.5
	assert.InDelta(t, 2.0/3.0, CalculateFScore("Chicken bowl", "chicken and rice", keywords), 1e-9)
}

func TestEvaluate(t *testing.T) {
	no := false
	runner := scriptedRunner{replies: map[string]models.ChatResponse{
		"high protein chicken": {
			Content: "Try the chicken bowl",
			Meals:   []models.Meal{{Name: "Chicken Bowl", Restaurant: "Chipotle"}},
		},
		"hi there": {Content: "Hello!", Meals: []models.Meal{}},
		"salad":    {Content: "Nothing found", Meals: []models.Meal{}},
	}}

	questions := []Question{
		{ID: 1, Question: "high protein chicken", GroundTruth: "chicken bowl", RelevantKeywords: []string{"chicken"}},
		{ID: 2, Question: "hi there", ExpectMeals: &no},
		{ID: 3, Question: "salad", RelevantKeywords: []string{"salad"}},
		{ID: 4, Question: "unscripted"},
	}

	report, err := NewEvaluator(runner, map[string]any{"llm": "fake"}).Evaluate(context.Background(), questions)
	require.NoError(t, err)
	require.Len(t, report.Results, 4)

	assert.True(t, report.Results[0].Success)
	assert.Equal(t, []string{"chicken"}, report.Results[0].KeywordsFound)
	assert.InDelta(t, 1.0, report.Results[0].FScore, 1e-9)
	assert.True(t, report.Results[1].Success)
	assert.False(t, report.Results[2].Success)
	assert.False(t, report.Results[3].Success)
	assert.NotEmpty(t, report.Results[3].Error)

	assert.Equal(t, 4, report.Metrics.TotalQuestions)
	assert.Equal(t, 2, report.Metrics.SuccessfulQueries)
	assert.InDelta(t, 0.5, report.Metrics.SuccessRate, 1e-9)
	assert.InDelta(t, 0.25, report.Metrics.AvgMealsReturned, 1e-9)
}

func TestLoadDatasetAndSaveReport(t *testing.T) {
	questions, err := LoadDataset("dataset.json")
	require.NoError(t, err)
	require.NotEmpty(t, questions)
	for _, q := range questions {
		assert.NotEmpty(t, q.Question)
	}

	path := filepath.Join(t.TempDir(), "results", "report.json")
	require.NoError(t, SaveReport(&EvaluationReport{Results: []EvaluationResult{}}, path))
	_, err = os.Stat(path)
	assert.NoError(t, err)

	_, err = LoadDataset(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
