package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blavejr/mealscout/models"
	"github.com/blavejr/mealscout/services"
)

// Question is one scripted chat turn with the meals we hope to see.
type Question struct {
	ID               int                 `json:"id"`
	Question         string              `json:"question"`
	Profile          *models.UserProfile `json:"user_profile,omitempty"`
	Location         *models.Location    `json:"location,omitempty"`
	RadiusMiles      *float64            `json:"radius_miles,omitempty"`
	GroundTruth      string              `json:"ground_truth_answer"`
	RelevantKeywords []string            `json:"relevant_keywords"`
	ExpectMeals      *bool               `json:"expect_meals,omitempty"`
	Notes            string              `json:"notes"`
}

type EvaluationResult struct {
	QuestionID     int      `json:"question_id"`
	Question       string   `json:"question"`
	Answer         string   `json:"answer"`
	Meals          []string `json:"meals"`
	MealsReturned  int      `json:"meals_returned"`
	ResponseTimeMs int64    `json:"response_time_ms"`
	KeywordsFound  []string `json:"keywords_found"`
	Success        bool     `json:"success"`
	FScore         float64  `json:"f_score"`
	Error          string   `json:"error,omitempty"`
}

type Metrics struct {
	TotalQuestions    int            `json:"total_questions"`
	SuccessfulQueries int            `json:"successful_queries"`
	SuccessRate       float64        `json:"success_rate"`
	AvgResponseTime   float64        `json:"avg_response_time_ms"`
	AvgMealsReturned  float64        `json:"avg_meals_returned"`
	AvgFScore         float64        `json:"avg_f_score"`
	Timestamp         string         `json:"timestamp"`
	Configuration     map[string]any `json:"configuration"`
}

type EvaluationReport struct {
	Metrics Metrics            `json:"metrics"`
	Results []EvaluationResult `json:"results"`
}

type ChatRunner interface {
	Chat(ctx context.Context, in services.ChatInput) (models.ChatResponse, error)
}

type Evaluator struct {
	runner        ChatRunner
	configuration map[string]any
}

// NewEvaluator evaluates runner; configuration is copied into the report as is.
func NewEvaluator(runner ChatRunner, configuration map[string]any) *Evaluator {
	return &Evaluator{runner: runner, configuration: configuration}
}

func LoadDataset(filepath string) ([]Question, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	return questions, nil
}

func (e *Evaluator) Evaluate(ctx context.Context, questions []Question) (*EvaluationReport, error) {
	results := make([]EvaluationResult, 0, len(questions))

	fmt.Println("Starting evaluation...")
	fmt.Printf("Total questions: %d\n", len(questions))
	fmt.Println("---")

	for i, q := range questions {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("evaluation cancelled: %w", err)
		}
		fmt.Printf("[%d/%d] Evaluating: %s\n", i+1, len(questions), q.Question)

		profile := q.Profile
		if profile == nil {
			profile = &models.UserProfile{}
		}

		startTime := time.Now()
		resp, err := e.runner.Chat(ctx, services.ChatInput{
			Messages:    []models.ConversationMessage{{Role: models.RoleUser, Content: q.Question}},
			Profile:     profile,
			Location:    q.Location,
			RadiusMiles: q.RadiusMiles,
		})
		responseTime := time.Since(startTime).Milliseconds()

		result := EvaluationResult{
			QuestionID:     q.ID,
			Question:       q.Question,
			ResponseTimeMs: responseTime,
			Meals:          []string{},
			KeywordsFound:  []string{},
		}
		if err != nil {
			fmt.Printf("Failed: %v\n", err)
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		result.Answer = resp.Content
		result.MealsReturned = len(resp.Meals)
		for _, m := range resp.Meals {
			result.Meals = append(result.Meals, m.Name)
		}
		result.KeywordsFound = checkKeywords(q.RelevantKeywords, resp.Meals)
		result.Success = judge(q, resp, result.KeywordsFound)

		// answer text plus meal names, so a terse reply with the right meals still scores
		predicted := resp.Content + " " + strings.Join(result.Meals, " ")
		result.FScore = CalculateFScore(predicted, q.GroundTruth, q.RelevantKeywords)

		results = append(results, result)
		fmt.Printf("Completed in %dms (meals: %d, keywords: %d/%d, F-Score: %.2f)\n",
			responseTime, result.MealsReturned, len(result.KeywordsFound), len(q.RelevantKeywords), result.FScore)
	}

	return &EvaluationReport{
		Metrics: summarize(results, e.configuration),
		Results: results,
	}, nil
}

// judge: a turn that should stay conversational succeeds with no meals;
// otherwise at least one meal must be returned and, when keywords are
// given, at least one must show up in the meals.
func judge(q Question, resp models.ChatResponse, found []string) bool {
	if q.ExpectMeals != nil && !*q.ExpectMeals {
		return len(resp.Meals) == 0
	}
	if len(resp.Meals) == 0 {
		return false
	}
	return len(q.RelevantKeywords) == 0 || len(found) > 0
}

func summarize(results []EvaluationResult, configuration map[string]any) Metrics {
	m := Metrics{
		TotalQuestions: len(results),
		Timestamp:      time.Now().Format(time.RFC3339),
		Configuration:  configuration,
	}
	if len(results) == 0 {
		return m
	}

	var totalTime int64
	var totalMeals int
	var totalF float64
	for _, r := range results {
		totalTime += r.ResponseTimeMs
		totalMeals += r.MealsReturned
		totalF += r.FScore
		if r.Success {
			m.SuccessfulQueries++
		}
	}

	n := float64(len(results))
	m.SuccessRate = float64(m.SuccessfulQueries) / n
	m.AvgResponseTime = float64(totalTime) / n
	m.AvgMealsReturned = float64(totalMeals) / n
	m.AvgFScore = totalF / n
	return m
}

// check which keywords appear in any returned meal
func checkKeywords(keywords []string, meals []models.Meal) []string {
	found := []string{}

	for _, keyword := range keywords {
		for _, meal := range meals {
			text := meal.Name + " " + meal.Restaurant + " " + meal.Description + " " + strings.Join(meal.DietaryTags, " ")
			if containsKeyword(text, keyword) {
				found = append(found, keyword)
				break
			}
		}
	}

	return found
}

// check if text contains keyword (case-insensitive)
func containsKeyword(text, keyword string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}

// calculate F1 score based on keyword matching
// F1 = 2 * (Precision * Recall) / (Precision + Recall)
// Higher is better (1.0 = perfect, 0.0 = worst)
func CalculateFScore(predictedAnswer string, groundTruth string, keywords []string) float64 {
	predictedLower := strings.ToLower(predictedAnswer)
	groundTruthLower := strings.ToLower(groundTruth)

	// true positive: keyword appears in both predicted and ground truth
	// false positive: keyword appears in predicted but not in ground truth
	// false negative: keyword appears in ground truth but not in predicted
	truePositives := 0
	falsePositives := 0
	falseNegatives := 0

	for _, keyword := range keywords {
		keywordLower := strings.ToLower(keyword)
		inPredicted := strings.Contains(predictedLower, keywordLower)
		inGroundTruth := strings.Contains(groundTruthLower, keywordLower)

		switch {
		case inPredicted && inGroundTruth:
			truePositives++
		case inPredicted:
			falsePositives++
		case inGroundTruth:
			falseNegatives++
		}
	}

	precision := 0.0
	if truePositives+falsePositives > 0 {
		precision = float64(truePositives) / float64(truePositives+falsePositives)
	}

	recall := 0.0
	if truePositives+falseNegatives > 0 {
		recall = float64(truePositives) / float64(truePositives+falseNegatives)
	}

	fScore := 0.0
	if precision+recall > 0 {
		fScore = 2 * (precision * recall) / (precision + recall)
	}

	return fScore
}

// save the evaluation report to a JSON file, creating its directory
func SaveReport(report *EvaluationReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// print a summary of the evaluation results
func PrintSummary(report *EvaluationReport) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("EVALUATION SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Total Questions:      %d\n", report.Metrics.TotalQuestions)
	fmt.Printf("Successful Queries:   %d\n", report.Metrics.SuccessfulQueries)
	fmt.Printf("Success Rate:         %.2f%%\n", report.Metrics.SuccessRate*100)
	fmt.Printf("Avg F-Score:          %.3f\n", report.Metrics.AvgFScore)
	fmt.Printf("Avg Response Time:    %.0f ms\n", report.Metrics.AvgResponseTime)
	fmt.Printf("Avg Meals Returned:   %.1f\n", report.Metrics.AvgMealsReturned)
	fmt.Println(strings.Repeat("=", 60))

	fmt.Println("\nConfiguration:")
	for key, value := range report.Metrics.Configuration {
		fmt.Printf("  %s: %v\n", key, value)
	}
	fmt.Println(strings.Repeat("=", 60) + "\n")
}
