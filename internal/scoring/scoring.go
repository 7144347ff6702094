// Package scoring reduces an evaluation ledger into category scores, an overall
// score and the canned feedback shown to the candidate. Everything here is pure.
package scoring

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/mockinterview/internal/model"
)

// Thresholds and limits of the feedback rules.
const (
	DefaultCategoryScore = 5.0
	StrengthThreshold    = 7.0
	ImprovementThreshold = 6.0
	HighlightThreshold   = 8.0
	ConcernThreshold     = 5.0
	AnalysisThreshold    = 7.0
	FocusThreshold       = 6.0

	MaxListItems     = 5
	MaxHighlights    = 3
	questionPreview  = 50
	emptyLedgerScore = 50
)

// Translator renders catalog messages. *i18n.Localizer satisfies it.
type Translator interface {
	T(id string) string
	Td(id string, data map[string]any) string
}

// Scores are the derived numbers of a completed session.
type Scores struct {
	Technical      float64
	Communication  float64
	ProblemSolving float64
	Overall        int
}

// Report is the aggregator output.
type Report struct {
	Scores   Scores
	Feedback model.Feedback
}

// buckets lists the categories named in strengths and improvements, in output order.
var buckets = []struct {
	cat model.Category
	msg string
}{
	{model.CategoryTechnical, "CategoryTechnical"},
	{model.CategoryBehavioral, "CategoryBehavioral"},
	{model.CategoryCoding, "CategoryCoding"},
	{model.CategoryProblemSolving, "CategoryProblemSolving"},
}

// CategoryAverage returns the mean score of entries in any of cats, or
// DefaultCategoryScore when none match.
func CategoryAverage(ledger []model.QuestionEvaluation, cats ...model.Category) float64 {
	var sum float64
	var n int
	for _, ev := range ledger {
		for _, c := range cats {
			if ev.Category == c {
				sum += ev.Score
				n++
				break
			}
		}
	}
	if n == 0 {
		return DefaultCategoryScore
	}
	return sum / float64(n)
}

// Overall combines the category averages with weights 0.4/0.3/0.3 on a 0-100 scale.
func Overall(technical, communication, problemSolving float64) int {
	// t*10*0.4 == t*4 etc.; integer weights keep .5 boundaries exact.
	v := math.Round(technical*4 + communication*3 + problemSolving*3)
	return int(math.Max(0, math.Min(100, v)))
}

// ComputeScores derives the category and overall scores from the ledger.
// Stored category scores are rounded to one decimal; the overall score uses
// the unrounded averages.
func ComputeScores(ledger []model.QuestionEvaluation) Scores {
	t := CategoryAverage(ledger, model.CategoryTechnical)
	c := CategoryAverage(ledger, model.CategoryBehavioral)
	p := CategoryAverage(ledger, model.CategoryCoding, model.CategoryProblemSolving)
	return Scores{
		Technical:      round1(t),
		Communication:  round1(c),
		ProblemSolving: round1(p),
		Overall:        Overall(t, c, p),
	}
}

// Aggregate runs every feedback rule over the ledger. An empty ledger yields
// the default report.
func Aggregate(ledger []model.QuestionEvaluation, tr Translator) Report {
	if len(ledger) == 0 {
		return DefaultReport(tr)
	}

	s := ComputeScores(ledger)
	t := CategoryAverage(ledger, model.CategoryTechnical)
	c := CategoryAverage(ledger, model.CategoryBehavioral)
	p := CategoryAverage(ledger, model.CategoryCoding, model.CategoryProblemSolving)

	return Report{
		Scores: s,
		Feedback: model.Feedback{
			Summary:            Summary(s, tr),
			Strengths:          Strengths(ledger, tr),
			Improvements:       Improvements(ledger, tr),
			KeyHighlights:      KeyHighlights(ledger, tr),
			AreasOfConcern:     AreasOfConcern(ledger, tr),
			TechnicalAnalysis:  technicalAnalysis(t, p, tr),
			BehavioralAnalysis: behavioralAnalysis(c, p, tr),
		},
	}
}

// DefaultReport is returned for sessions completed without any evaluation.
func DefaultReport(tr Translator) Report {
	def := tr.T("DefaultAnalysis")
	return Report{
		Scores: Scores{
			Technical:      DefaultCategoryScore,
			Communication:  DefaultCategoryScore,
			ProblemSolving: DefaultCategoryScore,
			Overall:        emptyLedgerScore,
		},
		Feedback: model.Feedback{
			Summary:        tr.T("DefaultSummary"),
			Strengths:      []string{tr.T("DefaultStrength")},
			Improvements:   []string{tr.T("DefaultImprovement")},
			KeyHighlights:  []string{},
			AreasOfConcern: []string{},
			TechnicalAnalysis: model.TechnicalAnalysis{
				CoreConcepts:           def,
				ProblemSolvingApproach: def,
				CodeQuality:            def,
				BestPractices:          def,
			},
			BehavioralAnalysis: model.BehavioralAnalysis{
				Communication:   def,
				Confidence:      def,
				Professionalism: def,
				Adaptability:    def,
			},
		},
	}
}

// Strengths lists the categories with an entry scoring at least 7, then the
// entries' own strengths, de-duplicated and capped at five.
func Strengths(ledger []model.QuestionEvaluation, tr Translator) []string {
	return collect(ledger, tr, "StrengthCategory",
		func(score float64) bool { return score >= StrengthThreshold },
		func(ev model.QuestionEvaluation) []string { return ev.Strengths })
}

// Improvements mirrors Strengths for entries scoring below 6.
func Improvements(ledger []model.QuestionEvaluation, tr Translator) []string {
	return collect(ledger, tr, "ImprovementCategory",
		func(score float64) bool { return score < ImprovementThreshold },
		func(ev model.QuestionEvaluation) []string { return ev.Improvements })
}

func collect(ledger []model.QuestionEvaluation, tr Translator, msgID string,
	match func(float64) bool, items func(model.QuestionEvaluation) []string) []string {

	var out []string
	for _, b := range buckets {
		for _, ev := range ledger {
			if ev.Category == b.cat && match(ev.Score) {
				out = append(out, tr.Td(msgID, map[string]any{"Category": tr.T(b.msg)}))
				break
			}
		}
	}
	for _, ev := range ledger {
		if match(ev.Score) {
			out = append(out, items(ev)...)
		}
	}

	out = dedupe(out)
	if len(out) > MaxListItems {
		out = out[:MaxListItems]
	}
	return out
}

// KeyHighlights references up to three questions scoring at least 8.
func KeyHighlights(ledger []model.QuestionEvaluation, tr Translator) []string {
	return mention(ledger, tr, "KeyHighlight", func(score float64) bool { return score >= HighlightThreshold })
}

// AreasOfConcern references up to three questions scoring below 5.
func AreasOfConcern(ledger []model.QuestionEvaluation, tr Translator) []string {
	return mention(ledger, tr, "AreaOfConcern", func(score float64) bool { return score < ConcernThreshold })
}

func mention(ledger []model.QuestionEvaluation, tr Translator, msgID string, match func(float64) bool) []string {
	out := []string{}
	for _, ev := range ledger {
		if len(out) == MaxHighlights {
			break
		}
		if match(ev.Score) {
			out = append(out, tr.Td(msgID, map[string]any{"Question": Preview(ev.Question)}))
		}
	}
	return out
}

// Preview cuts a question to its first 50 characters followed by an ellipsis.
func Preview(q string) string {
	if utf8.RuneCountInString(q) > questionPreview {
		q = string([]rune(q)[:questionPreview])
	}
	return q + "..."
}

func technicalAnalysis(technical, problemSolving float64, tr Translator) model.TechnicalAnalysis {
	return model.TechnicalAnalysis{
		CoreConcepts:           pick(tr, technical, "TechCoreConcepts"),
		ProblemSolvingApproach: pick(tr, problemSolving, "TechProblemSolving"),
		CodeQuality:            pick(tr, problemSolving, "TechCodeQuality"),
		BestPractices:          pick(tr, technical, "TechBestPractices"),
	}
}

func behavioralAnalysis(communication, problemSolving float64, tr Translator) model.BehavioralAnalysis {
	return model.BehavioralAnalysis{
		Communication:   pick(tr, communication, "BehCommunication"),
		Confidence:      pick(tr, communication, "BehConfidence"),
		Professionalism: pick(tr, communication, "BehProfessionalism"),
		Adaptability:    pick(tr, problemSolving, "BehAdaptability"),
	}
}

func pick(tr Translator, avg float64, prefix string) string {
	if avg >= AnalysisThreshold {
		return tr.T(prefix + "Strong")
	}
	return tr.T(prefix + "Weak")
}

// Summary picks the narrative for the overall score band and names the weakest
// category when it scored below 6.
func Summary(s Scores, tr Translator) string {
	id := "SummaryFair"
	switch {
	case s.Overall >= 80:
		id = "SummaryExcellent"
	case s.Overall >= 60:
		id = "SummaryGood"
	}
	summary := tr.Td(id, map[string]any{
		"Overall":        s.Overall,
		"Technical":      formatScore(s.Technical),
		"Communication":  formatScore(s.Communication),
		"ProblemSolving": formatScore(s.ProblemSolving),
	})

	area, score := "AreaTechnical", s.Technical
	if s.Communication < score {
		area, score = "AreaCommunication", s.Communication
	}
	if s.ProblemSolving < score {
		area, score = "AreaProblemSolving", s.ProblemSolving
	}
	if score < FocusThreshold {
		summary += " " + tr.Td("SummaryFocus", map[string]any{"Area": tr.T(area)})
	}
	return summary
}

// ComputeStats recomputes session statistics from the ledger.
func ComputeStats(ledger []model.QuestionEvaluation) model.Stats {
	st := model.Stats{TotalQuestions: len(ledger)}
	var timed int
	for _, ev := range ledger {
		if strings.TrimSpace(ev.UserAnswer) != "" {
			st.QuestionsAnswered++
		}
		if ev.TimeSpent > 0 {
			st.TotalTimeSpent += ev.TimeSpent
			timed++
		}
	}
	st.QuestionsSkipped = st.TotalQuestions - st.QuestionsAnswered
	if timed > 0 {
		st.AverageResponseTime = round1(st.TotalTimeSpent / float64(timed))
	}
	return st
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
