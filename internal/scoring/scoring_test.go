package scoring

import (
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"

	"github.com/pavelanni/mockinterview/internal/i18n"
	"github.com/pavelanni/mockinterview/internal/model"
)

var tr = i18n.MustNew("en").Default()

func ev(cat model.Category, score float64) model.QuestionEvaluation {
	return model.QuestionEvaluation{Question: "Question about " + string(cat), UserAnswer: "answer", Score: score, Feedback: "fb", Category: cat}
}

func TestCategoryAverage(t *testing.T) {
	ledger := []model.QuestionEvaluation{
		ev(model.CategoryTechnical, 8),
		ev(model.CategoryTechnical, 6),
		ev(model.CategoryCoding, 9),
		ev(model.CategoryProblemSolving, 5),
		ev(model.CategoryGeneral, 1),
	}
	tests := []struct {
		name string
		cats []model.Category
		want float64
	}{
		{"technical", []model.Category{model.CategoryTechnical}, 7},
		{"union", []model.Category{model.CategoryCoding, model.CategoryProblemSolving}, 7},
		{"no entries", []model.Category{model.CategoryBehavioral}, 5},
		{"general", []model.Category{model.CategoryGeneral}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryAverage(ledger, tt.cats...); got != tt.want {
				t.Errorf("CategoryAverage = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOverallWeightedFormula(t *testing.T) {
	tests := []struct {
		t, c, p float64
		want    int
	}{
		{8, 6, 7, 71},
		{8, 6, 9, 77},
		{5, 5, 5, 50},
		{10, 10, 10, 100},
		{0, 0, 0, 0},
		{7.5, 7.5, 7.5, 75},
	}
	for _, tt := range tests {
		if got := Overall(tt.t, tt.c, tt.p); got != tt.want {
			t.Errorf("Overall(%v, %v, %v) = %d, want %d", tt.t, tt.c, tt.p, got, tt.want)
		}
	}
}

func TestEmptyLedgerDefault(t *testing.T) {
	r := Aggregate(nil, tr)
	if r.Scores.Overall != 50 {
		t.Errorf("overall = %d, want 50", r.Scores.Overall)
	}
	if r.Scores.Technical != 5 || r.Scores.Communication != 5 || r.Scores.ProblemSolving != 5 {
		t.Errorf("category scores = %+v, want all 5", r.Scores)
	}
	if r.Feedback.Summary != tr.T("DefaultSummary") {
		t.Errorf("summary = %q", r.Feedback.Summary)
	}
	if !reflect.DeepEqual(r.Feedback.Strengths, []string{"Completed the interview session"}) {
		t.Errorf("strengths = %q", r.Feedback.Strengths)
	}
	if len(r.Feedback.KeyHighlights) != 0 || len(r.Feedback.AreasOfConcern) != 0 {
		t.Error("empty ledger should have no highlights or concerns")
	}
	if r.Feedback.TechnicalAnalysis.CoreConcepts != tr.T("DefaultAnalysis") {
		t.Errorf("analysis = %q", r.Feedback.TechnicalAnalysis.CoreConcepts)
	}
}

func TestUntouchedCategoriesDefaultToMidpoint(t *testing.T) {
	ledger := []model.QuestionEvaluation{ev(model.CategoryTechnical, 9), ev(model.CategoryTechnical, 7)}
	s := ComputeScores(ledger)
	if s.Technical != 8 {
		t.Errorf("technical = %v, want 8", s.Technical)
	}
	if s.Communication != 5 || s.ProblemSolving != 5 {
		t.Errorf("communication = %v, problemSolving = %v, want 5 and 5", s.Communication, s.ProblemSolving)
	}
	if s.Overall != 62 {
		t.Errorf("overall = %d, want 62", s.Overall)
	}
}

func TestEndToEndScenario(t *testing.T) {
	ledger := []model.QuestionEvaluation{
		ev(model.CategoryTechnical, 8),
		ev(model.CategoryBehavioral, 6),
		ev(model.CategoryCoding, 9),
	}
	r := Aggregate(ledger, tr)
	want := Scores{Technical: 8, Communication: 6, ProblemSolving: 9, Overall: 77}
	if r.Scores != want {
		t.Errorf("scores = %+v, want %+v", r.Scores, want)
	}
	if st := ComputeStats(ledger); st.TotalQuestions != 3 {
		t.Errorf("totalQuestions = %d, want 3", st.TotalQuestions)
	}
}

func TestCategoryScoresRoundedOverallNot(t *testing.T) {
	// technical 7.333..., communication 5, problem-solving 5 => 29.33 + 15 + 15 = 59.33
	ledger := []model.QuestionEvaluation{
		ev(model.CategoryTechnical, 7),
		ev(model.CategoryTechnical, 7),
		ev(model.CategoryTechnical, 8),
	}
	s := ComputeScores(ledger)
	if s.Technical != 7.3 {
		t.Errorf("technical = %v, want 7.3", s.Technical)
	}
	if s.Overall != 59 {
		t.Errorf("overall = %d, want 59", s.Overall)
	}
}

func TestAggregateDoesNotReorderLedger(t *testing.T) {
	ledger := []model.QuestionEvaluation{
		{QuestionNumber: 1, Question: "a", Score: 9, Feedback: "f", Category: model.CategoryCoding},
		{QuestionNumber: 2, Question: "b", Score: 2, Feedback: "f", Category: model.CategoryTechnical},
		{QuestionNumber: 3, Question: "c", Score: 6, Feedback: "f", Category: model.CategoryBehavioral},
	}
	before := make([]model.QuestionEvaluation, len(ledger))
	copy(before, ledger)

	Aggregate(ledger, tr)

	if !reflect.DeepEqual(before, ledger) {
		t.Error("Aggregate modified the ledger")
	}
}

func TestStrengthsDedupe(t *testing.T) {
	a := ev(model.CategoryTechnical, 8)
	a.Strengths = []string{"Clear explanation"}
	b := ev(model.CategoryTechnical, 7)
	b.Strengths = []string{"Clear explanation"}

	got := Strengths([]model.QuestionEvaluation{a, b}, tr)
	want := []string{"Strong performance in technical questions", "Clear explanation"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Strengths = %q, want %q", got, want)
	}
}

func TestStrengthsBucketOrderAndCap(t *testing.T) {
	var ledger []model.QuestionEvaluation
	for i, cat := range []model.Category{model.CategoryProblemSolving, model.CategoryCoding, model.CategoryBehavioral, model.CategoryTechnical} {
		e := ev(cat, 9)
		e.Strengths = []string{"own strength " + string(rune('A'+i))}
		ledger = append(ledger, e)
	}
	got := Strengths(ledger, tr)
	want := []string{
		"Strong performance in technical questions",
		"Strong performance in behavioral questions",
		"Strong performance in coding questions",
		"Strong performance in problem-solving questions",
		"own strength A",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Strengths = %q, want %q", got, want)
	}
}

func TestStrengthsIgnoreGeneralBucketAndLowScores(t *testing.T) {
	g := ev(model.CategoryGeneral, 10)
	g.Strengths = []string{"Good attitude"}
	low := ev(model.CategoryTechnical, 6.9)
	low.Strengths = []string{"Ignored"}

	got := Strengths([]model.QuestionEvaluation{g, low}, tr)
	if !reflect.DeepEqual(got, []string{"Good attitude"}) {
		t.Errorf("Strengths = %q", got)
	}
}

func TestImprovements(t *testing.T) {
	a := ev(model.CategoryCoding, 5.9)
	a.Improvements = []string{"Test edge cases"}
	b := ev(model.CategoryBehavioral, 6)
	b.Improvements = []string{"Ignored at threshold"}
	c := ev(model.CategoryCoding, 3)
	c.Improvements = []string{"Test edge cases", "Explain complexity"}

	got := Improvements([]model.QuestionEvaluation{a, b, c}, tr)
	want := []string{"Needs improvement in coding questions", "Test edge cases", "Explain complexity"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Improvements = %q, want %q", got, want)
	}
}

func TestHighlightsAndConcerns(t *testing.T) {
	long := strings.Repeat("x", 60)
	ledger := []model.QuestionEvaluation{
		{Question: long, Score: 8, Category: model.CategoryTechnical},
		{Question: "short one", Score: 9, Category: model.CategoryTechnical},
		{Question: "third", Score: 10, Category: model.CategoryCoding},
		{Question: "fourth", Score: 8.5, Category: model.CategoryCoding},
		{Question: "bad", Score: 4.9, Category: model.CategoryBehavioral},
		{Question: "borderline", Score: 5, Category: model.CategoryBehavioral},
	}

	hl := KeyHighlights(ledger, tr)
	if len(hl) != 3 {
		t.Fatalf("highlights = %q, want 3 items", hl)
	}
	wantFirst := `Excellent answer to: "` + strings.Repeat("x", 50) + `..."`
	if hl[0] != wantFirst {
		t.Errorf("highlight[0] = %q, want %q", hl[0], wantFirst)
	}
	if hl[1] != `Excellent answer to: "short one..."` {
		t.Errorf("highlight[1] = %q", hl[1])
	}

	concerns := AreasOfConcern(ledger, tr)
	if !reflect.DeepEqual(concerns, []string{`Struggled with: "bad..."`}) {
		t.Errorf("concerns = %q", concerns)
	}
}

func TestPreviewCountsRunes(t *testing.T) {
	q := strings.Repeat("вопрос", 10)
	got := Preview(q)
	if want := string([]rune(q)[:50]) + "..."; got != want {
		t.Errorf("Preview = %q, want %q", got, want)
	}
}

func TestAnalysisBranches(t *testing.T) {
	ledger := []model.QuestionEvaluation{
		ev(model.CategoryTechnical, 7),
		ev(model.CategoryBehavioral, 6),
		ev(model.CategoryCoding, 9),
	}
	r := Aggregate(ledger, tr)
	ta, ba := r.Feedback.TechnicalAnalysis, r.Feedback.BehavioralAnalysis

	checks := []struct {
		name, got, want string
	}{
		{"coreConcepts", ta.CoreConcepts, tr.T("TechCoreConceptsStrong")},
		{"bestPractices", ta.BestPractices, tr.T("TechBestPracticesStrong")},
		{"problemSolvingApproach", ta.ProblemSolvingApproach, tr.T("TechProblemSolvingStrong")},
		{"codeQuality", ta.CodeQuality, tr.T("TechCodeQualityStrong")},
		{"communication", ba.Communication, tr.T("BehCommunicationWeak")},
		{"confidence", ba.Confidence, tr.T("BehConfidenceWeak")},
		{"professionalism", ba.Professionalism, tr.T("BehProfessionalismWeak")},
		{"adaptability", ba.Adaptability, tr.T("BehAdaptabilityStrong")},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestSummaryBands(t *testing.T) {
	tests := []struct {
		name      string
		scores    Scores
		prefix    string
		wantFocus string
	}{
		{"excellent", Scores{Technical: 9, Communication: 8, ProblemSolving: 8, Overall: 84}, "Excellent performance!", ""},
		{"good", Scores{Technical: 7, Communication: 6, ProblemSolving: 7, Overall: 67}, "Good performance", ""},
		{"fair with focus", Scores{Technical: 4, Communication: 6, ProblemSolving: 5, Overall: 49}, "You scored 49%", "technical"},
		{"weakest communication", Scores{Technical: 8, Communication: 3, ProblemSolving: 9, Overall: 68}, "Good performance", "communication"},
		{"tie prefers technical", Scores{Technical: 5, Communication: 5, ProblemSolving: 5, Overall: 50}, "You scored 50%", "technical"},
		{"weakest problem-solving", Scores{Technical: 8, Communication: 8, ProblemSolving: 5.5, Overall: 72}, "Good performance", "problem-solving"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summary(tt.scores, tr)
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("summary = %q, want prefix %q", got, tt.prefix)
			}
			hasFocus := strings.Contains(got, "Focus on improving")
			if (tt.wantFocus != "") != hasFocus {
				t.Fatalf("summary = %q, focus expected: %v", got, tt.wantFocus != "")
			}
			if tt.wantFocus != "" && !strings.Contains(got, "your "+tt.wantFocus+" skills") {
				t.Errorf("summary = %q, want focus on %s", got, tt.wantFocus)
			}
		})
	}
}

func TestSummaryInterpolatesScores(t *testing.T) {
	got := Summary(Scores{Technical: 8, Communication: 6.5, ProblemSolving: 9, Overall: 77}, tr)
	for _, want := range []string{"77%", "8/10", "6.5/10", "9/10"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary %q missing %q", got, want)
		}
	}
}

func TestScoreBoundsProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	cats := []model.Category{
		model.CategoryTechnical, model.CategoryBehavioral, model.CategoryCoding,
		model.CategoryGeneral, model.CategoryProblemSolving,
	}
	for i := 0; i < 500; i++ {
		n := rng.IntN(20)
		ledger := make([]model.QuestionEvaluation, n)
		for j := range ledger {
			ledger[j] = ev(cats[rng.IntN(len(cats))], float64(rng.IntN(101))/10)
		}
		r := Aggregate(ledger, tr)
		s := r.Scores
		if s.Overall < 0 || s.Overall > 100 {
			t.Fatalf("overall %d out of range for %+v", s.Overall, ledger)
		}
		for _, v := range []float64{s.Technical, s.Communication, s.ProblemSolving} {
			if v < 0 || v > 10 {
				t.Fatalf("category score %v out of range", v)
			}
		}
		if len(r.Feedback.Strengths) > MaxListItems || len(r.Feedback.Improvements) > MaxListItems {
			t.Fatal("strengths or improvements exceed cap")
		}
		if len(r.Feedback.KeyHighlights) > MaxHighlights || len(r.Feedback.AreasOfConcern) > MaxHighlights {
			t.Fatal("highlights or concerns exceed cap")
		}
	}
}

func TestComputeStats(t *testing.T) {
	ledger := []model.QuestionEvaluation{
		{UserAnswer: "a", TimeSpent: 30},
		{UserAnswer: "  ", TimeSpent: 0},
		{UserAnswer: "b", TimeSpent: 45},
	}
	got := ComputeStats(ledger)
	want := model.Stats{
		TotalQuestions:      3,
		QuestionsAnswered:   2,
		QuestionsSkipped:    1,
		AverageResponseTime: 37.5,
		TotalTimeSpent:      75,
	}
	if got != want {
		t.Errorf("ComputeStats = %+v, want %+v", got, want)
	}
}
