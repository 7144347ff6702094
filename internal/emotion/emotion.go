// Package emotion collects per-timestamp emotion and confidence samples and
// summarizes them into a dominant emotion and a confidence level.
package emotion

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pavelanni/mockinterview/internal/model"
)

// MaxSamples is the sliding-window size of each series.
const MaxSamples = 1000

// Confidence levels.
const (
	LevelVeryConfident = "very-confident"
	LevelConfident     = "confident"
	LevelNeutral       = "neutral"
	LevelNervous       = "nervous"
	LevelVeryNervous   = "very-nervous"
)

// Translator renders catalog messages.
type Translator interface {
	T(id string) string
}

// Sample is one reading sent by the client.
type Sample struct {
	Emotions        map[string]float64
	ConfidenceScore *float64
	Timestamp       time.Time
	SpeechMetrics   map[string]float64
}

// EmotionStat aggregates one emotion key across the timeline.
type EmotionStat struct {
	Total      float64 `json:"total"`
	Count      int     `json:"count"`
	Average    float64 `json:"average"`
	Percentage float64 `json:"percentage"`
}

// ConfidenceStats aggregates the confidence series on a 0-1 scale.
type ConfidenceStats struct {
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Level   string  `json:"level"`
	Samples int     `json:"samples"`
}

// Summary is the on-demand view of a session's metrics.
type Summary struct {
	HasData         bool                   `json:"hasData"`
	EmotionStats    map[string]EmotionStat `json:"emotionStats,omitempty"`
	DominantEmotion string                 `json:"dominantEmotion,omitempty"`
	ConfidenceStats *ConfidenceStats       `json:"confidenceStats,omitempty"`
	TotalSamples    int                    `json:"totalSamples,omitempty"`
}

// RecordSample appends s to both series, dropping the oldest entries beyond MaxSamples.
func RecordSample(m *model.Metrics, s Sample) error {
	for k, v := range s.Emotions {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("emotion name is empty")
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("emotion %q has invalid score %v", k, v)
		}
	}
	if c := s.ConfidenceScore; c != nil && (math.IsNaN(*c) || math.IsInf(*c, 0) || *c < 0 || *c > 100) {
		return fmt.Errorf("confidence score %v outside [0,100]", *c)
	}

	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	emotions := make(map[string]float64, len(s.Emotions))
	for k, v := range s.Emotions {
		emotions[strings.ToLower(k)] = v
	}
	m.EmotionTimeline = append(m.EmotionTimeline, model.EmotionSample{
		Timestamp:     ts,
		Emotions:      emotions,
		SpeechMetrics: s.SpeechMetrics,
	})
	if n := len(m.EmotionTimeline); n > MaxSamples {
		m.EmotionTimeline = append([]model.EmotionSample(nil), m.EmotionTimeline[n-MaxSamples:]...)
	}

	if s.ConfidenceScore != nil {
		m.Confidence = append(m.Confidence, model.ConfidenceSample{Timestamp: ts, Value: *s.ConfidenceScore})
		if n := len(m.Confidence); n > MaxSamples {
			m.Confidence = append([]model.ConfidenceSample(nil), m.Confidence[n-MaxSamples:]...)
		}
	}
	return nil
}

// Summarize computes per-emotion statistics, the dominant emotion and the
// confidence level.
func Summarize(m model.Metrics) Summary {
	if len(m.EmotionTimeline) == 0 && len(m.Confidence) == 0 {
		return Summary{HasData: false}
	}

	stats := emotionStats(m.EmotionTimeline)
	sum := Summary{
		HasData:         true,
		EmotionStats:    stats,
		DominantEmotion: dominant(stats),
		TotalSamples:    len(m.EmotionTimeline),
	}
	if len(m.Confidence) > 0 {
		cs := confidenceStats(m.Confidence)
		sum.ConfidenceStats = &cs
	}
	return sum
}

func emotionStats(timeline []model.EmotionSample) map[string]EmotionStat {
	stats := make(map[string]EmotionStat)
	for _, s := range timeline {
		for k, v := range s.Emotions {
			st := stats[k]
			st.Total += v
			st.Count++
			stats[k] = st
		}
	}
	for k, st := range stats {
		st.Average = st.Total / float64(st.Count)
		st.Percentage = st.Total / float64(len(timeline)) * 100
		stats[k] = st
	}
	return stats
}

// dominant returns the emotion with the highest average; ties go to the
// alphabetically first name.
func dominant(stats map[string]EmotionStat) string {
	best := ""
	for _, k := range sortedKeys(stats) {
		if best == "" || stats[k].Average > stats[best].Average {
			best = k
		}
	}
	return best
}

func confidenceStats(samples []model.ConfidenceSample) ConfidenceStats {
	minV, maxV, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, s := range samples {
		sum += s.Value
		minV = math.Min(minV, s.Value)
		maxV = math.Max(maxV, s.Value)
	}
	mean := sum / float64(len(samples))
	if mean > 1 {
		minV, maxV = minV/100, maxV/100
	}
	mean = NormalizeConfidence(mean)
	return ConfidenceStats{
		Average: mean,
		Min:     minV,
		Max:     maxV,
		Level:   Level(mean),
		Samples: len(samples),
	}
}

// NormalizeConfidence maps a raw confidence mean onto 0-1, accepting both
// 0-1 and 0-100 inputs.
func NormalizeConfidence(mean float64) float64 {
	if mean > 1 {
		return mean / 100
	}
	return mean
}

// Level buckets a normalized confidence value.
func Level(v float64) string {
	switch {
	case v >= 0.8:
		return LevelVeryConfident
	case v >= 0.6:
		return LevelConfident
	case v >= 0.4:
		return LevelNeutral
	case v >= 0.2:
		return LevelNervous
	default:
		return LevelVeryNervous
	}
}

var emotionMessages = map[string]string{
	"happy":     "EmotionHappy",
	"neutral":   "EmotionNeutral",
	"sad":       "EmotionSad",
	"angry":     "EmotionAngry",
	"fearful":   "EmotionFearful",
	"disgusted": "EmotionDisgusted",
	"surprised": "EmotionSurprised",
}

var confidenceMessages = map[string]string{
	LevelVeryConfident: "ConfidenceVeryConfident",
	LevelConfident:     "ConfidenceConfident",
	LevelNeutral:       "ConfidenceNeutral",
	LevelNervous:       "ConfidenceNervous",
	LevelVeryNervous:   "ConfidenceVeryNervous",
}

// GenerateFeedback turns the metrics into the emotional-analysis block of the
// session feedback. The result replaces any previous analysis.
func GenerateFeedback(m model.Metrics, tr Translator, now time.Time) model.EmotionalAnalysis {
	top := topEmotions(emotionStats(m.EmotionTimeline), 3)

	var parts []string
	for _, e := range top {
		if id, ok := emotionMessages[e]; ok {
			parts = append(parts, tr.T(id))
		}
	}
	emotional := strings.Join(parts, " ")
	if len(m.EmotionTimeline) == 0 {
		emotional = tr.T("NoEmotionData")
	}

	// Without samples the level stays at the neutral midpoint.
	level := LevelNeutral
	if len(m.Confidence) > 0 {
		level = confidenceStats(m.Confidence).Level
	}

	return model.EmotionalAnalysis{
		EmotionalFeedback:  emotional,
		ConfidenceLevel:    level,
		ConfidenceFeedback: tr.T(confidenceMessages[level]),
		DominantEmotions:   top,
		Recommendations:    recommendations(top, level, tr),
		GeneratedAt:        now.UTC(),
	}
}

func recommendations(top []string, level string, tr Translator) []string {
	var out []string
	if level == LevelNervous || level == LevelVeryNervous {
		out = append(out, tr.T("RecommendPractice"), tr.T("RecommendBreathing"))
	}
	has := func(names ...string) bool {
		for _, e := range top {
			for _, n := range names {
				if e == n {
					return true
				}
			}
		}
		return false
	}
	if has("fearful", "angry", "sad") {
		out = append(out, tr.T("RecommendPause"))
	}
	if len(top) > 0 && !has("happy") {
		out = append(out, tr.T("RecommendEnthusiasm"))
	}
	if len(out) == 0 {
		out = append(out, tr.T("RecommendKeepGoing"))
	}
	return out
}

// topEmotions returns up to n emotion names ordered by summed score, ties
// broken alphabetically.
func topEmotions(stats map[string]EmotionStat, n int) []string {
	keys := sortedKeys(stats)
	sort.SliceStable(keys, func(i, j int) bool {
		return stats[keys[i]].Total > stats[keys[j]].Total
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func sortedKeys(stats map[string]EmotionStat) []string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
