package usecase

import (
	"math"
	"strings"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// KeywordAnalyzer is the thin keyword sentiment scorer behind the
// SentimentAnalyzer port. It counts positive and negative market vocabulary
// hits and derives a bounded score and confidence from the balance.
type KeywordAnalyzer struct {
	positive map[string]bool
	negative map[string]bool
}

var positiveWords = []string{
	"surge", "surges", "rally", "rallies", "gain", "gains", "beat", "beats",
	"record", "upgrade", "upgraded", "bullish", "soar", "soars", "jump",
	"jumps", "strong", "growth", "profit", "outperform", "rise", "rises",
	"up", "high", "boost", "boosts", "optimistic",
}

var negativeWords = []string{
	"plunge", "plunges", "fall", "falls", "drop", "drops", "miss", "misses",
	"downgrade", "downgraded", "bearish", "crash", "crashes", "weak", "loss",
	"losses", "decline", "declines", "down", "low", "cut", "cuts", "layoff",
	"layoffs", "recession", "fear", "fears", "warning",
}

// NewKeywordAnalyzer builds the default analyzer.
func NewKeywordAnalyzer() *KeywordAnalyzer {
	a := &KeywordAnalyzer{
		positive: make(map[string]bool, len(positiveWords)),
		negative: make(map[string]bool, len(negativeWords)),
	}
	for _, w := range positiveWords {
		a.positive[w] = true
	}
	for _, w := range negativeWords {
		a.negative[w] = true
	}
	return a
}

// Analyze scores text. Score is in [-1,1]; confidence grows with the number
// of keyword hits and caps below certainty.
func (a *KeywordAnalyzer) Analyze(text string) domain.Sentiment {
	var pos, neg int
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		w := strings.Trim(raw, ".,!?;:'\"()[]")
		if a.positive[w] {
			pos++
		} else if a.negative[w] {
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return domain.Sentiment{Label: "neutral", Score: 0, Confidence: 0.3}
	}
	score := float64(pos-neg) / float64(total)
	score = math.Max(-1, math.Min(1, score))
	confidence := math.Min(0.9, 0.4+0.1*float64(total))
	return domain.Sentiment{
		Label:      domain.SentimentLabel(score),
		Score:      score,
		Confidence: confidence,
	}
}
