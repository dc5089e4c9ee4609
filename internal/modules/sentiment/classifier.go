// Package sentiment scores collected text on the [-1,1] scale and rolls
// article and post sentiment up into per-day aggregates.
package sentiment

import (
	"strings"
)

// Classifier assigns a sentiment score in [-1,1] to a piece of text.
type Classifier interface {
	Classify(text string) float64
}

// LexiconClassifier is a wordlist-based classifier tuned for finance text.
// Intensity words scale the hit they precede; negations flip it.
type LexiconClassifier struct {
	positive map[string]float64
	negative map[string]float64
}

// NewLexiconClassifier builds the classifier with the built-in wordlists.
func NewLexiconClassifier() *LexiconClassifier {
	return &LexiconClassifier{
		positive: positiveWords,
		negative: negativeWords,
	}
}

var positiveWords = map[string]float64{
	"beat": 0.6, "beats": 0.6, "upgrade": 0.7, "upgraded": 0.7,
	"outperform": 0.6, "buy": 0.4, "bullish": 0.7, "rally": 0.5,
	"surge": 0.6, "surged": 0.6, "soar": 0.7, "soared": 0.7,
	"record": 0.4, "strong": 0.4, "growth": 0.3, "profit": 0.3,
	"profitable": 0.4, "dividend": 0.2, "buyback": 0.4, "raise": 0.3,
	"raised": 0.3, "exceeds": 0.5, "exceeded": 0.5, "momentum": 0.3,
	"undervalued": 0.5, "moon": 0.4, "calls": 0.2, "breakout": 0.4,
	"win": 0.4, "winner": 0.5, "gain": 0.4, "gains": 0.4,
}

var negativeWords = map[string]float64{
	"miss": -0.6, "misses": -0.6, "missed": -0.6, "downgrade": -0.7,
	"downgraded": -0.7, "underperform": -0.6, "sell": -0.4, "bearish": -0.7,
	"selloff": -0.6, "plunge": -0.7, "plunged": -0.7, "crash": -0.8,
	"crashed": -0.8, "weak": -0.4, "loss": -0.4, "losses": -0.4,
	"lawsuit": -0.5, "investigation": -0.5, "recall": -0.5, "bankruptcy": -0.9,
	"bankrupt": -0.9, "cut": -0.3, "cuts": -0.3, "layoffs": -0.5,
	"overvalued": -0.5, "bubble": -0.5, "puts": -0.2, "short": -0.3,
	"fraud": -0.8, "decline": -0.4, "declined": -0.4, "warning": -0.4,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "without": true,
	"isn't": true, "wasn't": true, "don't": true, "doesn't": true,
}

var intensifiers = map[string]float64{
	"very": 1.5, "extremely": 1.8, "hugely": 1.6, "massively": 1.7,
	"slightly": 0.5, "somewhat": 0.7,
}

// Classify tokenizes the text and averages the lexicon hits. Texts with no
// hits score 0 (neutral).
func (c *LexiconClassifier) Classify(text string) float64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}

	var sum float64
	var hits int
	for i, token := range tokens {
		score, ok := c.positive[token]
		if !ok {
			score, ok = c.negative[token]
		}
		if !ok {
			continue
		}

		// Look one and two tokens back for negations and intensifiers.
		for back := 1; back <= 2 && i-back >= 0; back++ {
			prev := tokens[i-back]
			if negations[prev] {
				score = -score
			}
			if mult, ok := intensifiers[prev]; ok {
				score *= mult
			}
		}

		sum += score
		hits++
	}
	if hits == 0 {
		return 0
	}
	return clamp(sum / float64(hits))
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?:;\"()[]$#")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func clamp(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
