package analyzer

import (
	"time"

	"github.com/rs/zerolog"
)

type PairMatch struct {
	Score float64
	FileA string
	FileB string
}

type SimilarityScorer interface {
	// Similarity is the Jaccard index of the token sets of a and b.
	Similarity(a, b string) float64
	// BestPair compares every section of a with every section of b and
	// returns the highest single pair.
	BestPair(a, b []Section) PairMatch
}

type similarityScorer struct {
	tokenizer *Tokenizer
	logger    zerolog.Logger
}

func NewSimilarityScorer(tokenizer *Tokenizer, logger zerolog.Logger) SimilarityScorer {
	if tokenizer == nil {
		tokenizer = NewTokenizer(DefaultMinTokenLength, DefaultMaxTokenLength)
	}
	return &similarityScorer{
		tokenizer: tokenizer,
		logger:    logger,
	}
}

func (s *similarityScorer) Similarity(a, b string) float64 {
	return Jaccard(s.tokenizer.Tokens(a), s.tokenizer.Tokens(b))
}

func (s *similarityScorer) BestPair(a, b []Section) PairMatch {
	startTime := time.Now()

	tokensB := make([]TokenSet, len(b))
	for j, sec := range b {
		tokensB[j] = s.tokenizer.Tokens(sec.Text)
	}

	best := PairMatch{Score: -1}
	for _, secA := range a {
		tokensA := s.tokenizer.Tokens(secA.Text)
		for j, secB := range b {
			score := Jaccard(tokensA, tokensB[j])
			if score > best.Score {
				best = PairMatch{Score: score, FileA: secA.Name, FileB: secB.Name}
			}
		}
	}
	if best.Score < 0 {
		best.Score = 0
	}

	s.logger.Debug().
		Int("sections_a", len(a)).
		Int("sections_b", len(b)).
		Float64("similarity", best.Score).
		Dur("processing_time", time.Since(startTime)).
		Msg("Pairwise comparison completed")

	return best
}

// Jaccard returns |a∩b| / |a∪b|. Two empty sets are identical (1.0); a single
// empty set shares nothing (0.0).
func Jaccard(a, b TokenSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	intersection := 0
	for token := range small {
		if _, ok := large[token]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

type Thresholds struct {
	Duplicate float64
	ZeroScore float64
}

// Classify applies the inclusive thresholds to a raw score.
func (t Thresholds) Classify(score float64) (flagged, zeroScore bool) {
	return score >= t.Duplicate, score >= t.ZeroScore
}
