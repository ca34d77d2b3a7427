package relevance

import (
	"context"
	"math"
	"regexp"
	"strings"
)

// KeywordScorer is a dependency-free fallback Scorer: it never calls an
// LLM, so it is used when no scorer API key is configured and in tests.
// It is never the production default (§4.5 requires the LLM contract).
type KeywordScorer struct {
	stopWords map[string]bool
}

func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{stopWords: getCommonStopWords()}
}

func (ks *KeywordScorer) Score(ctx context.Context, patch PatchContext, title, url, text string) (Result, error) {
	keywords := ks.cleanKeywords(ks.patchKeywords(patch))

	if len(keywords) == 0 {
		return Result{Score: 50, IsRelevant: false, Reason: "no topic keywords to score against"}, nil
	}

	contentRelevance := ks.textRelevance(ks.normalize(text), keywords)
	titleRelevance := ks.textRelevance(ks.normalize(title), keywords)
	quality := ks.qualityScore(title, text)

	weighted := contentRelevance*0.6 + titleRelevance*0.25 + quality*0.15
	weighted = math.Max(0.0, math.Min(1.0, weighted))

	score := int(math.Round(weighted * 100))
	isRelevant := score >= RelevanceThreshold

	return Result{
		Score:      score,
		IsRelevant: isRelevant,
		Reason:     ks.reason(contentRelevance, titleRelevance, quality),
	}, nil
}

func (ks *KeywordScorer) patchKeywords(patch PatchContext) []string {
	var words []string
	words = append(words, ks.extractWords(patch.Title)...)
	for _, alias := range patch.Aliases {
		words = append(words, ks.extractWords(alias)...)
	}
	for _, tag := range patch.Tags {
		words = append(words, ks.extractWords(tag)...)
	}
	return words
}

func (ks *KeywordScorer) textRelevance(text string, keywords []string) float64 {
	if len(text) == 0 || len(keywords) == 0 {
		return 0.0
	}

	uniqueMatches, totalMatches := 0, 0
	for _, keyword := range keywords {
		matches := strings.Count(text, keyword)
		if matches > 0 {
			uniqueMatches++
			totalMatches += matches
		}
	}
	if uniqueMatches == 0 {
		return 0.0
	}

	coverage := float64(uniqueMatches) / float64(len(keywords))
	frequency := math.Log(float64(totalMatches)+1) / math.Log(float64(len(keywords)*3)+1)

	return math.Min(1.0, coverage*0.7+frequency*0.3)
}

func (ks *KeywordScorer) qualityScore(title, text string) float64 {
	score := 0.5
	if len(text) > 1000 {
		score += 0.2
	}
	if len(text) < 100 {
		score -= 0.3
	}
	if len(title) > 10 && len(title) < 150 {
		score += 0.1
	}
	return math.Max(0.0, math.Min(1.0, score))
}

func (ks *KeywordScorer) reason(contentRelevance, titleRelevance, quality float64) string {
	var reasons []string
	if contentRelevance > 0.6 {
		reasons = append(reasons, "strong keyword matches in content")
	} else if contentRelevance < 0.3 {
		reasons = append(reasons, "weak keyword matches in content")
	}
	if titleRelevance > 0.6 {
		reasons = append(reasons, "relevant title")
	}
	if quality < 0.3 {
		reasons = append(reasons, "thin content")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "mixed relevance indicators")
	}
	return strings.Join(reasons, "; ")
}

func (ks *KeywordScorer) extractWords(s string) []string {
	reg := regexp.MustCompile(`[^\w\s]`)
	cleaned := reg.ReplaceAllString(s, " ")
	return strings.Fields(strings.ToLower(cleaned))
}

func (ks *KeywordScorer) cleanKeywords(words []string) []string {
	seen := make(map[string]bool)
	var clean []string
	for _, word := range words {
		word = strings.TrimSpace(word)
		if len(word) > 2 && !ks.stopWords[word] && !seen[word] {
			seen[word] = true
			clean = append(clean, word)
		}
	}
	return clean
}

func (ks *KeywordScorer) normalize(text string) string {
	text = strings.ToLower(text)
	text = regexp.MustCompile(`\s+`).ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func getCommonStopWords() map[string]bool {
	stopWords := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "he", "in", "is", "it", "its", "of", "on", "that", "the",
		"to", "was", "were", "will", "with", "this", "but", "they",
		"have", "had", "what", "said", "each", "which", "she", "do", "how",
		"their", "if", "up", "out", "many", "then", "them", "these", "so",
		"some", "her", "would", "make", "like", "into", "him", "time", "two",
	}
	m := make(map[string]bool, len(stopWords))
	for _, word := range stopWords {
		m[word] = true
	}
	return m
}
