// Package spam scores participant display names for spam likelihood.
package spam

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"antispambot/pkg/text"
)

// MaxScore is the upper bound of every score. 0 means no spam signal.
const MaxScore = 100.0

// Scorer rates a display name in [0, MaxScore].
type Scorer interface {
	Score(ctx context.Context, name string) (float64, error)
}

var keywordPatterns = compile(
	`работ`, `заработ`, `подработк`, `деньги`, `выплат`, `казин`, `инвестиц`, `крипт`,
	`ставк`, `реклам`, `подпис`, `продам`, `куплю`, `скидк`, `бонус`,
	`\bjob\b`, `\bwork\b`, `\bearn`, `crypto`, `casino`, `bonus`, `\bbet\b`, `\bfree\b`,
	`subscribe`, `channel`, `promo`, `discount`, `guarantee`, `invest`, `profit`, `\bbot\b`,
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

var emailRegex = regexp.MustCompile(`[a-z0-9_.+-]+@[a-z0-9-]+\.[a-z0-9.-]+`)

// Signal weights, summed and capped at MaxScore.
const (
	weightKeyword = 35
	weightURL     = 60
	weightMention = 25
	weightPhone   = 50
	weightDigits  = 20
	weightEmail   = 40
	weightLength  = 15
	longNameRunes = 64
)

// HeuristicScorer scores names by keyword and pattern matches after
// compatibility normalization, so styled or fullwidth spellings still match.
type HeuristicScorer struct{}

// NewHeuristicScorer creates the pattern based scorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

// Score implements Scorer.
func (h *HeuristicScorer) Score(_ context.Context, name string) (float64, error) {
	normalized := text.Normalize(name)
	if normalized == "" {
		return 0, nil
	}

	score := 0
	for _, re := range keywordPatterns {
		if re.MatchString(normalized) {
			score += weightKeyword
			break
		}
	}
	if len(text.ExtractURLs(normalized)) > 0 {
		score += weightURL
	}
	if emailRegex.MatchString(normalized) {
		score += weightEmail
	} else if len(text.ExtractMentions(normalized)) > 0 {
		score += weightMention
	}
	switch run := text.DigitRun(normalized); {
	case run >= 7:
		score += weightPhone
	case run >= 4:
		score += weightDigits
	}
	if len([]rune(normalized)) > longNameRunes {
		score += weightLength
	}

	return min(float64(score), MaxScore), nil
}

// CachedScorer memoizes another scorer by normalized name.
type CachedScorer struct {
	inner Scorer
	cache *lru.Cache[string, float64]
}

// NewCachedScorer wraps inner with an LRU of the given size.
func NewCachedScorer(inner Scorer, size int) (*CachedScorer, error) {
	cache, err := lru.New[string, float64](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create score cache: %w", err)
	}
	return &CachedScorer{inner: inner, cache: cache}, nil
}

// Score implements Scorer. Errors are not cached.
func (c *CachedScorer) Score(ctx context.Context, name string) (float64, error) {
	key := strings.TrimSpace(text.Normalize(name))
	if score, ok := c.cache.Get(key); ok {
		return score, nil
	}

	score, err := c.inner.Score(ctx, name)
	if err != nil {
		return 0, err
	}

	c.cache.Add(key, score)
	return score, nil
}
