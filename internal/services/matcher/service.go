package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/contentgate/backend/internal/domain/model"
)

const (
	scoreExact     = 1.0
	scoreAllTokens = 0.8
	scorePartial   = 0.6
	substringBonus = 0.1

	confidentScore  = 0.8
	confidentMargin = 0.2
)

type Match struct {
	Item  model.ContentItem
	Score float64
}

type CatalogSource interface {
	List(ctx context.Context) ([]model.ContentItem, error)
}

type SnapshotCache interface {
	GetCatalogSnapshot(ctx context.Context, target any) error
	SetCatalogSnapshot(ctx context.Context, value any, ttl time.Duration) error
}

type Config struct {
	MinScore      float64
	MaxCandidates int
	CacheTTL      time.Duration
}

type Service struct {
	catalog CatalogSource
	cache   SnapshotCache
	cfg     Config
}

func NewService(catalog CatalogSource, cfg Config) *Service {
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.4
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 5
	}

	return &Service{
		catalog: catalog,
		cfg:     cfg,
	}
}

func (s *Service) AttachCache(cache SnapshotCache) {
	s.cache = cache
}

// FindBestMatches scores the catalog against a free-text query and returns
// candidates above the minimum score, best first. An empty result is the
// normal "nothing matched" outcome, not an error.
func (s *Service) FindBestMatches(ctx context.Context, query string, limit int) ([]Match, error) {
	if s.catalog == nil {
		return nil, fmt.Errorf("catalog source is nil")
	}
	if limit <= 0 || limit > s.cfg.MaxCandidates {
		limit = s.cfg.MaxCandidates
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}
	normalizedQuery := strings.Join(queryTokens, " ")

	items, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, item := range items {
		score := scoreItem(normalizedQuery, queryTokens, item)
		if score >= s.cfg.MinScore {
			matches = append(matches, Match{Item: item, Score: score})
		}
	}

	// Items arrive newest first; the stable sort keeps that order for equal
	// scores, which is the recency tie-break.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// Confident reports whether the ranked matches identify exactly one item with
// high enough certainty to skip user confirmation.
func Confident(matches []Match) (Match, bool) {
	if len(matches) == 0 {
		return Match{}, false
	}
	if len(matches) == 1 {
		return matches[0], matches[0].Score >= confidentScore
	}
	if matches[0].Score >= confidentScore && matches[0].Score-matches[1].Score >= confidentMargin {
		return matches[0], true
	}
	return Match{}, false
}

func (s *Service) loadCatalog(ctx context.Context) ([]model.ContentItem, error) {
	if s.cache != nil {
		var cached []model.ContentItem
		if err := s.cache.GetCatalogSnapshot(ctx, &cached); err == nil {
			return cached, nil
		}
	}

	items, err := s.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	if s.cache != nil && s.cfg.CacheTTL > 0 {
		_ = s.cache.SetCatalogSnapshot(ctx, items, s.cfg.CacheTTL)
	}

	return items, nil
}

func scoreItem(normalizedQuery string, queryTokens []string, item model.ContentItem) float64 {
	best := scoreCandidate(normalizedQuery, queryTokens, item.Name)
	for _, alias := range item.Aliases {
		if score := scoreCandidate(normalizedQuery, queryTokens, alias); score > best {
			best = score
		}
	}
	return best
}

func scoreCandidate(normalizedQuery string, queryTokens []string, candidate string) float64 {
	candidateTokens := tokenize(candidate)
	if len(candidateTokens) == 0 {
		return 0
	}
	normalizedCandidate := strings.Join(candidateTokens, " ")

	if normalizedCandidate == normalizedQuery {
		return scoreExact
	}

	candidateSet := make(map[string]struct{}, len(candidateTokens))
	for _, token := range candidateTokens {
		candidateSet[token] = struct{}{}
	}

	matched := 0
	for _, token := range queryTokens {
		if _, ok := candidateSet[token]; ok {
			matched++
		}
	}

	var score float64
	if matched == len(queryTokens) {
		score = scoreAllTokens
	} else {
		score = scorePartial * float64(matched) / float64(len(queryTokens))
	}

	if strings.Contains(normalizedCandidate, normalizedQuery) {
		score += substringBonus
	}
	if score > scoreExact {
		score = scoreExact
	}

	return score
}

func tokenize(raw string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, raw)

	return strings.Fields(cleaned)
}
