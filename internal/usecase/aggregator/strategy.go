package aggregator

import (
	"strings"

	"github.com/meridian-cloud/contextd/internal/domain"
)

// Strategy biases which legs of the hybrid knowledge query run. It never
// changes fusion weights, only what gets retrieved.
type Strategy string

// Retrieval strategies.
const (
	StrategyKeyword Strategy = "keyword"
	StrategyVector  Strategy = "vector"
	StrategyHybrid  Strategy = "hybrid"
)

// recommend picks a retrieval strategy for a query. Short domain-term
// lookups resolve fastest by keyword; question-form queries without domain
// vocabulary need semantic matching; anything touching known conversation
// topics gets both legs.
func (s *Service) recommend(query string, queryType domain.QueryType, hasKnownTopic bool) Strategy {
	short := len(strings.Fields(query)) <= 3

	switch {
	case short && s.analyzer.HasDomainTerm(query):
		return StrategyKeyword
	case queryType == domain.QueryQuestion && !s.analyzer.HasDomainTerm(query):
		return StrategyVector
	case hasKnownTopic:
		return StrategyHybrid
	default:
		return StrategyHybrid
	}
}
