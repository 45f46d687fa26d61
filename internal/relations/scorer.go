package relations

import (
	"fmt"
	"math"
	"sort"

	"github.com/pulseengine/pulse/pkg/errors"
	"github.com/pulseengine/pulse/pkg/types"
)

// Factor names carried in edge metadata so consumers can explain why two
// entities are related.
const (
	FactorTags            = "tags"
	FactorParticipantOrgs = "participant_orgs"
	FactorPlaces          = "places"
	FactorCrossRefs       = "cross_refs"
)

// Weights assigns the relative importance of each overlap factor. The four
// weights must sum to 1.0.
type Weights struct {
	Tags            float64 `json:"tags"`
	ParticipantOrgs float64 `json:"participant_orgs"`
	Places          float64 `json:"places"`
	CrossRefs       float64 `json:"cross_refs"`
}

// Config contains relationship scoring configuration
type Config struct {
	Weights Weights `json:"weights"`
	// MinScore is the retention threshold; pairs scoring below it are dropped.
	MinScore float64 `json:"min_score"`
	// TopK bounds the number of edges retained per entity on dense graphs.
	TopK int `json:"top_k"`
}

// DefaultConfig returns default scoring configuration
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Tags:            0.4,
			ParticipantOrgs: 0.3,
			Places:          0.2,
			CrossRefs:       0.1,
		},
		MinScore: 0.3,
		TopK:     10,
	}
}

// Validate checks the configuration; violations are fatal at startup.
func (c Config) Validate() error {
	sum := c.Weights.Tags + c.Weights.ParticipantOrgs + c.Weights.Places + c.Weights.CrossRefs
	if math.Abs(sum-1.0) > 1e-9 {
		return errors.NewConfigurationError(
			fmt.Sprintf("relationship factor weights must sum to 1.0, got %v", sum))
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return errors.NewConfigurationError("relationship min score must be in [0,1]")
	}
	if c.TopK <= 0 {
		return errors.NewConfigurationError("relationship top-k must be positive")
	}
	return nil
}

// Scorer computes weighted similarity edges between entities. It is a pure
// function over the snapshot it is given: identical input yields identical
// edges in identical order.
type Scorer struct {
	config Config
}

// NewScorer creates a new scorer, validating its configuration.
func NewScorer(config Config) (*Scorer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{config: config}, nil
}

// Score computes the retained relationship edges for a set of entities.
// Candidate pairs are pre-bucketed through an inverted index over factor
// values, so entities sharing nothing are never compared.
func (s *Scorer) Score(entities []types.Entity) []types.RelationshipEdge {
	if len(entities) < 2 {
		return []types.RelationshipEdge{}
	}

	byID := make(map[string]types.Entity, len(entities))
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		if _, dup := byID[e.ID]; dup {
			continue
		}
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)

	edges := make([]types.RelationshipEdge, 0)
	for p := range s.candidatePairs(ids, byID) {
		edge, ok := s.scorePair(byID[p.a], byID[p.b])
		if ok {
			edges = append(edges, edge)
		}
	}

	sortEdges(edges)
	edges = s.trimTopK(edges)
	sortEdges(edges)
	return edges
}

type pair struct {
	a, b string // a < b lexicographically
}

// candidatePairs buckets entities by shared factor values. Only pairs that
// co-occur in at least one bucket are scored, avoiding the full O(n^2) sweep.
func (s *Scorer) candidatePairs(ids []string, byID map[string]types.Entity) map[pair]struct{} {
	index := make(map[string][]string)

	addTokens := func(id, prefix string, values []string) {
		for _, v := range values {
			token := prefix + ":" + v
			index[token] = append(index[token], id)
		}
	}

	for _, id := range ids {
		e := byID[id]
		addTokens(id, FactorTags, e.Tags)
		addTokens(id, FactorParticipantOrgs, e.ParticipantOrgs)
		addTokens(id, FactorPlaces, e.Places)
		addTokens(id, FactorCrossRefs, e.CrossRefs)
	}

	pairs := make(map[pair]struct{})
	for _, bucket := range index {
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				a, b := bucket[i], bucket[j]
				if a == b {
					continue
				}
				if b < a {
					a, b = b, a
				}
				pairs[pair{a, b}] = struct{}{}
			}
		}
	}

	return pairs
}

// scorePair computes the weighted overlap score for one pair. The overlap
// ratio denominator is the larger of the two set sizes, which keeps
// score(A,B) == score(B,A) by construction.
func (s *Scorer) scorePair(a, b types.Entity) (types.RelationshipEdge, bool) {
	factors := []types.FactorOverlap{
		overlapFactor(FactorTags, a.Tags, b.Tags, s.config.Weights.Tags),
		overlapFactor(FactorParticipantOrgs, a.ParticipantOrgs, b.ParticipantOrgs, s.config.Weights.ParticipantOrgs),
		overlapFactor(FactorPlaces, a.Places, b.Places, s.config.Weights.Places),
		overlapFactor(FactorCrossRefs, a.CrossRefs, b.CrossRefs, s.config.Weights.CrossRefs),
	}

	score := 0.0
	for _, f := range factors {
		score += f.Weight * f.Ratio
	}

	if score < s.config.MinScore {
		return types.RelationshipEdge{}, false
	}

	return types.RelationshipEdge{
		EntityA: a.ID,
		EntityB: b.ID,
		Score:   score,
		Factors: factors,
	}, true
}

// overlapFactor computes one factor's shared set and overlap ratio
// |A ∩ B| / max(|A|, |B|, 1).
func overlapFactor(name string, a, b []string, weight float64) types.FactorOverlap {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}

	var shared []string
	seen := make(map[string]struct{})
	for _, v := range b {
		if _, ok := set[v]; ok {
			if _, dup := seen[v]; !dup {
				seen[v] = struct{}{}
				shared = append(shared, v)
			}
		}
	}
	sort.Strings(shared)

	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	if denom == 0 {
		denom = 1
	}

	return types.FactorOverlap{
		Factor: name,
		Shared: shared,
		Ratio:  float64(len(shared)) / float64(denom),
		Weight: weight,
	}
}

// trimTopK keeps, for every entity, its K highest-ranked edges. An edge
// survives if it is within the top K of either endpoint.
func (s *Scorer) trimTopK(edges []types.RelationshipEdge) []types.RelationshipEdge {
	perEntity := make(map[string]int)
	keep := make([]types.RelationshipEdge, 0, len(edges))

	// edges arrive best-first, so a linear pass suffices.
	for _, e := range edges {
		a := perEntity[e.EntityA]
		b := perEntity[e.EntityB]
		if a >= s.config.TopK && b >= s.config.TopK {
			continue
		}
		perEntity[e.EntityA] = a + 1
		perEntity[e.EntityB] = b + 1
		keep = append(keep, e)
	}

	return keep
}

// sortEdges orders edges best-first: score desc, then absolute overlap count
// desc, then lexicographic id order. Fully deterministic.
func sortEdges(edges []types.RelationshipEdge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Score != edges[j].Score {
			return edges[i].Score > edges[j].Score
		}
		si, sj := edges[i].SharedCount(), edges[j].SharedCount()
		if si != sj {
			return si > sj
		}
		if edges[i].EntityA != edges[j].EntityA {
			return edges[i].EntityA < edges[j].EntityA
		}
		return edges[i].EntityB < edges[j].EntityB
	})
}

// RelatedTo filters the edge set down to one entity's edges, best-first,
// bounded by limit (0 means no bound).
func RelatedTo(edges []types.RelationshipEdge, entityID string, limit int) []types.RelationshipEdge {
	var out []types.RelationshipEdge
	for _, e := range edges {
		if e.EntityA == entityID || e.EntityB == entityID {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}
