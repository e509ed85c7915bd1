package analysis

import (
	"strings"

	"reminder-service/internal/config"
	"reminder-service/internal/models"
)

// ContextAnalyzer scores business and technical importance from keyword tables.
type ContextAnalyzer struct {
	cfg config.ContextConfig
}

func NewContextAnalyzer(cfg config.ContextConfig) *ContextAnalyzer {
	return &ContextAnalyzer{cfg: cfg}
}

func (a *ContextAnalyzer) Analyze(item *models.Item) models.ContextResult {
	k := a.cfg.Keywords
	mod := a.cfg.Modifiers
	m := newMatcher(item)

	security := m.Matches(k.Security)
	customer := m.Matches(k.CustomerFacing)
	blocking := m.Matches(k.Blocking) || item.BlockedIssues > 0

	priority := lookup(a.cfg.PriorityWeights, item.Priority, a.cfg.DefaultPriorityWeight)
	if security {
		priority *= mod.Security
	}
	if customer {
		priority *= mod.CustomerFacing
	}
	if blocking {
		priority *= mod.Blocking
	}

	res := models.ContextResult{
		PriorityScore:          clamp01(priority),
		TypeScore:              a.typeScore(item, m),
		ProjectImportanceScore: a.projectScore(item),
	}

	res.BusinessImpact = models.BusinessImpact{
		CustomerFacing:  customer,
		RevenueImpact:   revenueTier(m, k, customer),
		Blocking:        blocking,
		DependentIssues: item.BlockedIssues,
	}

	skills := m.MatchingKeys(k.Skills)
	res.TechnicalComplexity = a.complexity(item, m, skills)
	res.Visibility = visibility(item, m, k, customer)

	res.Factors = models.ContextualFactors{
		Blocking:            blocking,
		Security:            security,
		PerformanceCritical: m.Matches(k.Performance),
		ExternalDependency:  m.Matches(k.ExternalDependency),
		SpecializedSkill:    len(skills) > 0,
		InEpic:              item.EpicKey != "",
		EpicPriority:        item.EpicPriority,
	}

	w := a.cfg.ScoreWeights
	sum := w.Priority + w.Type + w.Project + w.Business + w.Visibility
	if sum > 0 {
		res.Score = clamp01((res.PriorityScore*w.Priority +
			res.TypeScore*w.Type +
			res.ProjectImportanceScore*w.Project +
			businessScore(res.BusinessImpact)*w.Business +
			res.Visibility.Score*w.Visibility) / sum)
	}
	return res
}

func (a *ContextAnalyzer) typeScore(item *models.Item, m matcher) float64 {
	k := a.cfg.Keywords
	mod := a.cfg.Modifiers
	score := lookup(a.cfg.TypeWeights, item.Type, a.cfg.DefaultTypeWeight)

	switch strings.ToLower(item.Type) {
	case "bug":
		if m.Matches(k.Crash) {
			score *= mod.CrashBoost
		}
	case "story":
		if item.StoryPoints != nil && *item.StoryPoints >= mod.LargeStoryPoints {
			score *= mod.LargeStoryBoost
		}
	case "epic":
		score += mod.EpicBoost
	}
	if m.Matches(k.Cosmetic) {
		score *= mod.CosmeticDampen
	}
	return clamp01(score)
}

func (a *ContextAnalyzer) projectScore(item *models.Item) float64 {
	k := a.cfg.Keywords
	score, ok := a.cfg.ProjectWeights[item.Project]
	if !ok {
		score = lookup(a.cfg.ProjectWeights, item.Project, a.cfg.DefaultProjectWeight)
	}
	name := textMatcher(item.Project + " " + item.ProjectName)
	if name.Matches(k.ProjectBoost) {
		score *= a.cfg.Modifiers.ProjectBoost
	}
	if name.Matches(k.ProjectDampen) {
		score *= a.cfg.Modifiers.ProjectDampen
	}
	return clamp01(score)
}

func (a *ContextAnalyzer) complexity(item *models.Item, m matcher, skills []string) models.TechnicalComplexity {
	k := a.cfg.Keywords
	tc := models.TechnicalComplexity{RequiredSkills: skills}
	if item.StoryPoints != nil {
		tc.EstimatedEffort = *item.StoryPoints
	}

	switch {
	case m.Matches(k.Architecture) || len(item.Components) >= 3:
		tc.ComponentComplexity = models.TierHigh
	case m.Matches(k.Integration) || len(item.Components) == 2:
		tc.ComponentComplexity = models.TierMedium
	case len(item.Components) == 1:
		tc.ComponentComplexity = models.TierLow
	default:
		tc.ComponentComplexity = models.TierNone
	}

	testing := m.Matches(k.Testing)
	switch {
	case testing && tc.ComponentComplexity == models.TierHigh:
		tc.TestingComplexity = models.TierHigh
	case testing || m.Matches(k.Performance):
		tc.TestingComplexity = models.TierMedium
	default:
		tc.TestingComplexity = models.TierLow
	}
	return tc
}

// Neutral is returned when context analysis is switched off.
func (a *ContextAnalyzer) Neutral() models.ContextResult {
	n := a.cfg.NeutralScore
	return models.ContextResult{
		PriorityScore:          n,
		TypeScore:              n,
		ProjectImportanceScore: n,
		BusinessImpact:         models.BusinessImpact{RevenueImpact: models.TierNone},
		TechnicalComplexity: models.TechnicalComplexity{
			ComponentComplexity: models.TierNone,
			TestingComplexity:   models.TierNone,
		},
		Visibility: models.StakeholderVisibility{Level: "team"},
		Score:      n,
	}
}

func revenueTier(m matcher, k config.KeywordTables, customer bool) models.Tier {
	switch {
	case m.Matches(k.RevenueHigh):
		return models.TierHigh
	case m.Matches(k.RevenueMedium):
		return models.TierMedium
	case customer:
		return models.TierLow
	default:
		return models.TierNone
	}
}

func visibility(item *models.Item, m matcher, k config.KeywordTables, customer bool) models.StakeholderVisibility {
	v := models.StakeholderVisibility{Watchers: item.Watchers}
	switch {
	case m.Matches(k.Executive):
		v.Level, v.Score = "executive", 1.0
	case customer || item.Watchers >= 5:
		v.Level, v.Score = "department", 0.6
	default:
		v.Level, v.Score = "team", 0.3
	}
	v.Score = clamp01(v.Score + min(0.2, float64(item.Watchers)*0.02))
	return v
}

func businessScore(b models.BusinessImpact) float64 {
	score := tierScore(b.RevenueImpact)
	if b.CustomerFacing {
		score = max(score, 0.6)
	}
	if b.Blocking {
		score = max(score, 0.8)
	}
	return clamp01(score + min(0.2, float64(b.DependentIssues)*0.05))
}

func tierScore(t models.Tier) float64 {
	switch t {
	case models.TierHigh:
		return 1
	case models.TierMedium:
		return 0.6
	case models.TierLow:
		return 0.3
	default:
		return 0
	}
}

func lookup(table map[string]float64, name string, def float64) float64 {
	if v, ok := table[strings.ToLower(name)]; ok {
		return v
	}
	return def
}
