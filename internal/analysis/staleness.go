package analysis

import (
	"strings"
	"time"

	"reminder-service/internal/config"
	"reminder-service/internal/models"
)

// StalenessAnalyzer scores how long an item has gone without activity.
type StalenessAnalyzer struct {
	cfg config.StalenessConfig
}

func NewStalenessAnalyzer(cfg config.StalenessConfig) *StalenessAnalyzer {
	return &StalenessAnalyzer{cfg: cfg}
}

// Analyze never fails for a non-nil item. Missing comment or worklog data
// lowers confidence instead of counting as recent activity.
func (a *StalenessAnalyzer) Analyze(item *models.Item, now time.Time) models.StalenessResult {
	w := a.cfg.SignalWeights
	res := models.StalenessResult{Confidence: 1}

	res.DaysSinceUpdate = daysSince(now, item.Updated)
	gap := res.DaysSinceUpdate * w.Update
	total := w.Update

	if item.LastCommentAt != nil {
		d := daysSince(now, *item.LastCommentAt)
		res.DaysSinceComment = &d
		gap += d * w.Comment
		total += w.Comment
	} else {
		res.Confidence -= 0.15
	}
	if item.LastWorklogAt != nil {
		d := daysSince(now, *item.LastWorklogAt)
		res.DaysSinceWorklog = &d
		gap += d * w.Worklog
		total += w.Worklog
	} else {
		res.Confidence -= 0.15
	}
	if item.Assignee == "" {
		res.Confidence -= 0.1
	}
	res.Confidence = max(res.Confidence, 0.3)

	inactivity := 0.0
	if total > 0 {
		inactivity = gap / total
	}
	effective := inactivity *
		multiplier(a.cfg.TypeMultipliers, item.Type) *
		multiplier(a.cfg.PriorityMultipliers, item.Priority)

	res.InactivityDays = effective
	res.Level = a.level(effective)
	res.IsStale = res.Level.Rank() >= models.StalenessStale.Rank()
	res.Score = clamp01(effective / a.cfg.Thresholds.VeryStale)
	res.Factors = models.StalenessFactors{
		RecentComments:      item.RecentComments,
		RecentWorklogs:      item.RecentWorklogs,
		RecentStatusChanges: item.RecentStatusChanges,
		ProjectActivity:     min(1, float64(item.RecentStatusChanges)/3),
	}
	if item.Assignee != "" {
		res.Factors.AssigneeActivity = min(1, float64(item.RecentComments+item.RecentWorklogs+item.RecentStatusChanges)/5)
	}
	return res
}

func (a *StalenessAnalyzer) level(days float64) models.StalenessLevel {
	t := a.cfg.Thresholds
	switch {
	case days < t.Fresh:
		return models.StalenessFresh
	case days < t.Aging:
		return models.StalenessAging
	case days < t.Stale:
		return models.StalenessStale
	case days < t.VeryStale:
		return models.StalenessVeryStale
	default:
		return models.StalenessAbandoned
	}
}

// Neutral is returned when staleness analysis is switched off.
func (a *StalenessAnalyzer) Neutral() models.StalenessResult {
	return models.StalenessResult{
		Level: models.StalenessFresh,
		Score: a.cfg.NeutralScore,
	}
}

func daysSince(now, t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	d := now.Sub(t).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

func multiplier(table map[string]float64, name string) float64 {
	if v, ok := table[strings.ToLower(name)]; ok {
		return v
	}
	return 1
}

func clamp01(v float64) float64 {
	return min(1, max(0, v))
}
