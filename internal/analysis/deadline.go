package analysis

import (
	"math"
	"strings"
	"time"

	"reminder-service/internal/config"
	"reminder-service/internal/models"
)

// DeadlineAnalyzer scores due date, release and SLA proximity.
type DeadlineAnalyzer struct {
	cfg config.DeadlineConfig
	cal *Calendar
}

func NewDeadlineAnalyzer(cfg config.DeadlineConfig) *DeadlineAnalyzer {
	return &DeadlineAnalyzer{cfg: cfg, cal: NewCalendar(cfg.BusinessHours, cfg.Holidays)}
}

func (a *DeadlineAnalyzer) Analyze(item *models.Item, now time.Time) models.DeadlineResult {
	res := models.DeadlineResult{Urgency: models.UrgencyLow}
	points := 0

	if item.DueDate != nil {
		days := a.daysUntil(now, *item.DueDate)
		due := *item.DueDate
		res.HasDueDate = true
		res.DueDate = &due
		res.DaysUntilDue = &days
		points += proximityPoints(a.cfg.DuePoints, days)
	}

	if release := earliestRelease(item.FixVersions); release != nil {
		days := a.daysUntil(now, *release)
		res.HasRelease = true
		res.ReleaseDate = release
		res.DaysUntilRelease = &days
		points += proximityPoints(a.cfg.ReleasePoints, days)
	}

	res.SLA = a.evaluateSLA(item, now)
	switch res.SLA.Status {
	case models.SLAWarning:
		points += a.cfg.SLAPoints.Warning
	case models.SLACritical:
		points += a.cfg.SLAPoints.Critical
	case models.SLABreached:
		points += a.cfg.SLAPoints.Breached
	}

	scaled := int(math.Round(float64(points) * multiplier(a.cfg.PriorityMultipliers, item.Priority)))
	res.UrgencyScore = scaled
	res.Urgency = a.urgency(scaled)
	res.Score = clamp01(float64(scaled) / a.cfg.ScoreScale)
	return res
}

func (a *DeadlineAnalyzer) daysUntil(now, t time.Time) int {
	if a.cfg.BusinessDaysOnly {
		return a.cal.BusinessDays(now, t)
	}
	return a.cal.CalendarDays(now, t)
}

func (a *DeadlineAnalyzer) urgency(score int) models.Urgency {
	u := a.cfg.UrgencyThresholds
	switch {
	case score >= u.Critical:
		return models.UrgencyCritical
	case score >= u.High:
		return models.UrgencyHigh
	case score >= u.Medium:
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}

// evaluateSLA picks the most restrictive matching SLA and grades it.
func (a *DeadlineAnalyzer) evaluateSLA(item *models.Item, now time.Time) models.SLAResult {
	var chosen *config.SLAConfig
	for i := range a.cfg.SLAs {
		s := &a.cfg.SLAs[i]
		if !matchesAny(s.Priorities, item.Priority) || !matchesAny(s.IssueTypes, item.Type) {
			continue
		}
		if chosen == nil || s.TimeLimitHours < chosen.TimeLimitHours {
			chosen = s
		}
	}
	if chosen == nil || item.Created.IsZero() {
		return models.SLAResult{Status: models.SLANone, PercentTimeRemaining: 100}
	}

	var deadline time.Time
	var remaining float64
	if chosen.BusinessHoursOnly {
		deadline = a.cal.AddBusinessHours(item.Created, chosen.TimeLimitHours)
		remaining = chosen.TimeLimitHours - a.cal.BusinessHoursBetween(item.Created, now)
	} else {
		deadline = item.Created.Add(time.Duration(chosen.TimeLimitHours * float64(time.Hour)))
		remaining = deadline.Sub(now).Hours()
	}
	pct := remaining / chosen.TimeLimitHours * 100
	return models.SLAResult{
		Name:                 chosen.Name,
		Status:               SLAHealth(pct),
		Deadline:             &deadline,
		HoursToBreach:        remaining,
		PercentTimeRemaining: pct,
	}
}

// SLAHealth grades percent of SLA time remaining.
func SLAHealth(pct float64) models.SLAStatus {
	switch {
	case pct <= 0:
		return models.SLABreached
	case pct <= 10:
		return models.SLACritical
	case pct <= 25:
		return models.SLAWarning
	default:
		return models.SLASafe
	}
}

// Neutral is returned when deadline analysis is switched off.
func (a *DeadlineAnalyzer) Neutral() models.DeadlineResult {
	return models.DeadlineResult{
		Urgency: models.UrgencyLow,
		SLA:     models.SLAResult{Status: models.SLANone, PercentTimeRemaining: 100},
		Score:   a.cfg.NeutralScore,
	}
}

func proximityPoints(p config.ProximityPoints, days int) int {
	if days < 0 {
		return p.Overdue
	}
	for _, s := range p.Steps {
		if days <= s.WithinDays {
			return s.Points
		}
	}
	return 0
}

// earliestRelease returns the nearest release date among unreleased versions.
func earliestRelease(versions []models.Version) *time.Time {
	var best *time.Time
	for _, v := range versions {
		if v.Released || v.ReleaseDate == nil {
			continue
		}
		if best == nil || v.ReleaseDate.Before(*best) {
			d := *v.ReleaseDate
			best = &d
		}
	}
	return best
}

// matchesAny treats an empty filter as matching everything.
func matchesAny(filter []string, value string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if strings.EqualFold(f, value) {
			return true
		}
	}
	return false
}
