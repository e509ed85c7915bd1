package analysis

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"reminder-service/internal/config"
	"reminder-service/internal/models"
)

// maxRollForward bounds the search for the next working window in days.
const maxRollForward = 14

// WorkloadInput is everything the workload analyzer needs for one decision.
type WorkloadInput struct {
	Item  *models.Item
	Prefs models.UserPreferences
	User  models.UserActivity
	Team  models.TeamActivity
	// Sent holds the recipient's delivery timestamps from the last week.
	Sent []time.Time
	Now  time.Time
}

// WorkloadAnalyzer scores recipient capacity and the notification budget left.
type WorkloadAnalyzer struct {
	cfg config.WorkloadConfig
}

func NewWorkloadAnalyzer(cfg config.WorkloadConfig) *WorkloadAnalyzer {
	return &WorkloadAnalyzer{cfg: cfg}
}

func (a *WorkloadAnalyzer) Analyze(in WorkloadInput) models.WorkloadImpact {
	user := a.userWorkload(in.User, in.Prefs)
	team := a.teamWorkload(in.Team)
	freq := a.frequency(in.Prefs, in.Sent, in.Now)

	should, reason := a.shouldNotify(in.Item, user, team, freq, in.Now)
	impact := models.WorkloadImpact{
		User:         user,
		Team:         team,
		Frequency:    freq,
		ShouldNotify: should,
		Reason:       reason,
	}
	impact.OptimalNotificationTime = a.optimalTime(in.Prefs, freq, user.Stress.Overall, in.Now)
	capScore, ok := a.cfg.CapacityScores[string(user.Capacity)]
	if !ok {
		capScore = a.cfg.NeutralScore
	}
	impact.Score = clamp01(capScore * freq.Score)
	return impact
}

// Neutral is returned when workload analysis is switched off. The disable
// switch in the recipient's preferences still applies.
func (a *WorkloadAnalyzer) Neutral(prefs models.UserPreferences, now time.Time) models.WorkloadImpact {
	impact := models.WorkloadImpact{
		User: models.UserWorkload{
			UserID:       prefs.UserID,
			Capacity:     models.CapacityOptimal,
			Stress:       models.StressIndicators{Overall: models.StressLow},
			WorkingHours: prefs.WorkingHours,
		},
		Team:                    models.TeamWorkload{Capacity: models.TeamHealthy},
		Frequency:               models.NotificationFrequency{UserPreference: prefs.NotificationFrequency, Score: 1},
		OptimalNotificationTime: now,
		ShouldNotify:            true,
		Reason:                  "workload analysis disabled",
		Score:                   a.cfg.NeutralScore,
	}
	if prefs.NotificationFrequency == models.FrequencyDisabled {
		impact.ShouldNotify = false
		impact.Reason = "notifications disabled by recipient"
	}
	return impact
}

func (a *WorkloadAnalyzer) userWorkload(act models.UserActivity, prefs models.UserPreferences) models.UserWorkload {
	c := a.cfg.Capacity
	points := 0
	switch {
	case act.OpenIssues >= c.OpenHeavy:
		points += 3
	case act.OpenIssues >= c.OpenBusy:
		points += 2
	case act.OpenIssues >= c.OpenModerate:
		points++
	case act.OpenIssues <= c.OpenLight:
		points--
	}
	switch {
	case act.AvgResolutionHours > c.SlowResolutionHours:
		points += 2
	case act.AvgResolutionHours > c.ModerateResolutionHours:
		points++
	}
	switch {
	case act.CompletedLast7Days == 0:
		points += 2
	case act.CompletedLast7Days < c.LowCompletions:
		points++
	case act.CompletedLast7Days >= c.HighCompletions:
		points--
	}

	tier := models.CapacityOptimal
	switch {
	case points >= c.OverPoints:
		tier = models.CapacityOver
	case points >= c.NearPoints:
		tier = models.CapacityNear
	case points <= 0:
		tier = models.CapacityUnder
	}

	userID := act.UserID
	if userID == "" {
		userID = prefs.UserID
	}
	return models.UserWorkload{
		UserID:             userID,
		OpenIssues:         act.OpenIssues,
		RecentlyCompleted:  act.CompletedLast7Days,
		AvgResolutionHours: act.AvgResolutionHours,
		CapacityPoints:     points,
		Capacity:           tier,
		Stress:             a.stress(act),
		WorkingHours:       prefs.WorkingHours,
	}
}

func (a *WorkloadAnalyzer) stress(act models.UserActivity) models.StressIndicators {
	s := a.cfg.Stress
	band := func(v, high, moderate int) int {
		switch {
		case v >= high:
			return 2
		case v >= moderate:
			return 1
		}
		return 0
	}
	points := band(act.RapidStatusChanges, s.RapidChangesHigh, s.RapidChangesModerate) +
		band(act.AfterHoursUpdates, s.AfterHoursHigh, s.AfterHoursModerate) +
		band(act.WeekendUpdates, s.WeekendHigh, s.WeekendModerate)
	switch {
	case act.AvgResponseHours >= s.ResponseHoursHigh:
		points += 2
	case act.AvgResponseHours >= s.ResponseHoursModerate:
		points++
	}

	level := models.StressLow
	switch {
	case points >= s.CriticalBand:
		level = models.StressCritical
	case points >= s.HighBand:
		level = models.StressHigh
	case points >= s.ModerateBand:
		level = models.StressModerate
	}
	return models.StressIndicators{
		RapidStatusChanges: act.RapidStatusChanges,
		AfterHoursActivity: act.AfterHoursUpdates,
		WeekendActivity:    act.WeekendUpdates,
		DelayedResponses:   act.AvgResponseHours >= s.ResponseHoursModerate,
		Points:             points,
		Overall:            level,
	}
}

func (a *WorkloadAnalyzer) teamWorkload(act models.TeamActivity) models.TeamWorkload {
	r := a.cfg.Team
	members := len(act.IssuesByMember)
	perMember := float64(act.ActiveIssues)
	if members > 0 {
		perMember /= float64(members)
	}

	tier := models.TeamHealthy
	switch {
	case perMember >= r.CriticalPerMember:
		tier = models.TeamCritical
	case perMember >= r.OverloadedPerMember:
		tier = models.TeamOverloaded
	case perMember >= r.BusyPerMember:
		tier = models.TeamBusy
	}

	balance := 1.0
	if members > 1 {
		lo, hi := -1, 0
		for _, n := range act.IssuesByMember {
			if lo < 0 || n < lo {
				lo = n
			}
			hi = max(hi, n)
		}
		if hi > 0 {
			balance = 1 - float64(hi-lo)/float64(hi)
		}
	}

	collab := 0.0
	if act.ActiveIssues > 0 {
		collab = min(1, float64(act.RecentComments)/float64(act.ActiveIssues))
	}
	return models.TeamWorkload{
		Project:             act.Project,
		ActiveIssues:        act.ActiveIssues,
		AverageAgeDays:      act.AverageAgeDays,
		Capacity:            tier,
		DistributionBalance: balance,
		CollaborationScore:  collab,
	}
}

func (a *WorkloadAnalyzer) frequency(prefs models.UserPreferences, sent []time.Time, now time.Time) models.NotificationFrequency {
	l := a.cfg.Limits
	f := models.NotificationFrequency{
		UserPreference: prefs.NotificationFrequency,
		CooldownHours:  l.DefaultCooldownHours,
	}
	if h, ok := l.CooldownHours[string(prefs.NotificationFrequency)]; ok {
		f.CooldownHours = h
	}
	for _, t := range sent {
		age := now.Sub(t)
		if age < 0 {
			continue
		}
		if age < 24*time.Hour {
			f.RecentCount++
		}
		if age < 7*24*time.Hour {
			f.WeeklyCount++
		}
		if f.LastSent == nil || t.After(*f.LastSent) {
			last := t
			f.LastSent = &last
		}
	}

	recency := 1.0
	if f.LastSent != nil && f.CooldownHours > 0 {
		recency = min(1, now.Sub(*f.LastSent).Hours()/(2*f.CooldownHours))
	}
	volume := 1.0
	if l.MaxDaily > 0 {
		volume = 1 - min(1, float64(f.RecentCount)/float64(l.MaxDaily))
	}
	f.Score = clamp01(recency * volume)
	return f
}

func (a *WorkloadAnalyzer) cooldown(f models.NotificationFrequency) time.Duration {
	return time.Duration(f.CooldownHours * float64(time.Hour))
}

// shouldNotify applies the gate checks in order; the first refusal wins.
func (a *WorkloadAnalyzer) shouldNotify(item *models.Item, user models.UserWorkload, team models.TeamWorkload,
	f models.NotificationFrequency, now time.Time) (bool, string) {
	l := a.cfg.Limits
	urgentItem := isUrgentPriority(item)

	switch {
	case f.UserPreference == models.FrequencyDisabled:
		return false, "notifications disabled by recipient"
	case user.Capacity == models.CapacityOver && user.Stress.Overall == models.StressCritical:
		return false, "recipient is over capacity with critical stress"
	case l.MaxDaily > 0 && f.RecentCount >= l.MaxDaily:
		return false, fmt.Sprintf("daily notification cap reached (%d/%d)", f.RecentCount, l.MaxDaily)
	case l.MaxWeekly > 0 && f.WeeklyCount >= l.MaxWeekly:
		return false, fmt.Sprintf("weekly notification cap reached (%d/%d)", f.WeeklyCount, l.MaxWeekly)
	case f.LastSent != nil && now.Sub(*f.LastSent) < a.cooldown(f):
		next := f.LastSent.Add(a.cooldown(f))
		return false, fmt.Sprintf("within %.0fh cooldown until %s", f.CooldownHours, next.Format(time.RFC3339))
	case team.Capacity == models.TeamCritical && !urgentItem:
		return false, "team is at critical capacity"
	}

	switch f.UserPreference {
	case models.FrequencyMinimal:
		if !urgentItem {
			return false, "minimal preference only allows blocker or critical items"
		}
	case models.FrequencyGentle:
		if user.Capacity == models.CapacityOver {
			return false, "gentle preference holds back while recipient is over capacity"
		}
	case models.FrequencyModerate:
		if user.Stress.Overall == models.StressCritical {
			return false, "moderate preference holds back while recipient stress is critical"
		}
	}
	return true, "within notification budget"
}

// optimalTime returns now when the recipient can be reached right away and
// otherwise rolls forward to the next working window outside quiet hours.
func (a *WorkloadAnalyzer) optimalTime(prefs models.UserPreferences, f models.NotificationFrequency,
	stress models.StressLevel, now time.Time) time.Time {
	loc := prefs.Location()
	earliest := now
	if f.LastSent != nil {
		if c := f.LastSent.Add(a.cooldown(f)); c.After(earliest) {
			earliest = c
		}
	}
	if earliest.Equal(now) && reachable(prefs, now.In(loc)) {
		return now
	}
	t := nextWorkingSlot(prefs, earliest.In(loc), 0)
	if stress == models.StressHigh || stress == models.StressCritical {
		t = t.Add(time.Duration(a.cfg.StressDelayMinutes) * time.Minute)
	}
	return t
}

func reachable(p models.UserPreferences, t time.Time) bool {
	wh := p.WorkingHours
	if !wh.IsWorkingDay(t.Weekday()) || t.Hour() < wh.StartHour || t.Hour() >= wh.EndHour {
		return false
	}
	if p.QuietHours.Enabled && p.QuietHours.WeekendsQuiet && isWeekend(t) {
		return false
	}
	return !inQuietHours(p.QuietHours, t)
}

func nextWorkingSlot(p models.UserPreferences, t time.Time, depth int) time.Time {
	if depth > maxRollForward || reachable(p, t) {
		return t
	}
	wh := p.WorkingHours
	y, m, d := t.Date()
	loc := t.Location()

	weekendQuiet := p.QuietHours.Enabled && p.QuietHours.WeekendsQuiet && isWeekend(t)
	if !wh.IsWorkingDay(t.Weekday()) || weekendQuiet || t.Hour() >= wh.EndHour {
		return nextWorkingSlot(p, time.Date(y, m, d+1, wh.StartHour, 0, 0, 0, loc), depth+1)
	}
	if t.Hour() < wh.StartHour {
		return nextWorkingSlot(p, time.Date(y, m, d, wh.StartHour, 0, 0, 0, loc), depth+1)
	}
	// Inside working hours but quiet: jump to the end of the quiet window.
	end, ok := quietEnd(p.QuietHours, t)
	if !ok {
		return t
	}
	return nextWorkingSlot(p, end, depth+1)
}

func inQuietHours(q models.QuietHours, t time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, ok1 := parseClock(q.Start)
	end, ok2 := parseClock(q.End)
	if !ok1 || !ok2 || start == end {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

func quietEnd(q models.QuietHours, t time.Time) (time.Time, bool) {
	end, ok := parseClock(q.End)
	if !ok {
		return t, false
	}
	y, m, d := t.Date()
	c := time.Date(y, m, d, end/60, end%60, 0, 0, t.Location())
	if !c.After(t) {
		c = c.AddDate(0, 0, 1)
	}
	return c, true
}

// parseClock turns "HH:MM" into minutes after midnight.
func parseClock(s string) (int, bool) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

func isUrgentPriority(item *models.Item) bool {
	if item == nil {
		return false
	}
	p := strings.ToLower(item.Priority)
	return p == "blocker" || p == "critical"
}
