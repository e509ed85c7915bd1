package config

import "time"

// DefaultEngine returns the stock tuning. Keyword tables and point values are
// approximations meant to be retuned per team.
func DefaultEngine() Engine {
	return Engine{
		Staleness: StalenessConfig{
			Enabled:      true,
			NeutralScore: 0.5,
			Thresholds:   StalenessThresholds{Fresh: 3, Aging: 7, Stale: 14, VeryStale: 30},
			SignalWeights: SignalWeights{Update: 0.5, Comment: 0.3, Worklog: 0.2},
			TypeMultipliers: map[string]float64{
				"bug": 1.5, "incident": 1.6, "story": 1.0, "task": 1.0,
				"sub-task": 1.1, "improvement": 0.9, "epic": 0.5,
			},
			PriorityMultipliers: map[string]float64{
				"blocker": 2.0, "highest": 1.8, "critical": 1.8, "high": 1.4,
				"medium": 1.0, "low": 0.7, "lowest": 0.5,
			},
		},
		Deadline: DeadlineConfig{
			Enabled:          true,
			NeutralScore:     0.5,
			BusinessDaysOnly: true,
			BusinessHours: BusinessHours{
				StartHour: 9,
				EndHour:   17,
				Weekdays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
				Timezone:  "UTC",
			},
			SLAs: []SLAConfig{
				{Name: "blocker-response", Type: "response", Priorities: []string{"Blocker"}, TimeLimitHours: 4},
				{Name: "critical-resolution", Type: "resolution", Priorities: []string{"Critical", "Highest"}, TimeLimitHours: 16, BusinessHoursOnly: true},
				{Name: "high-resolution", Type: "resolution", Priorities: []string{"High"}, TimeLimitHours: 40, BusinessHoursOnly: true},
			},
			DuePoints: ProximityPoints{
				Overdue: 40,
				Steps:   []ProximityStep{{WithinDays: 1, Points: 30}, {WithinDays: 3, Points: 20}, {WithinDays: 7, Points: 10}},
			},
			ReleasePoints: ProximityPoints{
				Overdue: 25,
				Steps:   []ProximityStep{{WithinDays: 3, Points: 20}, {WithinDays: 7, Points: 12}, {WithinDays: 14, Points: 5}},
			},
			SLAPoints:         SLAPoints{Warning: 15, Critical: 30, Breached: 40},
			UrgencyThresholds: UrgencyThresholds{Medium: 15, High: 35, Critical: 60},
			PriorityMultipliers: map[string]float64{
				"blocker": 2.0, "critical": 1.7, "highest": 1.7, "high": 1.4,
				"medium": 1.0, "low": 0.8, "lowest": 0.6,
			},
			ScoreScale: 100,
		},
		Context: ContextConfig{
			Enabled:      true,
			NeutralScore: 0.5,
			PriorityWeights: map[string]float64{
				"blocker": 1.0, "critical": 0.9, "highest": 0.9, "high": 0.7,
				"medium": 0.5, "low": 0.3, "lowest": 0.1,
			},
			DefaultPriorityWeight: 0.4,
			TypeWeights: map[string]float64{
				"bug": 0.8, "incident": 0.9, "epic": 0.7, "story": 0.6,
				"task": 0.5, "improvement": 0.5, "sub-task": 0.4,
			},
			DefaultTypeWeight:    0.5,
			ProjectWeights:       map[string]float64{},
			DefaultProjectWeight: 0.5,
			Modifiers: ContextModifiers{
				Security:         1.3,
				CustomerFacing:   1.2,
				Blocking:         1.5,
				CrashBoost:       1.3,
				CosmeticDampen:   0.7,
				LargeStoryPoints: 8,
				LargeStoryBoost:  1.2,
				EpicBoost:        0.1,
				ProjectBoost:     1.2,
				ProjectDampen:    0.8,
			},
			ScoreWeights: ContextWeights{Priority: 0.4, Type: 0.25, Project: 0.15, Business: 0.1, Visibility: 0.1},
			Keywords:     DefaultKeywords(),
		},
		Workload: WorkloadConfig{
			Enabled:      true,
			NeutralScore: 0.5,
			Capacity: CapacityRules{
				OpenHeavy: 12, OpenBusy: 8, OpenModerate: 5, OpenLight: 2,
				SlowResolutionHours: 120, ModerateResolutionHours: 72,
				LowCompletions: 2, HighCompletions: 6,
				NearPoints: 3, OverPoints: 5,
			},
			Stress: StressRules{
				RapidChangesHigh: 10, RapidChangesModerate: 5,
				AfterHoursHigh: 5, AfterHoursModerate: 2,
				WeekendHigh: 3, WeekendModerate: 1,
				ResponseHoursHigh: 48, ResponseHoursModerate: 24,
				ModerateBand: 2, HighBand: 4, CriticalBand: 6,
			},
			Team: TeamRules{BusyPerMember: 5, OverloadedPerMember: 8, CriticalPerMember: 12},
			Limits: FrequencyLimits{
				MaxDaily:  8,
				MaxWeekly: 30,
				CooldownHours: map[string]float64{
					"minimal": 24, "gentle": 8, "moderate": 4, "frequent": 1,
				},
				DefaultCooldownHours: 2,
			},
			CapacityScores: map[string]float64{
				"under_capacity": 1.0, "optimal": 0.7, "near_capacity": 0.4, "over_capacity": 0.1,
			},
			StressDelayMinutes: 120,
		},
		Orchestrator: OrchestratorConfig{
			Weights:         AnalyzerWeights{Staleness: 0.3, Deadline: 0.4, Context: 0.2, Workload: 0.1},
			CacheTTLMinutes: 120,
			ChunkSize:       50,
			MaxConcurrency:  10,
			CriticalScore:   0.9,
			HighScore:       0.7,
			SuggestionScore: 0.4,
		},
		Delivery: DeliveryConfig{
			MaxRetryAttempts: 4,
			BackoffMinutes:   []int{5, 15, 30, 60},
			SnoozeMinutes:    30,
			DefaultChannel:   "inbox",
			PreferenceStep:   10,
			RetentionHours:   72,
			StyleBonus: map[string]map[string]int{
				"critical": {"modal": 15, "banner": 8},
				"high":     {"banner": 10, "modal": 5},
				"medium":   {"message": 5},
				"low":      {"digest": 5, "message": 2},
			},
		},
	}
}

// DefaultKeywords returns the stock heuristic tables.
func DefaultKeywords() KeywordTables {
	return KeywordTables{
		Security: KeywordTable{
			Terms:  []string{"security", "vulnerability", "cve", "exploit", "xss", "csrf", "injection", "auth bypass", "leak"},
			Labels: []string{"security", "vulnerability"},
		},
		CustomerFacing: KeywordTable{
			Terms:  []string{"customer", "client", "user-facing", "production", "checkout", "login"},
			Labels: []string{"customer", "customer-facing", "support"},
		},
		Blocking: KeywordTable{
			Terms:  []string{"blocker", "blocking", "blocked", "cannot proceed", "showstopper"},
			Labels: []string{"blocker", "blocking"},
		},
		Crash: KeywordTable{
			Terms: []string{"crash", "critical", "outage", "data loss", "down", "panic"},
		},
		Cosmetic: KeywordTable{
			Terms:  []string{"cosmetic", "typo", "alignment", "color", "spacing", "wording"},
			Labels: []string{"cosmetic", "ui-polish"},
		},
		RevenueHigh: KeywordTable{
			Terms:  []string{"payment", "billing", "invoice", "revenue", "subscription", "pricing"},
			Labels: []string{"revenue", "billing"},
		},
		RevenueMedium: KeywordTable{
			Terms: []string{"conversion", "signup", "onboarding", "trial", "upgrade"},
		},
		Architecture: KeywordTable{
			Terms:  []string{"architecture", "refactor", "migration", "redesign", "schema"},
			Labels: []string{"architecture", "tech-debt"},
		},
		Integration: KeywordTable{
			Terms: []string{"integration", "api", "webhook", "third-party", "sync"},
		},
		Performance: KeywordTable{
			Terms:  []string{"performance", "latency", "slow", "timeout", "memory", "cpu"},
			Labels: []string{"performance"},
		},
		ExternalDependency: KeywordTable{
			Terms:  []string{"vendor", "third-party", "upstream", "external", "partner"},
			Labels: []string{"external", "vendor"},
		},
		Executive: KeywordTable{
			Terms:  []string{"executive", "ceo", "cto", "board", "roadmap", "launch"},
			Labels: []string{"exec-visible", "roadmap"},
		},
		Testing: KeywordTable{
			Terms: []string{"regression", "e2e", "load test", "flaky", "test coverage"},
		},
		ProjectBoost: KeywordTable{
			Terms: []string{"core", "platform"},
		},
		ProjectDampen: KeywordTable{
			Terms: []string{"internal", "tool"},
		},
		Skills: map[string]KeywordTable{
			"database":       {Terms: []string{"database", "sql", "postgres", "index", "query"}},
			"frontend":       {Terms: []string{"ui", "css", "react", "frontend"}},
			"infrastructure": {Terms: []string{"kubernetes", "terraform", "deploy", "infra", "ci"}},
			"security":       {Terms: []string{"security", "crypto", "oauth", "certificate"}},
			"machine-learning": {
				Terms: []string{"model", "training", "ml", "inference"},
			},
		},
	}
}
