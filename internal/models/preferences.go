package models

import (
	"slices"
	"time"
)

// FrequencyTier is how often a user is willing to be reminded.
type FrequencyTier string

const (
	FrequencyDisabled FrequencyTier = "disabled"
	FrequencyMinimal  FrequencyTier = "minimal"
	FrequencyGentle   FrequencyTier = "gentle"
	FrequencyModerate FrequencyTier = "moderate"
	FrequencyFrequent FrequencyTier = "frequent"
)

// Channel names a delivery channel adapter.
type Channel string

const (
	ChannelInApp    Channel = "in_app"
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
	ChannelInbox    Channel = "inbox"
)

// QuietHours is a daily window, possibly crossing midnight, with no reminders.
type QuietHours struct {
	Enabled       bool   `json:"enabled"`
	Start         string `json:"start"` // "22:00"
	End           string `json:"end"`   // "08:00"
	WeekendsQuiet bool   `json:"weekends_quiet"`
}

// WorkingHours is the recipient's working window in their timezone.
type WorkingHours struct {
	StartHour int            `json:"start_hour"`
	EndHour   int            `json:"end_hour"`
	Days      []time.Weekday `json:"days"`
}

// UserPreferences is what the preference store returns for a recipient.
type UserPreferences struct {
	UserID                   string             `json:"user_id"`
	NotificationFrequency    FrequencyTier      `json:"notification_frequency"`
	Timezone                 string             `json:"timezone"`
	QuietHours               QuietHours         `json:"quiet_hours"`
	WorkingHours             WorkingHours       `json:"working_hours"`
	StaleDaysThreshold       int                `json:"stale_days_threshold"`
	DeadlineWarningDays      int                `json:"deadline_warning_days"`
	EnabledNotificationTypes []ActionType       `json:"enabled_notification_types,omitempty"`
	PreferredChannels        []Channel          `json:"preferred_channels,omitempty"`
	ChannelAddresses         map[Channel]string `json:"channel_addresses,omitempty"`
	BatchNotifications       bool               `json:"batch_notifications"`
}

// DefaultPreferences is used when a recipient has never saved preferences.
func DefaultPreferences(userID string) UserPreferences {
	return UserPreferences{
		UserID:                userID,
		NotificationFrequency: FrequencyModerate,
		Timezone:              "UTC",
		QuietHours:            QuietHours{Enabled: true, Start: "22:00", End: "08:00", WeekendsQuiet: true},
		WorkingHours: WorkingHours{
			StartHour: 9,
			EndHour:   17,
			Days:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		},
		StaleDaysThreshold:  7,
		DeadlineWarningDays: 3,
		PreferredChannels:   []Channel{ChannelInApp, ChannelInbox},
	}
}

// Location resolves the recipient timezone, falling back to UTC.
func (p UserPreferences) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AllowsAction reports whether the recipient accepts reminders of type t.
// An empty list accepts everything.
func (p UserPreferences) AllowsAction(t ActionType) bool {
	if len(p.EnabledNotificationTypes) == 0 {
		return true
	}
	return slices.Contains(p.EnabledNotificationTypes, t)
}

// IsWorkingDay reports whether d is one of the recipient's working days.
func (w WorkingHours) IsWorkingDay(d time.Weekday) bool {
	return slices.Contains(w.Days, d)
}
