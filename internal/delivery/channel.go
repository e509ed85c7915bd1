package delivery

import (
	"context"
	"slices"
	"sort"

	"reminder-service/internal/config"
	"reminder-service/internal/models"
)

// Style is how a channel presents a notification. Ranking rewards styles
// that fit the urgency.
type Style string

const (
	StyleModal   Style = "modal"
	StyleBanner  Style = "banner"
	StyleMessage Style = "message"
	StyleDigest  Style = "digest"
)

// Channel is a delivery adapter. Deliver reports failures in the result and
// never panics across the manager boundary.
type Channel interface {
	Name() models.Channel
	Style() Style
	IsAvailable() bool
	Validate(n models.Notification, prefs models.UserPreferences) bool
	Deliver(ctx context.Context, n models.Notification, prefs models.UserPreferences) models.DeliveryResult
}

// BatchChannel can present several notifications as one merged message.
type BatchChannel interface {
	Channel
	DeliverBatch(ctx context.Context, ns []models.Notification, prefs models.UserPreferences) models.DeliveryResult
}

type rankedChannel struct {
	name  models.Channel
	score int
}

// rankChannels orders the recipient's usable channels. Preference order
// contributes a descending step per position and the style bonus rewards a
// presentation that suits the urgency. The default channel is always a
// candidate.
func (m *Manager) rankChannels(cfg config.DeliveryConfig, n models.Notification, prefs models.UserPreferences) []models.Channel {
	preferred := slices.Clone(prefs.PreferredChannels)
	def := models.Channel(cfg.DefaultChannel)
	if !slices.Contains(preferred, def) {
		preferred = append(preferred, def)
	}

	var ranked []rankedChannel
	for idx, name := range preferred {
		ch, ok := m.channel(name)
		if !ok || !ch.IsAvailable() || !ch.Validate(n, prefs) {
			continue
		}
		score := (len(preferred) - idx) * cfg.PreferenceStep
		score += cfg.StyleBonus[string(n.Urgency)][string(ch.Style())]
		ranked = append(ranked, rankedChannel{name: name, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]models.Channel, len(ranked))
	for i, r := range ranked {
		out[i] = r.name
	}
	return out
}
