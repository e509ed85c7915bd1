package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"reminder-service/internal/models"
)

// GetPreferences loads a recipient's preferences, falling back to defaults
// when none were saved. Active contact points fill ChannelAddresses.
func (d *DB) GetPreferences(ctx context.Context, userID string) (models.UserPreferences, error) {
	prefs := models.DefaultPreferences(userID)

	var raw []byte
	err := d.Pool.QueryRow(ctx, `SELECT preferences FROM user_preferences WHERE user_id = $1`, userID).Scan(&raw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return models.UserPreferences{}, fmt.Errorf("failed to get preferences for %s: %w", userID, err)
	default:
		if err := json.Unmarshal(raw, &prefs); err != nil {
			return models.UserPreferences{}, fmt.Errorf("failed to decode preferences for %s: %w", userID, err)
		}
		prefs.UserID = userID
	}

	cps, err := d.GetContactPointsByUserID(ctx, userID)
	if err != nil {
		return models.UserPreferences{}, err
	}
	if len(cps) > 0 && prefs.ChannelAddresses == nil {
		prefs.ChannelAddresses = make(map[models.Channel]string, len(cps))
	}
	for _, cp := range cps {
		prefs.ChannelAddresses[cp.Type] = cp.Address
	}
	return prefs, nil
}

// SavePreferences stores preferences as a JSON document.
func (d *DB) SavePreferences(ctx context.Context, prefs models.UserPreferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	query := `
	INSERT INTO user_preferences (user_id, preferences, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (user_id) DO UPDATE SET preferences = EXCLUDED.preferences, updated_at = NOW()`
	if _, err := d.Pool.Exec(ctx, query, prefs.UserID, raw); err != nil {
		return fmt.Errorf("failed to save preferences for %s: %w", prefs.UserID, err)
	}
	return nil
}
