package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"reminder-service/internal/models"
)

// UpsertContactPoint sets the active address of a user on one channel,
// replacing any previous active address for that channel.
func (d *DB) UpsertContactPoint(ctx context.Context, cp models.ContactPoint) (models.ContactPoint, error) {
	if cp.ID == [16]byte{} {
		newID := uuid.New()
		copy(cp.ID[:], newID[:])
	}

	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return models.ContactPoint{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
	UPDATE contact_points
	SET status = 'replaced', updated_at = NOW()
	WHERE user_id = $1 AND type = $2 AND status = 'active'`, cp.UserID, string(cp.Type))
	if err != nil {
		return models.ContactPoint{}, fmt.Errorf("failed to retire contact point: %w", err)
	}

	query := `
	INSERT INTO contact_points (id, user_id, type, address, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, 'active', NOW(), NOW())
	RETURNING created_at, updated_at`
	if err := tx.QueryRow(ctx, query, uuid.UUID(cp.ID), cp.UserID, string(cp.Type), cp.Address).
		Scan(&cp.CreatedAt, &cp.UpdatedAt); err != nil {
		return models.ContactPoint{}, fmt.Errorf("failed to create contact point: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.ContactPoint{}, fmt.Errorf("failed to commit contact point: %w", err)
	}
	cp.Status = "active"
	return cp, nil
}

// GetContactPointsByUserID returns all active contact points for a user.
func (d *DB) GetContactPointsByUserID(ctx context.Context, userID string) ([]models.ContactPoint, error) {
	query := `
	SELECT id, user_id, type, address, status, created_at, updated_at
	FROM contact_points
	WHERE user_id = $1 AND status = 'active'
	ORDER BY type`

	rows, err := d.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get contact points by user_id %s: %w", userID, err)
	}
	defer rows.Close()

	cps := []models.ContactPoint{}
	for rows.Next() {
		var cp models.ContactPoint
		var id uuid.UUID
		var typ string
		if err := rows.Scan(&id, &cp.UserID, &typ, &cp.Address, &cp.Status, &cp.CreatedAt, &cp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact point: %w", err)
		}
		copy(cp.ID[:], id[:])
		cp.Type = models.Channel(typ)
		cps = append(cps, cp)
	}
	return cps, rows.Err()
}

// DeleteContactPoint performs a soft-delete by marking status and updating timestamp.
func (d *DB) DeleteContactPoint(ctx context.Context, idStr string) error {
	idUUID, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("invalid UUID format: %w", err)
	}

	tag, err := d.Pool.Exec(ctx, `
	UPDATE contact_points
	SET status = 'deleted', updated_at = NOW()
	WHERE id = $1 AND status = 'active'`, idUUID)
	if err != nil {
		return fmt.Errorf("failed to delete contact point: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contact point %s: %w", idStr, ErrNotFound)
	}
	return nil
}
