package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ContactPoint is a recipient's address on one delivery channel.
type ContactPoint struct {
	ID        [16]byte  `json:"id"`
	UserID    string    `json:"user_id"`
	Type      Channel   `json:"type"`
	Address   string    `json:"address"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContactPointCreate is the input for registering an address.
type ContactPointCreate struct {
	Type    Channel `json:"type" binding:"required"`
	Address string  `json:"address" binding:"required"`
}

func (cp ContactPoint) MarshalJSON() ([]byte, error) {
	type Alias ContactPoint
	return json.Marshal(&struct {
		ID string `json:"id"`
		*Alias
	}{
		ID:    uuid.UUID(cp.ID).String(),
		Alias: (*Alias)(&cp),
	})
}

func (cp *ContactPoint) UnmarshalJSON(data []byte) error {
	type Alias ContactPoint
	aux := &struct {
		ID string `json:"id"`
		*Alias
	}{
		Alias: (*Alias)(cp),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.ID != "" {
		parsedID, err := uuid.Parse(aux.ID)
		if err != nil {
			return fmt.Errorf("invalid UUID format for ID: %w", err)
		}
		copy(cp.ID[:], parsedID[:])
	}
	return nil
}
