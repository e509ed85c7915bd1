package db

import (
	"strings"
	"testing"
)

func TestLockKey(t *testing.T) {
	if LockKey("delivery-queue") != LockKey("delivery-queue") {
		t.Error("expected stable lock key")
	}
	if LockKey("delivery-queue") == LockKey("attention-scan") {
		t.Error("expected distinct keys per job")
	}
}

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{"user_preferences", "contact_points", "notification_history", "notification_failures", "inbox_items"} {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("expected schema to create %s", table)
		}
	}
}
