package utils

import "github.com/google/uuid"

// IsUUID lets handlers reject malformed ids before they reach the database.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
