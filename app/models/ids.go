package models

import "github.com/google/uuid"

// ensureID assigns a fresh UUID when the record does not carry one yet.
func ensureID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}
