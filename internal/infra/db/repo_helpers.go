package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var errDBUnavailable = errors.New("db unavailable")

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Older sqlite builds surface the constraint only in the message.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
