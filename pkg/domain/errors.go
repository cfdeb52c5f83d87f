package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an identifier or a referenced record does not
// exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// IsNotFound reports whether err is an ErrNotFound for the given entity. An
// empty entity matches any ErrNotFound.
func IsNotFound(err error, entity EntityType) bool {
	var nf ErrNotFound
	if !errors.As(err, &nf) {
		return false
	}
	return entity == "" || nf.Entity == entity
}

var (
	// ErrInvalidEyeSide rejects an eye side outside {OD, OS}.
	ErrInvalidEyeSide = errors.New("eye side must be OD or OS")
	// ErrInvalidAge rejects a negative patient age.
	ErrInvalidAge = errors.New("age must be a non-negative integer")
	// ErrSourceUnreadable is returned when an image source file cannot be opened.
	ErrSourceUnreadable = errors.New("image source file is not readable")
	// ErrImageConflict is returned when an image already occupies the derived
	// file name and the store rejects replacements.
	ErrImageConflict = errors.New("image file already registered for patient and eye side")
)
