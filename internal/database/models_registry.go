package database

import "rally/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Tag{},
		&models.Post{},
		&models.Reaction{},
		&models.Activity{},
		&models.Rsvp{},
		&models.ConversionRecord{},
	}
}
