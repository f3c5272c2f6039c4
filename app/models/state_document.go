package models

import "time"

// StateDocument is the legacy single-row representation of a store snapshot:
// the whole JSON document is kept in one payload column keyed by store name.
type StateDocument struct {
	StoreKey  string    `gorm:"primaryKey;column:store_key;type:varchar(100)" json:"store_key"`
	Version   int       `gorm:"not null;default:1" json:"version"`
	Payload   string    `gorm:"type:longtext;not null" json:"payload"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (StateDocument) TableName() string {
	return "state_documents"
}
