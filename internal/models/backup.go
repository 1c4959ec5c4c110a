package models

import "time"

// Backup: a stored point-in-time copy of products, ledger entries and
// recipes. Never updated after creation.
type Backup struct {
	ID             string    `gorm:"size:36;primaryKey"`
	Description    *string   `gorm:"size:255"`
	Payload        string    `gorm:"type:text;not null"`
	PayloadVersion int       `gorm:"not null;default:0"`
	Sequence       int64     `gorm:"not null;default:0;index"`
	CreatedAt      time.Time `gorm:"index"`
}

// BackupNewestFirst orders backups for listing and retention.
const BackupNewestFirst = "created_at DESC, sequence DESC, id DESC"
