package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStep is one entry of the ordered checklist seeded at job creation.
// CompletedAt timestamps feed response-time reporting downstream; the core
// only records them.
type JobStep struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	JobID       uuid.UUID  `gorm:"column:job_id;type:uuid;not null;index"`
	Name        string     `gorm:"column:name;not null"`
	Position    int        `gorm:"column:position;not null"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}
