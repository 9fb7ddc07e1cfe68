package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/torquehub/torquehub-backend/pkg/enums"
	"github.com/torquehub/torquehub-backend/pkg/types"
)

// Actor is the minimal identity record the core needs: role for
// authorization, credentials for login, location for dispatch. Full profile
// management lives in the profile service.
type Actor struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Role             enums.ActorRole       `gorm:"column:role;type:actor_role;not null"`
	Name             string                `gorm:"column:name;not null"`
	Email            string                `gorm:"column:email;not null;uniqueIndex:ux_actors_email"`
	Phone            *string               `gorm:"column:phone"`
	PasswordHash     string                `gorm:"column:password_hash;not null"`
	Location         *types.GeographyPoint `gorm:"column:location;type:geography(Point,4326)"`
	DispatchRadiusKM *float64              `gorm:"column:dispatch_radius_km;type:numeric(6,2)"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
