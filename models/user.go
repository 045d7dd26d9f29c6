package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type User struct {
	ID                 uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Name               string         `json:"name" gorm:"not null"`
	Email              string         `json:"email" gorm:"uniqueIndex;not null"`
	Role               string         `json:"role" gorm:"index;not null;default:customer"`
	CreatedAt          time.Time      `json:"createdAt" gorm:"index"`
	SimulatedCreatedAt time.Time      `json:"simulatedCreatedAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	DeletedAt          gorm.DeletedAt `json:"-" gorm:"index"`
}
