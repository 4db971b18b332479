package entity

import (
	"time"
)

const (
	RoleBusiness     = "business"
	RoleProfessional = "professional"
)

// User carries the display identity the messaging surfaces need. Account
// management and verification live outside this service; only a verified uid
// ever reaches the usecases.
type User struct {
	ID          string `json:"id" firestore:"id"`
	Email       string `json:"email" firestore:"email"`
	Username    string `json:"username" firestore:"username"`
	DisplayName string `json:"display_name,omitempty" firestore:"displayName,omitempty"`
	Role        string `json:"role" firestore:"role"` // "business", "professional"
	AvatarURL   string `json:"avatar_url,omitempty" firestore:"avatarURL,omitempty"`

	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}
