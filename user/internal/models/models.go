package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Application lifecycle for reporter onboarding.
const (
	ApplicationPending  = "pending"
	ApplicationAccepted = "accepted"
	ApplicationRejected = "rejected"
)

func ValidApplicationStatus(status string) bool {
	switch status {
	case ApplicationPending, ApplicationAccepted, ApplicationRejected:
		return true
	}
	return false
}

type User struct {
	ID         bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name       string          `bson:"name" json:"name"`
	Email      string          `bson:"email" json:"email"`
	Password   string          `bson:"password" json:"-"`
	Contact    string          `bson:"contact,omitempty" json:"contact,omitempty"`
	IsVerified bool            `bson:"isVerified" json:"isVerified"`
	IsActive   bool            `bson:"isActive" json:"isActive"`
	IsLoggedIn bool            `bson:"isLoggedIn" json:"isLoggedIn"`
	Role       string          `bson:"role" json:"role"`
	Interests  []bson.ObjectID `bson:"interest,omitempty" json:"interests,omitempty"`
	CreatedAt  time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time       `bson:"updatedAt" json:"updatedAt"`
}

type Application struct {
	ID           bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	ReporterID   bson.ObjectID  `bson:"reporterId" json:"reporterId"`
	Status       string         `bson:"status" json:"status"`
	Message      string         `bson:"message,omitempty" json:"message,omitempty"`
	Bio          string         `bson:"bio" json:"bio"`
	Organization string         `bson:"organization,omitempty" json:"organization,omitempty"`
	Documents    []string       `bson:"documents,omitempty" json:"documents,omitempty"`
	CreatedAt    time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time      `bson:"updatedAt" json:"updatedAt"`
	VerifiedAt   *time.Time     `bson:"verifiedAt,omitempty" json:"verifiedAt,omitempty"`
	VerifiedBy   *bson.ObjectID `bson:"verifiedBy,omitempty" json:"verifiedBy,omitempty"`
}

// UserSession is one device login, keyed by (userId, ip). Sessions are
// written only by the consumer applying device-token events.
type UserSession struct {
	ID         bson.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     bson.ObjectID `bson:"userId" json:"userId"`
	LoginTime  *time.Time    `bson:"loginTime,omitempty" json:"loginTime,omitempty"`
	LogoutTime *time.Time    `bson:"logoutTime,omitempty" json:"logoutTime,omitempty"`
	IsLoggedIn bool          `bson:"isLoggedIn" json:"isLoggedIn"`
	Platform   string        `bson:"platform,omitempty" json:"platform,omitempty"`
	IP         string        `bson:"ip" json:"ip"`
	CreatedOn  time.Time     `bson:"createdOn" json:"createdOn"`
}

type BlacklistedToken struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Token     string        `bson:"token" json:"token"`
	ExpiresAt time.Time     `bson:"expiresAt" json:"expiresAt"`
	CreatedAt time.Time     `bson:"createdAt" json:"createdAt"`
}
