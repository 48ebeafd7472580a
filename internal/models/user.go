// internal/models/user.go
package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Name          string     `json:"name" gorm:"size:100;not null"`
	Email         string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash  string     `json:"-" gorm:"size:255;not null"`
	Role          UserRole   `json:"role" gorm:"type:varchar(20);not null"`
	WalletAddress string     `json:"wallet_address" gorm:"size:64"`
	ProfileImage  string     `json:"profile_image" gorm:"size:512"`
	Status        UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
	LastLoginAt   *time.Time `json:"last_login_at"`

	// Relationships
	Memberships   []ProjectMember `json:"memberships,omitempty" gorm:"foreignKey:UserID"`
	Notifications []Notification  `json:"notifications,omitempty" gorm:"foreignKey:RecipientID"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}
