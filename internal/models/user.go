package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Role is the closed set of roles a user can hold. It is assigned at
// registration and never changes afterwards.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// ParseRole validates a wire-level role string against the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleManager, RoleEmployee:
		return Role(s), nil
	}
	return "", errors.New("invalid role: " + s)
}

type User struct {
	ID             string    `json:"id" gorm:"unique;not null"` // Standard field for the primary key
	Name           string    `gorm:"not null" json:"name" validate:"required"`
	Email          string    `gorm:"not null;unique" json:"email" validate:"required,email"`
	Password       string    `gorm:"-" json:"password,omitempty" validate:"required,min=8"`
	HashedPassword string    `json:"-"`
	Role           Role      `gorm:"not null" json:"role" validate:"required,oneof=admin manager employee"`
	CreatedAt      time.Time `json:"created_at"` // Automatically managed by GORM for creation time
	UpdatedAt      time.Time `json:"updated_at"` // Automatically managed by GORM for update time
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	// Using uuid v7 to be indexable with B-tree
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return err
	}
	u.ID = uuidV7.String()

	// Hash password if it's set
	if u.Password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		u.HashedPassword = string(hashedPassword)
		// Clear the plain text password
		u.Password = ""
	}

	return
}

func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password))
	return err == nil
}

// PublicUser is the credential-free projection returned by every user
// facing endpoint.
type PublicUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (u *User) Public() PublicUser {
	return PublicUser{Name: u.Name, Email: u.Email, Role: u.Role}
}

func GetUserByEmail(db *gorm.DB, email string) (*User, error) {
	var user User
	result := db.Where("email = ?", email).First(&user)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &user, nil
}

// GetUsersByEmails returns the users whose email appears in the given
// list, keyed by email. Missing emails are simply absent from the map.
func GetUsersByEmails(db *gorm.DB, emails []string) (map[string]User, error) {
	var users []User
	if err := db.Where("email IN ?", emails).Find(&users).Error; err != nil {
		return nil, err
	}

	byEmail := make(map[string]User, len(users))
	for _, u := range users {
		byEmail[u.Email] = u
	}
	return byEmail, nil
}
