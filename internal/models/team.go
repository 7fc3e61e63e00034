package models

import (
	"errors"
	"slices"
	"time"

	"gorm.io/gorm"
)

// Team mirrors the persisted document shape: one manager email plus a
// list of member emails. A user belongs to at most one team, either as
// its manager or as one of its members; teams are created once by an
// admin and never merged or split.
type Team struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ManagerEmail string    `json:"manager_email" gorm:"not null;index"`
	MemberEmails []string  `json:"member_emails" gorm:"serializer:json"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasMember reports whether email is in the member list (manager
// excluded).
func (t *Team) HasMember(email string) bool {
	return slices.Contains(t.MemberEmails, email)
}

// Includes reports whether email is the manager or a member.
func (t *Team) Includes(email string) bool {
	return t.ManagerEmail == email || t.HasMember(email)
}

// AllEmails returns the member emails plus the manager email, with the
// manager deduplicated if it somehow also appears as a member.
func (t *Team) AllEmails() []string {
	emails := slices.Clone(t.MemberEmails)
	if !slices.Contains(emails, t.ManagerEmail) {
		emails = append(emails, t.ManagerEmail)
	}
	return emails
}

// TeamForEmail resolves the team a user belongs to, as manager or
// member, or nil when the user is teamless. Membership lives inside a
// JSON document column, so member resolution scans the (small) teams
// collection rather than pushing a JSON predicate into SQL.
func TeamForEmail(db *gorm.DB, email string) (*Team, error) {
	var team Team
	result := db.Where("manager_email = ?", email).First(&team)
	if result.Error == nil {
		return &team, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, result.Error
	}

	var teams []Team
	if err := db.Find(&teams).Error; err != nil {
		return nil, err
	}
	for i := range teams {
		if teams[i].HasMember(email) {
			return &teams[i], nil
		}
	}
	return nil, nil
}

// SameTeam reports whether both emails resolve to the same team. Two
// teamless users share nothing: no team means no shared team.
func SameTeam(db *gorm.DB, emailA, emailB string) (bool, error) {
	teamA, err := TeamForEmail(db, emailA)
	if err != nil {
		return false, err
	}
	if teamA == nil {
		return false, nil
	}

	teamB, err := TeamForEmail(db, emailB)
	if err != nil {
		return false, err
	}
	if teamB == nil {
		return false, nil
	}

	return teamA.ID == teamB.ID, nil
}

// Teammates returns every user in the resolved team, manager included,
// excluding the caller. Returns nil without error when the caller has
// no team.
func Teammates(db *gorm.DB, email string) ([]User, error) {
	team, err := TeamForEmail(db, email)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, nil
	}

	emails := slices.DeleteFunc(team.AllEmails(), func(e string) bool {
		return e == email
	})

	var users []User
	if err := db.Where("email IN ?", emails).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
