package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FeedbackStatus is the lifecycle state of a feedback item:
// requested -> draft -> submitted -> acknowledged, with direct
// entry into draft or submitted. Acknowledged is terminal.
type FeedbackStatus string

const (
	StatusRequested    FeedbackStatus = "requested"
	StatusDraft        FeedbackStatus = "draft"
	StatusSubmitted    FeedbackStatus = "submitted"
	StatusAcknowledged FeedbackStatus = "acknowledged"
)

// ParseStatus validates a wire-level status string.
func ParseStatus(s string) (FeedbackStatus, error) {
	switch FeedbackStatus(s) {
	case StatusRequested, StatusDraft, StatusSubmitted, StatusAcknowledged:
		return FeedbackStatus(s), nil
	}
	return "", errors.New("invalid status: " + s)
}

// Sentiment of a feedback item. Stored as a nullable column; requests
// carry no sentiment until they are fulfilled.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment validates a wire-level sentiment string.
func ParseSentiment(s string) (Sentiment, error) {
	switch Sentiment(s) {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return Sentiment(s), nil
	}
	return "", errors.New("invalid sentiment: " + s)
}

// Feedback is the central entity. CreatedByRole is a point-in-time
// snapshot of the author's role, kept as a historical record and never
// re-derived from the current user row. The lifecycle timestamps are
// all nullable: each one is populated only in the phase where it
// becomes meaningful, so GORM's automatic stamping is disabled.
type Feedback struct {
	ID             string         `json:"id" gorm:"unique;not null"`
	CreatedByEmail string         `json:"created_by_email" gorm:"not null;index"`
	CreatedByRole  Role           `json:"created_by_role" gorm:"not null"`
	EmployeeEmail  string         `json:"employee_email" gorm:"not null;index"`
	Strengths      string         `json:"strengths"`
	AreasToImprove string         `json:"areas_to_improve"`
	Sentiment      *Sentiment     `json:"sentiment"`
	Tags           []string       `json:"tags" gorm:"serializer:json"`
	IsAnon         bool           `json:"is_anon" gorm:"default:false"`
	Status         FeedbackStatus `json:"status" gorm:"not null;index"`

	RequestedAt    *time.Time `json:"requested_at"`
	CreatedAt      *time.Time `json:"created_at" gorm:"autoCreateTime:false"`
	UpdatedAt      *time.Time `json:"updated_at" gorm:"autoUpdateTime:false"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
}

func (f *Feedback) BeforeCreate(tx *gorm.DB) (err error) {
	// Using uuid v7 to be indexable with B-tree
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return err
	}
	f.ID = uuidV7.String()

	return
}

func GetFeedbackByID(db *gorm.DB, id string) (*Feedback, error) {
	var fb Feedback
	result := db.Where("id = ?", id).First(&fb)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &fb, nil
}

// FindByPairAndStatus looks up the single record kept per
// (creator, subject) pair for the given status. Used by the
// lookup-before-write paths that keep at most one outstanding request
// and one draft per pair.
func FindByPairAndStatus(db *gorm.DB, creatorEmail, employeeEmail string, status FeedbackStatus) (*Feedback, error) {
	var fb Feedback
	result := db.Where("created_by_email = ? AND employee_email = ? AND status = ?",
		creatorEmail, employeeEmail, status).First(&fb)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &fb, nil
}

// FeedbackAuthoredBy returns every record the given email created.
func FeedbackAuthoredBy(db *gorm.DB, email string) ([]Feedback, error) {
	var fbs []Feedback
	if err := db.Where("created_by_email = ?", email).Find(&fbs).Error; err != nil {
		return nil, err
	}
	return fbs, nil
}

// FeedbackAboutOrBy returns every record where the email is the
// subject or the author.
func FeedbackAboutOrBy(db *gorm.DB, email string) ([]Feedback, error) {
	var fbs []Feedback
	if err := db.Where("employee_email = ? OR created_by_email = ?", email, email).Find(&fbs).Error; err != nil {
		return nil, err
	}
	return fbs, nil
}

// SentimentOrNeutral is the bucketing fallback used by the dashboard:
// a missing sentiment counts as neutral, without being persisted.
func (f *Feedback) SentimentOrNeutral() Sentiment {
	if f.Sentiment == nil {
		return SentimentNeutral
	}
	return *f.Sentiment
}
