package models

import (
	"time"

	"gorm.io/gorm"
)

// ========================
// ACCOUNT & TENANT MODELS
// ========================

// Organization is the tenant boundary for campaigns, leads and contact lists.
// It is deliberately NOT a boundary for the enrichment cache (see enrich.go).
type Organization struct {
	gorm.Model
	Name    string `gorm:"not null" json:"name"`
	Credits int    `gorm:"default:1000" json:"credits"`
}

// User represents a registered user in the system
type User struct {
	gorm.Model
	OrgID        uint   `gorm:"index;not null" json:"org_id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Role         string `gorm:"default:user" json:"role"`
}

// GmailAccount stores the OAuth tokens for a connected Gmail sender.
type GmailAccount struct {
	gorm.Model
	OrgID        uint      `gorm:"index;not null" json:"org_id"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"token_expiry"`
}

// ========================
// OUTREACH MODELS
// ========================

// Campaign groups leads under one outreach effort with a shared template.
type Campaign struct {
	gorm.Model
	PublicID string `gorm:"uniqueIndex;not null" json:"id"`
	OrgID    uint   `gorm:"index;not null" json:"-"`
	Name     string `gorm:"not null" json:"name"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Status   string `gorm:"default:draft" json:"status"` // draft | active | paused | done
}

// ContactList is a named grouping of leads inside an organization.
type ContactList struct {
	gorm.Model
	OrgID uint   `gorm:"index;not null" json:"-"`
	Name  string `gorm:"not null" json:"name"`
}

// Lead is one outreach target. Email may arrive via CSV import or be filled
// in later by the enrichment coordinator.
type Lead struct {
	gorm.Model
	PublicID      string `gorm:"uniqueIndex;not null" json:"id"`
	OrgID         uint   `gorm:"index;not null" json:"-"`
	CampaignID    *uint  `gorm:"index" json:"campaign_id,omitempty"`
	ContactListID *uint  `gorm:"index" json:"contact_list_id,omitempty"`
	Name          string `json:"name"`
	Title         string `json:"title"`
	Company       string `json:"company"`
	LinkedInURL   string `json:"linkedin_url"`
	Email         string `json:"email"`
	EmailStatus   string `json:"email_status"` // verified | unverified | risky | invalid
	Source        string `json:"source"`       // csv | manual | enrichment
}

// SendLog records one attempted Gmail send for a lead.
type SendLog struct {
	gorm.Model
	OrgID      uint   `gorm:"index;not null" json:"-"`
	CampaignID uint   `gorm:"index" json:"campaign_id"`
	LeadID     uint   `gorm:"index" json:"lead_id"`
	FromEmail  string `json:"from_email"`
	ToEmail    string `json:"to_email"`
	MessageID  string `json:"message_id"`
	Status     string `json:"status"` // sent | failed
	Error      string `json:"error,omitempty"`
}

// ========================
// API REQUEST PAYLOADS
// ========================

type CampaignRequest struct {
	Name    string `json:"name" binding:"required"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type LeadRequest struct {
	Name          string `json:"name"`
	Title         string `json:"title"`
	Company       string `json:"company"`
	LinkedInURL   string `json:"linkedin_url"`
	Email         string `json:"email"`
	CampaignID    *uint  `json:"campaign_id"`
	ContactListID *uint  `json:"contact_list_id"`
}

type ContactListRequest struct {
	Name string `json:"name" binding:"required"`
}

type EnrichLinkedInRequest struct {
	LinkedInURL string `json:"linkedin_url" binding:"required"`
}

type EnrichVerifyRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type BulkEnrichRequest struct {
	LeadIDs []string `json:"lead_ids" binding:"required"`
}

type SendCampaignRequest struct {
	GmailAccountID uint     `json:"gmail_account_id" binding:"required"`
	LeadIDs        []string `json:"lead_ids"`
}
