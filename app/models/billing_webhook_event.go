package models

import "time"

const WebhookProviderStripe = "stripe"

// BillingWebhookEvent is the ledger of verified provider webhooks. The
// (provider, provider_event_id) pair is unique so redeliveries are detected.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"providerEventId"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"eventType"`
	LiveMode        bool       `gorm:"not null;default:false" json:"livemode"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"-"`
	SignatureValid  bool       `gorm:"not null;default:false" json:"signatureValid"`
	Outcome         string     `gorm:"type:varchar(32);not null;default:''" json:"outcome"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processedAt,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processingError"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}
