package models

// All lists every persisted model in dependency order for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Agency{},
		&SubAccount{},
		&Pipeline{},
		&Lane{},
		&Contact{},
		&Tag{},
		&Ticket{},
		&Subscription{},
		&BillingWebhookEvent{},
		&Media{},
		&Notification{},
	}
}
