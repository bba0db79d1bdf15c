package models

import "time"

// Subscriber is the single persistent entity: one row per normalized email.
// Timestamps that may be unset (lastSentAt, welcomeSentAt) are pointers so
// they serialize as null until the corresponding send has been confirmed.
type Subscriber struct {
	Email         string     `json:"email"`
	City          string     `json:"city"`
	SubscribedAt  time.Time  `json:"subscribedAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	Paused        bool       `json:"paused"`
	PauseReason   string     `json:"pauseReason"`
	LastSentAt    *time.Time `json:"lastSentAt"`
	WelcomeSentAt *time.Time `json:"welcomeSentAt"`
}
