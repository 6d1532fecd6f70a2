package model

import "time"

// Alert is an externally-identified hazard with its NWS lifecycle timestamps.
// Whether it is "active" is derived at read time, never stored.
type Alert struct {
	AlertID      string `gorm:"primaryKey;size:512"`
	Event        string `gorm:"size:128"`
	Severity     string `gorm:"size:32"`
	Certainty    string `gorm:"size:32"`
	Urgency      string `gorm:"size:32"`
	Headline     string `gorm:"size:512"`
	Description  string `gorm:"type:text"`
	Instruction  string `gorm:"type:text"`
	Effective    *time.Time
	Onset        *time.Time
	Expires      *time.Time `gorm:"index"`
	Ends         *time.Time
	Status       string `gorm:"size:32"`
	MessageType  string `gorm:"size:32"`
	AreaDesc     string `gorm:"type:text"`
	GeometryJSON string `gorm:"type:text"`
	RawJSON      string `gorm:"type:text"`
	IngestedAt   time.Time `gorm:"not null"`
}

// Active reports whether the alert is in effect at the given instant:
// Expires is unset or in the future, and Effective is unset or not in the
// future.
func (a *Alert) Active(now time.Time) bool {
	if a.Expires != nil && !a.Expires.After(now) {
		return false
	}
	if a.Effective != nil && a.Effective.After(now) {
		return false
	}
	return true
}
