package config

import (
	"chat-quota-api/internal/models"
	"strings"
)

type Entitlement struct {
	MaxMessagesPerDay int
}

type Entitlements struct {
	Limits map[models.UserType]Entitlement
}

func NewEntitlements() *Entitlements {
	return &Entitlements{
		Limits: map[models.UserType]Entitlement{
			models.GuestUser:   {MaxMessagesPerDay: 5},
			models.RegularUser: {MaxMessagesPerDay: 50},
			models.ProUser:     {MaxMessagesPerDay: 500},
			models.AdminUser:   {MaxMessagesPerDay: 10000},
		},
	}
}

// LoadEntitlements applies ENTITLEMENT_<TYPE> overrides on top of the defaults.
func LoadEntitlements() *Entitlements {
	e := NewEntitlements()
	for userType, ent := range e.Limits {
		key := "ENTITLEMENT_" + strings.ToUpper(string(userType))
		ent.MaxMessagesPerDay = getEnvInt(key, ent.MaxMessagesPerDay)
		e.Limits[userType] = ent
	}
	return e
}

// For returns the entitlement of a user class. Unknown classes get the guest ceiling.
func (e *Entitlements) For(userType models.UserType) Entitlement {
	if ent, ok := e.Limits[userType]; ok {
		return ent
	}
	return e.Limits[models.GuestUser]
}
