// Package provider implements the telephony backend client. The relay core
// stays agnostic to the wire protocol; everything crossing this boundary is
// classified into the shared error taxonomy.
package provider

import "time"

// AccountStatus is the provider's reported operational state for an account.
type AccountStatus string

const (
	StatusActive    AccountStatus = "active"
	StatusSuspended AccountStatus = "suspended"
	StatusClosed    AccountStatus = "closed"
	StatusUnknown   AccountStatus = "unknown"
)

// AvailableNumber is one purchasable number returned by a search.
type AvailableNumber struct {
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name"`
	Locality     string `json:"locality,omitempty"`
	Region       string `json:"region,omitempty"`
	Country      string `json:"country"`
}

// OwnedNumber is a number provisioned on an account.
type OwnedNumber struct {
	SID          string `json:"sid"`
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name,omitempty"`
}

// Message is one inbound SMS visible on an account.
type Message struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Body     string    `json:"body"`
	Status   string    `json:"status"`
	DateSent time.Time `json:"date_sent,omitempty"`
}

// SearchOptions narrows an available-number search.
type SearchOptions struct {
	Country  string
	TollFree bool
	Contains string
	Limit    int
}
