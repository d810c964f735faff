package models

import "time"

// CustomerProfile is what the restaurant remembers about a returning
// customer, keyed by the browser fingerprint.
type CustomerProfile struct {
	Fingerprint string    `gorm:"primary_key" json:"fingerprint"`
	Name        string    `json:"name,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	OrderType   OrderType `json:"orderType,omitempty"`
	CarInfo     string    `json:"carInfo,omitempty"`
	Address     string    `json:"address,omitempty"`
	Location    string    `json:"location,omitempty"`
	VisitCount  int       `json:"visitCount"`
	LastVisit   time.Time `json:"lastVisit"`
}

// TableName implements the gorm tabler interface
func (CustomerProfile) TableName() string { return "customers" }

// ProfilePatch carries the profile fields a caller actually knows.
// Nil means "not supplied" and never overwrites anything.
type ProfilePatch struct {
	Name      *string    `json:"name,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	OrderType *OrderType `json:"orderType,omitempty"`
	CarInfo   *string    `json:"carInfo,omitempty"`
	Address   *string    `json:"address,omitempty"`
	Location  *string    `json:"location,omitempty"`
}

// Empty reports whether no field is present
func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.Phone == nil && p.OrderType == nil &&
		p.CarInfo == nil && p.Address == nil && p.Location == nil
}

// Reconcile merges an incoming patch into a stored profile. Stored values
// win for every key that is already set; incoming values only fill gaps.
// The stored profile is not modified.
func Reconcile(stored CustomerProfile, incoming ProfilePatch) CustomerProfile {
	merged := stored
	fill := func(dst *string, src *string) {
		if *dst == "" && src != nil && *src != "" {
			*dst = *src
		}
	}
	fill(&merged.Name, incoming.Name)
	fill(&merged.Phone, incoming.Phone)
	fill(&merged.CarInfo, incoming.CarInfo)
	fill(&merged.Address, incoming.Address)
	fill(&merged.Location, incoming.Location)
	if merged.OrderType == "" && incoming.OrderType != nil && incoming.OrderType.Valid() {
		merged.OrderType = *incoming.OrderType
	}
	return merged
}

// Known reports whether the profile carries anything worth greeting with
func (p CustomerProfile) Known() bool {
	return p.Name != "" || p.Phone != "" || p.OrderType != "" ||
		p.CarInfo != "" || p.Address != "" || p.Location != ""
}
