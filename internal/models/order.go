package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Collection spots are numbered pickup slots.
const (
	MinCollectionSpot = 1
	MaxCollectionSpot = 20
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	StatusPending   OrderStatus = "Pending"
	StatusReady     OrderStatus = "Ready"
	StatusCollected OrderStatus = "Collected"
)

// Statuses lists every valid status in lifecycle order
var Statuses = []OrderStatus{StatusPending, StatusReady, StatusCollected}

// IsValid reports whether s is one of the three lifecycle states
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusReady, StatusCollected:
		return true
	}
	return false
}

// ParseStatus canonicalises s, accepting the lower-case spelling older clients send
func ParseStatus(s string) (OrderStatus, bool) {
	for _, status := range Statuses {
		if strings.EqualFold(string(status), strings.TrimSpace(s)) {
			return status, true
		}
	}
	return OrderStatus(s), false
}

// Order is one customer's coffee request and its lifecycle state
type Order struct {
	ID                 string      `db:"id" json:"id"`
	CustomerName       string      `db:"customer_name" json:"customerName"`
	CoffeeType         string      `db:"coffee_type" json:"coffeeType"`
	MilkOption         string      `db:"milk_option" json:"milkOption"`
	Extras             Extras      `db:"extras" json:"extras"`
	Notes              string      `db:"notes" json:"notes"`
	Status             OrderStatus `db:"status" json:"status"`
	CollectionSpot     *int        `db:"collection_spot" json:"collectionSpot"`
	OrderTimestamp     time.Time   `db:"order_timestamp" json:"orderTimestamp"`
	CollectedTimestamp *time.Time  `db:"collected_timestamp" json:"collectedTimestamp"`
}

// Clone returns a deep copy
func (o *Order) Clone() *Order {
	c := *o
	if o.Extras != nil {
		c.Extras = append(Extras(nil), o.Extras...)
	}
	if o.CollectionSpot != nil {
		spot := *o.CollectionSpot
		c.CollectionSpot = &spot
	}
	if o.CollectedTimestamp != nil {
		ts := *o.CollectedTimestamp
		c.CollectedTimestamp = &ts
	}
	return &c
}

// Apply copies the mutable lifecycle fields from u
func (o *Order) Apply(u StatusUpdate) {
	o.Status = u.Status
	o.CollectionSpot = copyInt(u.CollectionSpot)
	o.CollectedTimestamp = copyTime(u.CollectedTimestamp)
}

// SpotValue returns the collection spot or 0 when none is held
func (o *Order) SpotValue() int {
	if o.CollectionSpot == nil {
		return 0
	}
	return *o.CollectionSpot
}

// NewOrder holds the immutable fields a customer supplies when ordering.
// The coffee, milk and extra validation tags are registered by the order service.
type NewOrder struct {
	CustomerName string   `json:"customerName" validate:"required,max=100"`
	CoffeeType   string   `json:"coffeeType" validate:"required,coffee"`
	MilkOption   string   `json:"milkOption" validate:"required,milk"`
	Extras       []string `json:"extras,omitempty" validate:"unique,dive,extra"`
	Notes        string   `json:"notes,omitempty" validate:"max=500"`
}

// StatusUpdate is the complete set of fields a status transition writes
type StatusUpdate struct {
	Status             OrderStatus
	CollectionSpot     *int
	CollectedTimestamp *time.Time
}

// Expected is the part of an order a conditional write checks before applying
type Expected struct {
	Status         OrderStatus
	CollectionSpot *int
}

// Matches reports whether o still holds the expected status and spot
func (e Expected) Matches(o *Order) bool {
	if o.Status != e.Status {
		return false
	}
	if (o.CollectionSpot == nil) != (e.CollectionSpot == nil) {
		return false
	}
	return o.CollectionSpot == nil || *o.CollectionSpot == *e.CollectionSpot
}

// Extras is stored as a JSON array in SQL backends
type Extras []string

// Value implements driver.Valuer
func (e Extras) Value() (driver.Value, error) {
	if len(e) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(e))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (e *Extras) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*e = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported extras column type %T", src)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("decode extras: %w", err)
	}
	if len(list) == 0 {
		*e = nil
		return nil
	}
	*e = list
	return nil
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

// TimePtr returns a pointer to t
func TimePtr(t time.Time) *time.Time {
	return &t
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
