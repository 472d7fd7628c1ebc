package catalog

import (
	"fmt"
	"time"

	"github.com/switchsync/switchsync-core/internal/device"
)

// PageSize is the fixed number of catalog entries per page.
const PageSize = 20

// Entry is a purchasable device model in the catalog.
type Entry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`

	// PriceCents is the list price in minor currency units.
	PriceCents int64 `json:"price_cents"`

	// Channels is the relay channel count a purchased device starts with.
	Channels int `json:"channels"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the entry has the required fields.
func (e *Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEntry)
	}
	if e.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEntry)
	}
	if e.PriceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidEntry)
	}
	if e.Channels < 0 {
		return fmt.Errorf("%w: channels must not be negative", ErrInvalidEntry)
	}
	return nil
}

// channelCount resolves the channel count for purchased devices.
func (e *Entry) channelCount() int {
	if e.Channels > 0 {
		return e.Channels
	}
	return device.DefaultChannelCount
}

// Page is one page of catalog entries.
type Page struct {
	Entries []Entry `json:"entries"`

	// Page is the 1-based page number served.
	Page int `json:"page"`

	// Total is the total number of catalog entries.
	Total int `json:"total"`

	// HasMore reports whether a later page exists.
	HasMore bool `json:"has_more"`
}
