package device

import (
	"fmt"
	"time"
)

// Maximum lengths for validated fields.
const (
	maxNameLength     = 100
	maxCategoryLength = 50
)

// DefaultChannelCount is the number of relay channels a newly provisioned
// device starts with when the catalog entry does not specify one.
const DefaultChannelCount = 8

// Device represents a multi-channel relay controller owned by an account.
type Device struct {
	// ID is the unique identifier (UUID), minted at purchase time.
	ID string `json:"id"`

	// AccountID is the owning account.
	AccountID string `json:"account_id"`

	// Name is the human-readable device name from the catalog.
	Name string `json:"name"`

	// Category is the catalog category (e.g. "switch").
	Category string `json:"category,omitempty"`

	// Configured reports whether the physical controller has been paired.
	Configured bool `json:"configured"`

	// State holds the current channel state. Never nil after load.
	State          State      `json:"state"`
	StateUpdatedAt *time.Time `json:"state_updated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the device has the required fields.
func (d *Device) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if d.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidDevice)
	}
	if d.Name == "" || len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidDevice, maxNameLength)
	}
	if len(d.Category) > maxCategoryLength {
		return fmt.Errorf("%w: category must be at most %d characters", ErrInvalidDevice, maxCategoryLength)
	}
	return nil
}

// State holds the channel state of a device as a map of channel names to
// booleans.
//
// Example: {"switch1": true, "switch2": false, ... "switch8": false}
type State map[string]bool

// NewChannelState returns a state with channels switch1..switchN, all off.
// A non-positive count falls back to DefaultChannelCount.
func NewChannelState(channels int) State {
	if channels <= 0 {
		channels = DefaultChannelCount
	}
	s := make(State, channels)
	for i := 1; i <= channels; i++ {
		s[fmt.Sprintf("switch%d", i)] = false
	}
	return s
}

// Equal reports whether two states have the same channels with the same
// values. Comparison is structural, so key order and serialization details
// never affect the result. Nil and empty states compare equal.
func (s State) Equal(other State) bool {
	if len(s) != len(other) {
		return false
	}
	for channel, value := range s {
		got, ok := other[channel]
		if !ok || got != value {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the state.
// Callers that hand state across goroutine boundaries must clone first.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for channel, value := range s {
		out[channel] = value
	}
	return out
}
