package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/switchsync/switchsync-core/internal/device"
)

// Service handles catalog browsing and purchases.
type Service struct {
	catalog Repository
	devices device.Repository
}

// NewService creates a catalog service.
func NewService(catalog Repository, devices device.Repository) *Service {
	return &Service{catalog: catalog, devices: devices}
}

// List returns one page of catalog entries.
func (s *Service) List(ctx context.Context, page int) (*Page, error) {
	return s.catalog.List(ctx, page)
}

// Get returns a single catalog entry.
func (s *Service) Get(ctx context.Context, id string) (*Entry, error) {
	return s.catalog.GetByID(ctx, id)
}

// Purchase provisions a new device for an account from a catalog entry.
//
// A fresh UUID becomes the device identity and every relay channel starts
// off. The device is unconfigured until the physical controller pairs.
//
// Returns ErrEntryNotFound if the catalog entry does not exist.
func (s *Service) Purchase(ctx context.Context, accountID, entryID string) (*device.Device, error) {
	entry, err := s.catalog.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	d := &device.Device{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Name:      entry.Name,
		Category:  entry.Category,
		State:     device.NewChannelState(entry.channelCount()),
	}
	if err := s.devices.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("provisioning device: %w", err)
	}
	return d, nil
}
