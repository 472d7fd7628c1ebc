package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/switchsync/switchsync-core/internal/account"
	"github.com/switchsync/switchsync-core/internal/catalog"
	"github.com/switchsync/switchsync-core/internal/device"
)

// profileResponse is the account profile returned by /me endpoints.
type profileResponse struct {
	ID        string `json:"id"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Age       int    `json:"age,omitempty"`
	Gender    string `json:"gender,omitempty"`

	// Registered is false until the profile has been completed with PUT /me.
	Registered bool `json:"registered"`

	// Devices maps device ID to a summary of each owned device. Only
	// populated on GET /me.
	Devices map[string]deviceSummary `json:"devices,omitempty"`
}

// deviceSummary is the per-device view embedded in the profile.
type deviceSummary struct {
	Name       string       `json:"name"`
	Category   string       `json:"category,omitempty"`
	Configured bool         `json:"configured"`
	State      device.State `json:"state"`
}

func profileFromAccount(acct *account.Account) profileResponse {
	return profileResponse{
		ID:         acct.ID,
		Firstname:  acct.Firstname,
		Lastname:   acct.Lastname,
		Email:      acct.Email,
		Phone:      acct.Phone,
		Age:        acct.Age,
		Gender:     acct.Gender,
		Registered: acct.Registered(),
	}
}

// handleMe returns the authenticated account's profile with the owned
// devices embedded, keyed by device ID.
//
// A valid token whose account has never completed onboarding gets a
// profile built from the token claims with registered=false, so clients
// can drive the onboarding flow without a separate lookup.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Missing authentication")
		return
	}

	owned, err := s.deviceSummaries(r.Context(), claims.AccountID())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err, "account_id", claims.AccountID())
		writeInternalError(w)
		return
	}

	acct, err := s.accounts.GetByID(r.Context(), claims.AccountID())
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			writeJSON(w, http.StatusOK, profileResponse{
				ID:         claims.AccountID(),
				Email:      claims.Email,
				Phone:      claims.Phone,
				Registered: false,
				Devices:    owned,
			})
			return
		}
		s.logger.Error("failed to load account", "error", err, "account_id", claims.AccountID())
		writeInternalError(w)
		return
	}

	profile := profileFromAccount(acct)
	profile.Devices = owned
	writeJSON(w, http.StatusOK, profile)
}

// deviceSummaries builds the devices map embedded in the profile.
func (s *Server) deviceSummaries(ctx context.Context, accountID string) (map[string]deviceSummary, error) {
	owned, err := s.devices.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]deviceSummary, len(owned))
	for _, d := range owned {
		out[d.ID] = deviceSummary{
			Name:       d.Name,
			Category:   d.Category,
			Configured: d.Configured,
			State:      d.State,
		}
	}
	return out, nil
}

// updateProfileRequest is the body for PUT /me.
type updateProfileRequest struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
}

// handleUpdateMe creates or updates the authenticated account's profile.
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	s.saveProfile(w, r, http.StatusOK)
}

// handleRegisterAccount completes onboarding for the authenticated account.
//
// Same write path as PUT /me; registration is just the first save.
func (s *Server) handleRegisterAccount(w http.ResponseWriter, r *http.Request) {
	s.saveProfile(w, r, http.StatusCreated)
}

func (s *Server) saveProfile(w http.ResponseWriter, r *http.Request, successStatus int) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Missing authentication")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid JSON body")
		return
	}

	acct := &account.Account{
		ID:        claims.AccountID(),
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Email:     req.Email,
		Phone:     req.Phone,
		Age:       req.Age,
		Gender:    req.Gender,
	}
	if err := acct.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.accounts.Upsert(r.Context(), acct); err != nil {
		s.logger.Error("failed to save account", "error", err, "account_id", acct.ID)
		writeInternalError(w)
		return
	}

	saved, err := s.accounts.GetByID(r.Context(), acct.ID)
	if err != nil {
		s.logger.Error("failed to reload account", "error", err, "account_id", acct.ID)
		writeInternalError(w)
		return
	}

	writeJSON(w, successStatus, profileFromAccount(saved))
}

// handleListCatalog returns one page of purchasable catalog entries.
//
// Pages are 1-based and fixed at 20 entries. An out-of-range page returns
// an empty entry list, not an error.
func (s *Server) handleListCatalog(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "page must be a positive integer")
			return
		}
		page = parsed
	}

	result, err := s.catalog.List(r.Context(), page)
	if err != nil {
		s.logger.Error("failed to list catalog", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetCatalogEntry returns a single catalog entry by ID.
func (s *Server) handleGetCatalogEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrEntryNotFound) {
			writeNotFound(w, "Catalog entry not found")
			return
		}
		s.logger.Error("failed to load catalog entry", "error", err, "entry_id", id)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// purchaseRequest is the body for POST /store/purchase.
type purchaseRequest struct {
	EntryID string `json:"entry_id"`
}

// handlePurchase provisions a new device from a catalog entry.
//
// The device starts unconfigured with every channel off. The response
// carries the created device plus the account's full device list.
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Missing authentication")
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid JSON body")
		return
	}
	if req.EntryID == "" {
		writeBadRequest(w, "entry_id is required")
		return
	}

	dev, err := s.catalog.Purchase(r.Context(), claims.AccountID(), req.EntryID)
	if err != nil {
		if errors.Is(err, catalog.ErrEntryNotFound) {
			writeNotFound(w, "Catalog entry not found")
			return
		}
		s.logger.Error("purchase failed",
			"error", err,
			"account_id", claims.AccountID(),
			"entry_id", req.EntryID,
		)
		writeInternalError(w)
		return
	}

	devices, err := s.devices.ListByAccount(r.Context(), claims.AccountID())
	if err != nil {
		s.logger.Error("failed to list devices after purchase",
			"error", err, "account_id", claims.AccountID())
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"device":  dev,
		"devices": devices,
		"count":   len(devices),
	})
}

// handleListDevices returns all devices owned by the authenticated account.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Missing authentication")
		return
	}

	devices, err := s.devices.ListByAccount(r.Context(), claims.AccountID())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err, "account_id", claims.AccountID())
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single owned device with its persisted state.
//
// Devices owned by other accounts return 404, not 403, to avoid leaking
// which device IDs exist.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Missing authentication")
		return
	}

	dev, ok := s.ownedDevice(w, r, claims.AccountID())
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleGetDeviceHistory returns recent state changes for an owned device.
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "Missing authentication")
		return
	}

	if s.history == nil {
		writeError(w, Error{
			Status:  http.StatusServiceUnavailable,
			Code:    ErrCodeUnavailable,
			Message: "State history is not enabled",
		})
		return
	}

	dev, ok := s.ownedDevice(w, r, claims.AccountID())
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := s.history.GetHistory(r.Context(), dev.ID, limit)
	if err != nil {
		s.logger.Error("failed to load device history", "error", err, "device_id", dev.ID)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"device_id": dev.ID,
		"entries":   entries,
		"count":     len(entries),
	})
}

// ownedDevice loads the device from the {id} URL parameter and verifies
// ownership. Writes the error response and returns ok=false on failure.
func (s *Server) ownedDevice(w http.ResponseWriter, r *http.Request, accountID string) (*device.Device, bool) {
	id := chi.URLParam(r, "id")

	dev, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "Device not found")
			return nil, false
		}
		s.logger.Error("failed to load device", "error", err, "device_id", id)
		writeInternalError(w)
		return nil, false
	}

	if dev.AccountID != accountID {
		writeNotFound(w, "Device not found")
		return nil, false
	}

	return dev, true
}
