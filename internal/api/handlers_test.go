package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/switchsync/switchsync-core/internal/account"
	"github.com/switchsync/switchsync-core/internal/auth"
	"github.com/switchsync/switchsync-core/internal/catalog"
	"github.com/switchsync/switchsync-core/internal/device"
	"github.com/switchsync/switchsync-core/internal/infrastructure/config"
	"github.com/switchsync/switchsync-core/internal/infrastructure/logging"
	statesync "github.com/switchsync/switchsync-core/internal/sync"
)

const testSecret = "test-secret-for-api-tests-only"

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE accounts (
			id TEXT PRIMARY KEY,
			firstname TEXT,
			lastname TEXT,
			email TEXT,
			phone TEXT,
			age INTEGER,
			gender TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT,
			configured INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL,
			state_updated_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE catalog_devices (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT,
			description TEXT,
			price_cents INTEGER NOT NULL DEFAULT 0,
			channels INTEGER NOT NULL DEFAULT 8,
			created_at TEXT NOT NULL
		);
		CREATE TABLE device_state_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			state TEXT NOT NULL,
			source TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// newTestServer wires a full API server over an in-memory database.
func newTestServer(t *testing.T) (*Server, http.Handler, *sql.DB) {
	t.Helper()

	db := setupTestDB(t)
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "json", Output: "stderr"}, "test")

	deviceRepo := device.NewSQLiteRepository(db)
	historyRepo := device.NewSQLiteStateHistoryRepository(db)
	accountRepo := account.NewSQLiteRepository(db)
	catalogSvc := catalog.NewService(catalog.NewSQLiteRepository(db), deviceRepo)

	wsCfg := config.WebSocketConfig{
		Path:           "/ws",
		MaxMessageSize: 8192,
		PingInterval:   5,
		PongTimeout:    10,
	}
	hub := NewHub(wsCfg, logger)

	engine, err := statesync.NewEngine(config.BroadcastScopeAll, statesync.Deps{
		Repository:  deviceRepo,
		Cache:       device.NewStateCache(),
		Sessions:    statesync.NewSessionRegistry(),
		Broadcaster: hub,
		History:     historyRepo,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	hub.SetEngine(engine)

	server, err := New(Deps{
		Config: config.APIConfig{
			CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
		},
		WS:       wsCfg,
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}},
		Logger:   logger,
		Engine:   engine,
		Hub:      hub,
		Accounts: accountRepo,
		Devices:  deviceRepo,
		Catalog:  catalogSvc,
		History:  historyRepo,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return server, server.buildRouter(), db
}

// testToken issues a valid token for the given account.
func testToken(t *testing.T, accountID string) string {
	t.Helper()

	token, err := auth.GenerateAccessToken(auth.Identity{
		AccountID: accountID,
		Email:     accountID + "@example.com",
	}, testSecret, 60)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	return token
}

// doRequest executes a request against the router and decodes the JSON body.
func doRequest(t *testing.T, router http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	decoded := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response is not valid JSON: %v\nbody: %s", err, rec.Body.String())
		}
	}
	return rec, decoded
}

// seedCatalogEntry inserts a catalog entry directly.
func seedCatalogEntry(t *testing.T, db *sql.DB, id, name string, channels int) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO catalog_devices (id, name, category, description, price_cents, channels, created_at)
		VALUES (?, ?, 'switch', '', 1999, ?, ?)`,
		id, name, channels, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("failed to seed catalog entry: %v", err)
	}
}

// seedDevice inserts a device owned by the given account.
func seedDevice(t *testing.T, repo device.Repository, id, accountID string) {
	t.Helper()

	err := repo.Create(context.Background(), &device.Device{
		ID:        id,
		AccountID: accountID,
		Name:      "Relay Controller",
		Category:  "switch",
		State:     device.NewChannelState(4),
	})
	if err != nil {
		t.Fatalf("failed to seed device: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, router, _ := newTestServer(t)

	rec, body := doRequest(t, router, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, router, _ := newTestServer(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"malformed header", "NotBearer abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + testToken(t, "acct-1"), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	_, router, _ := newTestServer(t)

	token, err := auth.GenerateAccessToken(auth.Identity{AccountID: "acct-1"}, "another-secret", 60)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/me", token, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMe_UnregisteredAccount(t *testing.T) {
	_, router, _ := newTestServer(t)

	rec, body := doRequest(t, router, http.MethodGet, "/api/v1/me", testToken(t, "acct-new"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["id"] != "acct-new" {
		t.Errorf("id = %v, want acct-new", body["id"])
	}
	if body["registered"] != false {
		t.Errorf("registered = %v, want false", body["registered"])
	}
}

func TestMe_EmbedsOwnedDevices(t *testing.T) {
	server, router, _ := newTestServer(t)

	seedDevice(t, server.devices, "dev-001", "acct-1")
	seedDevice(t, server.devices, "dev-other", "acct-2")

	rec, body := doRequest(t, router, http.MethodGet, "/api/v1/me", testToken(t, "acct-1"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	devices, ok := body["devices"].(map[string]interface{})
	if !ok {
		t.Fatalf("devices = %v, want map keyed by device id", body["devices"])
	}
	if len(devices) != 1 {
		t.Errorf("devices = %v, want only owned device", devices)
	}

	entry, ok := devices["dev-001"].(map[string]interface{})
	if !ok {
		t.Fatalf("dev-001 missing from devices map: %v", devices)
	}
	if entry["name"] != "Relay Controller" {
		t.Errorf("name = %v, want Relay Controller", entry["name"])
	}
	if entry["configured"] != false {
		t.Errorf("configured = %v, want false", entry["configured"])
	}
	state, ok := entry["state"].(map[string]interface{})
	if !ok || len(state) != 4 {
		t.Errorf("state = %v, want 4 channels", entry["state"])
	}
}

func TestRegisterAccount(t *testing.T) {
	_, router, _ := newTestServer(t)
	token := testToken(t, "acct-9")

	rec, body := doRequest(t, router, http.MethodPost, "/api/v1/accounts", token,
		`{"firstname":"Grace","lastname":"Hopper","email":"grace@example.com","age":45}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201\nbody: %v", rec.Code, body)
	}
	if body["registered"] != true {
		t.Errorf("registered = %v, want true", body["registered"])
	}

	rec, body = doRequest(t, router, http.MethodGet, "/api/v1/me", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /me status = %d, want 200", rec.Code)
	}
	if body["firstname"] != "Grace" || body["registered"] != true {
		t.Errorf("profile after registration = %v", body)
	}
}

func TestUpdateMe_ThenRegistered(t *testing.T) {
	_, router, _ := newTestServer(t)
	token := testToken(t, "acct-1")

	rec, body := doRequest(t, router, http.MethodPut, "/api/v1/me", token,
		`{"firstname":"Ada","lastname":"Lovelace","email":"ada@example.com","age":36}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /me status = %d, want 200\nbody: %v", rec.Code, body)
	}
	if body["registered"] != true {
		t.Errorf("registered = %v, want true", body["registered"])
	}

	rec, body = doRequest(t, router, http.MethodGet, "/api/v1/me", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /me status = %d, want 200", rec.Code)
	}
	if body["firstname"] != "Ada" || body["lastname"] != "Lovelace" {
		t.Errorf("profile = %v, want Ada Lovelace", body)
	}
	if body["registered"] != true {
		t.Errorf("registered = %v, want true", body["registered"])
	}
}

func TestUpdateMe_Invalid(t *testing.T) {
	_, router, _ := newTestServer(t)
	token := testToken(t, "acct-1")

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"age out of range", `{"firstname":"A","lastname":"B","age":-3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := doRequest(t, router, http.MethodPut, "/api/v1/me", token, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestListCatalog(t *testing.T) {
	_, router, db := newTestServer(t)
	token := testToken(t, "acct-1")

	seedCatalogEntry(t, db, "cat-001", "Two Channel Switch", 2)
	seedCatalogEntry(t, db, "cat-002", "Four Channel Switch", 4)

	rec, body := doRequest(t, router, http.MethodGet, "/api/v1/store/devices", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	entries, ok := body["entries"].([]interface{})
	if !ok || len(entries) != 2 {
		t.Errorf("entries = %v, want 2 entries", body["entries"])
	}
	if body["total"] != float64(2) {
		t.Errorf("total = %v, want 2", body["total"])
	}
	if body["has_more"] != false {
		t.Errorf("has_more = %v, want false", body["has_more"])
	}

	rec, _ = doRequest(t, router, http.MethodGet, "/api/v1/store/devices?page=abc", token, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad page status = %d, want 400", rec.Code)
	}
}

func TestGetCatalogEntry(t *testing.T) {
	_, router, db := newTestServer(t)
	token := testToken(t, "acct-1")

	seedCatalogEntry(t, db, "cat-001", "Two Channel Switch", 2)

	rec, body := doRequest(t, router, http.MethodGet, "/api/v1/store/devices/cat-001", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["name"] != "Two Channel Switch" {
		t.Errorf("name = %v, want Two Channel Switch", body["name"])
	}

	rec, _ = doRequest(t, router, http.MethodGet, "/api/v1/store/devices/missing", token, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown entry status = %d, want 404", rec.Code)
	}
}

func TestPurchase(t *testing.T) {
	server, router, db := newTestServer(t)
	token := testToken(t, "acct-1")

	seedCatalogEntry(t, db, "cat-001", "Four Channel Switch", 4)

	rec, body := doRequest(t, router, http.MethodPost, "/api/v1/store/purchase", token,
		`{"entry_id":"cat-001"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201\nbody: %v", rec.Code, body)
	}

	created, ok := body["device"].(map[string]interface{})
	if !ok {
		t.Fatalf("purchase response has no device: %v", body)
	}
	deviceID, _ := created["id"].(string)
	if deviceID == "" {
		t.Fatal("purchase response has no device id")
	}
	// The response carries the account's device list too.
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
	if devices, ok := body["devices"].([]interface{}); !ok || len(devices) != 1 {
		t.Errorf("devices = %v, want 1 entry", body["devices"])
	}

	dev, err := server.devices.GetByID(context.Background(), deviceID)
	if err != nil {
		t.Fatalf("purchased device not persisted: %v", err)
	}
	if dev.AccountID != "acct-1" {
		t.Errorf("AccountID = %q, want acct-1", dev.AccountID)
	}
	if dev.Configured {
		t.Error("purchased device should start unconfigured")
	}
	if len(dev.State) != 4 {
		t.Errorf("channel count = %d, want 4", len(dev.State))
	}
	for channel, on := range dev.State {
		if on {
			t.Errorf("channel %s should start off", channel)
		}
	}
}

func TestPurchase_Errors(t *testing.T) {
	_, router, _ := newTestServer(t)
	token := testToken(t, "acct-1")

	rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/store/purchase", token, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing entry_id status = %d, want 400", rec.Code)
	}

	rec, _ = doRequest(t, router, http.MethodPost, "/api/v1/store/purchase", token,
		`{"entry_id":"missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown entry status = %d, want 404", rec.Code)
	}
}

func TestListDevices_OwnedOnly(t *testing.T) {
	server, router, _ := newTestServer(t)

	seedDevice(t, server.devices, "dev-mine-1", "acct-1")
	seedDevice(t, server.devices, "dev-mine-2", "acct-1")
	seedDevice(t, server.devices, "dev-other", "acct-2")

	rec, body := doRequest(t, router, http.MethodGet, "/api/v1/devices/", testToken(t, "acct-1"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
}

func TestGetDevice_Ownership(t *testing.T) {
	server, router, _ := newTestServer(t)

	seedDevice(t, server.devices, "dev-001", "acct-1")

	rec, body := doRequest(t, router, http.MethodGet, "/api/v1/devices/dev-001", testToken(t, "acct-1"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("owner status = %d, want 200", rec.Code)
	}
	if body["id"] != "dev-001" {
		t.Errorf("id = %v, want dev-001", body["id"])
	}

	// Another account's device must look like it doesn't exist
	rec, _ = doRequest(t, router, http.MethodGet, "/api/v1/devices/dev-001", testToken(t, "acct-2"), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("non-owner status = %d, want 404", rec.Code)
	}
}

func TestGetDeviceHistory(t *testing.T) {
	server, router, _ := newTestServer(t)
	ctx := context.Background()

	seedDevice(t, server.devices, "dev-001", "acct-1")

	for i := 0; i < 3; i++ {
		state := device.NewChannelState(4)
		state["switch1"] = i%2 == 0
		if err := server.history.RecordStateChange(ctx, "dev-001", state, device.StateHistorySourceChange); err != nil {
			t.Fatalf("RecordStateChange() error = %v", err)
		}
	}

	rec, body := doRequest(t, router, http.MethodGet, "/api/v1/devices/dev-001/history", testToken(t, "acct-1"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["count"] != float64(3) {
		t.Errorf("count = %v, want 3", body["count"])
	}

	rec, body = doRequest(t, router, http.MethodGet, "/api/v1/devices/dev-001/history?limit=2", testToken(t, "acct-1"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("limited status = %d, want 200", rec.Code)
	}
	if body["count"] != float64(2) {
		t.Errorf("limited count = %v, want 2", body["count"])
	}

	rec, _ = doRequest(t, router, http.MethodGet, "/api/v1/devices/dev-001/history", testToken(t, "acct-2"), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("non-owner status = %d, want 404", rec.Code)
	}
}

func TestServerNew_Validation(t *testing.T) {
	logger := logging.New(config.LoggingConfig{Level: "error", Output: "stderr"}, "test")
	hub := NewHub(config.WebSocketConfig{}, logger)

	_, err := New(Deps{Logger: logger, Hub: hub})
	if err == nil {
		t.Error("New() should fail without an engine")
	}

	_, err = New(Deps{Hub: hub})
	if err == nil {
		t.Error("New() should fail without a logger")
	}
}
