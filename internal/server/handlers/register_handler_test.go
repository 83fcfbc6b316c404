package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/stationhq/cdregister/internal/domain/models"
	"github.com/stationhq/cdregister/internal/repository/memory"
	auditsvc "github.com/stationhq/cdregister/internal/service/audit"
	catalogsvc "github.com/stationhq/cdregister/internal/service/catalog"
	enginesvc "github.com/stationhq/cdregister/internal/service/engine"
	"github.com/stationhq/cdregister/internal/service/rolegate"
	witnesssvc "github.com/stationhq/cdregister/internal/service/witness"
	"github.com/stationhq/cdregister/pkg/clients/directory"
)

type stubDirectory struct {
	creds  map[string]directory.Credential
	actors []models.Actor
}

func (s *stubDirectory) GetSecret(_ context.Context, userID string) (directory.Credential, error) {
	cred, ok := s.creds[userID]
	if !ok {
		return directory.Credential{}, directory.ErrUserNotFound
	}
	return cred, nil
}

func (s *stubDirectory) ListActive(_ context.Context) ([]models.Actor, error) {
	return s.actors, nil
}

type nullSink struct{}

func (nullSink) Log(context.Context, models.AuditEntry) error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *memory.MemStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewMemStore()
	if err := store.UpsertItem(context.Background(), models.StockItem{
		ID: "morphine-10", Name: "Morphine Sulphate", Strength: "10mg/ml", Unit: "mg",
		CurrentBalance: 20, MinLevel: 5, Class: models.ClassControlled,
	}); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("4321"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	dir := &stubDirectory{
		creds: map[string]directory.Credential{
			"u2": {UserID: "u2", DisplayName: "Jordan Reeves", PINHash: string(hash)},
		},
		actors: []models.Actor{{ID: "u2", Name: "Jordan Reeves", Grade: models.GradeParamedic}},
	}

	cat := catalogsvc.NewService(store, nil)
	ledger := auditsvc.NewLedger(nullSink{}, store, nil)
	eng := enginesvc.NewEngine(store, rolegate.NewPolicy(models.GradeParamedic), ledger, cat, time.Second, nil)
	auth := witnesssvc.NewAuthenticator(dir, time.Second, nil)
	handler := NewRegisterHandler(eng, cat, auth, dir, nil)

	r := gin.New()
	r.POST("/transactions", handler.Commit)
	r.POST("/witness/verify", handler.VerifyWitness)
	r.GET("/witnesses", handler.ListWitnesses)
	r.GET("/items/:id", handler.GetItem)
	return r, store
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCommitEndpoint_WitnessedAdminister(t *testing.T) {
	r, store := newTestRouter(t)

	w := postJSON(t, r, "/transactions", map[string]any{
		"itemId":     "morphine-10",
		"type":       "Administer",
		"quantity":   10,
		"actorId":    "u1",
		"actorName":  "Casey Bright",
		"actorGrade": string(models.GradeTechnician),
		"witnessId":  "u2",
		"witnessPin": "4321",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var tx models.Transaction
	if err := json.Unmarshal(w.Body.Bytes(), &tx); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if tx.BalanceAfter != 10 || tx.WitnessName != "Jordan Reeves" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	item, _ := store.GetItem(context.Background(), "morphine-10")
	if item.CurrentBalance != 10 {
		t.Fatalf("balance = %g, want 10", item.CurrentBalance)
	}
}

func TestCommitEndpoint_MissingWitnessForbidden(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postJSON(t, r, "/transactions", map[string]any{
		"itemId":     "morphine-10",
		"type":       "Administer",
		"quantity":   10,
		"actorId":    "u1",
		"actorName":  "Casey Bright",
		"actorGrade": string(models.GradeTechnician),
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403; body %s", w.Code, w.Body.String())
	}
}

func TestCommitEndpoint_WrongPinRetryable(t *testing.T) {
	r, store := newTestRouter(t)

	w := postJSON(t, r, "/transactions", map[string]any{
		"itemId":     "morphine-10",
		"type":       "Administer",
		"quantity":   10,
		"actorId":    "u1",
		"actorName":  "Casey Bright",
		"actorGrade": string(models.GradeTechnician),
		"witnessId":  "u2",
		"witnessPin": "0000",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401; body %s", w.Code, w.Body.String())
	}

	// Nothing committed on a failed PIN; the operator retries the PIN only.
	item, _ := store.GetItem(context.Background(), "morphine-10")
	if item.CurrentBalance != 20 {
		t.Fatalf("balance = %g, want 20", item.CurrentBalance)
	}
}

func TestWitnessVerifyEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postJSON(t, r, "/witness/verify", map[string]any{"witnessId": "u2", "pin": "4321"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	w = postJSON(t, r, "/witness/verify", map[string]any{"witnessId": "u2", "pin": "9999"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestListWitnessesEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/witnesses", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var actors []models.Actor
	if err := json.Unmarshal(w.Body.Bytes(), &actors); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(actors) != 1 || actors[0].Name != "Jordan Reeves" {
		t.Fatalf("unexpected witness list: %+v", actors)
	}
}
