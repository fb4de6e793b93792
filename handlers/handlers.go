package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"pricepulse/middleware"
	"pricepulse/models"
	"pricepulse/services"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// ProductTracker is the service surface the API exposes
type ProductTracker interface {
	TrackProduct(ctx context.Context, url string) (*models.Product, bool, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	AddAlert(ctx context.Context, productID int64, email string, targetPrice float64) (*models.Alert, error)
	ListAlerts(ctx context.Context, productID int64) ([]models.Alert, error)
	ListPriceHistory(ctx context.Context, productID int64) ([]models.PriceObservation, error)
	RefreshProduct(ctx context.Context, productID int64) error
	TriggerComparison(ctx context.Context, productID int64) (*models.Comparison, error)
}

const maxBodyBytes = 1 << 20

type Handlers struct {
	tracker  ProductTracker
	validate *validator.Validate
}

func NewHandlers(tracker ProductTracker) *Handlers {
	validate := validator.New()
	// report json field names in validation errors
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handlers{tracker: tracker, validate: validate}
}

// Register mounts the health check and the v1 API on r
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/products", h.TrackProduct).Methods("POST")
	apiV1.HandleFunc("/products", h.ListProducts).Methods("GET")
	apiV1.HandleFunc("/products/{id}", h.GetProduct).Methods("GET")
	apiV1.HandleFunc("/products/{id}", h.DeleteProduct).Methods("DELETE")
	apiV1.HandleFunc("/products/{id}/prices", h.GetPriceHistory).Methods("GET")
	apiV1.HandleFunc("/products/{id}/alerts", h.SetPriceAlert).Methods("POST")
	apiV1.HandleFunc("/products/{id}/alerts", h.GetPriceAlerts).Methods("GET")
	apiV1.HandleFunc("/products/{id}/compare", h.CompareProduct).Methods("POST")
	apiV1.HandleFunc("/products/{id}/check", h.CheckPriceNow).Methods("POST")
}

// HealthCheck returns a simple health check response
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   "pricepulse",
	})
}

// TrackProduct starts tracking a product URL
func (h *Handlers) TrackProduct(w http.ResponseWriter, r *http.Request) {
	var req models.TrackProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, created, err := h.tracker.TrackProduct(r.Context(), req.URL)
	if err != nil {
		writeServiceError(w, r, "track product", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, product)
}

// ListProducts returns all tracked products
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.tracker.ListProducts(r.Context())
	if err != nil {
		writeServiceError(w, r, "list products", err)
		return
	}

	// Ensure we always return an array, even if empty
	if products == nil {
		products = []models.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

// GetProduct returns a single product with its current price
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	product, err := h.tracker.GetProduct(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get product", err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// DeleteProduct stops tracking a product
func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	if err := h.tracker.DeleteProduct(r.Context(), id); err != nil {
		writeServiceError(w, r, "delete product", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Product deleted successfully"})
}

// GetPriceHistory returns the price observations of a product, oldest first
func (h *Handlers) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	history, err := h.tracker.ListPriceHistory(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get price history", err)
		return
	}
	if history == nil {
		history = []models.PriceObservation{}
	}
	writeJSON(w, http.StatusOK, history)
}

// SetPriceAlert creates a new price alert
func (h *Handlers) SetPriceAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	var req models.AddAlertRequest
	if !h.decode(w, r, &req) {
		return
	}

	alert, err := h.tracker.AddAlert(r.Context(), id, req.Email, req.TargetPrice)
	if err != nil {
		writeServiceError(w, r, "set price alert", err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

// GetPriceAlerts returns all alerts for a product
func (h *Handlers) GetPriceAlerts(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	alerts, err := h.tracker.ListAlerts(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get price alerts", err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// CompareProduct searches other marketplaces for the product
func (h *Handlers) CompareProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	cmp, err := h.tracker.TriggerComparison(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "compare product", err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// CheckPriceNow refreshes a product immediately and returns its updated state
func (h *Handlers) CheckPriceNow(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	if err := h.tracker.RefreshProduct(r.Context(), id); err != nil {
		writeServiceError(w, r, "check price", err)
		return
	}

	product, err := h.tracker.GetProduct(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "check price", err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// decode reads a JSON body into dst and validates it, writing a 400 on failure
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var validateErrs validator.ValidationErrors
		if errors.As(err, &validateErrs) {
			writeError(w, http.StatusBadRequest, validationMessage(validateErrs))
		} else {
			writeError(w, http.StatusBadRequest, "Invalid request")
		}
		return false
	}
	return true
}

func validationMessage(errs validator.ValidationErrors) string {
	var msgs []string
	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("field %s is not a valid URL", err.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("field %s is not a valid email", err.Field()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("field %s must be greater than %s", err.Field(), err.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}
	return strings.Join(msgs, ", ")
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid product ID")
		return 0, false
	}
	return id, true
}

// writeServiceError maps service errors onto HTTP statuses
func writeServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, services.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "Product not found")
	case errors.Is(err, services.ErrCouldNotRetrieveDetails):
		writeError(w, http.StatusUnprocessableEntity, "Could not retrieve product details")
	case errors.Is(err, services.ErrInvalidTargetPrice):
		writeError(w, http.StatusBadRequest, "Target price must be a positive number")
	case errors.Is(err, services.ErrAlertAlreadyExists):
		writeError(w, http.StatusConflict, "An identical alert is already active")
	case errors.Is(err, services.ErrProductNameUnknown):
		writeError(w, http.StatusConflict, "Product name is not known yet")
	default:
		log.Printf("❌ Failed to %s [%s]: %v", action, middleware.RequestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to %s", action))
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
