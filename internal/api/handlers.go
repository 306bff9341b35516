package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/orders-ms/internal/contracts"
	"github.com/example/orders-ms/internal/domain/order"
	"github.com/example/orders-ms/internal/orders"
)

type Handlers struct {
	service        *orders.Service
	requestTimeout time.Duration
}

// NewHandlers wires the query handlers. requestTimeout bounds each
// request's context so a silent collaborator cannot hang the connection
// through the enrichment lookup.
func NewHandlers(service *orders.Service, requestTimeout time.Duration) *Handlers {
	return &Handlers{service: service, requestTimeout: requestTimeout}
}

// Order Handlers

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := contracts.FindAllOrdersRequest{
		Status: q.Get("status"),
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "page must be a number", http.StatusBadRequest)
			return
		}
		req.Page = page
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "limit must be a number", http.StatusBadRequest)
			return
		}
		req.Limit = limit
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	page, err := h.service.FindAll(ctx, req)
	if err != nil {
		if errors.Is(err, order.ErrUnknownStatus) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, page)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/orders/")

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	enriched, err := h.service.FindOne(ctx, id)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, enriched)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}
