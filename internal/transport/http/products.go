package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
)

// ProductReader is the minimal interface GET /products/{id} needs:
// the Cache Coordinator's get_available(product_id) read path
// (spec.md §4.2), not the Stock Calculator directly.
type ProductReader interface {
	GetAvailable(ctx context.Context, productID int64) (int, domain.Product, error)
}

// HandleGetProduct returns an HTTP handler for GET /products/{id}.
func HandleGetProduct(svc ProductReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseIDPath(r.URL.Path, "products")
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		available, product, err := svc.GetAvailable(r.Context(), id)
		if err != nil {
			writeDomainError(w, err, http.StatusNotFound)
			return
		}

		resp := productResponse{
			ID:             product.ID,
			Name:           product.Name,
			Price:          product.Price.StringFixed(2),
			StockTotal:     product.StockTotal,
			StockSold:      product.StockSold,
			AvailableStock: available,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type productResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Price          string `json:"price"`
	StockTotal     int    `json:"stock_total"`
	StockSold      int    `json:"stock_sold"`
	AvailableStock int    `json:"available_stock"`
}

// parseIDPath parses "/{resource}/{id}" into the int64 id, rejecting
// anything with extra segments (e.g. "/holds/5/confirm").
func parseIDPath(path, resource string) (int64, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != resource || parts[1] == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
