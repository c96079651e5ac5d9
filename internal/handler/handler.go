package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-agent/internal/domain/catalog"
	"github.com/xenking/order-agent/internal/domain/fulfillment"
)

// maxBodySize bounds request bodies, catalog uploads included.
const maxBodySize = 1 << 20

// Orders drives order runs. Implemented by *fulfillment.Agent.
type Orders interface {
	Current() fulfillment.Run
	Busy() bool
	Policy() fulfillment.ApprovalPolicy
	Submit(ctx context.Context, text string) (fulfillment.Run, error)
	Approve(ctx context.Context) (fulfillment.Run, error)
	Cancel(ctx context.Context) (fulfillment.Run, error)
	Reset(ctx context.Context) (fulfillment.Run, error)
}

// Catalog exposes the inventory catalog. Implemented by *catalog.Service.
type Catalog interface {
	Items() []catalog.Item
	Upload(ctx context.Context, text string) ([]catalog.Item, error)
}

var (
	_ Orders  = (*fulfillment.Agent)(nil)
	_ Catalog = (*catalog.Service)(nil)
)

// Handler serves the order and catalog API.
type Handler struct {
	orders   Orders
	catalog  Catalog
	progress *ProgressTracker
}

// NewHandler constructs a Handler. progress must be registered as an
// observer of the agent behind orders.
func NewHandler(orders Orders, cat Catalog, progress *ProgressTracker) *Handler {
	return &Handler{
		orders:   orders,
		catalog:  cat,
		progress: progress,
	}
}

// Routes returns the API router, to be mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/order", func(r chi.Router) {
		r.Get("/", h.GetOrder)
		r.Post("/", h.SubmitOrder)
		r.Post("/approve", h.ApproveOrder)
		r.Post("/cancel", h.CancelOrder)
		r.Post("/reset", h.ResetOrder)
	})
	r.Get("/catalog", h.GetCatalog)
	r.Put("/catalog", h.UploadCatalog)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// writeJSON writes the encoded body with status.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes {"code": status, "message": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

// internalError logs err and responds with an opaque 500.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}
