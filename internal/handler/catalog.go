package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/order-agent/internal/codec"
	"github.com/xenking/order-agent/internal/domain/catalog"
)

// GetCatalog lists the current catalog.
func (h *Handler) GetCatalog(w http.ResponseWriter, _ *http.Request) {
	writeItems(w, h.catalog.Items())
}

// UploadCatalog replaces the catalog with the plain-text body, one
// "name, price, stock" row per line. Nothing changes unless every row is
// valid.
func (h *Handler) UploadCatalog(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "catalog is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	items, err := h.catalog.Upload(r.Context(), string(body))
	if err != nil {
		catalogError(w, r, err)
		return
	}
	writeItems(w, items)
}

func writeItems(w http.ResponseWriter, items []catalog.Item) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("items")
	codec.Items(&e, items)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// catalogError maps upload errors to responses. Row errors are listed so the
// caller can fix every line in one go.
func catalogError(w http.ResponseWriter, r *http.Request, err error) {
	var rows catalog.RowErrors
	switch {
	case errors.As(err, &rows):
		var e jx.Encoder
		e.ObjStart()
		e.FieldStart("code")
		e.Int(http.StatusUnprocessableEntity)
		e.FieldStart("message")
		e.Str(rows.Error())
		e.FieldStart("rows")
		e.ArrStart()
		for _, row := range rows {
			e.ObjStart()
			e.FieldStart("line")
			e.Int(row.Line)
			e.FieldStart("reason")
			e.Str(row.Reason)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
		writeJSON(w, http.StatusUnprocessableEntity, &e)
	case errors.Is(err, catalog.ErrEmpty):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		internalError(w, r, err)
	}
}
