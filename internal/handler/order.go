package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/order-agent/internal/codec"
	"github.com/xenking/order-agent/internal/domain/fulfillment"
)

// GetOrder returns the current run with its latest shipment progress.
func (h *Handler) GetOrder(w http.ResponseWriter, _ *http.Request) {
	h.writeRun(w, http.StatusOK, h.orders.Current())
}

// SubmitOrder starts a run for {"text": "..."}. It responds once the run
// finishes or parks waiting for approval; a failed run is still a 200 with
// the failure recorded on the run.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	text, err := decodeSubmit(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.orders.Submit(r.Context(), text)
	if err != nil {
		h.orderError(w, r, err)
		return
	}
	h.writeRun(w, http.StatusOK, run)
}

// ApproveOrder ships the order waiting for approval.
func (h *Handler) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	run, err := h.orders.Approve(r.Context())
	if err != nil {
		h.orderError(w, r, err)
		return
	}
	h.writeRun(w, http.StatusOK, run)
}

// CancelOrder abandons the order waiting for approval.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	run, err := h.orders.Cancel(r.Context())
	if err != nil {
		h.orderError(w, r, err)
		return
	}
	h.writeRun(w, http.StatusOK, run)
}

// ResetOrder discards the current run.
func (h *Handler) ResetOrder(w http.ResponseWriter, r *http.Request) {
	run, err := h.orders.Reset(r.Context())
	if err != nil {
		h.orderError(w, r, err)
		return
	}
	h.writeRun(w, http.StatusOK, run)
}

func (h *Handler) writeRun(w http.ResponseWriter, status int, run fulfillment.Run) {
	var e jx.Encoder
	e.ObjStart()
	codec.RunFields(&e, run)
	if msg := h.progress.Latest(run.ID); msg != "" {
		e.FieldStart("progress")
		e.Str(msg)
	}
	e.FieldStart("busy")
	e.Bool(h.orders.Busy())
	e.FieldStart("approval_threshold")
	e.Int(h.orders.Policy().Threshold)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

// decodeSubmit reads the order text from a JSON body.
func decodeSubmit(body io.Reader) (string, error) {
	var (
		text  string
		found bool
	)
	d := jx.Decode(body, 512)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "text":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "text")
			}
			text, found = v, true
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return "", errors.Wrap(err, "invalid request body")
	}
	if !found {
		return "", errors.New("invalid request body: text is required")
	}
	return text, nil
}

// orderError maps agent errors to responses.
func (h *Handler) orderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *fulfillment.ValidationError
		transitionErr *fulfillment.TransitionError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, fulfillment.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, transitionErr.Error())
	default:
		internalError(w, r, err)
	}
}
