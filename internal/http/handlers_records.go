package http

import (
	"context"
	"net/http"

	"cuzdan/internal/auth"
	"cuzdan/internal/core"
	"cuzdan/internal/log"
)

type recordService[T any] interface {
	List(ctx context.Context, userID string) ([]T, error)
	Get(ctx context.Context, userID, id string) (T, error)
	Create(ctx context.Context, userID string, rec T) (T, error)
	Update(ctx context.Context, userID, id string, rec T) (T, error)
	Delete(ctx context.Context, userID, id string) error
}

// codec converts between a record and its wire form.
type codec[T any] interface {
	decode(w http.ResponseWriter, r *http.Request) (T, error)
	view(T) any
}

type recordCodec[T any] struct{}

func (recordCodec[T]) decode(w http.ResponseWriter, r *http.Request) (T, error) {
	var rec T
	err := DecodeJSON(w, r, &rec)
	return rec, err
}

func (recordCodec[T]) view(rec T) any { return rec }

// debtPayload exposes the no-fixed-date sentinel as a flag.
type debtPayload struct {
	core.Debt
	NoFixedDate bool `json:"noFixedDate"`
}

type debtCodec struct{}

func (debtCodec) decode(w http.ResponseWriter, r *http.Request) (core.Debt, error) {
	var p debtPayload
	if err := DecodeJSON(w, r, &p); err != nil {
		return core.Debt{}, err
	}
	if p.NoFixedDate {
		p.Deadline = core.NoFixedDeadline
	}
	return p.Debt, nil
}

func (debtCodec) view(d core.Debt) any {
	return debtPayload{Debt: d, NoFixedDate: core.IsNoFixedDeadline(d.Deadline)}
}

// registerRecordRoutes mounts the CRUD endpoints for one record kind under
// /api/<name>.
func registerRecordRoutes[T any](mux *http.ServeMux, s *Server, name string, svc recordService[T], c codec[T]) {
	base := "/api/" + name
	h := recordHandlers[T]{svc: svc, codec: c, kind: name}

	mux.Handle("GET "+base, s.authed(h.list))
	mux.Handle("POST "+base, s.authed(h.create))
	mux.Handle("GET "+base+"/{id}", s.authed(h.get))
	mux.Handle("PUT "+base+"/{id}", s.authed(h.update))
	mux.Handle("DELETE "+base+"/{id}", s.authed(h.delete))
}

type recordHandlers[T any] struct {
	svc   recordService[T]
	codec codec[T]
	kind  string
}

func (h recordHandlers[T]) list(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	recs, err := h.svc.List(r.Context(), userID)
	if err != nil {
		h.fail(w, r, log.OpList, err)
		return
	}
	out := make([]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, h.codec.view(rec))
	}
	NewJSONResponse().JSON(out).Write(w)
}

func (h recordHandlers[T]) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), auth.UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().JSON(h.codec.view(rec)).Write(w)
}

func (h recordHandlers[T]) create(w http.ResponseWriter, r *http.Request) {
	rec, err := h.codec.decode(w, r)
	if err != nil {
		h.fail(w, r, log.OpCreate, err)
		return
	}
	created, err := h.svc.Create(r.Context(), auth.UserID(r.Context()), rec)
	if err != nil {
		h.fail(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).JSON(h.codec.view(created)).Write(w)
}

func (h recordHandlers[T]) update(w http.ResponseWriter, r *http.Request) {
	rec, err := h.codec.decode(w, r)
	if err != nil {
		h.fail(w, r, log.OpUpdate, err)
		return
	}
	updated, err := h.svc.Update(r.Context(), auth.UserID(r.Context()), r.PathValue("id"), rec)
	if err != nil {
		h.fail(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().JSON(h.codec.view(updated)).Write(w)
}

func (h recordHandlers[T]) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), auth.UserID(r.Context()), r.PathValue("id")); err != nil {
		h.fail(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (h recordHandlers[T]) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if StatusForError(err) >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Record request failed",
			log.NewFields().WithOperation(op).WithRecord(h.kind, r.PathValue("id")).WithError(err).ToSlice()...)
	}
	ErrorFor(err).Write(w)
}
