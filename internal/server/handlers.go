package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/propsheet/internal/catalog"
	"github.com/conduit-lang/propsheet/internal/columns"
	"github.com/conduit-lang/propsheet/internal/command"
	"github.com/conduit-lang/propsheet/internal/edit"
	"github.com/conduit-lang/propsheet/internal/property"
	"github.com/conduit-lang/propsheet/internal/source"
)

type openRequest struct {
	Sample string `json:"sample"`
}

type writeRequest struct {
	Value interface{} `json:"value"`
}

type propertyView struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type,omitempty"`
	Editable    bool           `json:"editable"`
	Lazy        bool           `json:"lazy,omitempty"`
	Pending     bool           `json:"pending,omitempty"`
	Value       interface{}    `json:"value,omitempty"`
	Values      []interface{}  `json:"values,omitempty"`
	Children    []propertyView `json:"children,omitempty"`
}

type categoryView struct {
	Name       string         `json:"name"`
	Properties []propertyView `json:"properties"`
}

type sourceView struct {
	ID         string         `json:"id"`
	Sample     string         `json:"sample"`
	Loading    bool           `json:"loading"`
	Categories []categoryView `json:"categories"`
}

type commandView struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type historyView struct {
	CanUndo  bool          `json:"can_undo"`
	CanRedo  bool          `json:"can_redo"`
	Commands []commandView `json:"commands"`
}

// refresher is implemented by targets that can drop their own caches
type refresher interface {
	Refresh()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, s.deps.Catalog.Names())
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.open(req.Sample)
	if errors.Is(err, catalog.ErrUnknownSample) {
		renderError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		renderError(w, http.StatusInternalServerError, err.Error())
		return
	}
	renderJSON(w, http.StatusCreated, s.view(r, sess))
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	renderJSON(w, http.StatusOK, s.view(r, sess))
}

func (s *Server) handleCloseSource(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil || !s.drop(id) {
		renderError(w, http.StatusNotFound, "source not found")
		return
	}
	s.hub.CloseRoom(id.String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if rf, ok := sess.src.Target().(refresher); ok {
		rf.Refresh()
	}
	sess.src.InvalidateAll()
	renderJSON(w, http.StatusOK, s.view(r, sess))
}

func (s *Server) handleProperty(w http.ResponseWriter, r *http.Request) {
	sess, d, ok := s.lookupProperty(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		if _, pending := sess.src.Read(d); pending {
			if err := sess.src.Wait(r.Context()); err != nil {
				renderError(w, http.StatusRequestTimeout, err.Error())
				return
			}
		}
	}
	renderJSON(w, http.StatusOK, s.property(r, sess, d))
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	sess, d, ok := s.lookupProperty(w, r)
	if !ok {
		return
	}
	if !s.policy(r).IsEditable(sess.src.Target()) {
		renderError(w, http.StatusForbidden, edit.ErrNotEditable.Error())
		return
	}

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := sess.editor.Write(d, req.Value); err != nil {
		s.renderEditError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, s.property(r, sess, d))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, d, ok := s.lookupProperty(w, r)
	if !ok {
		return
	}
	if !s.policy(r).IsEditable(sess.src.Target()) {
		renderError(w, http.StatusForbidden, edit.ErrNotEditable.Error())
		return
	}

	if err := sess.editor.Reset(d); err != nil {
		s.renderEditError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, s.property(r, sess, d))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, s.history())
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.History.Undo(); err != nil {
		s.renderEditError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, s.history())
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.History.Redo(); err != nil {
		s.renderEditError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, s.history())
}

func (s *Server) handleBoundary(w http.ResponseWriter, r *http.Request) {
	s.deps.History.Boundary()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	views := s.deps.Columns.Views()
	if views == nil {
		views = []string{}
	}
	renderJSON(w, http.StatusOK, views)
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	states := s.deps.Columns.Get(chi.URLParam(r, "view"))
	if states == nil {
		states = []columns.State{}
	}
	renderJSON(w, http.StatusOK, states)
}

func (s *Server) handleUpdateColumns(w http.ResponseWriter, r *http.Request) {
	var states []columns.State
	if err := json.NewDecoder(r.Body).Decode(&states); err != nil {
		renderError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, st := range states {
		if st.Name == "" {
			renderError(w, http.StatusUnprocessableEntity, "column name is required")
			return
		}
	}
	s.deps.Columns.Update(chi.URLParam(r, "view"), states)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := s.hub.Serve(w, r, sess.src.ID().String()); err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, http.StatusNotFound, "source not found")
		return nil, false
	}
	sess, ok := s.session(id)
	if !ok {
		renderError(w, http.StatusNotFound, "source not found")
		return nil, false
	}
	return sess, true
}

func (s *Server) lookupProperty(w http.ResponseWriter, r *http.Request) (*session, *property.Descriptor, bool) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return nil, nil, false
	}
	attr := chi.URLParam(r, "attr")
	d := property.Find(sess.src.Descriptors(), attr)
	if d == nil {
		renderError(w, http.StatusNotFound, "attribute not found: "+attr)
		return nil, nil, false
	}
	return sess, d, true
}

func (s *Server) renderEditError(w http.ResponseWriter, err error) {
	var accessorErr *property.AccessorError
	switch {
	case errors.Is(err, edit.ErrNotEditable), errors.Is(err, property.ErrNotSettable):
		renderError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, command.ErrNothingToUndo), errors.Is(err, command.ErrNothingToRedo):
		renderError(w, http.StatusConflict, err.Error())
	case errors.Is(err, property.ErrConversion), errors.As(err, &accessorErr):
		renderError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("edit failed", zap.Error(err))
		renderError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) view(r *http.Request, sess *session) sourceView {
	out := sourceView{
		ID:     sess.src.ID().String(),
		Sample: sess.sample,
	}

	tree := property.BuildTree(sess.src.Descriptors(), false)
	for _, g := range tree.Groups {
		cat := categoryView{Name: g.Name, Properties: []propertyView{}}
		for _, item := range g.Items {
			cat.Properties = append(cat.Properties, s.item(r, sess, item))
		}
		out.Categories = append(out.Categories, cat)
	}
	out.Loading = sess.src.Loading()
	return out
}

func (s *Server) item(r *http.Request, sess *session, item property.Item) propertyView {
	if item.Group == nil {
		return s.property(r, sess, item.Descriptor)
	}

	d := item.Group.Descriptor
	pv := propertyView{ID: d.ID, Name: item.Group.Name, Description: d.Description, Lazy: d.Lazy}
	for _, child := range item.Group.Items {
		pv.Children = append(pv.Children, s.item(r, sess, child))
	}
	return pv
}

func (s *Server) property(r *http.Request, sess *session, d *property.Descriptor) propertyView {
	target := sess.src.Target()
	pv := propertyView{
		ID:          d.ID,
		Name:        d.DisplayName,
		Description: d.Description,
		Type:        string(d.DataType),
		Editable:    sess.editor.IsEditable(d) && s.policy(r).IsEditable(target),
		Lazy:        d.Lazy,
	}

	value, pending := sess.src.Read(d)
	if pending {
		pv.Pending = true
		pv.Value = property.DisplayValue(source.Pending)
	} else {
		pv.Value = property.DisplayValue(value)
	}

	if d.ValueList != nil {
		for _, v := range d.ValueList.Values(target) {
			pv.Values = append(pv.Values, property.DisplayValue(v))
		}
	}
	return pv
}

func (s *Server) history() historyView {
	h := s.deps.History
	out := historyView{CanUndo: h.CanUndo(), CanRedo: h.CanRedo(), Commands: []commandView{}}
	for _, cmd := range h.Commands() {
		out.Commands = append(out.Commands, commandView{ID: cmd.ID().String(), Label: cmd.Label()})
	}
	return out
}
