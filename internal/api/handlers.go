package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mstanton/curator/internal/collection"
)

// --- items ---

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var items []collection.Item
	switch {
	case q.Get("category_id") != "":
		items = s.store.FetchByCategory(q.Get("category_id"))
	case q.Get("tag_id") != "":
		items = s.store.FetchByTag(q.Get("tag_id"))
	case q.Get("favorites") == "true":
		items = s.store.FetchFavorites()
	default:
		items = s.store.FetchAllItems()
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	var item collection.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if item.ID == "" {
		id, err := s.idGen.NewID()
		if err != nil {
			writeError(s.logger, w, http.StatusInternalServerError, err.Error())
			return
		}
		item.ID = id
	}
	if item.CategoryID == "" {
		item.CategoryID = collection.CategoryNoneID
	}
	if err := s.store.AddItem(item); err != nil {
		writeError(s.logger, w, storeErrorStatus(err), err.Error())
		return
	}
	created, err := s.store.FetchItem(item.ID)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, created)
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.FetchItem(chi.URLParam(r, "item_id"))
	if err != nil {
		writeError(s.logger, w, storeErrorStatus(err), err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, item)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	var item collection.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	item.ID = chi.URLParam(r, "item_id")
	if err := s.store.UpdateItem(item); err != nil {
		writeError(s.logger, w, storeErrorStatus(err), err.Error())
		return
	}
	updated, err := s.store.FetchItem(item.ID)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, updated)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteItem(chi.URLParam(r, "item_id")); err != nil {
		writeError(s.logger, w, storeErrorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- categories ---

func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"categories": s.store.FetchAllCategories()})
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var cat collection.Category
	if err := json.NewDecoder(r.Body).Decode(&cat); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if cat.ID == "" {
		id, err := s.idGen.NewID()
		if err != nil {
			writeError(s.logger, w, http.StatusInternalServerError, err.Error())
			return
		}
		cat.ID = id
	}
	if err := s.store.AddCategory(cat); err != nil {
		writeError(s.logger, w, storeErrorStatus(err), err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, cat)
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) {
	var cat collection.Category
	if err := json.NewDecoder(r.Body).Decode(&cat); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	cat.ID = chi.URLParam(r, "category_id")
	if err := s.store.UpdateCategory(cat); err != nil {
		writeError(s.logger, w, storeErrorStatus(err), err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, cat)
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCategory(chi.URLParam(r, "category_id")); err != nil {
		writeError(s.logger, w, storeErrorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- tags ---

func (s *Server) listTags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"tags": s.store.FetchAllTags()})
}

func (s *Server) createTag(w http.ResponseWriter, r *http.Request) {
	var tag collection.Tag
	if err := json.NewDecoder(r.Body).Decode(&tag); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if tag.ID == "" {
		id, err := s.idGen.NewID()
		if err != nil {
			writeError(s.logger, w, http.StatusInternalServerError, err.Error())
			return
		}
		tag.ID = id
	}
	if err := s.store.AddTag(tag); err != nil {
		writeError(s.logger, w, storeErrorStatus(err), err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, tag)
}

func (s *Server) updateTag(w http.ResponseWriter, r *http.Request) {
	var tag collection.Tag
	if err := json.NewDecoder(r.Body).Decode(&tag); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	tag.ID = chi.URLParam(r, "tag_id")
	if err := s.store.UpdateTag(tag); err != nil {
		writeError(s.logger, w, storeErrorStatus(err), err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, tag)
}

func (s *Server) deleteTag(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTag(chi.URLParam(r, "tag_id")); err != nil {
		writeError(s.logger, w, storeErrorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- preferences ---

func (s *Server) listPreferences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"preferences": s.store.FetchAllPreferences()})
}

func (s *Server) getPreference(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, ok := s.store.Preference(key)
	if !ok {
		writeError(s.logger, w, http.StatusNotFound, "preference not set")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (s *Server) setPreference(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	key := chi.URLParam(r, "key")
	s.store.SetPreference(key, req.Value)
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}

// --- runs ---

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runnerFor(chi.URLParam(r, "run_kind"))
	if !ok {
		writeError(s.logger, w, http.StatusNotFound, "unknown run kind")
		return
	}
	// Runs outlive the request; tie them to the server's lifecycle context.
	if !run.Start(s.runCtx) {
		writeJSON(s.logger, w, http.StatusConflict, map[string]any{
			"started": false,
			"reason":  "already running or nothing to do",
		})
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, map[string]any{"started": true})
}

func (s *Server) pauseRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runnerFor(chi.URLParam(r, "run_kind"))
	if !ok {
		writeError(s.logger, w, http.StatusNotFound, "unknown run kind")
		return
	}
	run.Pause()
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "pausing"})
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runnerFor(chi.URLParam(r, "run_kind"))
	if !ok {
		writeError(s.logger, w, http.StatusNotFound, "unknown run kind")
		return
	}
	run.Cancel()
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "canceling"})
}

func (s *Server) runStatus(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "run_kind")
	run, ok := s.runnerFor(kind)
	if !ok {
		writeError(s.logger, w, http.StatusNotFound, "unknown run kind")
		return
	}
	resp := map[string]any{"progress": run.Progress()}
	if kind == "enrichment" {
		resp["proposed_categories"] = run.ProposedCategories()
	}
	writeJSON(s.logger, w, http.StatusOK, resp)
}

// --- archive and storage ---

func (s *Server) exportArchive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dest string `json:"dest"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Dest) == "" {
		writeError(s.logger, w, http.StatusBadRequest, "dest directory required")
		return
	}
	dir, err := s.archiver.Export(req.Dest)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, map[string]string{"dir": dir})
}

func (s *Server) importArchive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dir string `json:"dir"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Dir) == "" {
		writeError(s.logger, w, http.StatusBadRequest, "archive directory required")
		return
	}
	report, err := s.archiver.Import(req.Dir)
	if err != nil {
		writeError(s.logger, w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, report)
}

// relocateStorage flushes the store synchronously, then re-points the
// backend. The flush must complete before the old location can be abandoned.
func (s *Server) relocateStorage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dir string `json:"dir"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Dir) == "" {
		writeError(s.logger, w, http.StatusBadRequest, "dir required")
		return
	}
	if err := s.store.ForceSaveAll(r.Context()); err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.backend.Relocate(req.Dir); err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"dir": s.backend.Dir()})
}
