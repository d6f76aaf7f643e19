// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/qtag/internal/models"
	"github.com/autobrr/qtag/internal/services/tagging"
)

// TagEngine is the part of the tagging engine the HTTP layer drives.
type TagEngine interface {
	AddTag(ctx context.Context, parentID, name string) (string, error)
	RenameTag(ctx context.Context, id, name string) error
	MoveTag(ctx context.Context, id, destID, name string) (string, error)
	RemoveTag(ctx context.Context, id string) error
	Descendants(id string, maxDepth int) ([]string, error)

	Snapshot(ctx context.Context) (*tagging.TagUpdate, error)
	Updates(ctx context.Context, since time.Time) (*tagging.TagUpdate, bool, error)

	GetTagOptions(id string) (models.TagOptions, error)
	SetTagOptions(ctx context.Context, id string, opts models.TagOptions, applyToAll *bool) error
	GetMovePathOptions(id string) (tagging.MovePathOptions, error)
	GetTagBandwidthUsages(ctx context.Context, tagIDs []string) (map[string]tagging.BandwidthUsage, error)
	ClassifyBulk(ctx context.Context, tagID string, applyToAll bool) ([]string, error)

	GetItemTags(itemIDs []string) (map[string]tagging.ItemTag, error)
	SetItemTags(ctx context.Context, itemIDs []string, tagID string) error
	FilterItems(itemIDs, tagIDs []string) ([]string, error)
	AutotagItems(ctx context.Context, itemIDs []string) ([]string, error)

	GetPreferences() (models.TagPreferences, error)
	SetPreferences(prefs models.TagPreferences) error
	GetTagDefaults() (models.TagOptions, error)
}

const defaultSearchLimit = 20

type TagsHandler struct {
	engine TagEngine
}

func NewTagsHandler(engine TagEngine) *TagsHandler {
	return &TagsHandler{engine: engine}
}

func (h *TagsHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/search", h.Search)
	r.Post("/bandwidth", h.Bandwidth)

	r.Route("/{tagID}", func(r chi.Router) {
		r.Delete("/", h.Delete)
		r.Put("/name", h.Rename)
		r.Put("/parent", h.Move)
		r.Get("/descendants", h.Descendants)
		r.Get("/options", h.GetOptions)
		r.Put("/options", h.SetOptions)
		r.Get("/move-paths", h.MovePaths)
		r.Post("/autotag", h.Autotag)
	})
}

// List returns the full namespace. With ?since= (RFC 3339) it answers 304
// when nothing changed after that instant.
func (h *TagsHandler) List(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			RespondError(w, http.StatusBadRequest, "Invalid since timestamp")
			return
		}
		since = parsed
	}

	update, ok, err := h.engine.Updates(r.Context(), since)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	// The timestamp changes on every call, so only the tag set feeds the ETag.
	tagsBody, err := json.Marshal(update.Tags)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode tag snapshot")
		RespondError(w, http.StatusInternalServerError, "Failed to encode tags")
		return
	}
	etag := `"` + strconv.FormatUint(xxhash.Sum64(tagsBody), 16) + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	RespondJSON(w, http.StatusOK, update)
}

// SearchResult is one ranked label match.
type SearchResult struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Rank     int    `json:"rank"`
}

// Search ranks labels by fuzzy match of q against their full names.
func (h *TagsHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		RespondError(w, http.StatusBadRequest, "Query is required")
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	snapshot, err := h.engine.Snapshot(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}

	results := make([]SearchResult, 0)
	for id, info := range snapshot.Tags {
		if tagging.IsReserved(id) {
			continue
		}
		if !fuzzy.MatchNormalizedFold(query, info.FullName) {
			continue
		}
		results = append(results, SearchResult{
			ID:       id,
			FullName: info.FullName,
			Rank:     fuzzy.RankMatchNormalizedFold(query, info.FullName),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Rank != results[j].Rank {
			return results[i].Rank < results[j].Rank
		}
		return results[i].FullName < results[j].FullName
	})
	if len(results) > limit {
		results = results[:limit]
	}

	RespondJSON(w, http.StatusOK, results)
}

type createTagRequest struct {
	ParentID string `json:"parentId"`
	Name     string `json:"name"`
}

type tagIDResponse struct {
	ID string `json:"id"`
}

func (h *TagsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTagRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	id, err := h.engine.AddTag(r.Context(), req.ParentID, req.Name)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, tagIDResponse{ID: id})
}

type renameTagRequest struct {
	Name string `json:"name"`
}

func (h *TagsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req renameTagRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.engine.RenameTag(r.Context(), chi.URLParam(r, "tagID"), req.Name); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveTagRequest struct {
	ParentID string `json:"parentId"`
	Name     string `json:"name"`
}

// Move re-parents a label. The response carries the label's new id.
func (h *TagsHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req moveTagRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	id, err := h.engine.MoveTag(r.Context(), chi.URLParam(r, "tagID"), req.ParentID, req.Name)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, tagIDResponse{ID: id})
}

func (h *TagsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RemoveTag(r.Context(), chi.URLParam(r, "tagID")); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TagsHandler) Descendants(w http.ResponseWriter, r *http.Request) {
	depth := tagging.Unlimited
	if raw := r.URL.Query().Get("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < tagging.Unlimited {
			RespondError(w, http.StatusBadRequest, "Invalid depth")
			return
		}
		depth = n
	}

	ids, err := h.engine.Descendants(chi.URLParam(r, "tagID"), depth)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	RespondJSON(w, http.StatusOK, ids)
}

func (h *TagsHandler) GetOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.engine.GetTagOptions(chi.URLParam(r, "tagID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, opts)
}

type setOptionsRequest struct {
	Options    map[string]any `json:"options"`
	ApplyToAll *bool          `json:"applyToAll,omitempty"`
}

// SetOptions merges the posted keys over the label's current options.
func (h *TagsHandler) SetOptions(w http.ResponseWriter, r *http.Request) {
	tagID := chi.URLParam(r, "tagID")

	var req setOptionsRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	current, err := h.engine.GetTagOptions(tagID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	opts, err := models.DecodeTagOptions(req.Options, current)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.SetTagOptions(r.Context(), tagID, opts, req.ApplyToAll); err != nil {
		respondEngineError(w, err)
		return
	}

	updated, err := h.engine.GetTagOptions(tagID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, updated)
}

func (h *TagsHandler) MovePaths(w http.ResponseWriter, r *http.Request) {
	paths, err := h.engine.GetMovePathOptions(chi.URLParam(r, "tagID"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, paths)
}

type bandwidthRequest struct {
	TagIDs []string `json:"tagIds"`
}

func (h *TagsHandler) Bandwidth(w http.ResponseWriter, r *http.Request) {
	var req bandwidthRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	usages, err := h.engine.GetTagBandwidthUsages(r.Context(), req.TagIDs)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, usages)
}

type autotagRequest struct {
	ApplyToAll bool `json:"applyToAll"`
}

type assignedResponse struct {
	Assigned []string `json:"assigned"`
}

// Autotag runs the label's rules over the item store.
func (h *TagsHandler) Autotag(w http.ResponseWriter, r *http.Request) {
	var req autotagRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			RespondError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}

	assigned, err := h.engine.ClassifyBulk(r.Context(), chi.URLParam(r, "tagID"), req.ApplyToAll)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if assigned == nil {
		assigned = []string{}
	}
	RespondJSON(w, http.StatusOK, assignedResponse{Assigned: assigned})
}
