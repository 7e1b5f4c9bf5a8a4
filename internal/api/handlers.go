package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/university-cli/internal/geoclass"
	"github.com/sells-group/university-cli/internal/model"
	"github.com/sells-group/university-cli/internal/normalize"
	"github.com/sells-group/university-cli/internal/store"
)

// universityDetail is a university with its aliases.
type universityDetail struct {
	*model.University
	Aliases []model.Alias `json:"aliases"`
}

type createRequest struct {
	NameEN    string   `json:"name_en"`
	NameJA    string   `json:"name_ja"`
	Country   string   `json:"country"`
	City      string   `json:"city"`
	Website   string   `json:"website"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Tags      []string `json:"tags"`
}

type updateRequest struct {
	NameEN    *string   `json:"name_en"`
	NameJA    *string   `json:"name_ja"`
	Country   *string   `json:"country"`
	City      *string   `json:"city"`
	Website   *string   `json:"website"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Tags      *[]string `json:"tags"`
}

type aliasRequest struct {
	Alias     string          `json:"alias"`
	AliasType model.AliasType `json:"alias_type"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		errorResponse(w, http.StatusServiceUnavailable, "unavailable", "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.Filter{
		Query:       strings.TrimSpace(q.Get("q")),
		CountryCode: strings.ToUpper(strings.TrimSpace(q.Get("country"))),
		Continent:   strings.TrimSpace(q.Get("continent")),
		Tag:         strings.TrimSpace(q.Get("tag")),
	}
	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	page, err := s.store.SearchUniversities(r.Context(), filter)
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	u, err := s.store.GetUniversity(r.Context(), id)
	if err != nil {
		storeError(w, r, err)
		return
	}
	aliases, err := s.store.ListAliases(r.Context(), id)
	if err != nil {
		storeError(w, r, err)
		return
	}
	if aliases == nil {
		aliases = []model.Alias{}
	}
	writeJSON(w, http.StatusOK, universityDetail{University: u, Aliases: aliases})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeBody(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.NameEN)
	if name == "" {
		errorResponse(w, http.StatusBadRequest, "invalid_field", "name_en is required")
		return
	}
	if !validCoordinates(w, req.Latitude, req.Longitude) {
		return
	}
	cl, ok := s.classify(w, req.Country)
	if !ok {
		return
	}

	u := &model.University{
		NameEN:         name,
		NameJA:         model.StringPtr(strings.TrimSpace(req.NameJA)),
		NormalizedName: model.StringPtr(normalize.Name(name)),
		CountryCode:    cl.CountryCode,
		Continent:      cl.Continent,
		City:           model.StringPtr(strings.TrimSpace(req.City)),
		Website:        model.StringPtr(strings.TrimSpace(req.Website)),
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Tags:           req.Tags,
	}
	if err := s.store.CreateUniversity(r.Context(), u); err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validCoordinates(w, req.Latitude, req.Longitude) {
		return
	}

	patch := store.UniversityPatch{
		NameJA:    req.NameJA,
		City:      req.City,
		Website:   req.Website,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Tags:      req.Tags,
	}
	if req.NameEN != nil {
		name := strings.TrimSpace(*req.NameEN)
		if name == "" {
			errorResponse(w, http.StatusBadRequest, "invalid_field", "name_en must not be empty")
			return
		}
		key := normalize.Name(name)
		patch.NameEN = &name
		patch.NormalizedName = &key
	}
	if req.Country != nil {
		cl, ok := s.classify(w, *req.Country)
		if !ok {
			return
		}
		patch.CountryCode = &cl.CountryCode
		patch.Continent = &cl.Continent
	}

	u, err := s.store.UpdateUniversity(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteUniversity(r.Context(), chi.URLParam(r, "id")); err != nil {
		storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddAlias(w http.ResponseWriter, r *http.Request) {
	var req aliasRequest
	if !decodeBody(w, r, &req) {
		return
	}
	alias := strings.TrimSpace(req.Alias)
	if alias == "" {
		errorResponse(w, http.StatusBadRequest, "invalid_field", "alias is required")
		return
	}
	if req.AliasType != "" && !req.AliasType.Valid() {
		errorResponse(w, http.StatusBadRequest, "invalid_field", "alias_type must be abbreviation, variant, old_name or other")
		return
	}

	a := &model.Alias{
		UniversityID: chi.URLParam(r, "id"),
		Alias:        alias,
		AliasType:    req.AliasType,
	}
	if err := s.store.AddAlias(r.Context(), a); err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleDeleteAlias(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteAlias(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "aliasID"))
	if err != nil {
		storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) classify(w http.ResponseWriter, country string) (geoclass.Classification, bool) {
	cl, err := s.classifier.Resolve(country)
	if errors.Is(err, geoclass.ErrUnclassifiedCountry) {
		errorResponse(w, http.StatusUnprocessableEntity, "unclassified_country", "country could not be classified")
		return cl, false
	}
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return cl, false
	}
	return cl, true
}

func validCoordinates(w http.ResponseWriter, lat, lng *float64) bool {
	if (lat == nil) != (lng == nil) {
		errorResponse(w, http.StatusBadRequest, "invalid_field", "latitude and longitude must be set together")
		return false
	}
	if lat != nil && (*lat < -90 || *lat > 90 || *lng < -180 || *lng > 180) {
		errorResponse(w, http.StatusBadRequest, "invalid_field", "coordinates out of range")
		return false
	}
	return true
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		errorResponse(w, http.StatusBadRequest, "invalid_parameter", name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
