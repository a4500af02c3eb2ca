package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"example.com/socialwall/internal/market"
	"example.com/socialwall/internal/models"
	"example.com/socialwall/internal/storage"
)

const maxUpload = 10 << 20

// parseUpload reads a multipart (or urlencoded) form and returns the file in
// field, or nil when none was sent. The caller must call the returned close func.
func parseUpload(w http.ResponseWriter, r *http.Request, field string) (*storage.File, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			return nil, noop, fmt.Errorf("invalid form: %v: %w", err, models.ErrValidation)
		}
		if err := r.ParseForm(); err != nil {
			return nil, noop, fmt.Errorf("invalid form: %v: %w", err, models.ErrValidation)
		}
		return nil, noop, nil
	}

	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, fmt.Errorf("invalid %s part: %v: %w", field, err, models.ErrValidation)
	}
	file := &storage.File{
		Name:        hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Body:        f,
	}
	return file, func() { f.Close() }, nil
}

func itemID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q: %w", r.PathValue("id"), models.ErrValidation)
	}
	return id, nil
}

func (s *Server) catalogHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Catalog())
}

// listItemsHandler searches listings.
// Query parameters: q, min_price, max_price, category, condition, date_range, location_radius
func (s *Server) listItemsHandler(w http.ResponseWriter, r *http.Request) {
	f, err := market.ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, "http/marketplace", err)
		return
	}
	items, err := s.market.List(r.Context(), f)
	if err != nil {
		writeError(w, "http/marketplace", err)
		return
	}
	if items == nil {
		items = []models.MarketplaceItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) getItemHandler(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		writeError(w, "http/marketplace", err)
		return
	}
	item, err := s.market.Get(r.Context(), id)
	if err != nil {
		writeError(w, "http/marketplace", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// createItemHandler posts a listing from a multipart form with an optional "image" part.
func (s *Server) createItemHandler(w http.ResponseWriter, r *http.Request) {
	image, closeImage, err := parseUpload(w, r, "image")
	if err != nil {
		writeError(w, "http/marketplace", err)
		return
	}
	defer closeImage()

	in := market.NewItem{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Price:       r.FormValue("price"),
		Location:    r.FormValue("location"),
		Category:    r.FormValue("category"),
		Condition:   r.FormValue("condition"),
		SellerEmail: r.FormValue("seller_email"),
	}
	item, err := s.market.Post(r.Context(), currentUser(r), in, image)
	if err != nil {
		writeError(w, "http/marketplace", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// inquiryHandler messages the seller of a listing.
// Expects JSON body: {"message": "Is it still available?"}
func (s *Server) inquiryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		writeError(w, "http/marketplace", err)
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if !decodeJSON(w, r, "http/marketplace", &body) {
		return
	}

	msg, err := s.market.Inquire(r.Context(), currentUser(r), id, body.Message)
	if err != nil {
		writeError(w, "http/marketplace", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
