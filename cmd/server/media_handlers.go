package server

import (
	"fmt"
	"net/http"

	"example.com/socialwall/internal/models"
	"example.com/socialwall/internal/storage"
)

// requireUpload is parseUpload for endpoints where the file is mandatory.
func requireUpload(w http.ResponseWriter, r *http.Request) (*storage.File, func(), error) {
	file, closeFile, err := parseUpload(w, r, "file")
	if err != nil {
		return nil, closeFile, err
	}
	if file == nil {
		return nil, closeFile, fmt.Errorf("missing file part: %w", models.ErrValidation)
	}
	return file, closeFile, nil
}

func (s *Server) getProfileImageHandler(w http.ResponseWriter, r *http.Request) {
	url, err := s.media.ProfileImageURL(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, "http/profile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*string{"url": url})
}

// putProfileImageHandler replaces the profile picture from the multipart "file" part.
func (s *Server) putProfileImageHandler(w http.ResponseWriter, r *http.Request) {
	file, closeFile, err := requireUpload(w, r)
	defer closeFile()
	if err != nil {
		writeError(w, "http/profile", err)
		return
	}
	url, err := s.media.UploadProfileImage(r.Context(), currentUser(r), *file)
	if err != nil {
		writeError(w, "http/profile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) listPhotosHandler(w http.ResponseWriter, r *http.Request) {
	photos, err := s.media.ListPhotos(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, "http/photos", err)
		return
	}
	writeJSON(w, http.StatusOK, photos)
}

func (s *Server) uploadPhotoHandler(w http.ResponseWriter, r *http.Request) {
	file, closeFile, err := requireUpload(w, r)
	defer closeFile()
	if err != nil {
		writeError(w, "http/photos", err)
		return
	}
	photo, err := s.media.UploadPhoto(r.Context(), currentUser(r), *file)
	if err != nil {
		writeError(w, "http/photos", err)
		return
	}
	writeJSON(w, http.StatusCreated, photo)
}
