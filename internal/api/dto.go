package api

import (
	"rvslideshow/internal/media"
	"rvslideshow/internal/playback"
	"rvslideshow/internal/presentation"
	"rvslideshow/internal/storage"
)

type HealthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Session playback.State `json:"session"`
}

type MediaResponse struct {
	Media      *storage.MediaItem `json:"media"`
	ContentURL string             `json:"content_url"`
}

type ScanResponse struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Stats   *media.ScanStats `json:"stats,omitempty"`
}

type LibraryStatsResponse struct {
	Counts map[storage.MediaKind]int `json:"counts"`
	Total  int                       `json:"total"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Session DTOs

type SessionResponse struct {
	playback.Status
	Slide *presentation.Slide `json:"slide,omitempty"`
}

type SessionsResponse struct {
	Sessions []storage.SessionRecord `json:"sessions"`
}

// Library tree - complete structure in one response

type LibraryTreeResponse struct {
	Name    string              `json:"name"`
	Folders []FolderNode        `json:"folders"`
	Media   []storage.MediaItem `json:"media,omitempty"`
}

type FolderNode struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Images     int                 `json:"images"`
	Videos     int                 `json:"videos"`
	SubFolders []FolderNode        `json:"sub_folders,omitempty"`
	Media      []storage.MediaItem `json:"media,omitempty"`
}
