package media

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"rvslideshow/internal/storage"
)

type ScanStats struct {
	Folders int    `json:"folders"`
	Images  int    `json:"images"`
	Videos  int    `json:"videos"`
	Audio   int    `json:"audio"`
	Bytes   uint64 `json:"bytes"`
}

func (st *ScanStats) add(kind storage.MediaKind, size int64) {
	switch kind {
	case storage.KindImage:
		st.Images++
	case storage.KindVideo:
		st.Videos++
	case storage.KindAudio:
		st.Audio++
	}
	st.Bytes += uint64(size)
}

type Scanner struct {
	storage  *storage.SQLiteStorage
	logger   zerolog.Logger
	scanning bool
	mu       sync.Mutex
}

func NewScanner(store *storage.SQLiteStorage, logger zerolog.Logger) *Scanner {
	return &Scanner{
		storage: store,
		logger:  logger.With().Str("component", "scanner").Logger(),
	}
}

func (s *Scanner) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// ScanPath scans a single library path. Subfolders of the library become
// root folders; files in the library root have an empty folder id.
// A scan already in progress makes this a no-op.
func (s *Scanner) ScanPath(libraryPath, libraryName string) (*ScanStats, error) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return nil, nil
	}
	s.scanning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	if libraryPath == "" {
		s.logger.Warn().Msg("no library path configured")
		return nil, nil
	}

	info, err := os.Stat(libraryPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	libraryPath = filepath.Clean(libraryPath)
	s.logger.Info().
		Str("path", libraryPath).
		Str("name", libraryName).
		Msg("scanning library")

	// Cleanup deleted files first
	if err := s.CleanupDeletedFiles(); err != nil {
		s.logger.Warn().Err(err).Msg("cleanup failed, continuing with scan")
	}

	start := time.Now()
	stats := &ScanStats{}
	if err := s.scanDirectory(libraryPath, nil, stats); err != nil {
		return stats, err
	}

	s.logger.Info().
		Int("folders", stats.Folders).
		Int("images", stats.Images).
		Int("videos", stats.Videos).
		Int("audio", stats.Audio).
		Str("size", humanize.Bytes(stats.Bytes)).
		Dur("took", time.Since(start)).
		Msg("scan completed")

	return stats, nil
}

// scanDirectory stores the supported files of dirPath and recurses into
// its subfolders. parentID is nil for the library root.
func (s *Scanner) scanDirectory(dirPath string, parentID *string, stats *ScanStats) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return err
	}

	folderID := ""
	if parentID != nil {
		folderID = *parentID
	}

	var mediaCount int

	for _, entry := range entries {
		fullPath := filepath.Join(dirPath, entry.Name())

		if entry.IsDir() {
			// Skip hidden directories
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}

			id := generateID(fullPath)
			folder := &storage.Folder{
				ID:        id,
				Name:      entry.Name(),
				Path:      fullPath,
				ParentID:  parentID,
				CreatedAt: time.Now(),
			}

			if err := s.storage.CreateFolder(folder); err != nil {
				s.logger.Error().Err(err).Str("path", fullPath).Msg("failed to create folder")
				continue
			}
			stats.Folders++

			if err := s.scanDirectory(fullPath, &id, stats); err != nil {
				s.logger.Error().Err(err).Str("path", fullPath).Msg("failed to scan subfolder")
			}
			continue
		}

		item, err := s.addFile(fullPath, folderID, entry)
		if err != nil {
			s.logger.Error().Err(err).Str("path", fullPath).Msg("failed to add media item")
			continue
		}
		if item == nil {
			continue
		}

		mediaCount++
		stats.add(item.Kind, item.Size)
		s.logger.Debug().
			Str("title", item.Title).
			Str("kind", string(item.Kind)).
			Str("size", humanize.Bytes(uint64(item.Size))).
			Msg("added media item")
	}

	if parentID != nil && mediaCount > 0 {
		if err := s.storage.UpdateFolderItemCount(folderID, mediaCount); err != nil {
			s.logger.Error().Err(err).Msg("failed to update folder item count")
		}
	}

	return nil
}

// addFile stores one supported file. It returns nil for unsupported files.
func (s *Scanner) addFile(fullPath, folderID string, entry os.DirEntry) (*storage.MediaItem, error) {
	if strings.HasPrefix(entry.Name(), ".") {
		return nil, nil
	}
	kind, ok := KindOf(entry.Name())
	if !ok {
		return nil, nil
	}

	info, err := entry.Info()
	if err != nil {
		return nil, err
	}

	item := &storage.MediaItem{
		ID:          generateID(fullPath),
		FolderID:    folderID,
		Title:       strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
		Path:        fullPath,
		Kind:        kind,
		ContentType: GetContentType(entry.Name()),
		Size:        info.Size(),
		ModifiedAt:  info.ModTime(),
		CreatedAt:   time.Now(),
	}
	if err := s.storage.CreateMediaItem(item); err != nil {
		return nil, err
	}
	return item, nil
}

func generateID(path string) string {
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}

// CleanupDeletedFiles removes database entries for files that no longer exist
func (s *Scanner) CleanupDeletedFiles() error {
	mediaPaths, err := s.storage.GetAllMediaPaths()
	if err != nil {
		return err
	}

	deletedMedia := 0
	for id, path := range mediaPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := s.storage.DeleteMediaItem(id); err != nil {
				s.logger.Error().Err(err).Str("path", path).Msg("failed to delete media item")
			} else {
				deletedMedia++
				s.logger.Debug().Str("path", path).Msg("deleted missing media item")
			}
		}
	}

	folderPaths, err := s.storage.GetAllFolderPaths()
	if err != nil {
		return err
	}

	deletedFolders := 0
	for id, path := range folderPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := s.storage.DeleteFolder(id); err != nil {
				s.logger.Error().Err(err).Str("path", path).Msg("failed to delete folder")
			} else {
				deletedFolders++
				s.logger.Debug().Str("path", path).Msg("deleted missing folder")
			}
		}
	}

	if deletedMedia > 0 || deletedFolders > 0 {
		s.logger.Info().
			Int("media", deletedMedia).
			Int("folders", deletedFolders).
			Msg("cleanup completed")
	}

	return nil
}
