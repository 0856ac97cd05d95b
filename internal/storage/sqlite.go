package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		parent_id TEXT REFERENCES folders(id),
		item_count INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS media_items (
		id TEXT PRIMARY KEY,
		folder_id TEXT DEFAULT '' REFERENCES folders(id),
		title TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		duration INTEGER,
		width INTEGER,
		height INTEGER,
		file_modified_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_media_folder ON media_items(folder_id);
	CREATE INDEX IF NOT EXISTS idx_media_title ON media_items(title);
	CREATE INDEX IF NOT EXISTS idx_media_kind ON media_items(kind);
	CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);

	CREATE TABLE IF NOT EXISTS slideshow_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		selection TEXT NOT NULL,
		item_order TEXT NOT NULL,
		position INTEGER NOT NULL,
		last_seq INTEGER NOT NULL,
		last_id TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		folders TEXT NOT NULL,
		reason TEXT NOT NULL,
		displayed INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_ended ON sessions(ended_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Folders

const folderColumns = `id, name, path, parent_id, item_count, created_at`

func scanFolders(rows *sql.Rows) ([]Folder, error) {
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.Path, &f.ParentID, &f.ItemCount, &f.CreatedAt); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

func (s *SQLiteStorage) GetRootFolders() ([]Folder, error) {
	rows, err := s.db.Query(`SELECT ` + folderColumns + ` FROM folders WHERE parent_id IS NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return scanFolders(rows)
}

func (s *SQLiteStorage) GetSubFolders(parentID string) ([]Folder, error) {
	rows, err := s.db.Query(`SELECT `+folderColumns+` FROM folders WHERE parent_id = ? ORDER BY name`, parentID)
	if err != nil {
		return nil, err
	}
	return scanFolders(rows)
}

// FindFolder resolves a folder by id, falling back to its name. It
// returns nil when nothing matches.
func (s *SQLiteStorage) FindFolder(ref string) (*Folder, error) {
	rows, err := s.db.Query(`
		SELECT `+folderColumns+` FROM folders
		WHERE id = ? OR name = ?
		ORDER BY CASE WHEN id = ? THEN 0 ELSE 1 END, path
		LIMIT 1
	`, ref, ref, ref)
	if err != nil {
		return nil, err
	}
	folders, err := scanFolders(rows)
	if err != nil || len(folders) == 0 {
		return nil, err
	}
	return &folders[0], nil
}

func (s *SQLiteStorage) CreateFolder(f *Folder) error {
	_, err := s.db.Exec(`
		INSERT INTO folders (id, name, path, parent_id, item_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET name = excluded.name
	`, f.ID, f.Name, f.Path, f.ParentID, f.ItemCount, f.CreatedAt)

	return err
}

func (s *SQLiteStorage) UpdateFolderItemCount(id string, count int) error {
	_, err := s.db.Exec("UPDATE folders SET item_count = ? WHERE id = ?", count, id)
	return err
}

// Media Items

const mediaColumns = `id, folder_id, title, path, kind, content_type, size, duration, width, height, file_modified_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMediaItem(row rowScanner) (*MediaItem, error) {
	var m MediaItem
	var modifiedAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.FolderID, &m.Title, &m.Path, &m.Kind, &m.ContentType, &m.Size,
		&m.Duration, &m.Width, &m.Height,
		&modifiedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if modifiedAt.Valid {
		m.ModifiedAt = modifiedAt.Time
	}
	return &m, nil
}

func scanMediaItems(rows *sql.Rows) ([]MediaItem, error) {
	defer rows.Close()

	var items []MediaItem
	for rows.Next() {
		m, err := scanMediaItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *m)
	}
	return items, rows.Err()
}

func (s *SQLiteStorage) GetMediaItem(id string) (*MediaItem, error) {
	m, err := scanMediaItem(s.db.QueryRow(`SELECT `+mediaColumns+` FROM media_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (s *SQLiteStorage) GetMediaItemByPath(path string) (*MediaItem, error) {
	m, err := scanMediaItem(s.db.QueryRow(`SELECT `+mediaColumns+` FROM media_items WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// GetRootMedia returns media items that are in the library root (folder_id is empty)
func (s *SQLiteStorage) GetRootMedia() ([]MediaItem, error) {
	rows, err := s.db.Query(`SELECT ` + mediaColumns + ` FROM media_items WHERE folder_id = '' ORDER BY title`)
	if err != nil {
		return nil, err
	}
	return scanMediaItems(rows)
}

// GetMediaItemsByFolder returns the folder's direct media ordered by title.
// With kinds set only those kinds are returned.
func (s *SQLiteStorage) GetMediaItemsByFolder(folderID string, kinds ...MediaKind) ([]MediaItem, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_items WHERE folder_id = ?`
	args := []any{folderID}
	if len(kinds) > 0 {
		query += ` AND kind IN (?` + strings.Repeat(",?", len(kinds)-1) + `)`
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY title, path`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return scanMediaItems(rows)
}

func (s *SQLiteStorage) CreateMediaItem(m *MediaItem) error {
	_, err := s.db.Exec(`
		INSERT INTO media_items (
			id, folder_id, title, path, kind, content_type, size, duration, width, height,
			file_modified_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			kind = excluded.kind,
			content_type = excluded.content_type,
			size = excluded.size,
			file_modified_at = excluded.file_modified_at,
			updated_at = excluded.updated_at
	`,
		m.ID, m.FolderID, m.Title, m.Path, m.Kind, m.ContentType, m.Size,
		m.Duration, m.Width, m.Height,
		m.ModifiedAt, m.CreatedAt, time.Now(),
	)

	return err
}

// UpdateMediaMetadata stores probed dimensions and, for videos, the
// duration in milliseconds.
func (s *SQLiteStorage) UpdateMediaMetadata(id string, durationMs int64, width, height int) error {
	_, err := s.db.Exec(`
		UPDATE media_items SET
			duration = ?,
			width = ?,
			height = ?,
			updated_at = ?
		WHERE id = ?
	`, durationMs, width, height, time.Now(), id)
	return err
}

// GetMediaItemsWithoutMetadata returns displayable items whose dimensions
// have not been probed yet.
func (s *SQLiteStorage) GetMediaItemsWithoutMetadata(limit int) ([]MediaItem, error) {
	rows, err := s.db.Query(`
		SELECT `+mediaColumns+` FROM media_items
		WHERE width IS NULL AND kind IN ('image', 'video')
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanMediaItems(rows)
}

// CountMedia returns the number of items per kind.
func (s *SQLiteStorage) CountMedia() (map[MediaKind]int, error) {
	rows, err := s.db.Query("SELECT kind, COUNT(*) FROM media_items GROUP BY kind")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[MediaKind]int)
	for rows.Next() {
		var kind MediaKind
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// GetAllMediaPaths returns all media file paths for cleanup
func (s *SQLiteStorage) GetAllMediaPaths() (map[string]string, error) {
	return s.paths("SELECT id, path FROM media_items")
}

// DeleteMediaItem removes a media item by ID
func (s *SQLiteStorage) DeleteMediaItem(id string) error {
	_, err := s.db.Exec("DELETE FROM media_items WHERE id = ?", id)
	return err
}

// GetAllFolderPaths returns all folder paths for cleanup
func (s *SQLiteStorage) GetAllFolderPaths() (map[string]string, error) {
	return s.paths("SELECT id, path FROM folders")
}

// DeleteFolder removes a folder by ID
func (s *SQLiteStorage) DeleteFolder(id string) error {
	_, err := s.db.Exec("DELETE FROM folders WHERE id = ?", id)
	return err
}

func (s *SQLiteStorage) paths(query string) (map[string]string, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	paths := make(map[string]string)
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, err
		}
		paths[id] = path
	}
	return paths, rows.Err()
}

// Slideshow state

func (s *SQLiteStorage) SaveSlideshowState(state *SlideshowState) error {
	order, err := json.Marshal(state.Order)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO slideshow_state (id, selection, item_order, position, last_seq, last_id, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			selection = excluded.selection,
			item_order = excluded.item_order,
			position = excluded.position,
			last_seq = excluded.last_seq,
			last_id = excluded.last_id,
			updated_at = excluded.updated_at
	`, state.Selection, string(order), state.Position, int64(state.LastSeq), state.LastID, time.Now())
	return err
}

// GetSlideshowState returns the stored pointer, or nil after a reset.
func (s *SQLiteStorage) GetSlideshowState() (*SlideshowState, error) {
	row := s.db.QueryRow(`
		SELECT selection, item_order, position, last_seq, last_id, updated_at
		FROM slideshow_state WHERE id = 1
	`)

	var state SlideshowState
	var order string
	var lastSeq int64
	err := row.Scan(&state.Selection, &order, &state.Position, &lastSeq, &state.LastID, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(order), &state.Order); err != nil {
		return nil, fmt.Errorf("decode slideshow order: %w", err)
	}
	state.LastSeq = uint64(lastSeq)

	return &state, nil
}

func (s *SQLiteStorage) ResetSlideshowState() error {
	_, err := s.db.Exec("DELETE FROM slideshow_state")
	return err
}

// Sessions

func (s *SQLiteStorage) SaveSession(r *SessionRecord) error {
	folders, err := json.Marshal(r.Folders)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, folders, reason, displayed, error, created_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			reason = excluded.reason,
			displayed = excluded.displayed,
			error = excluded.error,
			ended_at = excluded.ended_at
	`, r.ID, string(folders), r.Reason, r.Displayed, r.Error, r.CreatedAt, r.EndedAt)
	return err
}

// GetRecentSessions returns finished sessions, newest first.
func (s *SQLiteStorage) GetRecentSessions(limit int) ([]SessionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, folders, reason, displayed, error, created_at, ended_at
		FROM sessions ORDER BY ended_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var folders string
		if err := rows.Scan(&r.ID, &folders, &r.Reason, &r.Displayed, &r.Error, &r.CreatedAt, &r.EndedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(folders), &r.Folders); err != nil {
			return nil, fmt.Errorf("decode session %s folders: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
