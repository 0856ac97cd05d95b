package storage

import "time"

type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"-"`
	ParentID  *string   `json:"-"` // Internal use only
	ItemCount int       `json:"item_count"`
	CreatedAt time.Time `json:"-"`
}

type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
)

type MediaItem struct {
	ID          string    `json:"id"`
	FolderID    string    `json:"folder_id"`
	Title       string    `json:"title"`
	Path        string    `json:"-"`
	Kind        MediaKind `json:"kind"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Duration    *int64    `json:"duration_ms,omitempty"` // Milliseconds, videos only
	Width       *int      `json:"width,omitempty"`
	Height      *int      `json:"height,omitempty"`
	ModifiedAt  time.Time `json:"-"`
	CreatedAt   time.Time `json:"-"`
}

// SlideshowState is the persisted playback pointer of the source. There
// is a single row; ResetSlideshowState clears it.
type SlideshowState struct {
	Selection string    `json:"selection"` // JSON-encoded selection the order was built for
	Order     []string  `json:"order"`
	Position  int       `json:"position"` // index into Order of the last returned id, -1 before the first
	LastSeq   uint64    `json:"last_seq"`
	LastID    string    `json:"last_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionRecord is one finished engine session.
type SessionRecord struct {
	ID        string    `json:"id"`
	Folders   []string  `json:"folders"`
	CreatedAt time.Time `json:"created_at"`
	EndedAt   time.Time `json:"ended_at"`
	Reason    string    `json:"reason"`
	Displayed int       `json:"displayed"`
	Error     string    `json:"error,omitempty"`
}
