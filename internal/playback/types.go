package playback

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultCadence    = 5 * time.Second
	DefaultWindowSize = 20
)

// State is the lifecycle state of a playback session.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StatePlaying      State = "playing"
	StatePaused       State = "paused"
	StateTerminating  State = "terminating"
	StateTerminated   State = "terminated"
)

// Active reports whether a session in this state still owns resources.
func (s State) Active() bool {
	return s != StateIdle && s != StateTerminated
}

type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// ItemStatus is the fetch status of an entry in the prefetch window.
type ItemStatus string

const (
	StatusPending ItemStatus = "pending"
	StatusLoaded  ItemStatus = "loaded"
	StatusFailed  ItemStatus = "failed"
)

// Media is a fetched media item ready to be presented.
type Media struct {
	ID          string
	Kind        MediaKind
	ContentType string
	Data        []byte
	Duration    time.Duration // zero when unknown or still image
	Width       int
	Height      int
}

// Selection is the part of a session configuration the media source
// needs to resolve an ordered identifier list.
type Selection struct {
	Folders         []string `json:"folders"`
	StartFolder     string   `json:"start_folder,omitempty"`
	RandomizeImages bool     `json:"randomize_images"`
	ShuffleAll      bool     `json:"shuffle_all"`
	Loop            bool     `json:"loop"`
}

// Config describes one playback session.
type Config struct {
	SelectedFolders      []string `json:"selected_folders" yaml:"selected_folders"`
	StartFolder          string   `json:"start_folder,omitempty" yaml:"start_folder"`
	RandomizeImages      bool     `json:"randomize_images" yaml:"randomize_images"`
	ShuffleAll           bool     `json:"shuffle_all" yaml:"shuffle_all"`
	CadenceMs            int      `json:"cadence_ms" yaml:"cadence_ms"`
	SelectedMusic        []string `json:"selected_music,omitempty" yaml:"selected_music"`
	RandomizeMusic       bool     `json:"randomize_music" yaml:"randomize_music"`
	MuteMusicDuringVideo bool     `json:"mute_music_during_video" yaml:"mute_music_during_video"`
	Loop                 bool     `json:"loop" yaml:"loop"`
	WindowSize           int      `json:"window_size,omitempty" yaml:"window_size"`
}

// Normalize trims and de-duplicates the folder and music selections and
// fills zero values with defaults. Negative values are kept so Validate
// can reject them.
func (c Config) Normalize() Config {
	clean := func(in []string) []string {
		out := lo.Map(in, func(s string, _ int) string { return strings.TrimSpace(s) })
		return lo.Uniq(lo.Compact(out))
	}

	c.SelectedFolders = clean(c.SelectedFolders)
	c.SelectedMusic = lo.Compact(lo.Map(c.SelectedMusic, func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
	c.StartFolder = strings.TrimSpace(c.StartFolder)

	if c.CadenceMs == 0 {
		c.CadenceMs = int(DefaultCadence / time.Millisecond)
	}
	if c.WindowSize == 0 {
		c.WindowSize = DefaultWindowSize
	}
	return c
}

// Validate returns a *ConfigurationError when the configuration cannot
// start a session.
func (c Config) Validate() error {
	if len(c.SelectedFolders) == 0 {
		return &ConfigurationError{Reason: "folder selection is empty"}
	}
	if c.CadenceMs <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("cadence must be positive, got %dms", c.CadenceMs)}
	}
	if c.WindowSize <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("window size must be positive, got %d", c.WindowSize)}
	}
	if c.StartFolder != "" && !lo.Contains(c.SelectedFolders, c.StartFolder) {
		return &ConfigurationError{Reason: fmt.Sprintf("start folder %q is not selected", c.StartFolder)}
	}
	return nil
}

func (c Config) Cadence() time.Duration {
	return time.Duration(c.CadenceMs) * time.Millisecond
}

func (c Config) Selection() Selection {
	return Selection{
		Folders:         append([]string(nil), c.SelectedFolders...),
		StartFolder:     c.StartFolder,
		RandomizeImages: c.RandomizeImages,
		ShuffleAll:      c.ShuffleAll,
		Loop:            c.Loop,
	}
}
