// Package slideshow is the in-process media source: it resolves a
// selection into a display order, keeps the persisted playback pointer and
// serves item bytes.
package slideshow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"rvslideshow/internal/cache"
	"rvslideshow/internal/playback"
	"rvslideshow/internal/storage"
)

var (
	ErrNotFound     = errors.New("media not found")
	ErrNotShowable  = errors.New("media is not an image or video")
	ErrInvalidSeq   = errors.New("sequence numbers start at 1")
	displayableKind = []storage.MediaKind{storage.KindImage, storage.KindVideo}
)

// Service implements playback.Source on top of the library database.
type Service struct {
	store  *storage.SQLiteStorage
	cache  *cache.LRUCache
	logger zerolog.Logger

	mu  sync.Mutex // serializes pointer updates and guards rng
	rng *rand.Rand
}

var _ playback.Source = (*Service)(nil)

// NewService builds a source. rng drives randomized ordering; nil seeds
// one from the clock.
func NewService(store *storage.SQLiteStorage, c *cache.LRUCache, rng *rand.Rand, logger zerolog.Logger) *Service {
	if rng == nil {
		now := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(now, now>>17))
	}
	return &Service{
		store:  store,
		cache:  c,
		rng:    rng,
		logger: logger.With().Str("component", "slideshow").Logger(),
	}
}

// ResetSession clears the stored pointer.
func (s *Service) ResetSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ResetSlideshowState(); err != nil {
		return fmt.Errorf("reset slideshow state: %w", err)
	}
	s.logger.Debug().Msg("slideshow pointer reset")
	return nil
}

// List resolves sel into its display order and stores it as the new
// pointer, positioned before the first item.
func (s *Service) List(ctx context.Context, sel playback.Selection) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.rebuildLocked(sel)
	if err != nil {
		return nil, err
	}
	return slices.Clone(state.Order), nil
}

// Next moves the pointer to seq and returns the id there. A repeated seq
// returns the same id; seq past the end yields playback.ErrEndOfSequence
// unless the selection loops.
func (s *Service) Next(ctx context.Context, sel playback.Selection, seq uint64) (string, error) {
	if seq == 0 {
		return "", ErrInvalidSeq
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := selectionKey(sel)
	if err != nil {
		return "", err
	}

	state, err := s.store.GetSlideshowState()
	if err != nil {
		return "", fmt.Errorf("load slideshow state: %w", err)
	}
	if state == nil || state.Selection != key {
		// No List for this selection yet; resolve it now.
		if state, err = s.rebuildLocked(sel); err != nil {
			return "", err
		}
	}

	if seq == state.LastSeq && state.LastID != "" {
		return state.LastID, nil
	}
	if len(state.Order) == 0 {
		return "", playback.ErrEndOfSequence
	}

	pos := int((seq - 1) % uint64(len(state.Order)))
	if seq > uint64(len(state.Order)) && !sel.Loop {
		return "", playback.ErrEndOfSequence
	}

	state.Position = pos
	state.LastSeq = seq
	state.LastID = state.Order[pos]
	if err := s.store.SaveSlideshowState(state); err != nil {
		return "", fmt.Errorf("save slideshow state: %w", err)
	}
	return state.LastID, nil
}

// Fetch loads an item's bytes through the byte cache.
func (s *Service) Fetch(ctx context.Context, id string) (*playback.Media, error) {
	item, err := s.store.GetMediaItem(id)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", id, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if !slices.Contains(displayableKind, item.Kind) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotShowable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, _, err := s.ReadContent(item)
	if err != nil {
		return nil, err
	}

	m := &playback.Media{
		ID:          item.ID,
		Kind:        playback.MediaKind(item.Kind),
		ContentType: item.ContentType,
		Data:        data,
	}
	if item.Duration != nil {
		m.Duration = time.Duration(*item.Duration) * time.Millisecond
	}
	if item.Width != nil && item.Height != nil {
		m.Width, m.Height = *item.Width, *item.Height
	}
	return m, nil
}

// ReadContent returns the file bytes of item, from the cache when
// possible. hit reports whether the cache served them.
func (s *Service) ReadContent(item *storage.MediaItem) (data []byte, hit bool, err error) {
	load := func() ([]byte, error) {
		data, err := os.ReadFile(item.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", item.ID, err)
		}
		return data, nil
	}
	if s.cache == nil {
		data, err := load()
		return data, false, err
	}
	return s.cache.GetOrLoad(item.ID, load)
}

func (s *Service) rebuildLocked(sel playback.Selection) (*storage.SlideshowState, error) {
	key, err := selectionKey(sel)
	if err != nil {
		return nil, err
	}
	order, err := s.buildOrder(sel)
	if err != nil {
		return nil, err
	}

	state := &storage.SlideshowState{
		Selection: key,
		Order:     order,
		Position:  -1,
	}
	if err := s.store.SaveSlideshowState(state); err != nil {
		return nil, fmt.Errorf("save slideshow state: %w", err)
	}

	s.logger.Info().
		Strs("folders", sel.Folders).
		Int("items", len(order)).
		Bool("randomize", sel.RandomizeImages).
		Bool("shuffle_all", sel.ShuffleAll).
		Msg("slideshow order resolved")
	return state, nil
}

// buildOrder concatenates the direct media of each selected folder, start
// folder first. RandomizeImages shuffles within each folder; ShuffleAll
// shuffles the whole list.
func (s *Service) buildOrder(sel playback.Selection) ([]string, error) {
	refs := slices.Clone(sel.Folders)
	if sel.StartFolder != "" {
		if i := slices.Index(refs, sel.StartFolder); i > 0 {
			refs = append([]string{sel.StartFolder}, slices.Delete(refs, i, i+1)...)
		}
	}

	var order []string
	seen := make(map[string]bool)
	for _, ref := range refs {
		folder, err := s.store.FindFolder(ref)
		if err != nil {
			return nil, fmt.Errorf("resolve folder %q: %w", ref, err)
		}
		if folder == nil {
			s.logger.Warn().Str("folder", ref).Msg("selected folder not found, skipping")
			continue
		}
		if seen[folder.ID] {
			continue
		}
		seen[folder.ID] = true

		items, err := s.store.GetMediaItemsByFolder(folder.ID, displayableKind...)
		if err != nil {
			return nil, fmt.Errorf("list folder %q: %w", ref, err)
		}
		ids := lo.Map(items, func(m storage.MediaItem, _ int) string { return m.ID })
		if sel.RandomizeImages && !sel.ShuffleAll {
			s.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		}
		order = append(order, ids...)
	}

	if sel.ShuffleAll {
		s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	if order == nil {
		order = []string{}
	}
	return order, nil
}

func selectionKey(sel playback.Selection) (string, error) {
	b, err := json.Marshal(sel)
	if err != nil {
		return "", fmt.Errorf("encode selection: %w", err)
	}
	return string(b), nil
}
