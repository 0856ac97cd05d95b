package playback

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestConfigNormalize(t *testing.T) {
	cfg := Config{
		SelectedFolders: []string{" A", "B", "", "A "},
		SelectedMusic:   []string{" m1.mp3", ""},
		StartFolder:     " B ",
	}.Normalize()

	if !reflect.DeepEqual(cfg.SelectedFolders, []string{"A", "B"}) {
		t.Errorf("folders = %v, want [A B]", cfg.SelectedFolders)
	}
	if !reflect.DeepEqual(cfg.SelectedMusic, []string{"m1.mp3"}) {
		t.Errorf("music = %v", cfg.SelectedMusic)
	}
	if cfg.StartFolder != "B" {
		t.Errorf("start folder = %q", cfg.StartFolder)
	}
	if cfg.Cadence() != DefaultCadence {
		t.Errorf("cadence = %v, want %v", cfg.Cadence(), DefaultCadence)
	}
	if cfg.WindowSize != DefaultWindowSize {
		t.Errorf("window = %d, want %d", cfg.WindowSize, DefaultWindowSize)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{SelectedFolders: []string{"A"}, CadenceMs: 100, WindowSize: 5}, false},
		{"valid start folder", Config{SelectedFolders: []string{"A", "B"}, StartFolder: "B", CadenceMs: 100, WindowSize: 5}, false},
		{"no folders", Config{CadenceMs: 100, WindowSize: 5}, true},
		{"negative cadence", Config{SelectedFolders: []string{"A"}, CadenceMs: -1, WindowSize: 5}, true},
		{"zero window", Config{SelectedFolders: []string{"A"}, CadenceMs: 100}, true},
		{"unknown start folder", Config{SelectedFolders: []string{"A"}, StartFolder: "C", CadenceMs: 100, WindowSize: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			var cfgErr *ConfigurationError
			if err != nil && !errors.As(err, &cfgErr) {
				t.Errorf("error %T is not a *ConfigurationError", err)
			}
		})
	}
}

func TestConfigSelection(t *testing.T) {
	cfg := Config{
		SelectedFolders: []string{"A", "B"},
		StartFolder:     "B",
		RandomizeImages: true,
		Loop:            true,
		CadenceMs:       250,
	}
	sel := cfg.Selection()
	if !reflect.DeepEqual(sel.Folders, cfg.SelectedFolders) || sel.StartFolder != "B" || !sel.RandomizeImages || !sel.Loop {
		t.Errorf("selection = %+v", sel)
	}
	sel.Folders[0] = "Z"
	if cfg.SelectedFolders[0] != "A" {
		t.Error("selection aliases the config slice")
	}
	if cfg.Cadence() != 250*time.Millisecond {
		t.Errorf("cadence = %v", cfg.Cadence())
	}
}

func TestStateActive(t *testing.T) {
	active := map[State]bool{
		StateIdle:         false,
		StateInitializing: true,
		StatePlaying:      true,
		StatePaused:       true,
		StateTerminating:  true,
		StateTerminated:   false,
	}
	for s, want := range active {
		if s.Active() != want {
			t.Errorf("%s.Active() = %v, want %v", s, s.Active(), want)
		}
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&ConfigurationError{Reason: "x"}, "configuration"},
		{&FetchError{ID: "a", Err: errBoom}, "fetch"},
		{&ResourceAcquisitionError{Kind: ResourceWakeLock, Err: errBoom}, "resource"},
		{&TerminalError{Reason: "x"}, "terminal"},
		{errBoom, "internal"},
	}
	for _, tt := range tests {
		if got := errorKind(tt.err); got != tt.want {
			t.Errorf("errorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}

	p := newErrorPayload(&FetchError{ID: "a2", Err: errBoom})
	if p.ItemID != "a2" || !errors.Is(p.Err, errBoom) {
		t.Errorf("payload = %+v", p)
	}
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	h := newHub()
	ch, cancel := h.subscribe(1)
	defer cancel()

	h.publish(Event{Type: EventItemDisplayed})
	h.publish(Event{Type: EventItemDisplayed})

	if h.dropped() != 1 {
		t.Errorf("dropped = %d, want 1", h.dropped())
	}
	<-ch

	h.close()
	if _, ok := <-ch; ok {
		t.Error("channel open after close")
	}
	cancel()

	late, _ := h.subscribe(1)
	if _, ok := <-late; ok {
		t.Error("subscription on a closed hub is open")
	}
}
