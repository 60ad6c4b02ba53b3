package gateway

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/escaperoom/go/internal/game/session"
)

// recordingStore captures the calls the command handler makes
type recordingStore struct {
	calls []string
	args  []interface{}
}

func (r *recordingStore) record(name string, arg interface{}) session.Snapshot {
	r.calls = append(r.calls, name)
	r.args = append(r.args, arg)
	return session.Snapshot{}
}

func (r *recordingStore) Snapshot() session.Snapshot { return session.Snapshot{} }
func (r *recordingStore) Start(d int) session.Snapshot {
	return r.record("start", d)
}
func (r *recordingStore) Pause() session.Snapshot  { return r.record("pause", nil) }
func (r *recordingStore) Resume() session.Snapshot { return r.record("resume", nil) }
func (r *recordingStore) AddTime(d int) session.Snapshot {
	return r.record("addTime", d)
}
func (r *recordingStore) End(success bool) session.Snapshot {
	return r.record("end", success)
}
func (r *recordingStore) Reset() session.Snapshot { return r.record("reset", nil) }
func (r *recordingStore) PostClue(msg string) (session.Clue, error) {
	r.record("postClue", msg)
	return session.Clue{}, nil
}
func (r *recordingStore) DeleteClue(id string) session.Snapshot {
	return r.record("deleteClue", id)
}
func (r *recordingStore) SetDisplaySettings(u session.DisplaySettingsUpdate) session.Snapshot {
	return r.record("display", u)
}

func intPtr(v int) *int { return &v }

func TestCommandHandler_Dispatch(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantCall string
		wantArg  interface{}
	}{
		{"start", `{"type":"startGame","data":{"durationSeconds":1800}}`, "start", 1800},
		{"start legacy duration", `{"type":"startGame","data":{"duration":900}}`, "start", 900},
		{"start prefers durationSeconds", `{"type":"startGame","data":{"durationSeconds":60,"duration":900}}`, "start", 60},
		{"pause", `{"type":"pauseGame"}`, "pause", nil},
		{"resume", `{"type":"resumeGame","data":{}}`, "resume", nil},
		{"add time", `{"type":"addTime","data":{"seconds":300}}`, "addTime", 300},
		{"remove time", `{"type":"addTime","data":{"seconds":-60}}`, "addTime", -60},
		{"reset", `{"type":"resetGame"}`, "reset", nil},
		{"end success", `{"type":"endGame","data":{"success":true}}`, "end", true},
		{"end without data", `{"type":"endGame"}`, "end", false},
		{"send clue", `{"type":"sendClue","data":{"message":"Look under the rug"}}`, "postClue", "Look under the rug"},
		{"delete clue", `{"type":"deleteClue","data":{"clueId":"abc"}}`, "deleteClue", "abc"},
		{
			"display settings",
			`{"type":"updateDisplaySettings","data":{"fontSize":120}}`,
			"display",
			session.DisplaySettingsUpdate{FontSize: intPtr(120)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &recordingStore{}
			h := NewCommandHandler(store)

			if err := h.HandleRaw([]byte(tt.frame)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if diff := cmp.Diff([]string{tt.wantCall}, store.calls); diff != "" {
				t.Fatalf("calls (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantArg, store.args[0]); diff != "" {
				t.Errorf("argument (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCommandHandler_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{"not json", `startGame`, ErrMalformedPayload},
		{"unknown type", `{"type":"openDoor"}`, ErrUnknownEvent},
		{"gameState from client", `{"type":"gameState","data":{}}`, ErrUnknownEvent},
		{"start without duration", `{"type":"startGame","data":{}}`, ErrMalformedPayload},
		{"start with string duration", `{"type":"startGame","data":{"durationSeconds":"ten"}}`, ErrMalformedPayload},
		{"add time without data", `{"type":"addTime"}`, ErrMalformedPayload},
		{"add time without seconds", `{"type":"addTime","data":{}}`, ErrMalformedPayload},
		{"delete without id", `{"type":"deleteClue","data":{}}`, ErrMalformedPayload},
		{"clue without data", `{"type":"sendClue"}`, ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &recordingStore{}
			err := NewCommandHandler(store).HandleRaw([]byte(tt.frame))

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if len(store.calls) != 0 {
				t.Errorf("store should not be touched, got %v", store.calls)
			}
		})
	}
}

func TestCommandHandler_EmptyClueLeavesSessionUnchanged(t *testing.T) {
	store := session.NewStore(session.Options{Clock: clockwork.NewFakeClock()})
	before := store.Snapshot()

	err := NewCommandHandler(store).HandleRaw([]byte(`{"type":"sendClue","data":{"message":"   "}}`))
	if !errors.Is(err, session.ErrEmptyClueMessage) {
		t.Fatalf("expected ErrEmptyClueMessage, got %v", err)
	}

	if diff := cmp.Diff(before, store.Snapshot()); diff != "" {
		t.Errorf("session changed (-before +after):\n%s", diff)
	}
}
