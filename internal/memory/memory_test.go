package memory

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"chronicle/internal/config"
	"chronicle/internal/digest"
	"chronicle/internal/store"
	"chronicle/internal/store/bolt"
	"chronicle/internal/store/sqlite"
)

func bakerStreet() *config.Pack {
	return &config.Pack{
		ID:        "baker-street",
		Character: "Holmes",
		Title:     "A Study in Scarlet",
		Setting:   "London",
		Cast: []config.CastMember{
			{Name: "Watson", Role: "supporting"},
			{Name: "Mrs. Hudson", Role: "npc"},
		},
	}
}

func sqliteOpener(ctx context.Context) (store.Store, error) {
	return sqlite.New(ctx, "sqlite://:memory:", nil)
}

func newSystem(t *testing.T, open store.Opener, opts Options) *System {
	t.Helper()
	sys := New(store.NewHandle(open, nil), nil, opts)
	t.Cleanup(func() { sys.Close(context.Background()) })
	return sys
}

func startStory(t *testing.T, sys *System) string {
	t.Helper()
	res, err := sys.InitializeStory(context.Background(), bakerStreet())
	if err != nil {
		t.Fatalf("initialize story: %v", err)
	}
	if !res.MemoryInitialized || res.SessionID == "" {
		t.Fatalf("expected initialized session, got %+v", res)
	}
	return res.SessionID
}

func TestInitializeStory(t *testing.T) {
	sys := newSystem(t, sqliteOpener, Options{})
	ctx := context.Background()

	res, err := sys.InitializeStory(ctx, bakerStreet())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !slices.Equal(res.Characters, []string{"Holmes", "Watson", "Mrs. Hudson"}) {
		t.Fatalf("unexpected characters %v", res.Characters)
	}
	session, ok := sys.Session()
	if !ok || session.ID != res.SessionID || session.Metadata["setting"] != "London" {
		t.Fatalf("expected active session with pack metadata, got %+v", session)
	}

	sc, err := sys.GetStoryContext(ctx, digest.Options{})
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	for _, want := range []string{digest.Header, "CRITICAL EVENTS:\n- none recorded yet", "CHARACTER STATES:", "Watson: alive", "Mrs. Hudson: alive"} {
		if !strings.Contains(sc.FormattedContext, want) {
			t.Fatalf("zero-event digest missing %q:\n%s", want, sc.FormattedContext)
		}
	}
	if strings.Contains(sc.FormattedContext, "REMINDER") || strings.Contains(sc.FormattedContext, "RECENT EVENTS") {
		t.Fatalf("zero-event digest has extra sections:\n%s", sc.FormattedContext)
	}
	if sc.Degraded {
		t.Fatal("unexpected degraded context")
	}
}

func TestRecordLestrade(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			sys := newSystem(t, b.open(t), Options{})
			ctx := context.Background()
			startStory(t, sys)

			rec, err := sys.RecordMemory(ctx, Proposal{
				Description: "The assassin kills Lestrade in the alley",
				Scene:       4,
				Characters:  []Participant{{Name: "Lestrade"}},
			})
			if err != nil {
				t.Fatalf("record: %v", err)
			}
			if rec.Degraded || rec.EventID == "" {
				t.Fatalf("unexpected result %+v", rec)
			}
			if rec.Type != store.EventCharacterDeath || rec.Importance != store.ImportanceCritical {
				t.Fatalf("expected critical death, got %s/%s", rec.Type, rec.Importance)
			}
			if !slices.Equal(rec.Deaths, []string{"Lestrade"}) {
				t.Fatalf("expected Lestrade dead, got %v", rec.Deaths)
			}

			sc, err := sys.GetStoryContext(ctx, digest.Options{})
			if err != nil {
				t.Fatalf("context: %v", err)
			}
			if !strings.Contains(sc.FormattedContext, "Lestrade: DEAD - CANNOT INTERACT OR SPEAK") {
				t.Fatalf("digest missing dead annotation:\n%s", sc.FormattedContext)
			}
			if !strings.Contains(sc.FormattedContext, "Available to interact: Watson, Mrs. Hudson") {
				t.Fatalf("dead characters must not be interaction targets:\n%s", sc.FormattedContext)
			}
			var lestrade *store.Character
			for i := range sc.Characters {
				if sc.Characters[i].Name == "Lestrade" {
					lestrade = &sc.Characters[i]
				}
			}
			if lestrade == nil || lestrade.State != store.StateDead || lestrade.LastSeenScene != 4 {
				t.Fatalf("expected Lestrade dead at scene 4, got %+v", lestrade)
			}

			session, _ := sys.Session()
			if session.CurrentScene != 4 || session.DecisionCount != 1 {
				t.Fatalf("expected session advanced to scene 4, got %d/%d", session.CurrentScene, session.DecisionCount)
			}

			rec, err = sys.RecordMemory(ctx, Proposal{
				Description: "Lestrade strolls into Baker Street",
				Scene:       5,
				Characters:  []Participant{{Name: "Lestrade", State: store.StateAlive}},
			})
			if err != nil {
				t.Fatalf("record: %v", err)
			}
			if !slices.Equal(rec.Rejected, []string{"Lestrade"}) {
				t.Fatalf("expected revival rejected, got %+v", rec)
			}
		})
	}
}

func TestRecordHonorificDeath(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			sys := newSystem(t, b.open(t), Options{})
			ctx := context.Background()
			startStory(t, sys)

			rec, err := sys.RecordMemory(ctx, Proposal{
				Description: "The assassin kills Mrs. Hudson in the hall",
				Scene:       4,
				Characters:  []Participant{{Name: "Mrs. Hudson"}},
			})
			if err != nil {
				t.Fatalf("record: %v", err)
			}
			if !slices.Equal(rec.Deaths, []string{"Mrs. Hudson"}) {
				t.Fatalf("expected Mrs. Hudson dead, got %v", rec.Deaths)
			}

			sc, err := sys.GetStoryContext(ctx, digest.Options{})
			if err != nil {
				t.Fatalf("context: %v", err)
			}
			if !strings.Contains(sc.FormattedContext, "Mrs. Hudson: DEAD - CANNOT INTERACT OR SPEAK") {
				t.Fatalf("digest missing dead annotation:\n%s", sc.FormattedContext)
			}
			if strings.Contains(sc.FormattedContext, "Mrs. Hudson: alive") {
				t.Fatalf("digest still shows Mrs. Hudson alive:\n%s", sc.FormattedContext)
			}
			for _, line := range strings.Split(sc.FormattedContext, "\n") {
				if strings.HasPrefix(line, "Available to interact:") && strings.Contains(line, "Hudson") {
					t.Fatalf("dead character offered for interaction: %q", line)
				}
			}
		})
	}
}

func TestRecordRelationships(t *testing.T) {
	sys := newSystem(t, sqliteOpener, Options{})
	ctx := context.Background()
	startStory(t, sys)

	for scene, trust := range []int{5, 3} {
		_, err := sys.RecordMemory(ctx, Proposal{
			Description: "Holmes and Watson review the case",
			Scene:       scene + 1,
			Characters:  []Participant{{Name: "Watson", Relationship: store.RelationshipDelta{Trust: trust}}},
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	sc, err := sys.GetStoryContext(ctx, digest.Options{})
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if len(sc.Relationships) != 1 {
		t.Fatalf("expected one relationship, got %+v", sc.Relationships)
	}
	r := sc.Relationships[0]
	if r.Trust != store.BaselineTrust+8 || r.InteractionCount != 2 || r.LastInteractionScene != 2 {
		t.Fatalf("unexpected relationship %+v", r)
	}
	if !strings.Contains(sc.FormattedContext, "KEY RELATIONSHIPS:") {
		t.Fatalf("expected relationship section:\n%s", sc.FormattedContext)
	}
}

func TestRosterWitnesses(t *testing.T) {
	sys := newSystem(t, sqliteOpener, Options{Roster: []string{"Moriarty"}})
	ctx := context.Background()
	startStory(t, sys)

	rec, err := sys.RecordMemory(ctx, Proposal{Description: "Moriarty and Watson fight on the bridge"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !slices.Equal(rec.Witnesses, []string{"Moriarty", "Watson"}) {
		t.Fatalf("expected roster witnesses, got %v", rec.Witnesses)
	}
	if rec.Type != store.EventConflict || rec.Importance != store.ImportanceHigh {
		t.Fatalf("expected elevated conflict, got %s/%s", rec.Type, rec.Importance)
	}
}

func TestSessionLifecycle(t *testing.T) {
	sys := newSystem(t, sqliteOpener, Options{Retention: time.Hour})
	ctx := context.Background()
	id := startStory(t, sys)

	if ok, err := sys.LoadStoryMemory(ctx, "999999"); err != nil || ok {
		t.Fatalf("expected missing session to load false, got %v/%v", ok, err)
	}
	if ok, err := sys.SaveStoryMemory(ctx); err != nil || !ok {
		t.Fatalf("save: %v/%v", ok, err)
	}

	stats, err := sys.GetMemoryStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.SessionID != id || stats.Backend != "sqlite" || stats.Characters != 3 || stats.Events != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if ok, err := sys.DeleteStoryMemory(ctx, id); err != nil || !ok {
		t.Fatalf("delete: %v/%v", ok, err)
	}
	if _, ok := sys.Session(); ok {
		t.Fatal("deleting the active session should clear it")
	}
	if ok, _ := sys.LoadStoryMemory(ctx, id); ok {
		t.Fatal("retired sessions must not load")
	}
	if _, err := sys.RecordMemory(ctx, Proposal{Description: "nothing"}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	if n, err := sys.Sweep(ctx, 0); err != nil || n != 0 {
		t.Fatalf("fresh retirements survive a sweep, got %d/%v", n, err)
	}
	sys.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if n, err := sys.Sweep(ctx, 0); err != nil || n != 1 {
		t.Fatalf("expected one swept session, got %d/%v", n, err)
	}
}

func TestStorageUnavailable(t *testing.T) {
	boom := errors.New("disk on fire")
	sys := newSystem(t, func(ctx context.Context) (store.Store, error) { return nil, boom }, Options{})
	ctx := context.Background()

	_, err := sys.InitializeStory(ctx, bakerStreet())
	if !errors.Is(err, store.ErrStorageUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if _, err := sys.GetStoryContext(ctx, digest.Options{}); !errors.Is(err, store.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
}

// flakyStore fails selected reads to exercise degraded results.
type flakyStore struct {
	store.Store
	failCritical bool
}

func (f *flakyStore) GetCriticalEvents(ctx context.Context, sessionID string) ([]store.Event, error) {
	if f.failCritical {
		return nil, errors.New("critical index corrupted")
	}
	return f.Store.GetCriticalEvents(ctx, sessionID)
}

func TestDegradedContext(t *testing.T) {
	flaky := &flakyStore{}
	sys := newSystem(t, func(ctx context.Context) (store.Store, error) {
		st, err := sqliteOpener(ctx)
		if err != nil {
			return nil, err
		}
		flaky.Store = st
		return flaky, nil
	}, Options{})
	ctx := context.Background()
	startStory(t, sys)
	if _, err := sys.RecordMemory(ctx, Proposal{Description: "Watson discovers a hidden letter"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	flaky.failCritical = true
	sc, err := sys.GetStoryContext(ctx, digest.Options{})
	if err != nil {
		t.Fatalf("degraded reads are not errors: %v", err)
	}
	if !sc.Degraded {
		t.Fatal("expected degraded context")
	}
	if !strings.Contains(sc.FormattedContext, "RECENT EVENTS:") || len(sc.KeyEvents) != 0 {
		t.Fatalf("expected partial digest:\n%s", sc.FormattedContext)
	}
}

func TestAdvance(t *testing.T) {
	sys := newSystem(t, sqliteOpener, Options{})
	ctx := context.Background()
	startStory(t, sys)

	var seen string
	gen := GeneratorFunc(func(ctx context.Context, digestText, action string) (SceneResult, error) {
		seen = digestText
		return SceneResult{
			Title:     "The Reichenbach Falls",
			Narration: "Moran is killed at the falls while Watson watches",
			Victims:   []string{"Moran"},
			Characters: []SceneCharacter{
				{Name: "Moran"},
				{Name: "Watson", Relationship: store.RelationshipDelta{Affection: 10}},
			},
		}, nil
	})

	turn, err := sys.Advance(ctx, gen, "I confront Moran")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !strings.HasPrefix(seen, digest.Header) {
		t.Fatalf("generator should receive the digest, got %q", seen)
	}
	if turn.Scene != 1 || turn.Recorded.EventID == "" {
		t.Fatalf("unexpected turn %+v", turn)
	}
	if !slices.Equal(turn.Recorded.Deaths, []string{"Moran"}) {
		t.Fatalf("expected Moran dead, got %v", turn.Recorded.Deaths)
	}

	turn, err = sys.Advance(ctx, gen, "I look around")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if turn.Scene != 2 || !strings.Contains(turn.Context.FormattedContext, "Moran: DEAD - CANNOT INTERACT OR SPEAK") {
		t.Fatalf("second turn should see the death:\n%s", turn.Context.FormattedContext)
	}

	failing := GeneratorFunc(func(context.Context, string, string) (SceneResult, error) {
		return SceneResult{}, errors.New("model offline")
	})
	if _, err := sys.Advance(ctx, failing, "wait"); err == nil {
		t.Fatal("expected generation error")
	}
}

type backend struct {
	name string
	open func(t *testing.T) store.Opener
}

func backends() []backend {
	return []backend{
		{name: "sqlite", open: func(*testing.T) store.Opener { return sqliteOpener }},
		{name: "bolt", open: func(t *testing.T) store.Opener {
			path := filepath.Join(t.TempDir(), "chronicle.db")
			return func(ctx context.Context) (store.Store, error) { return bolt.Open(path, nil) }
		}},
	}
}
