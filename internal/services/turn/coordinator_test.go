package turn

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KirkDiggler/doodle/internal/common/clock"
	clockMocks "github.com/KirkDiggler/doodle/internal/common/clock/mocks"
	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/KirkDiggler/doodle/internal/repositories/store"
	storeMocks "github.com/KirkDiggler/doodle/internal/repositories/store/mocks"
	"github.com/KirkDiggler/doodle/internal/services/messaging"
	"github.com/KirkDiggler/doodle/internal/services/session"
	wordMocks "github.com/KirkDiggler/doodle/internal/words/mocks"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type fakeTimer struct {
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeResetter struct {
	mu     sync.Mutex
	resets int
	err    error
}

func (r *fakeResetter) Reset(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	return r.err
}

type fakeView struct {
	mu       sync.Mutex
	statuses []Status
}

func (v *fakeView) ShowStatus(status Status) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statuses = append(v.statuses, status)
}

func (v *fakeView) last() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.statuses) == 0 {
		return Status{}
	}
	return v.statuses[len(v.statuses)-1]
}

type fakeRoster struct {
	renders int
}

func (r *fakeRoster) Render() {
	r.renders++
}

type fakeAnnouncer struct {
	mu   sync.Mutex
	wins []models.Session
}

func (a *fakeAnnouncer) AnnounceWin(_ context.Context, sess models.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.wins = append(a.wins, sess)
}

type CoordinatorTestSuite struct {
	suite.Suite
	mockCtrl   *gomock.Controller
	mockStore  *storeMocks.MockStore
	mockSub    *storeMocks.MockSubscription
	mockPicker *wordMocks.MockPicker
	mockClock  *clockMocks.MockClock
	state      *session.State
	canvas     *fakeResetter
	view       *fakeView
	roster     *fakeRoster
	announcer  *fakeAnnouncer
	coord      *Coordinator
	ctx        context.Context

	testKey  string
	testTime time.Time
	timer    *fakeTimer
}

func (s *CoordinatorTestSuite) SetupTest() {
	s.mockCtrl = gomock.NewController(s.T())
	s.mockStore = storeMocks.NewMockStore(s.mockCtrl)
	s.mockSub = storeMocks.NewMockSubscription(s.mockCtrl)
	s.mockPicker = wordMocks.NewMockPicker(s.mockCtrl)
	s.mockClock = clockMocks.NewMockClock(s.mockCtrl)
	s.ctx = context.Background()

	s.testKey = "test-room:gameState"
	s.testTime = time.Date(2025, 4, 19, 12, 0, 0, 0, time.UTC)
	s.timer = &fakeTimer{}

	s.state = session.New("user-a", "Alice")
	s.canvas = &fakeResetter{}
	s.view = &fakeView{}
	s.roster = &fakeRoster{}
	s.announcer = &fakeAnnouncer{}

	msgService, err := messaging.NewService(&messaging.ServiceConfig{Seed: 1})
	s.Require().NoError(err)

	coord, err := New(&Config{
		Store:     s.mockStore,
		State:     s.state,
		Key:       s.testKey,
		Picker:    s.mockPicker,
		Clock:     s.mockClock,
		Messaging: msgService,
		Canvas:    s.canvas,
		View:      s.view,
		Roster:    s.roster,
		Announcer: s.announcer,
	})
	s.Require().NoError(err)
	s.coord = coord
}

func (s *CoordinatorTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

func TestCoordinatorTestSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func (s *CoordinatorTestSuite) addPlayers(ids ...string) {
	for _, id := range ids {
		s.state.AddPlayer(models.Player{UserID: id, Username: "name-" + id})
	}
}

func (s *CoordinatorTestSuite) encode(sess models.Session) []byte {
	data, err := json.Marshal(sess)
	s.Require().NoError(err)
	return data
}

func (s *CoordinatorTestSuite) decode(data []byte) models.Session {
	var sess models.Session
	s.Require().NoError(json.Unmarshal(data, &sess))
	return sess
}

// expectSubscribe captures the session handler
func (s *CoordinatorTestSuite) expectSubscribe() *store.Handler {
	var handler store.Handler
	s.mockStore.EXPECT().
		On(s.ctx, s.testKey, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, h store.Handler) (store.Subscription, error) {
			handler = h
			return s.mockSub, nil
		})
	return &handler
}

// expectTimer captures the bootstrap callback
func (s *CoordinatorTestSuite) expectTimer() *func() {
	var fire func()
	s.mockClock.EXPECT().
		AfterFunc(DefaultBootstrapDelay, gomock.Any()).
		DoAndReturn(func(_ time.Duration, f func()) clock.Timer {
			fire = f
			return s.timer
		})
	return &fire
}

func (s *CoordinatorTestSuite) TestNewValidatesConfig() {
	_, err := New(nil)
	s.ErrorIs(err, ErrNilConfig)

	_, err = New(&Config{})
	s.ErrorIs(err, ErrNilStore)

	_, err = New(&Config{Store: s.mockStore, State: s.state})
	s.ErrorIs(err, ErrNilPicker)
}

func (s *CoordinatorTestSuite) TestPhaseBeforeStart() {
	s.Equal(PhaseUninitialized, s.coord.Phase())
}

func (s *CoordinatorTestSuite) TestStartAdoptsExistingSession() {
	s.addPlayers("user-a", "user-b")
	existing := models.Session{
		CurrentDrawer: "user-b",
		CurrentWord:   "moon",
		Round:         4,
		Version:       7,
		StartedAt:     s.testTime,
	}

	s.expectSubscribe()
	s.mockStore.EXPECT().Get(s.ctx, s.testKey).Return(s.encode(existing), nil)
	s.expectTimer()

	err := s.coord.Start(s.ctx)
	s.Require().NoError(err)

	s.Equal(existing, s.state.Session())
	s.Equal(PhaseRoundInProgress, s.coord.Phase())

	status := s.view.last()
	s.True(status.Started)
	s.False(status.Drawing)
	s.Equal("name-user-b", status.DrawerName)
	s.Empty(status.Word)
	s.Equal("name-user-b is drawing!", status.Message)
	s.NotZero(s.roster.renders)
}

func (s *CoordinatorTestSuite) TestStartElectsSelfWhenRoomIsEmpty() {
	s.expectSubscribe()
	s.mockStore.EXPECT().Get(s.ctx, s.testKey).Return(nil, store.ErrNotFound)
	s.mockPicker.EXPECT().Pick().Return("cat")
	s.mockClock.EXPECT().Now().Return(s.testTime)
	s.mockStore.EXPECT().
		PutVersioned(s.ctx, s.testKey, int64(0), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ int64, value []byte) (bool, error) {
			sess := s.decode(value)
			s.Equal("user-a", sess.CurrentDrawer)
			s.Equal("cat", sess.CurrentWord)
			s.Equal(int64(1), sess.Version)
			s.Equal(1, sess.Round)
			return true, nil
		})
	s.expectTimer()

	err := s.coord.Start(s.ctx)
	s.Require().NoError(err)

	s.True(s.state.IsLocalUserDrawing())
	s.Equal(PhaseRoundInProgress, s.coord.Phase())

	status := s.view.last()
	s.True(status.Drawing)
	s.Equal("cat", status.Word)
	s.Equal("Your turn to draw! The word is: cat", status.Message)
}

func (s *CoordinatorTestSuite) TestStartLosingElectionIsNotAnError() {
	handler := s.expectSubscribe()
	s.mockStore.EXPECT().Get(s.ctx, s.testKey).Return(nil, store.ErrNotFound)
	s.mockPicker.EXPECT().Pick().Return("cat")
	s.mockClock.EXPECT().Now().Return(s.testTime)
	s.mockStore.EXPECT().PutVersioned(s.ctx, s.testKey, int64(0), gomock.Any()).Return(false, nil)
	s.expectTimer()

	err := s.coord.Start(s.ctx)
	s.Require().NoError(err)

	s.Equal(PhaseAwaitingFirstDrawer, s.coord.Phase())
	s.False(s.view.last().Started)

	// The winner arrives through the subscription
	s.addPlayers("user-b")
	(*handler)(s.encode(models.Session{CurrentDrawer: "user-b", CurrentWord: "tree", Round: 1, Version: 1}))
	s.Equal("user-b", s.state.CurrentDrawer())
	s.Equal(PhaseRoundInProgress, s.coord.Phase())
}

func (s *CoordinatorTestSuite) TestStartTwiceFails() {
	s.expectSubscribe()
	s.mockStore.EXPECT().Get(s.ctx, s.testKey).Return(s.encode(models.Session{Version: 1}), nil)
	s.expectTimer()

	s.Require().NoError(s.coord.Start(s.ctx))
	s.ErrorIs(s.coord.Start(s.ctx), ErrAlreadyStarted)
}

func (s *CoordinatorTestSuite) TestStartSubscribeError() {
	s.mockStore.EXPECT().
		On(s.ctx, s.testKey, gomock.Any()).
		Return(nil, errors.New("connection refused"))

	err := s.coord.Start(s.ctx)
	s.Error(err)
	s.Contains(err.Error(), "connection refused")
}

func (s *CoordinatorTestSuite) TestBootstrapStartsRoundWhenNoDrawer() {
	s.expectSubscribe()
	s.mockStore.EXPECT().Get(s.ctx, s.testKey).Return(s.encode(models.Session{Version: 1}), nil)
	fire := s.expectTimer()

	s.Require().NoError(s.coord.Start(s.ctx))
	s.Require().NotNil(*fire)

	s.addPlayers("user-b", "user-a")

	s.mockPicker.EXPECT().Pick().Return("fish")
	s.mockClock.EXPECT().Now().Return(s.testTime)
	s.mockStore.EXPECT().
		PutVersioned(s.ctx, s.testKey, int64(1), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ int64, value []byte) (bool, error) {
			sess := s.decode(value)
			s.Equal("user-b", sess.CurrentDrawer)
			s.Equal(int64(2), sess.Version)
			return true, nil
		})

	(*fire)()

	s.Equal("user-b", s.state.CurrentDrawer())
	s.Equal(1, s.canvas.resets)
}

func (s *CoordinatorTestSuite) TestBootstrapSkippedWithoutPlayers() {
	s.expectSubscribe()
	s.mockStore.EXPECT().Get(s.ctx, s.testKey).Return(s.encode(models.Session{Version: 1}), nil)
	fire := s.expectTimer()

	s.Require().NoError(s.coord.Start(s.ctx))

	// No PutVersioned expected
	(*fire)()
	s.Equal(PhaseAwaitingFirstDrawer, s.coord.Phase())
}

func (s *CoordinatorTestSuite) TestBootstrapSkippedWhenDrawerKnown() {
	s.addPlayers("user-a", "user-b")
	s.expectSubscribe()
	s.mockStore.EXPECT().Get(s.ctx, s.testKey).
		Return(s.encode(models.Session{CurrentDrawer: "user-b", CurrentWord: "sun", Round: 1, Version: 1}), nil)
	fire := s.expectTimer()

	s.Require().NoError(s.coord.Start(s.ctx))

	(*fire)()
	s.Equal("user-b", s.state.CurrentDrawer())
	s.Zero(s.canvas.resets)
}

func (s *CoordinatorTestSuite) TestStartNewRoundAdvancesToNextPlayer() {
	s.addPlayers("user-a", "user-b", "user-c")
	s.Require().True(s.state.ApplySession(models.Session{
		CurrentDrawer: "user-b",
		CurrentWord:   "cat",
		Round:         2,
		Version:       3,
	}))

	s.mockPicker.EXPECT().Pick().Return("dog")
	s.mockClock.EXPECT().Now().Return(s.testTime)
	s.mockStore.EXPECT().
		PutVersioned(s.ctx, s.testKey, int64(3), gomock.Any()).
		Return(true, nil)

	output, err := s.coord.StartNewRound(s.ctx)
	s.Require().NoError(err)
	s.True(output.Advanced)

	expected := models.Session{
		CurrentDrawer: "user-c",
		CurrentWord:   "dog",
		Round:         3,
		Version:       4,
		StartedAt:     s.testTime,
	}
	s.Equal(expected, output.Session)
	s.Equal(expected, s.state.Session())
	s.Equal(1, s.canvas.resets)
	s.Equal("name-user-c is drawing!", s.view.last().Message)
}

func (s *CoordinatorTestSuite) TestStartNewRoundWrapsAround() {
	s.addPlayers("user-a", "user-b")
	s.Require().True(s.state.ApplySession(models.Session{CurrentDrawer: "user-b", CurrentWord: "cat", Round: 1, Version: 1}))

	s.mockPicker.EXPECT().Pick().Return("dog")
	s.mockClock.EXPECT().Now().Return(s.testTime)
	s.mockStore.EXPECT().PutVersioned(s.ctx, s.testKey, int64(1), gomock.Any()).Return(true, nil)

	output, err := s.coord.StartNewRound(s.ctx)
	s.Require().NoError(err)
	s.Equal("user-a", output.Session.CurrentDrawer)
	s.True(s.state.IsLocalUserDrawing())
}

func (s *CoordinatorTestSuite) TestStartNewRoundLostRace() {
	s.addPlayers("user-a", "user-b")
	current := models.Session{CurrentDrawer: "user-a", CurrentWord: "cat", Round: 1, Version: 1}
	s.Require().True(s.state.ApplySession(current))

	s.mockPicker.EXPECT().Pick().Return("dog")
	s.mockClock.EXPECT().Now().Return(s.testTime)
	s.mockStore.EXPECT().PutVersioned(s.ctx, s.testKey, int64(1), gomock.Any()).Return(false, nil)

	output, err := s.coord.StartNewRound(s.ctx)
	s.Require().NoError(err)
	s.False(output.Advanced)
	s.Equal(current, s.state.Session())
	s.Zero(s.canvas.resets)
}

func (s *CoordinatorTestSuite) TestStartNewRoundWithoutPlayers() {
	_, err := s.coord.StartNewRound(s.ctx)
	s.ErrorIs(err, ErrNoPlayers)
}

func (s *CoordinatorTestSuite) TestStartNewRoundWriteError() {
	s.addPlayers("user-a")

	s.mockPicker.EXPECT().Pick().Return("dog")
	s.mockClock.EXPECT().Now().Return(s.testTime)
	s.mockStore.EXPECT().
		PutVersioned(s.ctx, s.testKey, int64(0), gomock.Any()).
		Return(false, errors.New("connection refused"))

	_, err := s.coord.StartNewRound(s.ctx)
	s.Error(err)
	s.Empty(s.state.CurrentDrawer())
}

func (s *CoordinatorTestSuite) TestStartNewRoundResetError() {
	s.addPlayers("user-a")
	s.canvas.err = errors.New("publish failed")

	s.mockPicker.EXPECT().Pick().Return("dog")
	s.mockClock.EXPECT().Now().Return(s.testTime)
	s.mockStore.EXPECT().PutVersioned(s.ctx, s.testKey, int64(0), gomock.Any()).Return(true, nil)

	output, err := s.coord.StartNewRound(s.ctx)
	s.Error(err)
	s.Require().NotNil(output)
	s.True(output.Advanced)
	s.Equal("user-a", s.state.CurrentDrawer())
}

func (s *CoordinatorTestSuite) TestEndRoundStartsNextRound() {
	s.addPlayers("user-a", "user-b")
	s.Require().True(s.state.ApplySession(models.Session{CurrentDrawer: "user-a", CurrentWord: "cat", Round: 1, Version: 1}))

	s.mockPicker.EXPECT().Pick().Return("dog")
	s.mockClock.EXPECT().Now().Return(s.testTime)
	s.mockStore.EXPECT().PutVersioned(s.ctx, s.testKey, int64(1), gomock.Any()).Return(true, nil)

	err := s.coord.EndRound(s.ctx, models.ChatMessage{UserID: "user-b", Message: "cat"})
	s.Require().NoError(err)
	s.Equal("user-b", s.state.CurrentDrawer())
}

func (s *CoordinatorTestSuite) TestEndRoundRecordsAndAnnouncesWinner() {
	s.addPlayers("user-a", "user-b")
	s.Require().True(s.state.ApplySession(models.Session{CurrentDrawer: "user-a", CurrentWord: "cat", Round: 1, Version: 1}))

	var written models.Session
	s.mockPicker.EXPECT().Pick().Return("dog")
	s.mockClock.EXPECT().Now().Return(s.testTime)
	s.mockStore.EXPECT().
		PutVersioned(s.ctx, s.testKey, int64(1), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ int64, value []byte) (bool, error) {
			written = s.decode(value)
			return true, nil
		})

	err := s.coord.EndRound(s.ctx, models.ChatMessage{UserID: "user-b", Message: "cat"})
	s.Require().NoError(err)

	s.Equal("user-b", written.WinnerID)
	s.Equal("name-user-b", written.WinnerName)
	s.Equal("cat", written.PreviousWord)

	s.Require().Len(s.announcer.wins, 1)
	s.Equal("user-b", s.announcer.wins[0].WinnerID)
	s.Equal(written.Version, s.announcer.wins[0].Version)

	// The echo of the same record is not announced again
	s.coord.HandleSession(s.encode(written))
	s.Len(s.announcer.wins, 1)
}

func (s *CoordinatorTestSuite) TestRoundWonElsewhereIsAnnounced() {
	s.addPlayers("user-a", "user-b")
	s.Require().True(s.state.ApplySession(models.Session{CurrentDrawer: "user-a", CurrentWord: "cat", Round: 1, Version: 1}))

	next := models.Session{
		CurrentDrawer: "user-b",
		CurrentWord:   "dog",
		Round:         2,
		Version:       2,
		StartedAt:     s.testTime,
		WinnerID:      "user-b",
		WinnerName:    "Bob",
		PreviousWord:  "cat",
	}
	s.coord.HandleSession(s.encode(next))

	s.Require().Len(s.announcer.wins, 1)
	s.Equal("Bob", s.announcer.wins[0].WinnerName)
}

func (s *CoordinatorTestSuite) TestRoundsWithoutGuessAreNotAnnounced() {
	// Adopting a room whose last round was won announces nothing
	s.coord.HandleSession(s.encode(models.Session{
		CurrentDrawer: "user-b",
		CurrentWord:   "dog",
		Round:         4,
		Version:       4,
		WinnerID:      "user-b",
		PreviousWord:  "cat",
	}))

	// A round change without a guess
	s.coord.HandleSession(s.encode(models.Session{CurrentDrawer: "user-a", CurrentWord: "sun", Round: 5, Version: 5}))

	s.Empty(s.announcer.wins)
}

func (s *CoordinatorTestSuite) TestHandleSessionIgnoresStaleAndMalformed() {
	s.addPlayers("user-a", "user-b")
	current := models.Session{CurrentDrawer: "user-b", CurrentWord: "cat", Round: 2, Version: 5}
	s.coord.HandleSession(s.encode(current))
	s.Require().Equal(current, s.state.Session())
	renders := len(s.view.statuses)

	// Older version
	s.coord.HandleSession(s.encode(models.Session{CurrentDrawer: "user-a", CurrentWord: "dog", Round: 1, Version: 4}))
	// Drawer without a word
	s.coord.HandleSession(s.encode(models.Session{CurrentDrawer: "user-a", Round: 3, Version: 6}))
	// Not JSON
	s.coord.HandleSession([]byte("{"))

	s.Equal(current, s.state.Session())
	s.Len(s.view.statuses, renders)
}

func (s *CoordinatorTestSuite) TestCloseStopsTimerAndSubscription() {
	s.expectSubscribe()
	s.mockStore.EXPECT().Get(s.ctx, s.testKey).Return(s.encode(models.Session{Version: 1}), nil)
	s.expectTimer()
	s.mockSub.EXPECT().Close().Return(nil)

	s.Require().NoError(s.coord.Start(s.ctx))
	s.Require().NoError(s.coord.Close())
	s.True(s.timer.stopped)

	// Second close is a no-op
	s.NoError(s.coord.Close())
}
