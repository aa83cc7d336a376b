package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	clockMocks "github.com/KirkDiggler/doodle/internal/common/clock/mocks"
	"github.com/KirkDiggler/doodle/internal/models"
	"github.com/KirkDiggler/doodle/internal/repositories/store"
	storeMocks "github.com/KirkDiggler/doodle/internal/repositories/store/mocks"
	"github.com/KirkDiggler/doodle/internal/services/messaging"
	"github.com/KirkDiggler/doodle/internal/services/session"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type shown struct {
	msg models.ChatMessage
	own bool
}

type fakeFeed struct {
	mu       sync.Mutex
	messages []shown
	wins     []RoundWon
}

func (f *fakeFeed) ShowMessage(msg models.ChatMessage, own bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, shown{msg: msg, own: own})
}

func (f *fakeFeed) ShowRoundWon(won RoundWon) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wins = append(f.wins, won)
}

type fakeEnder struct {
	mu      sync.Mutex
	winners []models.ChatMessage
	err     error
}

func (e *fakeEnder) EndRound(_ context.Context, winner models.ChatMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.winners = append(e.winners, winner)
	return e.err
}

type ChatServiceTestSuite struct {
	suite.Suite
	mockCtrl  *gomock.Controller
	mockStore *storeMocks.MockStore
	mockClock *clockMocks.MockClock
	state     *session.State
	feed      *fakeFeed
	ender     *fakeEnder
	service   *Service
	ctx       context.Context

	testKey   string
	roundTime time.Time
}

func (s *ChatServiceTestSuite) SetupTest() {
	s.mockCtrl = gomock.NewController(s.T())
	s.mockStore = storeMocks.NewMockStore(s.mockCtrl)
	s.mockClock = clockMocks.NewMockClock(s.mockCtrl)
	s.ctx = context.Background()

	s.testKey = "test-room:chat"
	s.roundTime = time.Date(2025, 4, 19, 12, 0, 0, 0, time.UTC)

	s.state = session.New("guesser-id", "Guesser")
	s.state.AddPlayer(models.Player{UserID: "drawer-id", Username: "Drawer"})
	s.state.AddPlayer(models.Player{UserID: "guesser-id", Username: "Guesser"})
	s.feed = &fakeFeed{}
	s.ender = &fakeEnder{}

	msgService, err := messaging.NewService(&messaging.ServiceConfig{Seed: 1})
	s.Require().NoError(err)

	svc, err := New(&Config{
		Store:      s.mockStore,
		State:      s.state,
		Key:        s.testKey,
		Clock:      s.mockClock,
		Messaging:  msgService,
		Feed:       s.feed,
		RoundEnder: s.ender,
	})
	s.Require().NoError(err)
	s.service = svc
}

func (s *ChatServiceTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

func TestChatServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ChatServiceTestSuite))
}

func (s *ChatServiceTestSuite) startRound(word string) {
	s.Require().True(s.state.ApplySession(models.Session{
		CurrentDrawer: "drawer-id",
		CurrentWord:   word,
		Round:         1,
		Version:       s.state.Session().Version + 1,
		StartedAt:     s.roundTime,
	}))
}

func (s *ChatServiceTestSuite) deliver(childID, userID, text string, at time.Time) {
	data, err := json.Marshal(models.ChatMessage{
		UserID:    userID,
		Username:  "name-" + userID,
		Message:   text,
		Timestamp: at,
	})
	s.Require().NoError(err)
	s.service.Handle(childID, data)
}

func (s *ChatServiceTestSuite) TestNewValidatesConfig() {
	_, err := New(nil)
	s.ErrorIs(err, ErrNilConfig)

	_, err = New(&Config{Store: s.mockStore, State: s.state, Clock: s.mockClock})
	s.ErrorIs(err, ErrNilMessaging)
}

func (s *ChatServiceTestSuite) TestSendMessagePublishesTrimmedText() {
	s.mockClock.EXPECT().Now().Return(s.roundTime)
	s.mockStore.EXPECT().
		Set(s.ctx, s.testKey, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, value []byte) (string, error) {
			s.JSONEq(`{"userId":"guesser-id","username":"Guesser","message":"is it a cat","timestamp":"2025-04-19T12:00:00Z"}`, string(value))
			return "child-1", nil
		})

	msg, err := s.service.SendMessage(s.ctx, "  is it a cat \n")
	s.Require().NoError(err)
	s.Equal("child-1", msg.ID)
	s.Equal("is it a cat", msg.Message)
}

func (s *ChatServiceTestSuite) TestSendMessageRejectsBlank() {
	// No Set expected
	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := s.service.SendMessage(s.ctx, text)
		s.ErrorIs(err, ErrEmptyMessage)
	}
}

func (s *ChatServiceTestSuite) TestSendMessageStoreError() {
	s.mockClock.EXPECT().Now().Return(s.roundTime)
	s.mockStore.EXPECT().Set(s.ctx, s.testKey, gomock.Any()).Return("", errors.New("connection refused"))

	_, err := s.service.SendMessage(s.ctx, "hello")
	s.Error(err)
}

func (s *ChatServiceTestSuite) TestSubscribeUsesMapOnce() {
	sub := storeMocks.NewMockSubscription(s.mockCtrl)
	var handler store.ChildHandler
	s.mockStore.EXPECT().
		MapOnce(s.ctx, s.testKey, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, h store.ChildHandler) (store.Subscription, error) {
			handler = h
			return sub, nil
		})

	got, err := s.service.Subscribe(s.ctx)
	s.Require().NoError(err)
	s.Equal(sub, got)

	handler("child-1", []byte(`{"userId":"drawer-id","username":"Drawer","message":"hi"}`))
	s.Len(s.feed.messages, 1)
}

func (s *ChatServiceTestSuite) TestHandleRendersEachChildOnce() {
	s.deliver("child-1", "drawer-id", "hello", s.roundTime)
	s.deliver("child-1", "drawer-id", "hello", s.roundTime)
	s.deliver("child-2", "guesser-id", "hi", s.roundTime)

	s.Require().Len(s.feed.messages, 2)
	s.Equal("child-1", s.feed.messages[0].msg.ID)
	s.False(s.feed.messages[0].own)
	s.Equal("child-2", s.feed.messages[1].msg.ID)
	s.True(s.feed.messages[1].own)
}

func (s *ChatServiceTestSuite) TestHandleDropsMalformed() {
	s.service.Handle("child-1", []byte(`{"userId":"drawer-id"}`))
	s.service.Handle("child-2", []byte(`{"message":"orphan"}`))
	s.service.Handle("child-3", []byte(`nope`))

	s.Empty(s.feed.messages)
}

func (s *ChatServiceTestSuite) TestCorrectGuessEndsRoundOnce() {
	s.startRound("Cat")

	s.deliver("child-1", "guesser-id", "  cAT ", s.roundTime.Add(time.Second))
	// Redelivery of the same child
	s.deliver("child-1", "guesser-id", "  cAT ", s.roundTime.Add(time.Second))

	s.Require().Len(s.ender.winners, 1)
	s.Equal("child-1", s.ender.winners[0].ID)

	// Announced once the next round is accepted, not on the guess itself
	s.Empty(s.feed.wins)
}

func (s *ChatServiceTestSuite) TestAnnounceWin() {
	s.service.AnnounceWin(s.ctx, models.Session{
		CurrentDrawer: "guesser-id",
		CurrentWord:   "moon",
		Round:         2,
		Version:       2,
		WinnerID:      "guesser-id",
		WinnerName:    "Guesser",
		PreviousWord:  "Cat",
	})

	s.Require().Len(s.feed.wins, 1)
	won := s.feed.wins[0]
	s.Equal("guesser-id", won.WinnerID)
	s.Equal("Guesser", won.WinnerName)
	s.Equal("Cat", won.Word)
	s.Equal(messaging.ToneCelebration, won.Tone)
	s.Contains(won.Message, "Cat")
	s.NotEmpty(won.Title)
}

func (s *ChatServiceTestSuite) TestAnnounceWinIgnoresRoundsWithoutGuess() {
	s.service.AnnounceWin(s.ctx, models.Session{
		CurrentDrawer: "guesser-id",
		CurrentWord:   "moon",
		Round:         2,
		Version:       2,
	})

	s.Empty(s.feed.wins)
}

func (s *ChatServiceTestSuite) TestAnnounceWinUsesConfiguredTone() {
	msgService, err := messaging.NewService(&messaging.ServiceConfig{Seed: 1})
	s.Require().NoError(err)

	svc, err := New(&Config{
		Store:      s.mockStore,
		State:      s.state,
		Key:        s.testKey,
		Clock:      s.mockClock,
		Messaging:  msgService,
		Feed:       s.feed,
		RoundEnder: s.ender,
		RoundTone:  messaging.ToneNeutral,
	})
	s.Require().NoError(err)

	svc.AnnounceWin(s.ctx, models.Session{
		CurrentDrawer: "drawer-id",
		CurrentWord:   "moon",
		Round:         3,
		Version:       3,
		WinnerID:      "drawer-id",
		WinnerName:    "Drawer",
		PreviousWord:  "cat",
	})

	s.Require().Len(s.feed.wins, 1)
	s.Equal(messaging.ToneNeutral, s.feed.wins[0].Tone)
	s.Equal("Drawer guessed the word cat.", s.feed.wins[0].Message)
}

func (s *ChatServiceTestSuite) TestRoundEnderFunc() {
	var got models.ChatMessage
	ender := RoundEnderFunc(func(_ context.Context, winner models.ChatMessage) error {
		got = winner
		return nil
	})

	s.Require().NoError(ender.EndRound(s.ctx, models.ChatMessage{UserID: "guesser-id"}))
	s.Equal("guesser-id", got.UserID)
}

func (s *ChatServiceTestSuite) TestDrawerCannotGuess() {
	s.startRound("cat")

	s.deliver("child-1", "drawer-id", "cat", s.roundTime.Add(time.Second))

	s.Len(s.feed.messages, 1)
	s.Empty(s.ender.winners)
	s.Empty(s.feed.wins)
}

func (s *ChatServiceTestSuite) TestGuessBeforeRoundStartIsIgnored() {
	s.startRound("cat")

	s.deliver("child-1", "guesser-id", "cat", s.roundTime.Add(-time.Minute))

	s.Empty(s.ender.winners)
}

func (s *ChatServiceTestSuite) TestWrongGuessIsJustChat() {
	s.startRound("cat")

	s.deliver("child-1", "guesser-id", "dog", s.roundTime.Add(time.Second))
	s.deliver("child-2", "guesser-id", "cats", s.roundTime.Add(time.Second))

	s.Len(s.feed.messages, 2)
	s.Empty(s.ender.winners)
}

func (s *ChatServiceTestSuite) TestNoGuessingBeforeFirstRound() {
	s.deliver("child-1", "guesser-id", "cat", s.roundTime)

	s.Empty(s.ender.winners)
}

func (s *ChatServiceTestSuite) TestEndRoundErrorIsSwallowed() {
	s.startRound("cat")
	s.ender.err = errors.New("lost")

	s.NotPanics(func() {
		s.deliver("child-1", "guesser-id", "cat", s.roundTime)
	})
	s.Len(s.ender.winners, 1)
}

func (s *ChatServiceTestSuite) TestConcurrentDeliveryRendersOnce() {
	data, err := json.Marshal(models.ChatMessage{UserID: "drawer-id", Username: "Drawer", Message: "hi"})
	s.Require().NoError(err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.service.Handle("child-1", data)
		}()
	}
	wg.Wait()

	s.Len(s.feed.messages, 1)
}
