package services

import (
	"sync"
	"testing"
	"time"

	"fluxquiz/errs"
	"fluxquiz/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type broadcastEvent struct {
	quizID  uint
	event   string
	payload any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (f *fakeBroadcaster) BroadcastToSession(quizID uint, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastEvent{quizID: quizID, event: event, payload: payload})
}

func (f *fakeBroadcaster) eventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.events))
	for i, e := range f.events {
		names[i] = e.event
	}
	return names
}

func (f *fakeBroadcaster) lastOf(event string) (broadcastEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].event == event {
			return f.events[i], true
		}
	}
	return broadcastEvent{}, false
}

func (f *fakeBroadcaster) countOf(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.event == event {
			n++
		}
	}
	return n
}

type sentEvent struct {
	event   string
	payload any
}

type fakeConn struct {
	id string

	mu   sync.Mutex
	sent []sentEvent
}

func (f *fakeConn) ConnID() string { return f.id }

func (f *fakeConn) Send(event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{event: event, payload: payload})
}

func (f *fakeConn) received(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.sent {
		if e.event == event {
			return true
		}
	}
	return false
}

type fakeQuizStore struct {
	quizzes map[uint]*models.Quiz
}

func (f *fakeQuizStore) GetQuizWithQuestions(quizID uint) (*models.Quiz, error) {
	quiz, ok := f.quizzes[quizID]
	if !ok {
		return nil, errs.NotFound("quiz not found")
	}
	return quiz, nil
}

type fakeResultStore struct {
	mu      sync.Mutex
	results []*models.Result
	failFor map[string]bool
}

func (f *fakeResultStore) InsertResult(result *models.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[result.Username] {
		return errs.New(errs.CodePersistence, "insert failed")
	}
	f.results = append(f.results, result)
	return nil
}

func (f *fakeResultStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

func (f *fakeResultStore) byUsername(username string) *models.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.results {
		if r.Username == username {
			return r
		}
	}
	return nil
}

// twoQuestionQuiz matches the end-to-end scenario: 10 points / 20 s and
// 5 points / 15 s, owned by user 1.
func twoQuestionQuiz() *models.Quiz {
	return &models.Quiz{
		ID:     7,
		Title:  "Capitals",
		UserID: 1,
		Questions: []models.Question{
			{
				Type:      models.QuestionTypeMCQ,
				Text:      "Capital of France?",
				Answer:    "Paris",
				Points:    10,
				TimeLimit: 20,
				Options: []models.Option{
					{Text: "Paris", Order: 1},
					{Text: "Lyon", Order: 2},
				},
			},
			{
				Type:      models.QuestionTypeTF,
				Text:      "The Seine flows through Paris.",
				Answer:    "TRUE",
				Points:    5,
				TimeLimit: 15,
			},
		},
	}
}

func newTestArena(quizzes ...*models.Quiz) (*ArenaService, *fakeBroadcaster, *fakeResultStore) {
	store := &fakeQuizStore{quizzes: make(map[uint]*models.Quiz)}
	for _, q := range quizzes {
		store.quizzes[q.ID] = q
	}
	broadcaster := &fakeBroadcaster{}
	results := &fakeResultStore{}

	arena := NewArenaService(broadcaster, store, results)
	arena.sleep = func(time.Duration) {}
	arena.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return arena, broadcaster, results
}

func rosterOf(e broadcastEvent) []RosterEntry {
	return e.payload.(gin.H)["players"].([]RosterEntry)
}

func TestJoinBroadcastsFullRoster(t *testing.T) {
	arena, broadcaster, _ := newTestArena(twoQuestionQuiz())

	for i, name := range []string{"alice", "bob", "carol"} {
		_, err := arena.Join(7, uint(10+i), name, &fakeConn{id: name})
		require.NoError(t, err)
	}

	last, ok := broadcaster.lastOf(EventPlayerList)
	require.True(t, ok)

	roster := rosterOf(last)
	require.Len(t, roster, 3)
	seen := make(map[uint]bool)
	for _, entry := range roster {
		seen[entry.UserID] = true
	}
	assert.Len(t, seen, 3, "roster entries must be distinct")
}

func TestJoinValidation(t *testing.T) {
	arena, _, _ := newTestArena(twoQuestionQuiz())

	_, err := arena.Join(0, 10, "alice", &fakeConn{id: "a"})
	assert.True(t, errs.Is(err, errs.CodeInvalidRequest))

	_, err = arena.Join(7, 0, "alice", &fakeConn{id: "a"})
	assert.True(t, errs.Is(err, errs.CodeInvalidRequest))

	_, err = arena.Join(7, 10, "", &fakeConn{id: "a"})
	assert.True(t, errs.Is(err, errs.CodeInvalidRequest))

	assert.Empty(t, arena.sessions, "failed joins must not create state")
}

func TestJoinUnknownQuiz(t *testing.T) {
	arena, _, _ := newTestArena()

	_, err := arena.Join(99, 10, "alice", &fakeConn{id: "a"})
	assert.True(t, errs.Is(err, errs.CodeNotFound))
}

func TestRejoinPreservesScore(t *testing.T) {
	arena, broadcaster, _ := newTestArena(twoQuestionQuiz())

	first, err := arena.Join(7, 10, "alice", &fakeConn{id: "conn1"})
	require.NoError(t, err)
	assert.False(t, first.IsRejoin)
	assert.Equal(t, 0, first.CurrentScore)

	submitted, err := arena.Submit(7, 10, 0, "Paris")
	require.NoError(t, err)
	require.Equal(t, 10, submitted.NewScore)

	again, err := arena.Join(7, 10, "alice", &fakeConn{id: "conn2"})
	require.NoError(t, err)
	assert.True(t, again.IsRejoin)
	assert.Equal(t, 10, again.CurrentScore)

	last, ok := broadcaster.lastOf(EventPlayerList)
	require.True(t, ok)
	assert.Len(t, rosterOf(last), 1, "rejoin must not duplicate the roster entry")
}

func TestDisconnectKeepsScoreForRejoin(t *testing.T) {
	arena, broadcaster, _ := newTestArena(twoQuestionQuiz())

	conn := &fakeConn{id: "conn1"}
	_, err := arena.Join(7, 10, "alice", conn)
	require.NoError(t, err)
	_, err = arena.Submit(7, 10, 1, "true")
	require.NoError(t, err)

	arena.DisconnectClient(conn)

	last, ok := broadcaster.lastOf(EventPlayerList)
	require.True(t, ok)
	assert.Empty(t, rosterOf(last))

	again, err := arena.Join(7, 10, "alice", &fakeConn{id: "conn2"})
	require.NoError(t, err)
	assert.True(t, again.IsRejoin, "a score entry marks this as a rejoin")
	assert.Equal(t, 5, again.CurrentScore)
}

func TestLeaveAbsentIsNoop(t *testing.T) {
	arena, broadcaster, _ := newTestArena(twoQuestionQuiz())

	arena.Leave(7, 10)
	arena.Leave(99, 10)
	assert.Empty(t, broadcaster.eventNames())
}

func TestKickRequiresHost(t *testing.T) {
	arena, _, _ := newTestArena(twoQuestionQuiz())

	_, err := arena.Join(7, 10, "alice", &fakeConn{id: "a"})
	require.NoError(t, err)
	_, err = arena.Join(7, 11, "bob", &fakeConn{id: "b"})
	require.NoError(t, err)

	err = arena.Kick(7, 11, 10)
	assert.True(t, errs.Is(err, errs.CodeForbidden))

	state, err := arena.SessionState(7)
	require.NoError(t, err)
	assert.Len(t, state.Players, 2, "failed kick must not mutate presence")
	assert.Len(t, arena.Snapshot(7), 2, "failed kick must not mutate scores")
}

func TestKickByHost(t *testing.T) {
	arena, broadcaster, _ := newTestArena(twoQuestionQuiz())

	target := &fakeConn{id: "b"}
	_, err := arena.Join(7, 10, "alice", &fakeConn{id: "a"})
	require.NoError(t, err)
	_, err = arena.Join(7, 11, "bob", target)
	require.NoError(t, err)

	// User 1 is the quiz creator and therefore the host.
	require.NoError(t, arena.Kick(7, 1, 11))

	assert.True(t, target.received(EventKicked), "target gets a private removal notice")

	last, ok := broadcaster.lastOf(EventPlayerKicked)
	require.True(t, ok)
	assert.Equal(t, "bob", last.payload.(gin.H)["username"])

	roster, ok := broadcaster.lastOf(EventPlayerList)
	require.True(t, ok)
	assert.Len(t, rosterOf(roster), 1)
	assert.Len(t, arena.Snapshot(7), 1, "kick removes the score entry too")
}

func TestSubmitScoringAndMonotonicity(t *testing.T) {
	arena, broadcaster, _ := newTestArena(twoQuestionQuiz())

	_, err := arena.Join(7, 10, "alice", &fakeConn{id: "a"})
	require.NoError(t, err)

	wrong, err := arena.Submit(7, 10, 0, "Lyon")
	require.NoError(t, err)
	assert.False(t, wrong.IsCorrect)
	assert.Equal(t, 0, wrong.PointsEarned)
	assert.Equal(t, 0, wrong.NewScore)

	right, err := arena.Submit(7, 10, 0, "Paris")
	require.NoError(t, err)
	assert.True(t, right.IsCorrect)
	assert.Equal(t, 10, right.PointsEarned)
	assert.Equal(t, 10, right.NewScore)

	// tf answers compare case-insensitively.
	tf, err := arena.Submit(7, 10, 1, "true")
	require.NoError(t, err)
	assert.True(t, tf.IsCorrect)
	assert.Equal(t, 15, tf.NewScore)

	again, err := arena.Submit(7, 10, 1, "FALSE")
	require.NoError(t, err)
	assert.Equal(t, 15, again.NewScore, "scores never decrease")

	assert.Equal(t, 4, broadcaster.countOf(EventLeaderboard), "every submission refreshes the room leaderboard")
}

func TestSubmitErrors(t *testing.T) {
	arena, _, _ := newTestArena(twoQuestionQuiz())

	_, err := arena.Submit(0, 10, 0, "x")
	assert.True(t, errs.Is(err, errs.CodeInvalidRequest))

	_, err = arena.Submit(7, 0, 0, "x")
	assert.True(t, errs.Is(err, errs.CodeInvalidRequest))

	_, err = arena.Submit(7, 10, -1, "x")
	assert.True(t, errs.Is(err, errs.CodeInvalidRequest))

	_, err = arena.Submit(99, 10, 0, "x")
	assert.True(t, errs.Is(err, errs.CodeNotFound))

	_, err = arena.Submit(7, 10, 2, "x")
	assert.True(t, errs.Is(err, errs.CodeNotFound))
}

func TestSnapshotStableTieBreak(t *testing.T) {
	quiz := &models.Quiz{
		ID:     8,
		Title:  "Ties",
		UserID: 1,
		Questions: []models.Question{
			{Type: models.QuestionTypeShort, Text: "q30", Answer: "x", Points: 30, TimeLimit: 10},
			{Type: models.QuestionTypeShort, Text: "q50", Answer: "y", Points: 50, TimeLimit: 10},
		},
	}
	arena, _, _ := newTestArena(quiz)

	for i, name := range []string{"A", "B", "C"} {
		_, err := arena.Join(8, uint(10+i), name, &fakeConn{id: name})
		require.NoError(t, err)
	}

	_, err := arena.Submit(8, 10, 0, "x") // A: 30
	require.NoError(t, err)
	_, err = arena.Submit(8, 11, 1, "y") // B: 50, scores before C
	require.NoError(t, err)
	_, err = arena.Submit(8, 12, 1, "y") // C: 50
	require.NoError(t, err)

	board := arena.Snapshot(8)
	require.Len(t, board, 3)
	assert.Equal(t, []string{"B", "C", "A"}, []string{board[0].Username, board[1].Username, board[2].Username})
}

func TestStartAuthorizationAndIdempotency(t *testing.T) {
	arena, _, _ := newTestArena(twoQuestionQuiz())
	// Keep the scheduler parked long enough to observe the running phase.
	arena.sleep = func(time.Duration) { time.Sleep(20 * time.Millisecond) }

	err := arena.Start(7, 42)
	assert.True(t, errs.Is(err, errs.CodeForbidden))

	require.NoError(t, arena.Start(7, 1))

	err = arena.Start(7, 1)
	assert.True(t, errs.Is(err, errs.CodeAlreadyStarted))
}

func TestStartUnknownQuiz(t *testing.T) {
	arena, _, _ := newTestArena()

	err := arena.Start(99, 1)
	assert.True(t, errs.Is(err, errs.CodeNotFound))
}

func TestFullSessionRun(t *testing.T) {
	arena, broadcaster, results := newTestArena(twoQuestionQuiz())

	var sleeps []time.Duration
	var sleepMu sync.Mutex
	arena.sleep = func(d time.Duration) {
		sleepMu.Lock()
		sleeps = append(sleeps, d)
		sleepMu.Unlock()
	}

	_, err := arena.Join(7, 10, "alice", &fakeConn{id: "a"})
	require.NoError(t, err)
	_, err = arena.Join(7, 11, "bob", &fakeConn{id: "b"})
	require.NoError(t, err)

	// Both answer before the run; any valid index is scoreable.
	_, err = arena.Submit(7, 10, 0, "Paris")
	require.NoError(t, err)
	_, err = arena.Submit(7, 10, 1, "TRUE")
	require.NoError(t, err)
	_, err = arena.Submit(7, 11, 0, "Paris")
	require.NoError(t, err)
	_, err = arena.Submit(7, 11, 1, "FALSE")
	require.NoError(t, err)

	require.NoError(t, arena.Start(7, 1))

	require.Eventually(t, func() bool { return results.count() == 2 }, time.Second, 5*time.Millisecond)

	alice := results.byUsername("alice")
	require.NotNil(t, alice)
	assert.Equal(t, 15, alice.Score)
	assert.Equal(t, 15, alice.TotalPossible)
	assert.Equal(t, 100.0, alice.Percentage)
	assert.Equal(t, models.ResultModeArena, alice.Mode)
	assert.Equal(t, "Capitals", alice.QuizTitle)

	bob := results.byUsername("bob")
	require.NotNil(t, bob)
	assert.Equal(t, 10, bob.Score)
	assert.Equal(t, 15, bob.TotalPossible)
	assert.Equal(t, 66.7, bob.Percentage)

	// The session is purged after finalization.
	_, err = arena.SessionState(7)
	assert.True(t, errs.Is(err, errs.CodeNotFound))

	// Event order: start notice, then per-question reveal/time-up pairs,
	// then the end notice.
	var flow []string
	for _, name := range broadcaster.eventNames() {
		switch name {
		case EventQuizStarted, EventNewQuestion, EventQuestionTimeUp, EventQuizEnded:
			flow = append(flow, name)
		}
	}
	assert.Equal(t, []string{
		EventQuizStarted,
		EventNewQuestion, EventQuestionTimeUp,
		EventNewQuestion, EventQuestionTimeUp,
		EventQuizEnded,
	}, flow)

	// Grace period, q0 window, pause, q1 window, pause.
	sleepMu.Lock()
	defer sleepMu.Unlock()
	assert.Equal(t, []time.Duration{
		3 * time.Second,
		20 * time.Second,
		2 * time.Second,
		15 * time.Second,
		2 * time.Second,
	}, sleeps)
}

func TestFinalizeIdempotent(t *testing.T) {
	quiz := twoQuestionQuiz()
	arena, _, results := newTestArena(quiz)

	_, err := arena.Join(7, 10, "alice", &fakeConn{id: "a"})
	require.NoError(t, err)
	_, err = arena.Submit(7, 10, 0, "Paris")
	require.NoError(t, err)

	require.NoError(t, arena.Start(7, 1))
	require.Eventually(t, func() bool { return results.count() == 1 }, time.Second, 5*time.Millisecond)

	arena.Finalize(7, quiz)
	assert.Equal(t, 1, results.count(), "a second finalize observes the purged session and writes nothing")
}

func TestFinalizeSkipsFailedWrites(t *testing.T) {
	quiz := twoQuestionQuiz()
	arena, _, results := newTestArena(quiz)
	results.failFor = map[string]bool{"alice": true}

	_, err := arena.Join(7, 10, "alice", &fakeConn{id: "a"})
	require.NoError(t, err)
	_, err = arena.Join(7, 11, "bob", &fakeConn{id: "b"})
	require.NoError(t, err)
	_, err = arena.Submit(7, 10, 0, "Paris")
	require.NoError(t, err)
	_, err = arena.Submit(7, 11, 0, "Paris")
	require.NoError(t, err)

	arena.Finalize(7, quiz)

	assert.Equal(t, 1, results.count(), "one failed write must not abort the batch")
	assert.NotNil(t, results.byUsername("bob"))
}

func TestCancelStopsScheduler(t *testing.T) {
	arena, broadcaster, results := newTestArena(twoQuestionQuiz())

	var once sync.Once
	arena.sleep = func(time.Duration) {
		// Cancel during the grace period; the scheduler must observe it
		// at the first loop boundary and finalize without revealing any
		// question.
		once.Do(func() {
			assert.NoError(t, arena.Cancel(7, 1))
		})
	}

	_, err := arena.Join(7, 10, "alice", &fakeConn{id: "a"})
	require.NoError(t, err)
	_, err = arena.Submit(7, 10, 0, "Paris")
	require.NoError(t, err)

	require.NoError(t, arena.Start(7, 1))

	require.Eventually(t, func() bool { return results.count() == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, broadcaster.countOf(EventNewQuestion))
	assert.Equal(t, 1, broadcaster.countOf(EventQuizEnded))

	alice := results.byUsername("alice")
	require.NotNil(t, alice)
	assert.Equal(t, 15, alice.TotalPossible, "cancelled sessions still score against the full quiz")
}

func TestCancelRequiresRunningSession(t *testing.T) {
	arena, _, _ := newTestArena(twoQuestionQuiz())

	err := arena.Cancel(7, 1)
	assert.True(t, errs.Is(err, errs.CodeNotFound))

	_, err = arena.OpenLobby(7)
	require.NoError(t, err)

	err = arena.Cancel(7, 1)
	assert.True(t, errs.Is(err, errs.CodeInvalidRequest))

	err = arena.Cancel(7, 42)
	assert.True(t, errs.Is(err, errs.CodeForbidden))
}

func TestOpenLobbyCreatesSessionOnce(t *testing.T) {
	arena, _, _ := newTestArena(twoQuestionQuiz())

	state, err := arena.OpenLobby(7)
	require.NoError(t, err)
	assert.Equal(t, PhaseLobby, state.Phase)
	assert.Equal(t, uint(1), state.HostID)
	assert.Equal(t, -1, state.CurrentQuestion)

	_, err = arena.Join(7, 10, "alice", &fakeConn{id: "a"})
	require.NoError(t, err)

	again, err := arena.OpenLobby(7)
	require.NoError(t, err)
	assert.Len(t, again.Players, 1, "reopening the lobby reuses the session")
}
