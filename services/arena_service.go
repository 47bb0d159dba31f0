package services

import (
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"fluxquiz/errs"
	"fluxquiz/models"

	"github.com/gin-gonic/gin"
)

// Session lifecycle phases. A session is created in the lobby phase on
// first lobby access, runs once, and is purged after finalization.
type SessionPhase string

const (
	PhaseLobby   SessionPhase = "lobby"
	PhaseRunning SessionPhase = "running"
	PhaseEnded   SessionPhase = "ended"
)

// Outbound websocket event names. Wire format is {"type": ..., "payload": ...}.
const (
	EventPlayerList     = "player_list"
	EventJoined         = "joined"
	EventKicked         = "kicked"
	EventPlayerKicked   = "player_kicked"
	EventQuizStarted    = "quiz_started"
	EventNewQuestion    = "new_question"
	EventQuestionTimeUp = "question_time_up"
	EventQuizEnded      = "quiz_ended"
	EventScoreUpdate    = "score_update"
	EventLeaderboard    = "live_leaderboard"
	EventError          = "error"
)

const (
	startGracePeriod  = 3 * time.Second
	interQuestionWait = 2 * time.Second
	leaderboardSize   = 10
)

// ClientConn is the transport handle of one connected participant. The
// hub's websocket client implements it; tests use fakes.
type ClientConn interface {
	ConnID() string
	Send(event string, payload any)
}

// Broadcaster delivers an event to every connection in a session's room.
type Broadcaster interface {
	BroadcastToSession(quizID uint, event string, payload any)
}

// QuizStore is the durable quiz definition source, read-only to the arena.
type QuizStore interface {
	GetQuizWithQuestions(quizID uint) (*models.Quiz, error)
}

// ResultStore persists one finished-session record per participant.
type ResultStore interface {
	InsertResult(result *models.Result) error
}

type playerEntry struct {
	username string
	conn     ClientConn
}

type scoreEntry struct {
	score int
	order int // joined/seeded order, tie-break for leaderboards
}

// liveSession holds all in-memory state for one running quiz session.
// Everything here is guarded by ArenaService.mu.
type liveSession struct {
	quizID          uint
	hostID          uint
	phase           SessionPhase
	currentQuestion int // -1 until the scheduler reveals the first question
	players         map[uint]*playerEntry
	scores          map[uint]*scoreEntry
	nextOrder       int
}

// ArenaService is the live arena session coordinator: participant
// presence, per-session score ledger, the session state machine, the
// question broadcast scheduler, and finalization into durable results.
//
// All session state lives behind one mutex. The scheduler goroutine
// re-acquires the lock at each step boundary and never sleeps while
// holding it, so inbound events interleave freely with broadcast steps.
type ArenaService struct {
	mu       sync.Mutex
	sessions map[uint]*liveSession

	quizzes     QuizStore
	results     ResultStore
	broadcaster Broadcaster

	gracePeriod   time.Duration
	questionPause time.Duration
	sleep         func(time.Duration)
	now           func() time.Time
}

func NewArenaService(broadcaster Broadcaster, quizzes QuizStore, results ResultStore) *ArenaService {
	return &ArenaService{
		sessions:      make(map[uint]*liveSession),
		quizzes:       quizzes,
		results:       results,
		broadcaster:   broadcaster,
		gracePeriod:   startGracePeriod,
		questionPause: interQuestionWait,
		sleep:         time.Sleep,
		now:           time.Now,
	}
}

type RosterEntry struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

type LeaderboardEntry struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

type SessionState struct {
	QuizID          uint          `json:"quiz_id"`
	HostID          uint          `json:"host_id"`
	Phase           SessionPhase  `json:"phase"`
	CurrentQuestion int           `json:"current_question"`
	Players         []RosterEntry `json:"players"`
}

type JoinResult struct {
	IsRejoin     bool
	CurrentScore int
	Phase        SessionPhase
}

type SubmitResult struct {
	IsCorrect    bool
	PointsEarned int
	NewScore     int
}

// OpenLobby returns the session state for a quiz, creating the session
// object on first access. The quiz creator becomes the host.
func (s *ArenaService) OpenLobby(quizID uint) (*SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.ensureSessionLocked(quizID)
	if err != nil {
		return nil, err
	}
	return s.sessionStateLocked(sess), nil
}

// SessionState reports the current state of a live session without
// creating one.
func (s *ArenaService) SessionState(quizID uint) (*SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[quizID]
	if !ok {
		return nil, errs.NotFound("no live session for this quiz")
	}
	return s.sessionStateLocked(sess), nil
}

// Join adds a participant to a session, seeding a zero score entry on
// first join. Rejoining replaces the connection handle and keeps the
// score. Broadcasts the updated roster to the whole room.
func (s *ArenaService) Join(quizID, userID uint, username string, conn ClientConn) (*JoinResult, error) {
	if quizID == 0 || userID == 0 || username == "" {
		return nil, errs.InvalidRequest("missing quiz id, user id or username")
	}

	s.mu.Lock()
	sess, err := s.ensureSessionLocked(quizID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	// A surviving score entry marks a rejoin even after a disconnect
	// removed the presence entry.
	_, isRejoin := sess.scores[userID]
	sess.players[userID] = &playerEntry{username: username, conn: conn}

	entry, ok := sess.scores[userID]
	if !ok {
		entry = &scoreEntry{order: sess.nextOrder}
		sess.nextOrder++
		sess.scores[userID] = entry
	}

	result := &JoinResult{
		IsRejoin:     isRejoin,
		CurrentScore: entry.score,
		Phase:        sess.phase,
	}
	roster := s.rosterLocked(sess)
	s.mu.Unlock()

	if isRejoin {
		log.Printf("[Arena] %s rejoined quiz %d (score: %d)", username, quizID, result.CurrentScore)
	} else {
		log.Printf("[Arena] %s joined lobby for quiz %d", username, quizID)
	}

	s.broadcaster.BroadcastToSession(quizID, EventPlayerList, gin.H{"players": roster})
	return result, nil
}

// Leave removes a participant's presence entry. Absent participants are
// a no-op, not an error. The score entry stays for rejoin.
func (s *ArenaService) Leave(quizID, userID uint) {
	s.mu.Lock()
	sess, ok := s.sessions[quizID]
	if !ok {
		s.mu.Unlock()
		return
	}
	entry, ok := sess.players[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(sess.players, userID)
	roster := s.rosterLocked(sess)
	s.mu.Unlock()

	log.Printf("[Arena] %s left lobby for quiz %d", entry.username, quizID)
	s.broadcaster.BroadcastToSession(quizID, EventPlayerList, gin.H{"players": roster})
}

// DisconnectClient removes the participant entry holding the given
// connection handle from every session. Scores survive the disconnect so
// a rejoin resumes at the same cumulative score.
func (s *ArenaService) DisconnectClient(conn ClientConn) {
	type affected struct {
		quizID   uint
		username string
		roster   []RosterEntry
	}

	s.mu.Lock()
	var removed []affected
	for quizID, sess := range s.sessions {
		for userID, entry := range sess.players {
			if entry.conn == conn {
				delete(sess.players, userID)
				removed = append(removed, affected{
					quizID:   quizID,
					username: entry.username,
					roster:   s.rosterLocked(sess),
				})
			}
		}
	}
	s.mu.Unlock()

	for _, a := range removed {
		log.Printf("[Arena] removed %s from quiz %d after disconnect", a.username, a.quizID)
		s.broadcaster.BroadcastToSession(a.quizID, EventPlayerList, gin.H{"players": a.roster})
	}
}

// Kick removes a participant's presence and score entries. Host only.
// The target gets a private removal notice; the room gets the updated
// roster and a "player was removed" notice.
func (s *ArenaService) Kick(quizID, requesterID, targetID uint) error {
	if quizID == 0 || requesterID == 0 || targetID == 0 {
		return errs.InvalidRequest("missing quiz id, requester id or target id")
	}

	s.mu.Lock()
	sess, ok := s.sessions[quizID]
	if !ok {
		s.mu.Unlock()
		return errs.NotFound("no live session for this quiz")
	}
	if sess.hostID != requesterID {
		s.mu.Unlock()
		return errs.Forbidden("only the quiz master can kick players")
	}
	entry, ok := sess.players[targetID]
	if !ok {
		s.mu.Unlock()
		return errs.NotFound("player not in this session")
	}

	delete(sess.players, targetID)
	delete(sess.scores, targetID)
	roster := s.rosterLocked(sess)
	s.mu.Unlock()

	if entry.conn != nil {
		entry.conn.Send(EventKicked, gin.H{"message": "You have been removed from this quiz"})
	}

	log.Printf("[Arena] %s was kicked from quiz %d by master", entry.username, quizID)
	s.broadcaster.BroadcastToSession(quizID, EventPlayerList, gin.H{"players": roster})
	s.broadcaster.BroadcastToSession(quizID, EventPlayerKicked, gin.H{"username": entry.username})
	return nil
}

// Start transitions a session from lobby to running and hands off to the
// question scheduler goroutine. Host only; a session runs at most once.
func (s *ArenaService) Start(quizID, requesterID uint) error {
	if quizID == 0 || requesterID == 0 {
		return errs.InvalidRequest("missing quiz id or user id")
	}

	quiz, err := s.quizzes.GetQuizWithQuestions(quizID)
	if err != nil {
		return errs.NotFound("quiz not found")
	}

	s.mu.Lock()
	sess, ok := s.sessions[quizID]
	if !ok {
		sess = s.newSessionLocked(quizID, quiz.UserID)
	}
	if sess.hostID != requesterID {
		s.mu.Unlock()
		return errs.Forbidden("only the quiz master can start the quiz")
	}
	if sess.phase != PhaseLobby {
		s.mu.Unlock()
		return errs.AlreadyStarted("quiz already started")
	}
	sess.phase = PhaseRunning
	sess.currentQuestion = -1 // not yet revealed
	s.mu.Unlock()

	log.Printf("[Arena] quiz %d started by master %d", quizID, requesterID)
	s.broadcaster.BroadcastToSession(quizID, EventQuizStarted, gin.H{
		"quiz_id": quizID,
		"message": "Quiz is starting!",
	})

	go s.runSession(quizID, quiz)
	return nil
}

// Cancel ends a running session early. The scheduler observes the phase
// change at its next loop boundary and finalizes. Host only.
func (s *ArenaService) Cancel(quizID, requesterID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[quizID]
	if !ok {
		return errs.NotFound("no live session for this quiz")
	}
	if sess.hostID != requesterID {
		return errs.Forbidden("only the quiz master can cancel the quiz")
	}
	if sess.phase != PhaseRunning {
		return errs.InvalidRequest("session is not running")
	}
	sess.phase = PhaseEnded
	log.Printf("[Arena] quiz %d cancelled by master %d", quizID, requesterID)
	return nil
}

// runSession is the question broadcast scheduler: one goroutine per
// started session, independent of any connection's lifetime. It sleeps
// between steps, checks for cancellation at each loop boundary, and ends
// with finalization.
func (s *ArenaService) runSession(quizID uint, quiz *models.Quiz) {
	total := len(quiz.Questions)

	// Give clients time to navigate to the live view.
	s.sleep(s.gracePeriod)

	for idx := 0; idx < total; idx++ {
		s.mu.Lock()
		sess, ok := s.sessions[quizID]
		if !ok || sess.phase != PhaseRunning {
			s.mu.Unlock()
			break
		}
		sess.currentQuestion = idx
		s.mu.Unlock()

		question := quiz.Questions[idx]
		payload := gin.H{
			"index":      idx,
			"total":      total,
			"text":       question.Text,
			"type":       question.Type,
			"points":     question.Points,
			"time_limit": question.TimeLimit,
		}
		if question.Type == models.QuestionTypeMCQ {
			payload["options"] = question.OptionTexts()
		}

		log.Printf("[Arena] sending question %d/%d for quiz %d (%ds)", idx+1, total, quizID, question.TimeLimit)
		s.broadcaster.BroadcastToSession(quizID, EventNewQuestion, payload)

		s.sleep(time.Duration(question.TimeLimit) * time.Second)

		s.broadcaster.BroadcastToSession(quizID, EventQuestionTimeUp, gin.H{
			"index":          idx,
			"correct_answer": question.Answer,
			"question_type":  question.Type,
		})

		s.sleep(s.questionPause)
	}

	s.mu.Lock()
	if sess, ok := s.sessions[quizID]; ok {
		sess.phase = PhaseEnded
	}
	s.mu.Unlock()

	s.broadcaster.BroadcastToSession(quizID, EventQuizEnded, gin.H{"quiz_id": quizID})
	log.Printf("[Arena] quiz %d ended", quizID)

	s.Finalize(quizID, quiz)
}

// Submit scores one answer against the authoritative question definition.
// Correct answers add the question's points to the participant's ledger
// entry. The submitter gets a private score acknowledgement; the room
// gets a refreshed top-10 leaderboard.
//
// Submissions are accepted for any valid question index, not just the
// currently active one, matching the original platform's leniency.
func (s *ArenaService) Submit(quizID, userID uint, questionIndex int, answer string) (*SubmitResult, error) {
	if quizID == 0 || userID == 0 {
		return nil, errs.InvalidRequest("missing quiz id or user id")
	}
	if questionIndex < 0 {
		return nil, errs.InvalidRequest("missing question index")
	}

	quiz, err := s.quizzes.GetQuizWithQuestions(quizID)
	if err != nil {
		return nil, errs.NotFound("quiz not found")
	}
	if questionIndex >= len(quiz.Questions) {
		return nil, errs.NotFound("invalid question index")
	}

	question := quiz.Questions[questionIndex]
	isCorrect := CheckAnswer(question.Type, question.Answer, answer)

	s.mu.Lock()
	sess, ok := s.sessions[quizID]
	if !ok {
		s.mu.Unlock()
		return nil, errs.NotFound("no live session for this quiz")
	}

	entry, ok := sess.scores[userID]
	if !ok {
		entry = &scoreEntry{order: sess.nextOrder}
		sess.nextOrder++
		sess.scores[userID] = entry
	}

	earned := 0
	if isCorrect {
		earned = question.Points
		entry.score += earned
	}
	result := &SubmitResult{
		IsCorrect:    isCorrect,
		PointsEarned: earned,
		NewScore:     entry.score,
	}
	board := s.snapshotLocked(sess)
	s.mu.Unlock()

	if isCorrect {
		log.Printf("[Arena] user %d answered question %d of quiz %d correctly (+%d points)", userID, questionIndex, quizID, earned)
	} else {
		log.Printf("[Arena] user %d answered question %d of quiz %d incorrectly", userID, questionIndex, quizID)
	}

	if len(board) > leaderboardSize {
		board = board[:leaderboardSize]
	}
	s.broadcaster.BroadcastToSession(quizID, EventLeaderboard, gin.H{"leaderboard": board})
	return result, nil
}

// Snapshot returns the session's score ledger sorted by score descending,
// ties broken by join order (stable).
func (s *ArenaService) Snapshot(quizID uint) []LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[quizID]
	if !ok {
		return nil
	}
	return s.snapshotLocked(sess)
}

// Finalize writes one durable result per scored participant and purges
// all in-memory state for the session. Individual write failures are
// logged and skipped; the purge always happens. A second call observes
// the purged session and writes nothing.
func (s *ArenaService) Finalize(quizID uint, quiz *models.Quiz) {
	s.mu.Lock()
	sess, ok := s.sessions[quizID]
	if !ok {
		s.mu.Unlock()
		return
	}
	board := s.snapshotLocked(sess)
	delete(s.sessions, quizID)
	s.mu.Unlock()

	if len(board) == 0 {
		log.Printf("[Arena] no scores to save for quiz %d", quizID)
		return
	}

	// Total possible always covers the full quiz, even if the session
	// was cancelled before every question was reached.
	totalPossible := quiz.TotalPoints()
	completedAt := s.now()

	saved := 0
	for _, entry := range board {
		percentage := 0.0
		if totalPossible > 0 {
			percentage = math.Round(float64(entry.Score)/float64(totalPossible)*1000) / 10
		}

		result := &models.Result{
			QuizID:        quizID,
			QuizTitle:     quiz.Title,
			UserID:        entry.UserID,
			Username:      entry.Username,
			Score:         entry.Score,
			TotalPossible: totalPossible,
			Percentage:    percentage,
			Mode:          models.ResultModeArena,
			CompletedAt:   completedAt,
		}

		if err := s.results.InsertResult(result); err != nil {
			log.Printf("[Arena] error saving result for %s in quiz %d: %v", entry.Username, quizID, err)
			continue
		}
		saved++
		log.Printf("[Arena] saved result for %s: %d/%d (%.1f%%)", entry.Username, entry.Score, totalPossible, percentage)
	}

	log.Printf("[Arena] saved %d results for quiz %d", saved, quizID)
}

func (s *ArenaService) ensureSessionLocked(quizID uint) (*liveSession, error) {
	if sess, ok := s.sessions[quizID]; ok {
		return sess, nil
	}

	// First lobby access creates the session; the quiz creator is the
	// host. The store lookup happens under the lock, which is fine for
	// the handful of short-lived sessions this serves.
	quiz, err := s.quizzes.GetQuizWithQuestions(quizID)
	if err != nil {
		return nil, errs.NotFound("quiz not found")
	}
	return s.newSessionLocked(quizID, quiz.UserID), nil
}

func (s *ArenaService) newSessionLocked(quizID, hostID uint) *liveSession {
	sess := &liveSession{
		quizID:          quizID,
		hostID:          hostID,
		phase:           PhaseLobby,
		currentQuestion: -1,
		players:         make(map[uint]*playerEntry),
		scores:          make(map[uint]*scoreEntry),
	}
	s.sessions[quizID] = sess
	return sess
}

func (s *ArenaService) sessionStateLocked(sess *liveSession) *SessionState {
	return &SessionState{
		QuizID:          sess.quizID,
		HostID:          sess.hostID,
		Phase:           sess.phase,
		CurrentQuestion: sess.currentQuestion,
		Players:         s.rosterLocked(sess),
	}
}

// rosterLocked lists connected participants in join order.
func (s *ArenaService) rosterLocked(sess *liveSession) []RosterEntry {
	roster := make([]RosterEntry, 0, len(sess.players))
	for userID, entry := range sess.players {
		roster = append(roster, RosterEntry{UserID: userID, Username: entry.username})
	}
	sort.Slice(roster, func(i, j int) bool {
		oi, oj := 0, 0
		if e, ok := sess.scores[roster[i].UserID]; ok {
			oi = e.order
		}
		if e, ok := sess.scores[roster[j].UserID]; ok {
			oj = e.order
		}
		return oi < oj
	})
	return roster
}

// snapshotLocked orders the ledger by score descending with join order as
// the stable tie-break. Disconnected participants keep their entries and
// show up with their last known name, or "Unknown" if they never joined.
func (s *ArenaService) snapshotLocked(sess *liveSession) []LeaderboardEntry {
	type row struct {
		userID uint
		score  int
		order  int
	}
	rows := make([]row, 0, len(sess.scores))
	for userID, entry := range sess.scores {
		rows = append(rows, row{userID: userID, score: entry.score, order: entry.order})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		return rows[i].order < rows[j].order
	})

	board := make([]LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		username := "Unknown"
		if p, ok := sess.players[r.userID]; ok {
			username = p.username
		}
		board = append(board, LeaderboardEntry{UserID: r.userID, Username: username, Score: r.score})
	}
	return board
}
