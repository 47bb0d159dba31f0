package services

import (
	"encoding/json"
	"testing"
	"time"

	"fluxquiz/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(quizzes ...*models.Quiz) *Hub {
	store := &fakeQuizStore{quizzes: make(map[uint]*models.Quiz)}
	for _, q := range quizzes {
		store.quizzes[q.ID] = q
	}
	hub := NewHub()
	arena := NewArenaService(hub, store, &fakeResultStore{})
	arena.sleep = func(time.Duration) {}
	hub.BindArena(arena)
	return hub
}

// newHubClient registers a client directly, bypassing the Run loop and
// the socket pumps.
func newHubClient(hub *Hub, id string) *Client {
	client := &Client{hub: hub, id: id, send: make(chan []byte, 16)}
	hub.mutex.Lock()
	hub.clients[client] = true
	hub.mutex.Unlock()
	return client
}

func receivedEvents(t *testing.T, c *Client) []string {
	t.Helper()
	var names []string
	for {
		select {
		case raw := <-c.send:
			var msg Message
			require.NoError(t, json.Unmarshal(raw, &msg))
			names = append(names, msg.Type)
		default:
			return names
		}
	}
}

func joinMessage(t *testing.T, quizID, userID uint, username string) Message {
	t.Helper()
	raw, err := json.Marshal(joinLobbyPayload{QuizID: quizID, UserID: userID, Username: username})
	require.NoError(t, err)
	return Message{Type: "join_lobby", Payload: raw}
}

func boundRoom(hub *Hub, c *Client) uint {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return c.quizID
}

func TestJoinLobbyDeliversRosterToJoiner(t *testing.T) {
	hub := newTestHub(twoQuestionQuiz())
	client := newHubClient(hub, "c1")

	client.handleMessage(joinMessage(t, 7, 10, "alice"))

	names := receivedEvents(t, client)
	assert.Contains(t, names, EventPlayerList, "the joiner is in the room before the roster broadcast")
	assert.Contains(t, names, EventJoined)
	assert.Equal(t, uint(7), boundRoom(hub, client))
}

func TestJoinLobbyFailureLeavesClientUnbound(t *testing.T) {
	hub := newTestHub(twoQuestionQuiz())
	client := newHubClient(hub, "c1")

	client.handleMessage(joinMessage(t, 7, 10, ""))

	assert.Equal(t, []string{EventError}, receivedEvents(t, client))
	assert.Zero(t, boundRoom(hub, client))
}

func TestLeaveLobbyUnbindsRoom(t *testing.T) {
	hub := newTestHub(twoQuestionQuiz())
	client := newHubClient(hub, "c1")

	client.handleMessage(joinMessage(t, 7, 10, "alice"))
	receivedEvents(t, client)

	raw, err := json.Marshal(leaveLobbyPayload{QuizID: 7, UserID: 10})
	require.NoError(t, err)
	client.handleMessage(Message{Type: "leave_lobby", Payload: raw})
	receivedEvents(t, client) // the leave's roster broadcast still reaches the leaver

	assert.Zero(t, boundRoom(hub, client))

	hub.BroadcastToSession(7, EventNewQuestion, gin.H{})
	assert.Empty(t, receivedEvents(t, client), "left clients receive no room broadcasts")
}
