package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agreet/backend/config"
	"github.com/agreet/backend/internal/auth"
	"github.com/agreet/backend/internal/models"
)

type memStore struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]*models.Session
	participants map[uuid.UUID]map[uuid.UUID]bool
}

func newMemStore() *memStore {
	return &memStore{
		sessions:     make(map[uuid.UUID]*models.Session),
		participants: make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (m *memStore) seed(s *models.Session, participants ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	m.participants[s.ID] = make(map[uuid.UUID]bool)
	for _, p := range participants {
		m.participants[s.ID][p] = true
	}
}

func (m *memStore) Create(_ context.Context, creatorID, categoryID uuid.UUID, quorumN int) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, err := GenerateInviteCode()
	if err != nil {
		return nil, err
	}
	s := &models.Session{
		ID:               uuid.New(),
		CreatorID:        creatorID,
		CategoryID:       categoryID,
		QuorumN:          quorumN,
		Status:           models.StatusOpen,
		InviteCode:       code,
		ParticipantCount: 1,
	}
	m.sessions[s.ID] = s
	m.participants[s.ID] = map[uuid.UUID]bool{creatorID: true}
	return s, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	snapshot := *s
	return &snapshot, nil
}

func (m *memStore) GetByInviteCode(_ context.Context, code string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Prefer the open session holding the code, mirroring the partial
	// unique index plus latest-first lookup.
	var latest *models.Session
	for _, s := range m.sessions {
		if s.InviteCode != code {
			continue
		}
		if s.Status == models.StatusOpen {
			snapshot := *s
			return &snapshot, nil
		}
		latest = s
	}
	if latest == nil {
		return nil, models.ErrNotFound
	}
	snapshot := *latest
	return &snapshot, nil
}

func (m *memStore) IsParticipant(_ context.Context, sessionID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participants[sessionID][userID], nil
}

func (m *memStore) ParticipantCount(_ context.Context, sessionID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.participants[sessionID]), nil
}

func (m *memStore) AddParticipant(_ context.Context, sessionID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.participants[sessionID][userID] {
		return models.ErrAlreadyJoined
	}
	m.participants[sessionID][userID] = true
	m.sessions[sessionID].ParticipantCount = len(m.participants[sessionID])
	return nil
}

func (m *memStore) ListByUser(_ context.Context, userID uuid.UUID, statuses []models.SessionStatus) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for id, s := range m.sessions {
		if !m.participants[id][userID] {
			continue
		}
		for _, st := range statuses {
			if s.Status == st {
				out = append(out, *s)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) TryClose(_ context.Context, sessionID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Status != models.StatusOpen {
		return false, nil
	}
	s.Status = models.StatusClosed
	return true, nil
}

type capturedEvent struct {
	sessionID uuid.UUID
	event     string
}

type memEvents struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (e *memEvents) PublishSessionEvent(sessionID uuid.UUID, event string, _ interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, capturedEvent{sessionID: sessionID, event: event})
}

func (e *memEvents) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.events {
		out = append(out, ev.event)
	}
	return out
}

var testPolicy = config.SessionConfig{MinQuorum: 2, MaxQuorum: 5, Capacity: 4}

func newTestRouter(store Store, events Events, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, testPolicy, events, zap.NewNop())
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(auth.ContextUserID, userID) })
	r.POST("/sessions", h.Create)
	r.POST("/sessions/join", h.Join)
	r.GET("/sessions", h.List)
	r.GET("/sessions/:id", h.Get)
	r.POST("/sessions/:id/close", h.Close)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateSession(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	r := newTestRouter(store, nil, userID)

	w := doJSON(t, r, http.MethodPost, "/sessions", CreateRequest{CategoryID: uuid.New(), QuorumN: 3})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data models.Session `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, userID, resp.Data.CreatorID)
	assert.Equal(t, 3, resp.Data.QuorumN)
	assert.Len(t, resp.Data.InviteCode, InviteCodeLength)
	assert.Equal(t, 1, resp.Data.ParticipantCount, "creator is auto-joined")
}

func TestCreateSessionQuorumBounds(t *testing.T) {
	store := newMemStore()
	r := newTestRouter(store, nil, uuid.New())

	for _, quorum := range []int{1, 6, -2} {
		w := doJSON(t, r, http.MethodPost, "/sessions", CreateRequest{CategoryID: uuid.New(), QuorumN: quorum})
		assert.Equal(t, http.StatusBadRequest, w.Code, "quorum_n=%d", quorum)
	}
}

func TestJoinSession(t *testing.T) {
	store := newMemStore()
	events := &memEvents{}
	creator, joiner := uuid.New(), uuid.New()
	session := &models.Session{ID: uuid.New(), CreatorID: creator, Status: models.StatusOpen, InviteCode: "ABCDEF"}
	store.seed(session, creator)
	r := newTestRouter(store, events, joiner)

	w := doJSON(t, r, http.MethodPost, "/sessions/join", JoinRequest{InviteCode: "ABCDEF"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, events.names(), "participant_joined")

	ok, err := store.IsParticipant(context.Background(), session.ID, joiner)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJoinSessionUnknownCode(t *testing.T) {
	store := newMemStore()
	r := newTestRouter(store, nil, uuid.New())

	w := doJSON(t, r, http.MethodPost, "/sessions/join", JoinRequest{InviteCode: "ZZZZZZ"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJoinSessionPreconditions(t *testing.T) {
	optionID := uuid.New()
	cases := []struct {
		name   string
		status models.SessionStatus
	}{
		{"matched", models.StatusMatched},
		{"closed", models.StatusClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			creator := uuid.New()
			session := &models.Session{ID: uuid.New(), CreatorID: creator, Status: tc.status, InviteCode: "ABCDEF"}
			if tc.status == models.StatusMatched {
				session.MatchedOptionID = &optionID
			}
			store.seed(session, creator)
			r := newTestRouter(store, nil, uuid.New())

			w := doJSON(t, r, http.MethodPost, "/sessions/join", JoinRequest{InviteCode: "ABCDEF"})
			assert.Equal(t, http.StatusConflict, w.Code)
		})
	}
}

func TestJoinSessionFull(t *testing.T) {
	store := newMemStore()
	creator := uuid.New()
	session := &models.Session{ID: uuid.New(), CreatorID: creator, Status: models.StatusOpen, InviteCode: "ABCDEF"}
	roster := []uuid.UUID{creator, uuid.New(), uuid.New(), uuid.New()}
	store.seed(session, roster...)
	r := newTestRouter(store, nil, uuid.New())

	w := doJSON(t, r, http.MethodPost, "/sessions/join", JoinRequest{InviteCode: "ABCDEF"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestJoinSessionTwice(t *testing.T) {
	store := newMemStore()
	creator := uuid.New()
	session := &models.Session{ID: uuid.New(), CreatorID: creator, Status: models.StatusOpen, InviteCode: "ABCDEF"}
	store.seed(session, creator)
	r := newTestRouter(store, nil, creator)

	w := doJSON(t, r, http.MethodPost, "/sessions/join", JoinRequest{InviteCode: "ABCDEF"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetSessionParticipantOnly(t *testing.T) {
	store := newMemStore()
	creator := uuid.New()
	session := &models.Session{ID: uuid.New(), CreatorID: creator, Status: models.StatusOpen, InviteCode: "ABCDEF"}
	store.seed(session, creator)

	w := doJSON(t, newTestRouter(store, nil, creator), http.MethodGet, "/sessions/"+session.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, newTestRouter(store, nil, uuid.New()), http.MethodGet, "/sessions/"+session.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListSessionsFilters(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	optionID := uuid.New()
	open := &models.Session{ID: uuid.New(), CreatorID: userID, Status: models.StatusOpen, InviteCode: "AAAAAA"}
	matched := &models.Session{ID: uuid.New(), CreatorID: userID, Status: models.StatusMatched, MatchedOptionID: &optionID, InviteCode: "BBBBBB"}
	store.seed(open, userID)
	store.seed(matched, userID)
	r := newTestRouter(store, nil, userID)

	var resp struct {
		Data []models.Session `json:"data"`
	}
	w := doJSON(t, r, http.MethodGet, "/sessions?status=open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, open.ID, resp.Data[0].ID)

	w = doJSON(t, r, http.MethodGet, "/sessions?status=finished", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, matched.ID, resp.Data[0].ID)

	w = doJSON(t, r, http.MethodGet, "/sessions?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCloseSession(t *testing.T) {
	store := newMemStore()
	events := &memEvents{}
	creator := uuid.New()
	session := &models.Session{ID: uuid.New(), CreatorID: creator, Status: models.StatusOpen, InviteCode: "ABCDEF"}
	store.seed(session, creator)
	r := newTestRouter(store, events, creator)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/sessions/%s/close", session.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data CloseResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Committed)
	assert.Equal(t, models.StatusClosed, resp.Data.Session.Status)
	assert.Contains(t, events.names(), "session_closed")
}

func TestCloseSessionNotCreator(t *testing.T) {
	store := newMemStore()
	creator, other := uuid.New(), uuid.New()
	session := &models.Session{ID: uuid.New(), CreatorID: creator, Status: models.StatusOpen, InviteCode: "ABCDEF"}
	store.seed(session, creator, other)
	r := newTestRouter(store, nil, other)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/sessions/%s/close", session.ID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCloseSessionLostRace(t *testing.T) {
	store := newMemStore()
	events := &memEvents{}
	creator := uuid.New()
	optionID := uuid.New()
	session := &models.Session{ID: uuid.New(), CreatorID: creator, Status: models.StatusMatched, MatchedOptionID: &optionID, InviteCode: "ABCDEF"}
	store.seed(session, creator)
	r := newTestRouter(store, events, creator)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/sessions/%s/close", session.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, "losing the close race is not an error")

	var resp struct {
		Data CloseResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Committed)
	assert.Equal(t, models.StatusMatched, resp.Data.Session.Status)
	assert.Empty(t, events.names(), "no close event after a lost race")
}
