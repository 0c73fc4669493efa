package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hiroq/techbar/internal/profile"
)

// MockDriver is a mock for Driver.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) GetDB() *sql.DB { return nil }
func (m *MockDriver) Close() error   { return nil }

func (m *MockDriver) IsInitialized(ctx context.Context) (bool, error) { return true, nil }
func (m *MockDriver) Migrate(ctx context.Context) error               { return nil }

func (m *MockDriver) CreateSession(ctx context.Context, create *Session) (*Session, error) {
	args := m.Called(ctx, create)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockDriver) ListSessions(ctx context.Context, find *FindSession) ([]*Session, error) {
	args := m.Called(ctx, find)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Session), args.Error(1)
}

func (m *MockDriver) UpdateSession(ctx context.Context, update *UpdateSession) (*Session, error) {
	args := m.Called(ctx, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockDriver) ListActiveUsers(ctx context.Context, activeSince time.Time) ([]*ActiveUser, error) {
	args := m.Called(ctx, activeSince)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ActiveUser), args.Error(1)
}

func (m *MockDriver) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	args := m.Called(ctx, create)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Conversation), args.Error(1)
}

func (m *MockDriver) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	args := m.Called(ctx, find)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Conversation), args.Error(1)
}

func (m *MockDriver) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	args := m.Called(ctx, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Conversation), args.Error(1)
}

func (m *MockDriver) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	args := m.Called(ctx, create)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Message), args.Error(1)
}

func (m *MockDriver) ListRecentMessages(ctx context.Context, limit int) ([]*Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Message), args.Error(1)
}

func (m *MockDriver) SearchSimilarMessages(ctx context.Context, opts *SimilarSearchOptions) ([]*SimilarMessage, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*SimilarMessage), args.Error(1)
}

// MockEmbedder is a mock for Embedder.
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func TestGetOrCreateSession_ReusesActiveSession(t *testing.T) {
	ctx := context.Background()
	driver := &MockDriver{}
	s := New(driver, nil)

	existing := &Session{ID: 7, SessionKey: "abc123", DisplayName: "ゲスト1", IsActive: true, LastActiveTs: 100}
	driver.On("ListSessions", ctx, mock.MatchedBy(func(find *FindSession) bool {
		return find.SessionKey != nil && *find.SessionKey == "abc123" &&
			find.DisplayName != nil && *find.DisplayName == "ゲスト1" &&
			find.IsActive != nil && *find.IsActive
	})).Return([]*Session{existing}, nil)

	refreshed := &Session{ID: 7, SessionKey: "abc123", DisplayName: "ゲスト1", IsActive: true, LastActiveTs: time.Now().Unix()}
	driver.On("UpdateSession", ctx, mock.MatchedBy(func(update *UpdateSession) bool {
		return update.ID == 7 && update.LastActiveTs != nil
	})).Return(refreshed, nil)

	first, err := s.GetOrCreateSession(ctx, "abc123", "ゲスト1")
	require.NoError(t, err)
	second, err := s.GetOrCreateSession(ctx, "abc123", "ゲスト1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.GreaterOrEqual(t, second.LastActiveTs, existing.LastActiveTs)
	driver.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestGetOrCreateSession_CreatesWhenAbsent(t *testing.T) {
	ctx := context.Background()
	driver := &MockDriver{}
	s := New(driver, nil)

	driver.On("ListSessions", ctx, mock.Anything).Return([]*Session{}, nil)
	driver.On("CreateSession", ctx, mock.MatchedBy(func(create *Session) bool {
		return create.SessionKey == "k1" && create.DisplayName == "Alice" && create.IsActive && create.UID != ""
	})).Return(&Session{ID: 1, UID: "u1", SessionKey: "k1", DisplayName: "Alice", IsActive: true}, nil)

	session, err := s.GetOrCreateSession(ctx, "k1", "Alice")
	require.NoError(t, err)
	assert.Equal(t, int32(1), session.ID)
}

func TestGetOrCreateSession_SurvivesFailedTouch(t *testing.T) {
	ctx := context.Background()
	driver := &MockDriver{}
	s := New(driver, nil)

	existing := &Session{ID: 3, SessionKey: "k", DisplayName: "Bob", IsActive: true}
	driver.On("ListSessions", ctx, mock.Anything).Return([]*Session{existing}, nil)
	driver.On("UpdateSession", ctx, mock.Anything).Return(nil, errors.New("boom"))

	session, err := s.GetOrCreateSession(ctx, "k", "Bob")
	require.NoError(t, err)
	assert.Equal(t, int32(3), session.ID)
}

func TestGetActiveUsers_DegradesToEmptyRoom(t *testing.T) {
	ctx := context.Background()
	driver := &MockDriver{}
	s := New(driver, nil)

	driver.On("ListActiveUsers", ctx, mock.Anything).Return(nil, errors.New("db down"))

	users := s.GetActiveUsers(ctx, 15*time.Minute)
	assert.Empty(t, users)
}

func TestGetActiveUsers_CutoffRespectsTimeout(t *testing.T) {
	ctx := context.Background()
	driver := &MockDriver{}
	s := New(driver, nil)

	var capturedSince time.Time
	driver.On("ListActiveUsers", ctx, mock.MatchedBy(func(since time.Time) bool {
		capturedSince = since
		return true
	})).Return([]*ActiveUser{}, nil)

	s.GetActiveUsers(ctx, 15*time.Minute)

	// A user last active 20 minutes ago falls before the cutoff; one
	// active 5 minutes ago falls after it.
	assert.True(t, time.Now().Add(-20*time.Minute).Before(capturedSince))
	assert.True(t, time.Now().Add(-5*time.Minute).After(capturedSince))
}

func TestGetActiveUsers_ProfileSuppliesDefaultTimeout(t *testing.T) {
	ctx := context.Background()
	driver := &MockDriver{}
	s := New(driver, &profile.Profile{PresenceTimeout: 30 * time.Minute})

	var capturedSince time.Time
	driver.On("ListActiveUsers", ctx, mock.MatchedBy(func(since time.Time) bool {
		capturedSince = since
		return true
	})).Return([]*ActiveUser{}, nil)

	s.GetActiveUsers(ctx, 0)

	assert.True(t, time.Now().Add(-35*time.Minute).Before(capturedSince))
	assert.True(t, time.Now().Add(-25*time.Minute).After(capturedSince))
}

func TestGetRecentMessages_FormatsChronologically(t *testing.T) {
	ctx := context.Background()
	driver := &MockDriver{}
	s := New(driver, nil)

	// Driver returns newest first.
	driver.On("ListRecentMessages", ctx, 5).Return([]*Message{
		{Content: "いらっしゃいませ", Type: MessageTypeSystem, CreatedTs: 2},
		{Content: "Goの質問です", Type: MessageTypeUser, Metadata: MessageMetadata{DisplayName: "Bob"}, CreatedTs: 1},
	}, nil)

	lines := s.GetRecentMessages(ctx, 5)
	require.Len(t, lines, 2)
	assert.Equal(t, "Bobさん: Goの質問です", lines[0])
	assert.Equal(t, "マスター: いらっしゃいませ", lines[1])
}

func TestGetOrCreateConversation_ReusesNonArchived(t *testing.T) {
	ctx := context.Background()
	driver := &MockDriver{}
	s := New(driver, nil)

	existing := &Conversation{ID: 11, SessionID: 7, UpdatedTs: 100}
	driver.On("ListConversations", ctx, mock.MatchedBy(func(find *FindConversation) bool {
		return find.SessionID != nil && *find.SessionID == 7 &&
			find.IsArchived != nil && !*find.IsArchived
	})).Return([]*Conversation{existing}, nil)
	driver.On("UpdateConversation", ctx, mock.MatchedBy(func(update *UpdateConversation) bool {
		return update.ID == 11 && update.UpdatedTs != nil
	})).Return(&Conversation{ID: 11, SessionID: 7, UpdatedTs: time.Now().Unix()}, nil)

	conversation, err := s.GetOrCreateConversation(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int32(11), conversation.ID)
	driver.AssertNotCalled(t, "CreateConversation", mock.Anything, mock.Anything)
}

func TestGetOrCreateConversation_CreatesLazily(t *testing.T) {
	ctx := context.Background()
	driver := &MockDriver{}
	s := New(driver, nil)

	driver.On("ListConversations", ctx, mock.Anything).Return([]*Conversation{}, nil)
	driver.On("CreateConversation", ctx, mock.MatchedBy(func(create *Conversation) bool {
		return create.SessionID == 7 && create.Title != "" && !create.IsArchived
	})).Return(&Conversation{ID: 12, SessionID: 7}, nil)

	conversation, err := s.GetOrCreateConversation(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int32(12), conversation.ID)
}

func TestSaveMessage_EmbedsUserMessagesOnly(t *testing.T) {
	ctx := context.Background()
	driver := &MockDriver{}
	embedder := &MockEmbedder{}
	s := New(driver, nil)
	s.SetEmbedder(embedder)

	embedder.On("Embedding", ctx, "hello").Return([]float32{0.1, 0.2}, nil)
	driver.On("CreateMessage", ctx, mock.MatchedBy(func(create *Message) bool {
		return create.Type == MessageTypeUser && len(create.Embedding) == 2
	})).Return(&Message{ID: 1, SequenceNum: 1}, nil).Once()

	_, err := s.SaveMessage(ctx, 5, "hello", MessageTypeUser, MessageMetadata{DisplayName: "Alice"})
	require.NoError(t, err)

	driver.On("CreateMessage", ctx, mock.MatchedBy(func(create *Message) bool {
		return create.Type == MessageTypeSystem && create.Embedding == nil
	})).Return(&Message{ID: 2, SequenceNum: 2}, nil).Once()

	_, err = s.SaveMessage(ctx, 5, "welcome", MessageTypeSystem, MessageMetadata{})
	require.NoError(t, err)

	embedder.AssertNumberOfCalls(t, "Embedding", 1)
}

func TestSaveMessage_EmbeddingFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	driver := &MockDriver{}
	embedder := &MockEmbedder{}
	s := New(driver, nil)
	s.SetEmbedder(embedder)

	embedder.On("Embedding", ctx, "hello").Return(nil, errors.New("quota exceeded"))
	driver.On("CreateMessage", ctx, mock.MatchedBy(func(create *Message) bool {
		return create.Embedding == nil
	})).Return(&Message{ID: 1, SequenceNum: 1}, nil)

	message, err := s.SaveMessage(ctx, 5, "hello", MessageTypeUser, MessageMetadata{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), message.ID)
}

func TestSearchSimilarMessages_UnsupportedDriverYieldsNothing(t *testing.T) {
	ctx := context.Background()
	driver := &MockDriver{}
	s := New(driver, nil)

	driver.On("SearchSimilarMessages", ctx, mock.Anything).Return(nil, ErrVectorSearchUnsupported)

	results, err := s.SearchSimilarMessages(ctx, &SimilarSearchOptions{Embedding: []float32{0.5}})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestFormatTranscriptLine(t *testing.T) {
	tests := []struct {
		name     string
		message  *Message
		expected string
	}{
		{
			name:     "user message",
			message:  &Message{Type: MessageTypeUser, Content: "こんばんは", Metadata: MessageMetadata{DisplayName: "Bob"}},
			expected: "Bobさん: こんばんは",
		},
		{
			name:     "persona message",
			message:  &Message{Type: MessageTypeSystem, Content: "いらっしゃいませ"},
			expected: "マスター: いらっしゃいませ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatTranscriptLine(tt.message))
		})
	}
}
