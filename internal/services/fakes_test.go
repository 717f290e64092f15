package services

import (
	"context"
	"errors"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boardsync/apiserver/internal/store"
	"github.com/boardsync/apiserver/types"
	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for the Postgres repositories. WithTx
// restores a snapshot when fn fails, which is enough to observe rollbacks.
type memStore struct {
	mu          sync.Mutex
	clock       time.Time
	users       map[string]types.User
	boards      map[string]types.Board
	columns     map[string]types.Column
	cards       map[string]types.Card
	invitations map[string]types.Invitation

	// failSetColumn makes cards.SetColumn fail once set.
	failSetColumn  error
	setColumnCalls int
}

func newMemStore() *memStore {
	return &memStore{
		clock:       time.Now(),
		users:       map[string]types.User{},
		boards:      map[string]types.Board{},
		columns:     map[string]types.Column{},
		cards:       map[string]types.Card{},
		invitations: map[string]types.Invitation{},
	}
}

// tick returns a strictly increasing timestamp. Callers hold mu.
func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

type memSnapshot struct {
	users       map[string]types.User
	boards      map[string]types.Board
	columns     map[string]types.Column
	cards       map[string]types.Card
	invitations map[string]types.Invitation
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		users:       make(map[string]types.User, len(s.users)),
		boards:      make(map[string]types.Board, len(s.boards)),
		columns:     make(map[string]types.Column, len(s.columns)),
		cards:       make(map[string]types.Card, len(s.cards)),
		invitations: make(map[string]types.Invitation, len(s.invitations)),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.boards {
		snap.boards[k] = cloneBoard(v)
	}
	for k, v := range s.columns {
		snap.columns[k] = cloneColumn(v)
	}
	for k, v := range s.cards {
		snap.cards[k] = v
	}
	for k, v := range s.invitations {
		snap.invitations[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap.users
	s.boards = snap.boards
	s.columns = snap.columns
	s.cards = snap.cards
	s.invitations = snap.invitations
}

func cloneBoard(b types.Board) types.Board {
	b.OwnerIDs = slices.Clone(b.OwnerIDs)
	b.MemberIDs = slices.Clone(b.MemberIDs)
	b.ColumnOrderIDs = slices.Clone(b.ColumnOrderIDs)
	return b
}

func cloneColumn(c types.Column) types.Column {
	c.CardOrderIDs = slices.Clone(c.CardOrderIDs)
	return c
}

func nonNilIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

type memTx struct {
	store *memStore
}

func (t memTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

type memUsers struct{ *memStore }

func (s memUsers) GetByID(_ context.Context, id string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s memUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (s memUsers) Create(_ context.Context, user types.User) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return types.User{}, store.ErrConflict
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = s.tick()
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = user
	return user, nil
}

func (s memUsers) update(id string, fn func(u *types.User)) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = s.tick()
	s.users[id] = u
	return u, nil
}

func (s memUsers) SetEmailVerifyToken(_ context.Context, id string, token *string) error {
	_, err := s.update(id, func(u *types.User) { u.EmailVerifyToken = token })
	return err
}

func (s memUsers) MarkEmailVerified(_ context.Context, id string) (types.User, error) {
	return s.update(id, func(u *types.User) {
		u.EmailVerifyToken = nil
		u.VerifyStatus = types.UserVerified
	})
}

func (s memUsers) SetForgotPasswordToken(_ context.Context, id string, token *string) error {
	_, err := s.update(id, func(u *types.User) { u.ForgotPasswordToken = token })
	return err
}

func (s memUsers) ResetPassword(_ context.Context, id, passwordHash string) error {
	_, err := s.update(id, func(u *types.User) {
		u.PasswordHash = passwordHash
		u.ForgotPasswordToken = nil
	})
	return err
}

type memBoards struct{ *memStore }

func (s memBoards) Create(_ context.Context, board types.Board) (types.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if board.ID == "" {
		board.ID = uuid.NewString()
	}
	board.OwnerIDs = nonNilIDs(board.OwnerIDs)
	board.MemberIDs = nonNilIDs(board.MemberIDs)
	board.ColumnOrderIDs = nonNilIDs(board.ColumnOrderIDs)
	board.CreatedAt = s.tick()
	board.UpdatedAt = board.CreatedAt
	s.boards[board.ID] = cloneBoard(board)
	return board, nil
}

func (s memBoards) GetByID(_ context.Context, id string) (types.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id]
	if !ok || b.Destroyed {
		return types.Board{}, store.ErrNotFound
	}
	return cloneBoard(b), nil
}

func (s memBoards) ListForUser(_ context.Context, userID string, offset, limit int) ([]types.Board, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []types.Board
	for _, b := range s.boards {
		if !b.Destroyed && b.HasAccess(userID) {
			matched = append(matched, cloneBoard(b))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UpdatedAt.After(matched[j].UpdatedAt) })
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

func (s memBoards) update(id string, fn func(b *types.Board)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id]
	if !ok || b.Destroyed {
		return store.ErrNotFound
	}
	fn(&b)
	b.UpdatedAt = s.tick()
	s.boards[id] = b
	return nil
}

func (s memBoards) SetColumnOrder(_ context.Context, id string, columnIDs []string) error {
	return s.update(id, func(b *types.Board) { b.ColumnOrderIDs = slices.Clone(nonNilIDs(columnIDs)) })
}

func (s memBoards) AppendColumn(_ context.Context, id, columnID string) error {
	return s.update(id, func(b *types.Board) { b.ColumnOrderIDs = append(slices.Clone(b.ColumnOrderIDs), columnID) })
}

func (s memBoards) AddMember(_ context.Context, id, userID string) error {
	err := s.update(id, func(b *types.Board) {
		if !b.HasAccess(userID) {
			b.MemberIDs = append(slices.Clone(b.MemberIDs), userID)
		}
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func (s memBoards) SetCoverPhoto(_ context.Context, id, url string) error {
	return s.update(id, func(b *types.Board) { b.CoverPhoto = url })
}

func (s memBoards) Touch(_ context.Context, id string) error {
	return s.update(id, func(*types.Board) {})
}

type memColumns struct{ *memStore }

func (s memColumns) Create(_ context.Context, column types.Column) (types.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if column.ID == "" {
		column.ID = uuid.NewString()
	}
	column.CardOrderIDs = nonNilIDs(column.CardOrderIDs)
	column.CreatedAt = s.tick()
	column.UpdatedAt = column.CreatedAt
	s.columns[column.ID] = cloneColumn(column)
	return column, nil
}

func (s memColumns) GetByID(_ context.Context, id string) (types.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.columns[id]
	if !ok || c.Destroyed {
		return types.Column{}, store.ErrNotFound
	}
	return cloneColumn(c), nil
}

func (s memColumns) GetByIDForUpdate(ctx context.Context, id string) (types.Column, error) {
	return s.GetByID(ctx, id)
}

func (s memColumns) ListByBoard(_ context.Context, boardID string) ([]types.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	columns := make([]types.Column, 0)
	for _, c := range s.columns {
		if c.BoardID == boardID && !c.Destroyed {
			columns = append(columns, cloneColumn(c))
		}
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].CreatedAt.Before(columns[j].CreatedAt) })
	return columns, nil
}

func (s memColumns) update(id string, fn func(c *types.Column)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.columns[id]
	if !ok || c.Destroyed {
		return store.ErrNotFound
	}
	fn(&c)
	c.UpdatedAt = s.tick()
	s.columns[id] = c
	return nil
}

func (s memColumns) SetCardOrder(_ context.Context, id string, cardIDs []string) error {
	return s.update(id, func(c *types.Column) { c.CardOrderIDs = slices.Clone(nonNilIDs(cardIDs)) })
}

func (s memColumns) AppendCard(_ context.Context, id, cardID string) error {
	return s.update(id, func(c *types.Column) { c.CardOrderIDs = append(slices.Clone(c.CardOrderIDs), cardID) })
}

type memCards struct{ *memStore }

func (s memCards) Create(_ context.Context, card types.Card) (types.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	card.CreatedAt = s.tick()
	card.UpdatedAt = card.CreatedAt
	s.cards[card.ID] = card
	return card, nil
}

func (s memCards) GetByID(_ context.Context, id string) (types.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok || c.Destroyed {
		return types.Card{}, store.ErrNotFound
	}
	return c, nil
}

func (s memCards) ListByBoard(_ context.Context, boardID string) ([]types.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cards := make([]types.Card, 0)
	for _, c := range s.cards {
		if c.BoardID == boardID && !c.Destroyed {
			cards = append(cards, c)
		}
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].CreatedAt.Before(cards[j].CreatedAt) })
	return cards, nil
}

func (s memCards) SetColumn(_ context.Context, id, columnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setColumnCalls++
	if s.failSetColumn != nil {
		return s.failSetColumn
	}
	c, ok := s.cards[id]
	if !ok || c.Destroyed {
		return store.ErrNotFound
	}
	c.ColumnID = columnID
	c.UpdatedAt = s.tick()
	s.cards[id] = c
	return nil
}

type memInvitations struct{ *memStore }

func (s memInvitations) Create(_ context.Context, inv types.Invitation) (types.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.invitations {
		if existing.BoardID == inv.BoardID && existing.InviteeID == inv.InviteeID && existing.Status == types.InvitationPending {
			return types.Invitation{}, store.ErrConflict
		}
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.Status = types.InvitationPending
	inv.CreatedAt = s.tick()
	inv.UpdatedAt = inv.CreatedAt
	s.invitations[inv.ID] = inv
	return inv, nil
}

func (s memInvitations) GetByID(_ context.Context, id string) (types.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return types.Invitation{}, store.ErrNotFound
	}
	return inv, nil
}

func (s memInvitations) ListByInvitee(_ context.Context, inviteeID string) ([]types.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Invitation, 0)
	for _, inv := range s.invitations {
		if inv.InviteeID == inviteeID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s memInvitations) Resolve(_ context.Context, id string, status types.InvitationStatus) (types.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok || inv.Status != types.InvitationPending {
		return types.Invitation{}, store.ErrNotFound
	}
	inv.Status = status
	inv.UpdatedAt = s.tick()
	s.invitations[id] = inv
	return inv, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.BoardEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event types.BoardEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) ofType(t types.BoardEventType) []types.BoardEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []types.BoardEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type sentMail struct {
	kind  string
	to    string
	token string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (m *recordingMailer) SendVerifyEmail(_ context.Context, to, token string) error {
	return m.record("verify", to, token)
}

func (m *recordingMailer) SendForgotPassword(_ context.Context, to, token string) error {
	return m.record("forgot", to, token)
}

func (m *recordingMailer) record(kind, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: kind, to: to, token: token})
	return m.fail
}

func (m *recordingMailer) last(kind string) (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			return m.sent[i], true
		}
	}
	return sentMail{}, false
}

const coverBaseURL = "https://cdn.example.com/"

type memCoverStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleteErr error
}

func (m *memCoverStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return nil
}

func (m *memCoverStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

func (m *memCoverStorage) URL(key string) string {
	return coverBaseURL + key
}

func (m *memCoverStorage) KeyOf(objectURL string) (string, bool) {
	key, ok := strings.CutPrefix(objectURL, coverBaseURL)
	return key, ok && key != ""
}

func (m *memCoverStorage) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
