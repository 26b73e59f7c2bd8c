package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkolar7/paperback/internal/domain"
)

// In-memory repository fakes. They mirror the consistency rules the
// postgres implementations get from the database: idempotent
// conversation create, summary update + un-hide as one step, and
// strictly increasing append timestamps per store.

type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*domain.User
	touched []uuid.UUID
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	f := &fakeUserRepo{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id], nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) Search(_ context.Context, term string, excludeID uuid.UUID, limit int) ([]domain.PublicUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PublicUser
	for _, u := range f.users {
		if u.ID == excludeID {
			continue
		}
		if strings.Contains(u.Username, term) || strings.Contains(u.DisplayName, term) {
			out = append(out, u.Public())
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeUserRepo) TouchLastActive(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.LastActiveAt = time.Now()
	}
	f.touched = append(f.touched, id)
	return nil
}

type fakeConversationRepo struct {
	mu    sync.Mutex
	convs map[uuid.UUID]*domain.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{convs: make(map[uuid.UUID]*domain.Conversation)}
}

func (f *fakeConversationRepo) CreateIfAbsent(_ context.Context, conv *domain.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.User1ID == conv.User1ID && c.User2ID == conv.User2ID {
			return nil // first writer wins
		}
	}
	cp := *conv
	f.convs[conv.ID] = &cp
	return nil
}

func (f *fakeConversationRepo) GetByUsers(_ context.Context, user1ID, user2ID uuid.UUID) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.convs {
		if c.User1ID == user1ID && c.User2ID == user2ID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeConversationRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConversationRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Conversation
	for _, c := range f.convs {
		if !c.HasParticipant(userID) || c.HiddenForUser(userID) {
			continue
		}
		out = append(out, *c)
	}
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j].LastMessageAt.After(out[i].LastMessageAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) Hide(_ context.Context, conversationID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[conversationID]
	if !ok {
		return nil
	}
	if !c.HiddenForUser(userID) {
		c.HiddenFor = append(c.HiddenFor, userID)
	}
	return nil
}

type fakeMessageRepo struct {
	mu        sync.Mutex
	messages  []domain.Message
	convRepo  *fakeConversationRepo
	clock     time.Time
	appendErr error
}

func newFakeMessageRepo(convRepo *fakeConversationRepo) *fakeMessageRepo {
	return &fakeMessageRepo{convRepo: convRepo, clock: time.Now()}
}

func (f *fakeMessageRepo) Append(_ context.Context, msg *domain.Message, recipientID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}

	f.clock = f.clock.Add(time.Millisecond)
	msg.CreatedAt = f.clock
	f.messages = append(f.messages, *msg)

	f.convRepo.mu.Lock()
	defer f.convRepo.mu.Unlock()
	conv, ok := f.convRepo.convs[msg.ConversationID]
	if !ok {
		return nil
	}
	conv.LastMessageAt = msg.CreatedAt
	conv.LastMessage = &domain.LastMessage{
		Content:  msg.Preview(),
		SenderID: msg.SenderID,
		Type:     msg.Type,
	}
	var kept []uuid.UUID
	for _, h := range conv.HiddenFor {
		if h != recipientID {
			kept = append(kept, h)
		}
	}
	conv.HiddenFor = kept
	return nil
}

func (f *fakeMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].ID == id {
			cp := f.messages[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeMessageRepo) ListByConversation(_ context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []domain.Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID {
			all = append(all, m)
		}
	}
	if before != nil {
		for i, m := range all {
			if m.ID == *before {
				all = all[:i]
				break
			}
		}
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

type fakeBlockRepo struct {
	mu     sync.Mutex
	blocks map[[2]uuid.UUID]struct{}
}

func newFakeBlockRepo() *fakeBlockRepo {
	return &fakeBlockRepo{blocks: make(map[[2]uuid.UUID]struct{})}
}

func (f *fakeBlockRepo) Block(_ context.Context, blockerID, blockedID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[[2]uuid.UUID{blockerID, blockedID}] = struct{}{}
	return nil
}

func (f *fakeBlockRepo) Unblock(_ context.Context, blockerID, blockedID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blocks, [2]uuid.UUID{blockerID, blockedID})
	return nil
}

func (f *fakeBlockRepo) IsBlocked(_ context.Context, a, b uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blocks[[2]uuid.UUID{a, b}]; ok {
		return true, nil
	}
	_, ok := f.blocks[[2]uuid.UUID{b, a}]
	return ok, nil
}

func (f *fakeBlockRepo) ListBlocked(_ context.Context, blockerID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for k := range f.blocks {
		if k[0] == blockerID {
			out = append(out, k[1])
		}
	}
	return out, nil
}

type activityCall struct {
	msg         domain.Message
	recipientID uuid.UUID
}

type recordingNotifier struct {
	mu        sync.Mutex
	persisted []domain.Message
	activity  []activityCall
}

func (n *recordingNotifier) MessagePersisted(msg *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.persisted = append(n.persisted, *msg)
}

func (n *recordingNotifier) ConversationActivity(msg *domain.Message, recipientID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activity = append(n.activity, activityCall{msg: *msg, recipientID: recipientID})
}
