package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/chatline/internal/model"
	"github.com/chatline/internal/repository"
	"github.com/chatline/internal/ws"
)

// fakeUsers covers both the public lookup and the account store.
type fakeUsers struct {
	users map[string]*model.User
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*model.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetPublicByIDs(_ context.Context, ids []string) (map[string]model.UserPublic, error) {
	out := make(map[string]model.UserPublic)
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = u.ToPublic()
		}
	}
	return out, nil
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByEmailOrMobile(_ context.Context, email, mobile string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email || (mobile != "" && u.Mobile == mobile) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) SetVerified(_ context.Context, email string, verified bool) error {
	for _, u := range f.users {
		if u.Email == email {
			u.Verified = verified
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeMessages struct {
	byID  map[string]*model.Message
	order []string
	seq   int64
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{byID: make(map[string]*model.Message)}
}

func (f *fakeMessages) Create(_ context.Context, m *model.Message) error {
	f.seq++
	m.Seq = f.seq
	cp := *m
	f.byID[m.ID] = &cp
	f.order = append(f.order, m.ID)
	return nil
}

func (f *fakeMessages) GetByID(_ context.Context, id string) (*model.Message, error) {
	m, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessages) GetPrivateHistory(_ context.Context, userA, userB string, limit, offset int) ([]model.Message, error) {
	var out []model.Message
	for _, id := range f.order {
		m := f.byID[id]
		if m.Type != model.MessageTypePrivate || m.Deleted {
			continue
		}
		if (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA) {
			out = append(out, *m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return page(out, limit, offset), nil
}

func (f *fakeMessages) GetGroupHistory(_ context.Context, groupID string, limit, offset int) ([]model.Message, error) {
	var out []model.Message
	for _, id := range f.order {
		m := f.byID[id]
		if m.Type == model.MessageTypeGroup && m.GroupID == groupID && !m.Deleted {
			out = append(out, *m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq > out[j].Seq
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, limit, offset), nil
}

func (f *fakeMessages) SoftDelete(_ context.Context, id string) error {
	m, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.Deleted = true
	return nil
}

func page(msgs []model.Message, limit, offset int) []model.Message {
	if offset >= len(msgs) {
		return nil
	}
	msgs = msgs[offset:]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs
}

type fakeGroups struct {
	groups  map[string]*model.Group
	members map[string]map[string]model.Role
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{
		groups:  make(map[string]*model.Group),
		members: make(map[string]map[string]model.Role),
	}
}

func (f *fakeGroups) Create(_ context.Context, g *model.Group) error {
	cp := *g
	f.groups[g.ID] = &cp
	f.members[g.ID] = make(map[string]model.Role)
	for _, m := range g.Members {
		f.members[g.ID][m.UserID] = m.Role
	}
	return nil
}

func (f *fakeGroups) GetByID(_ context.Context, id string) (*model.Group, error) {
	g, ok := f.groups[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *g
	cp.Members = nil
	for uid, role := range f.members[id] {
		cp.Members = append(cp.Members, model.GroupMember{UserID: uid, Role: role})
	}
	return &cp, nil
}

func (f *fakeGroups) Members(_ context.Context, groupID string) ([]model.GroupMember, error) {
	var out []model.GroupMember
	for uid, role := range f.members[groupID] {
		out = append(out, model.GroupMember{UserID: uid, Role: role})
	}
	return out, nil
}

func (f *fakeGroups) MemberIDs(_ context.Context, groupID string) ([]string, error) {
	var out []string
	for uid := range f.members[groupID] {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeGroups) ListByUser(_ context.Context, userID string) ([]model.Group, error) {
	var out []model.Group
	for id, g := range f.groups {
		if g.Deleted {
			continue
		}
		if _, ok := f.members[id][userID]; ok {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (f *fakeGroups) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	g, ok := f.groups[groupID]
	if !ok || g.Deleted {
		return false, nil
	}
	_, ok = f.members[groupID][userID]
	return ok, nil
}

func (f *fakeGroups) IsAdmin(_ context.Context, groupID, userID string) (bool, error) {
	g, ok := f.groups[groupID]
	if !ok || g.Deleted {
		return false, nil
	}
	return f.members[groupID][userID] == model.RoleAdmin, nil
}

func (f *fakeGroups) AddMember(_ context.Context, groupID string, m model.GroupMember) (bool, error) {
	if _, ok := f.members[groupID][m.UserID]; ok {
		return false, nil
	}
	f.members[groupID][m.UserID] = m.Role
	return true, nil
}

func (f *fakeGroups) RemoveMember(_ context.Context, groupID, userID string) error {
	delete(f.members[groupID], userID)
	return nil
}

func (f *fakeGroups) UpdateRole(_ context.Context, groupID, userID string, role model.Role) error {
	if _, ok := f.members[groupID][userID]; !ok {
		return repository.ErrNotFound
	}
	f.members[groupID][userID] = role
	return nil
}

func (f *fakeGroups) Update(_ context.Context, groupID string, patch model.GroupPatch) error {
	g, ok := f.groups[groupID]
	if !ok {
		return repository.ErrNotFound
	}
	if patch.Name != nil {
		g.Name = *patch.Name
	}
	if patch.Description != nil {
		g.Description = *patch.Description
	}
	if patch.PictureURL != nil {
		g.PictureURL = *patch.PictureURL
	}
	if patch.Settings != nil {
		g.Settings = *patch.Settings
	}
	return nil
}

func (f *fakeGroups) SoftDelete(_ context.Context, groupID string) error {
	g, ok := f.groups[groupID]
	if !ok || g.Deleted {
		return repository.ErrNotFound
	}
	g.Deleted = true
	return nil
}

type fakeConvos struct {
	participants map[string][]string
	lastMessage  map[string]string
}

func newFakeConvos() *fakeConvos {
	return &fakeConvos{
		participants: make(map[string][]string),
		lastMessage:  make(map[string]string),
	}
}

func (f *fakeConvos) FindByOwner(_ context.Context, ownerID string) (*model.Conversation, error) {
	parts, ok := f.participants[ownerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := &model.Conversation{OwnerID: ownerID, Participants: append([]string(nil), parts...)}
	if last, ok := f.lastMessage[ownerID]; ok {
		c.LastMessageID = &last
	}
	return c, nil
}

func (f *fakeConvos) FindByOwnerAndParticipant(_ context.Context, ownerID, participantID string) (bool, error) {
	for _, p := range f.participants[ownerID] {
		if p == participantID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeConvos) UpsertParticipant(_ context.Context, ownerID, participantID string) error {
	for _, p := range f.participants[ownerID] {
		if p == participantID {
			return nil
		}
	}
	f.participants[ownerID] = append(f.participants[ownerID], participantID)
	return nil
}

func (f *fakeConvos) RemoveParticipant(_ context.Context, ownerID, participantID string) error {
	kept := f.participants[ownerID][:0]
	for _, p := range f.participants[ownerID] {
		if p != participantID {
			kept = append(kept, p)
		}
	}
	f.participants[ownerID] = kept
	return nil
}

func (f *fakeConvos) SetLastMessage(_ context.Context, ownerID, messageID string) error {
	f.lastMessage[ownerID] = messageID
	return nil
}

type fakeReactions struct {
	byMessage map[string][]model.Reaction
}

func newFakeReactions() *fakeReactions {
	return &fakeReactions{byMessage: make(map[string][]model.Reaction)}
}

func (f *fakeReactions) Add(_ context.Context, messageID string, rc model.Reaction) (bool, error) {
	for _, existing := range f.byMessage[messageID] {
		if existing.UserID == rc.UserID && existing.Emoji == rc.Emoji {
			return false, nil
		}
	}
	f.byMessage[messageID] = append(f.byMessage[messageID], rc)
	return true, nil
}

func (f *fakeReactions) Remove(_ context.Context, messageID, reactionID string) error {
	kept := f.byMessage[messageID][:0]
	for _, rc := range f.byMessage[messageID] {
		if rc.ID != reactionID {
			kept = append(kept, rc)
		}
	}
	f.byMessage[messageID] = kept
	return nil
}

func (f *fakeReactions) RemoveByUser(_ context.Context, messageID, userID string) error {
	kept := f.byMessage[messageID][:0]
	for _, rc := range f.byMessage[messageID] {
		if rc.UserID != userID {
			kept = append(kept, rc)
		}
	}
	f.byMessage[messageID] = kept
	return nil
}

func (f *fakeReactions) ListByMessage(_ context.Context, messageID string) ([]model.Reaction, error) {
	return append([]model.Reaction(nil), f.byMessage[messageID]...), nil
}

// recorder captures broadcasts for assertions.
type recorder struct {
	mu     sync.Mutex
	events []recorded
}

type recorded struct {
	Room  string
	Event ws.Event
}

func (r *recorder) Broadcast(room string, ev ws.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{Room: room, Event: ev})
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.events...)
}

func (r *recorder) byType(t ws.EventType) []recorded {
	var out []recorded
	for _, rec := range r.all() {
		if rec.Event.Type == t {
			out = append(out, rec)
		}
	}
	return out
}

type fakePresence struct {
	online map[string]bool
}

func (f *fakePresence) UserOnline(userID string) bool { return f.online[userID] }

type fakeNotifier struct {
	ch chan string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan string, 16)}
}

func (f *fakeNotifier) Notify(_ context.Context, userID, title, body string) error {
	f.ch <- userID + "|" + title + "|" + body
	return nil
}

type fakeMailer struct {
	sent []string // "to|link"
}

func (f *fakeMailer) SendVerification(_ context.Context, to, link string) error {
	f.sent = append(f.sent, to+"|"+link)
	return nil
}

func (f *fakeMailer) lastToken() string {
	if len(f.sent) == 0 {
		return ""
	}
	last := f.sent[len(f.sent)-1]
	idx := strings.Index(last, "token=")
	if idx < 0 {
		return ""
	}
	return last[idx+len("token="):]
}
