package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chat-sync/internal/db"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

type dialogKey struct {
	userID int64
	chatID int64
}

type memState struct {
	nextChatID   int64
	chats        map[int64]models.Chat
	participants map[int64]map[int64]bool
	spaceMembers map[int64]map[int64]bool
	messages     map[int64]map[int64]models.Message
	dialogs      map[dialogKey]models.Dialog
	updates      map[int64][]models.UpdateEntry
}

// memTx stands in for a Postgres transaction. It holds the row locks it has
// taken until the end and undoes its writes on rollback. The embedded
// Queryer is nil; memStore never issues SQL.
type memTx struct {
	db.Queryer
	store *memStore
	held  map[string]*sync.Mutex
	undo  []func(*memState)
}

func txOf(q db.Queryer) *memTx {
	tx, _ := q.(*memTx)
	return tx
}

// lock takes a row lock for the rest of the transaction. Outside a
// transaction it is a no-op.
func (tx *memTx) lock(key string) {
	if tx == nil {
		return
	}
	if _, ok := tx.held[key]; ok {
		return
	}
	mu := tx.store.rowLock(key)
	mu.Lock()
	tx.held[key] = mu
}

// onRollback records how to revert a write. Callers hold store.mu.
func (tx *memTx) onRollback(fn func(*memState)) {
	if tx != nil {
		tx.undo = append(tx.undo, fn)
	}
}

func (tx *memTx) release() {
	for _, mu := range tx.held {
		mu.Unlock()
	}
	tx.held = nil
}

func chatKey(chatID int64) string               { return fmt.Sprintf("chat:%d", chatID) }
func directKey(user1, user2 int64) string       { return fmt.Sprintf("direct:%d:%d", user1, user2) }
func dialogLockKey(userID, chatID int64) string { return fmt.Sprintf("dialog:%d:%d", userID, chatID) }
func bucketKey(userID int64) string             { return fmt.Sprintf("bucket:%d", userID) }

// memStore is an in-memory stand-in for Postgres. Transactions run
// concurrently; writers of the same chat, dialog or bucket row queue on a
// per-row lock the way UPDATE and SELECT FOR UPDATE do.
type memStore struct {
	mu         sync.Mutex
	locks      map[string]*sync.Mutex
	state      memState
	failAppend error
}

func newMemStore() *memStore {
	return &memStore{locks: map[string]*sync.Mutex{}, state: memState{
		nextChatID:   1,
		chats:        map[int64]models.Chat{},
		participants: map[int64]map[int64]bool{},
		spaceMembers: map[int64]map[int64]bool{},
		messages:     map[int64]map[int64]models.Message{},
		dialogs:      map[dialogKey]models.Dialog{},
		updates:      map[int64][]models.UpdateEntry{},
	}}
}

func (m *memStore) rowLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[key] = mu
	}
	return mu
}

func (m *memStore) WithTx(ctx context.Context, fn func(q db.Queryer) error) error {
	tx := &memTx{store: m, held: map[string]*sync.Mutex{}}
	defer tx.release()

	if err := fn(tx); err != nil {
		m.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i](&m.state)
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) Queryer() db.Queryer {
	return nil
}

// seeding helpers

func (m *memStore) addThread(spaceID int64, public bool, participants ...int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.state.nextChatID
	m.state.nextChatID++
	sid := spaceID
	m.state.chats[id] = models.Chat{ID: id, Type: models.ChatTypeThread, SpaceID: &sid, Public: public, CreatedAt: time.Now()}
	m.state.participants[id] = map[int64]bool{}
	for _, p := range participants {
		m.state.participants[id][p] = true
	}
	return id
}

func (m *memStore) addSpaceMember(spaceID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.spaceMembers[spaceID] == nil {
		m.state.spaceMembers[spaceID] = map[int64]bool{}
	}
	m.state.spaceMembers[spaceID][userID] = true
}

func (m *memStore) chat(id int64) models.Chat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.chats[id]
}

func (m *memStore) dialog(userID, chatID int64) (models.Dialog, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.state.dialogs[dialogKey{userID, chatID}]
	return d, ok
}

func (m *memStore) setUnreadMark(userID, chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.state.dialogs[dialogKey{userID, chatID}]
	d.UnreadMark = true
	m.state.dialogs[dialogKey{userID, chatID}] = d
}

func (m *memStore) bucket(userID int64) []models.UpdateEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.UpdateEntry(nil), m.state.updates[userID]...)
}

// ChatRepository

func orderedPair(userID, peerID int64) (int64, int64) {
	if userID > peerID {
		return peerID, userID
	}
	return userID, peerID
}

func (m *memStore) findDirectLocked(u1, u2 int64) (models.Chat, bool) {
	for _, c := range m.state.chats {
		if c.Type == models.ChatTypeDirect && *c.User1ID == u1 && *c.User2ID == u2 {
			return c, true
		}
	}
	return models.Chat{}, false
}

func (m *memStore) CreateOrGetDirect(ctx context.Context, q db.Queryer, userID int64, peerID int64) (models.Chat, error) {
	if userID == peerID {
		return models.Chat{}, repositories.ErrSelfChat
	}
	u1, u2 := orderedPair(userID, peerID)
	tx := txOf(q)
	tx.lock(directKey(u1, u2))

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.findDirectLocked(u1, u2); ok {
		return c, nil
	}
	id := m.state.nextChatID
	m.state.nextChatID++
	c := models.Chat{ID: id, Type: models.ChatTypeDirect, User1ID: &u1, User2ID: &u2, CreatedAt: time.Now()}
	m.state.chats[id] = c
	tx.onRollback(func(s *memState) { delete(s.chats, id) })
	return c, nil
}

func (m *memStore) GetDirect(ctx context.Context, q db.Queryer, userID int64, peerID int64) (models.Chat, error) {
	if userID == peerID {
		return models.Chat{}, repositories.ErrSelfChat
	}
	u1, u2 := orderedPair(userID, peerID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.findDirectLocked(u1, u2); ok {
		return c, nil
	}
	return models.Chat{}, repositories.ErrChatNotFound
}

func (m *memStore) chatCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.chats)
}

func (m *memStore) GetChat(ctx context.Context, q db.Queryer, chatID int64) (models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.chats[chatID]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return c, nil
}

func (m *memStore) CanViewThread(ctx context.Context, q db.Queryer, chatID int64, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canViewLocked(chatID, userID), nil
}

func (m *memStore) canViewLocked(chatID, userID int64) bool {
	if m.state.participants[chatID][userID] {
		return true
	}
	c := m.state.chats[chatID]
	return c.Public && c.SpaceID != nil && m.state.spaceMembers[*c.SpaceID][userID]
}

func (m *memStore) ListVisibleThreads(ctx context.Context, q db.Queryer, userID int64, spaceID *int64) ([]models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Chat
	for id, c := range m.state.chats {
		if c.Type != models.ChatTypeThread || !m.canViewLocked(id, userID) {
			continue
		}
		if spaceID != nil && (c.SpaceID == nil || *c.SpaceID != *spaceID) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) AffectedUsers(ctx context.Context, q db.Queryer, chat models.Chat) ([]int64, error) {
	if chat.Type == models.ChatTypeDirect {
		return []int64{*chat.User1ID, *chat.User2ID}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set := map[int64]bool{}
	for u := range m.state.participants[chat.ID] {
		set[u] = true
	}
	for k := range m.state.dialogs {
		if k.chatID == chat.ID {
			set[k.userID] = true
		}
	}
	users := make([]int64, 0, len(set))
	for u := range set {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

// SpaceRepository

func (m *memStore) IsMember(ctx context.Context, q db.Queryer, spaceID int64, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.spaceMembers[spaceID][userID], nil
}

// MessageRepository

func (m *memStore) AssignAndInsert(ctx context.Context, q db.Queryer, chatID int64, senderID int64, content string) (models.Message, error) {
	tx := txOf(q)
	tx.lock(chatKey(chatID))

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.chats[chatID]
	if !ok {
		return models.Message{}, repositories.ErrChatNotFound
	}
	prev := c
	tx.onRollback(func(s *memState) {
		s.chats[chatID] = prev
		delete(s.messages[chatID], prev.MaxSeq+1)
	})
	c.MaxSeq++
	seq := c.MaxSeq
	c.LastMessageID = &seq
	m.state.chats[chatID] = c

	msg := models.Message{ChatID: chatID, ID: seq, SenderID: senderID, Content: content, CreatedAt: time.Now()}
	if m.state.messages[chatID] == nil {
		m.state.messages[chatID] = map[int64]models.Message{}
	}
	m.state.messages[chatID][seq] = msg
	return msg, nil
}

func (m *memStore) Delete(ctx context.Context, q db.Queryer, chatID int64, messageIDs []int64) (models.DeleteResult, error) {
	tx := txOf(q)
	tx.lock(chatKey(chatID))

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.chats[chatID]
	if !ok {
		return models.DeleteResult{}, repositories.ErrChatNotFound
	}
	prev := c
	var deleted []int64
	var removed []models.Message
	for _, id := range messageIDs {
		if msg, ok := m.state.messages[chatID][id]; ok {
			delete(m.state.messages[chatID], id)
			deleted = append(deleted, id)
			removed = append(removed, msg)
		}
	}
	tx.onRollback(func(s *memState) {
		s.chats[chatID] = prev
		for _, msg := range removed {
			s.messages[chatID][msg.ID] = msg
		}
	})
	if len(deleted) == 0 {
		return models.DeleteResult{}, repositories.ErrMessageNotFound
	}
	sort.Slice(deleted, func(i, j int) bool { return deleted[i] < deleted[j] })

	var last *int64
	for id := range m.state.messages[chatID] {
		if last == nil || id > *last {
			v := id
			last = &v
		}
	}
	c.LastMessageID = last
	m.state.chats[chatID] = c
	return models.DeleteResult{Deleted: deleted, LastMessageID: last}, nil
}

func (m *memStore) LastMessageID(ctx context.Context, q db.Queryer, chatID int64) (*int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.chats[chatID]
	if !ok {
		return nil, repositories.ErrChatNotFound
	}
	return c.LastMessageID, nil
}

func (m *memStore) History(ctx context.Context, q db.Queryer, chatID int64, beforeID int64, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Message{}
	for id, msg := range m.state.messages[chatID] {
		if beforeID == 0 || id < beforeID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CountAfter(ctx context.Context, q db.Queryer, chatID int64, afterID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for id := range m.state.messages[chatID] {
		if id > afterID {
			count++
		}
	}
	return count, nil
}

// DialogRepository

// Ensure and the dialog writers lock the dialog row. A real INSERT also makes
// concurrent inserts of the same key wait for the inserting transaction.
func (m *memStore) Ensure(ctx context.Context, q db.Queryer, userID int64, chat models.Chat) error {
	tx := txOf(q)
	tx.lock(dialogLockKey(userID, chat.ID))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLocked(tx, userID, chat)
	return nil
}

func (m *memStore) ensureLocked(tx *memTx, userID int64, chat models.Chat) models.Dialog {
	key := dialogKey{userID, chat.ID}
	if d, ok := m.state.dialogs[key]; ok {
		tx.onRollback(func(s *memState) { s.dialogs[key] = d })
		return d
	}
	d := models.Dialog{UserID: userID, ChatID: chat.ID, CreatedAt: time.Now()}
	if peer := chat.PeerFor(userID); peer.IsUser() {
		id := peer.UserID
		d.PeerUserID = &id
	}
	m.state.dialogs[key] = d
	tx.onRollback(func(s *memState) { delete(s.dialogs, key) })
	return d
}

// lockDialog returns with m.mu held.
func (m *memStore) lockDialog(q db.Queryer, userID int64, chat models.Chat) models.Dialog {
	tx := txOf(q)
	tx.lock(dialogLockKey(userID, chat.ID))
	m.mu.Lock()
	return m.ensureLocked(tx, userID, chat)
}

func (m *memStore) Upsert(ctx context.Context, q db.Queryer, userID int64, chat models.Chat, patch models.DialogPatch) (models.Dialog, bool, error) {
	d := m.lockDialog(q, userID, chat)
	defer m.mu.Unlock()
	flipped := patch.Apply(&d)
	m.state.dialogs[dialogKey{userID, chat.ID}] = d
	return d, flipped, nil
}

func (m *memStore) SetUnreadMark(ctx context.Context, q db.Queryer, userID int64, chat models.Chat) (bool, error) {
	d := m.lockDialog(q, userID, chat)
	defer m.mu.Unlock()
	if d.UnreadMark {
		return false, nil
	}
	d.UnreadMark = true
	m.state.dialogs[dialogKey{userID, chat.ID}] = d
	return true, nil
}

func (m *memStore) AdvanceRead(ctx context.Context, q db.Queryer, userID int64, chat models.Chat, requestedMaxID *int64) (models.ReadResult, error) {
	d := m.lockDialog(q, userID, chat)
	defer m.mu.Unlock()
	result := models.ReadResult{EffectiveMaxID: d.ReadInboxMaxID, MarkCleared: d.UnreadMark}
	if requestedMaxID != nil && *requestedMaxID > d.ReadInboxMaxID {
		result.EffectiveMaxID = *requestedMaxID
		result.Advanced = true
	}
	d.ReadInboxMaxID = result.EffectiveMaxID
	d.UnreadMark = false
	m.state.dialogs[dialogKey{userID, chat.ID}] = d
	return result, nil
}

func (m *memStore) ListForUser(ctx context.Context, q db.Queryer, userID int64, spaceID *int64) ([]models.DialogRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.DialogRow
	for key, d := range m.state.dialogs {
		if key.userID != userID {
			continue
		}
		c := m.state.chats[key.chatID]
		if spaceID != nil && (c.SpaceID == nil || *c.SpaceID != *spaceID) {
			continue
		}
		row := models.DialogRow{
			Dialog:        d,
			ChatType:      c.Type,
			User1ID:       c.User1ID,
			User2ID:       c.User2ID,
			SpaceID:       c.SpaceID,
			Public:        c.Public,
			LastMessageID: c.LastMessageID,
			ChatCreatedAt: c.CreatedAt,
		}
		if c.LastMessageID != nil {
			if msg, ok := m.state.messages[c.ID][*c.LastMessageID]; ok {
				sender, content, at := msg.SenderID, msg.Content, msg.CreatedAt
				row.MsgSenderID, row.MsgContent, row.MsgCreatedAt = &sender, &content, &at
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Pinned != rows[j].Pinned {
			return rows[i].Pinned
		}
		return rows[i].ChatID < rows[j].ChatID
	})
	return rows, nil
}

// UpdateRepository

func (m *memStore) Append(ctx context.Context, q db.Queryer, userID int64, update models.Update) (models.UpdateEntry, error) {
	tx := txOf(q)
	tx.lock(bucketKey(userID))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend != nil {
		return models.UpdateEntry{}, m.failAppend
	}
	if !models.IsDurable(update) {
		return models.UpdateEntry{}, repositories.ErrTransientUpdate
	}
	entries := m.state.updates[userID]
	tx.onRollback(func(s *memState) { s.updates[userID] = s.updates[userID][:len(entries)] })
	entry := models.UpdateEntry{UserID: userID, Seq: int64(len(entries)) + 1, Update: update, CreatedAt: time.Now()}
	m.state.updates[userID] = append(entries, entry)
	return entry, nil
}

func (m *memStore) ReadSince(ctx context.Context, q db.Queryer, userID int64, afterSeq int64, limit int) ([]models.UpdateEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UpdateEntry
	for _, e := range m.state.updates[userID] {
		if e.Seq <= afterSeq {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) CurrentSeq(ctx context.Context, q db.Queryer, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.state.updates[userID])), nil
}
