package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"example.com/socialwall/internal/models"
)

// MockStore simulates the backend tables in memory for testing.
// Slices are kept in insertion order; reads return newest first.
type MockStore struct {
	mu sync.Mutex

	Posts    []models.Post
	Items    []models.MarketplaceItem
	Messages []models.Message
	Infos    map[string]models.UserInfo

	// MarkReadCalls records the ids passed to every MarkMessagesRead call.
	MarkReadCalls [][]string

	ShouldFail         bool // flag to simulate failures
	ShouldFailMarkRead bool // fail only MarkMessagesRead

	nextItemID int64
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Infos: make(map[string]models.UserInfo),
	}
}

func (m *MockStore) Close() {}

func (m *MockStore) Ping(ctx context.Context) error {
	if m.ShouldFail {
		return errors.New("mock: ping failed")
	}
	return nil
}

// AddPost simulates appending a post
func (m *MockStore) AddPost(ctx context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: add post failed")
	}
	m.Posts = append(m.Posts, post)
	return nil
}

// ListPosts returns every post newest first; equal timestamps keep the later insert first
func (m *MockStore) ListPosts(ctx context.Context) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: list posts failed")
	}
	res := make([]models.Post, 0, len(m.Posts))
	for i := len(m.Posts) - 1; i >= 0; i-- {
		res = append(res, m.Posts[i])
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MockStore) GetUserInfo(ctx context.Context, userID string) (models.UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return models.UserInfo{}, errors.New("mock: get user info failed")
	}
	info, ok := m.Infos[userID]
	if !ok {
		return models.UserInfo{}, models.ErrNotFound
	}
	return info, nil
}

func (m *MockStore) CreateUserInfo(ctx context.Context, info models.UserInfo) (models.UserInfo, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return models.UserInfo{}, false, errors.New("mock: create user info failed")
	}
	if existing, ok := m.Infos[info.UserID]; ok {
		return existing, false, nil
	}
	m.Infos[info.UserID] = info
	return info, true, nil
}

func (m *MockStore) AddItem(ctx context.Context, item models.MarketplaceItem) (models.MarketplaceItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return models.MarketplaceItem{}, errors.New("mock: add item failed")
	}
	if item.ID == 0 {
		m.nextItemID++
		item.ID = m.nextItemID
	} else if item.ID > m.nextItemID {
		m.nextItemID = item.ID
	}
	m.Items = append(m.Items, item)
	return item, nil
}

func (m *MockStore) GetItem(ctx context.Context, id int64) (models.MarketplaceItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return models.MarketplaceItem{}, errors.New("mock: get item failed")
	}
	for _, it := range m.Items {
		if it.ID == id {
			return it, nil
		}
	}
	return models.MarketplaceItem{}, models.ErrNotFound
}

func (m *MockStore) ListItems(ctx context.Context, q ItemQuery) ([]models.MarketplaceItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: list items failed")
	}
	res := make([]models.MarketplaceItem, 0, len(m.Items))
	for i := len(m.Items) - 1; i >= 0; i-- {
		res = append(res, m.Items[i])
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return q.Filter(res), nil
}

func (m *MockStore) AddMessage(ctx context.Context, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: add message failed")
	}
	m.Messages = append(m.Messages, msg)
	return nil
}

func (m *MockStore) ListInbox(ctx context.Context, recipientID string) ([]models.Message, error) {
	return m.listMessages(func(msg models.Message) bool { return msg.RecipientID == recipientID })
}

func (m *MockStore) ListSent(ctx context.Context, senderID string) ([]models.Message, error) {
	return m.listMessages(func(msg models.Message) bool { return msg.SenderID == senderID })
}

func (m *MockStore) listMessages(keep func(models.Message) bool) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: list messages failed")
	}
	res := []models.Message{}
	for i := len(m.Messages) - 1; i >= 0; i-- {
		msg := m.Messages[i]
		if !keep(msg) {
			continue
		}
		if msg.ItemID != nil {
			for _, it := range m.Items {
				if it.ID == *msg.ItemID {
					msg.Item = &models.ItemSummary{Title: it.Title, Price: it.Price, ImageURL: it.ImageURL}
				}
			}
		}
		res = append(res, msg)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MockStore) MarkMessagesRead(ctx context.Context, msgs []models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
	}
	m.MarkReadCalls = append(m.MarkReadCalls, ids)
	if m.ShouldFail || m.ShouldFailMarkRead {
		return errors.New("mock: mark read failed")
	}
	for _, id := range ids {
		for i := range m.Messages {
			if m.Messages[i].ID == id {
				m.Messages[i].IsRead = true
			}
		}
	}
	return nil
}

// MarkReadCallCount returns how many times MarkMessagesRead was called.
func (m *MockStore) MarkReadCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.MarkReadCalls)
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

var errMockFail = errors.New("mock store failed")

func (m *MockStoreFail) Close()                         {}
func (m *MockStoreFail) Ping(ctx context.Context) error { return errMockFail }
func (m *MockStoreFail) AddPost(ctx context.Context, post models.Post) error {
	return errMockFail
}
func (m *MockStoreFail) ListPosts(ctx context.Context) ([]models.Post, error) {
	return nil, errMockFail
}
func (m *MockStoreFail) GetUserInfo(ctx context.Context, userID string) (models.UserInfo, error) {
	return models.UserInfo{}, errMockFail
}
func (m *MockStoreFail) CreateUserInfo(ctx context.Context, info models.UserInfo) (models.UserInfo, bool, error) {
	return models.UserInfo{}, false, errMockFail
}
func (m *MockStoreFail) AddItem(ctx context.Context, item models.MarketplaceItem) (models.MarketplaceItem, error) {
	return models.MarketplaceItem{}, errMockFail
}
func (m *MockStoreFail) GetItem(ctx context.Context, id int64) (models.MarketplaceItem, error) {
	return models.MarketplaceItem{}, errMockFail
}
func (m *MockStoreFail) ListItems(ctx context.Context, q ItemQuery) ([]models.MarketplaceItem, error) {
	return nil, errMockFail
}
func (m *MockStoreFail) AddMessage(ctx context.Context, msg models.Message) error {
	return errMockFail
}
func (m *MockStoreFail) ListInbox(ctx context.Context, recipientID string) ([]models.Message, error) {
	return nil, errMockFail
}
func (m *MockStoreFail) ListSent(ctx context.Context, senderID string) ([]models.Message, error) {
	return nil, errMockFail
}
func (m *MockStoreFail) MarkMessagesRead(ctx context.Context, msgs []models.Message) error {
	return errMockFail
}
