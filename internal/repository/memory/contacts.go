package memory

import (
	"context"
	"sync"
)

// Contacts привязка пользователей к чатам Telegram в памяти
type Contacts struct {
	mu     sync.RWMutex
	chats  map[int64]int64
	owners map[int64]int64
}

func NewContacts() *Contacts {
	return &Contacts{
		chats:  make(map[int64]int64),
		owners: make(map[int64]int64),
	}
}

func (c *Contacts) GetTelegramChatID(_ context.Context, userID int64) (int64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chatID, ok := c.chats[userID]
	return chatID, ok, nil
}

func (c *Contacts) GetUserIDByChatID(_ context.Context, chatID int64) (int64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	userID, ok := c.owners[chatID]
	return userID, ok, nil
}

func (c *Contacts) SetTelegramChatID(_ context.Context, userID, chatID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.chats[userID]; ok {
		delete(c.owners, old)
	}
	c.chats[userID] = chatID
	c.owners[chatID] = userID
	return nil
}
