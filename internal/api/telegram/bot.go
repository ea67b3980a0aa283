// Package telegram is the chat transport adapter: it classifies inbound
// updates, forwards them to the purchase and catalog services with the
// caller's resolved identity, and renders results back as messages. No
// domain rule lives here.
package telegram

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/credvend/credvend-server/internal/logger"
	"github.com/credvend/credvend-server/internal/model"
	"github.com/credvend/credvend-server/internal/service"
)

// api is the subset of the bot client the adapter uses; mockable in tests.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
}

// Bot runs the long-polling loop and dispatches updates.
type Bot struct {
	api          api
	purchases    *service.Purchase
	catalog      *service.Catalog
	proofs       model.ProofStorage
	adminIDs     []int64
	adminContact string
	logger       *logger.Logger

	// awaiting maps a user to the product they pressed Buy on, until the
	// proof photo arrives. Transport session state only.
	mu       sync.Mutex
	awaiting map[int64]string
}

// Config carries the transport parameters.
type Config struct {
	AdminIDs     []int64
	AdminContact string
}

// NewBot creates the transport adapter on top of a bot API client.
func NewBot(
	client api,
	purchases *service.Purchase,
	catalog *service.Catalog,
	proofs model.ProofStorage,
	cfg Config,
	logger *logger.Logger,
) *Bot {
	return &Bot{
		api:          client,
		purchases:    purchases,
		catalog:      catalog,
		proofs:       proofs,
		adminIDs:     cfg.AdminIDs,
		adminContact: cfg.AdminContact,
		logger:       logger.With("component", "telegram"),
		awaiting:     make(map[int64]string),
	}
}

// Run consumes updates until ctx is cancelled. Each update is handled on the
// polling goroutine; the services serialize state access themselves.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && len(update.Message.Photo) > 0:
		b.handlePhoto(ctx, update.Message)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	}
}

// reply sends a plain text message to the chat; send failures are logged,
// never propagated into the workflow.
func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error("failed to send message", "chat_id", chatID, "error", err)
	}
}

// deliverCredentials sends a notify-instruction produced by the workflow.
// Called strictly after the triggering mutation committed.
func (b *Bot) deliverCredentials(approval model.Approval) {
	text := fmt.Sprintf("Username: %s\nPassword: %s", approval.Credentials.Username, approval.Credentials.Password)
	b.reply(approval.UserID, text)
	b.reply(approval.UserID, fmt.Sprintf("Use /code %s to get your current authenticator code.", approval.ProductID))
}

// relayProofToAdmins forwards the submitted proof photo with a ready-made
// approval command.
func (b *Bot) relayProofToAdmins(userID int64, productID, fileID string) {
	caption := fmt.Sprintf("/approve %d %s", userID, productID)
	for _, adminID := range b.adminIDs {
		photo := tgbotapi.NewPhoto(adminID, tgbotapi.FileID(fileID))
		photo.Caption = caption
		if _, err := b.api.Send(photo); err != nil {
			b.logger.Error("failed to relay proof", "admin_id", adminID, "error", err)
		}
	}
}

func (b *Bot) setAwaiting(userID int64, productID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.awaiting[userID] = productID
}

func (b *Bot) takeAwaiting(userID int64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	productID, ok := b.awaiting[userID]
	if ok {
		delete(b.awaiting, userID)
	}
	return productID, ok
}
