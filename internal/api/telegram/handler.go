package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/credvend/credvend-server/internal/model"
	"github.com/credvend/credvend-server/internal/storage/minio"
)

const buyCallbackPrefix = "buy:"

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.reply(chatID, "Welcome! Use /products to list products.")
	case "contact":
		b.reply(chatID, fmt.Sprintf("Admin contact: %s", b.adminContact))
	case "products":
		b.cmdProducts(ctx, chatID)
	case "code":
		b.cmdCode(ctx, chatID, userID, args)
	case "addproduct":
		b.cmdAddProduct(ctx, chatID, userID, args)
	case "editproduct":
		b.cmdEditProduct(ctx, chatID, userID, args)
	case "approve":
		b.cmdApprove(ctx, chatID, userID, args)
	case "reject":
		b.cmdReject(ctx, chatID, userID, args)
	case "buyers":
		b.cmdBuyers(ctx, chatID, userID, args)
	case "deletebuyer":
		b.cmdDeleteBuyer(ctx, chatID, userID, args)
	case "clearbuyers":
		b.cmdClearBuyers(ctx, chatID, userID, args)
	case "resend":
		b.cmdResend(ctx, chatID, userID, args)
	case "stats":
		b.cmdStats(ctx, chatID, userID, args)
	case "pending":
		b.cmdPending(ctx, chatID, userID)
	}
}

// handleCallback reacts to a Buy button press: it starts the purchase cycle
// and asks for payment proof.
func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Error("failed to answer callback", "error", err)
	}

	if !strings.HasPrefix(query.Data, buyCallbackPrefix) || query.Message == nil {
		return
	}
	productID := strings.TrimPrefix(query.Data, buyCallbackPrefix)
	userID := query.From.ID
	chatID := query.Message.Chat.ID

	if err := b.purchases.RequestPurchase(ctx, userID, productID); err != nil {
		b.reply(chatID, renderError(err))
		return
	}

	b.setAwaiting(userID, productID)
	b.reply(chatID, "Send payment proof as a photo to proceed.")
}

// handlePhoto treats an incoming photo as payment proof for the product the
// user pressed Buy on. The image is copied into proof storage first; only a
// stored proof reference reaches the workflow.
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	productID, ok := b.takeAwaiting(userID)
	if !ok {
		return
	}

	// Largest size is listed last.
	fileID := msg.Photo[len(msg.Photo)-1].FileID

	proofRef, err := b.storeProof(ctx, fileID)
	if err != nil {
		b.logger.Error("failed to store proof", "user_id", userID, "error", err)
		b.setAwaiting(userID, productID)
		b.reply(chatID, "Could not store your proof, please try again.")
		return
	}

	if err := b.purchases.SubmitProof(ctx, userID, productID, proofRef); err != nil {
		b.reply(chatID, renderError(err))
		return
	}

	b.reply(chatID, "Payment submitted. Wait for admin approval.")
	b.relayProofToAdmins(userID, productID, fileID)
}

func (b *Bot) storeProof(ctx context.Context, fileID string) (string, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build file request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected file response status: %s", resp.Status)
	}

	key := minio.NewProofKey()
	if err := b.proofs.Upload(ctx, key, resp.Body); err != nil {
		return "", fmt.Errorf("failed to upload proof: %w", err)
	}

	return key, nil
}

func (b *Bot) cmdProducts(ctx context.Context, chatID int64) {
	products, err := b.catalog.ListProducts(ctx)
	if err != nil {
		b.reply(chatID, renderError(err))
		return
	}
	if len(products) == 0 {
		b.reply(chatID, "No products available")
		return
	}

	for _, product := range products {
		msg := tgbotapi.NewMessage(chatID, renderProduct(product))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Buy", buyCallbackPrefix+product.ID),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			b.logger.Error("failed to send product", "product_id", product.ID, "error", err)
		}
	}
}

func (b *Bot) cmdCode(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 1 {
		b.reply(chatID, "Usage: /code <product_id>")
		return
	}

	code, err := b.purchases.GetCode(ctx, userID, args[0])
	if err != nil {
		b.reply(chatID, renderError(err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Code: %s", code))
}

func (b *Bot) cmdAddProduct(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 5 {
		b.reply(chatID, "Usage: /addproduct <id> <price> <username> <password> <secret> [name]")
		return
	}

	product := model.Product{
		ID:    args[0],
		Price: args[1],
		Credentials: model.Credentials{
			Username: args[2],
			Password: args[3],
		},
		Secret: args[4],
	}
	if len(args) > 5 {
		product.DisplayName = strings.Join(args[5:], " ")
	}

	if err := b.catalog.AddProduct(ctx, userID, product); err != nil {
		b.reply(chatID, renderError(err))
		return
	}
	b.reply(chatID, "Product added")
}

func (b *Bot) cmdEditProduct(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 3 {
		b.reply(chatID, "Usage: /editproduct <id> <field> <value>")
		return
	}

	value := strings.Join(args[2:], " ")
	var patch model.ProductPatch
	switch args[1] {
	case "name":
		patch.DisplayName = &value
	case "price":
		patch.Price = &value
	case "username":
		patch.Username = &value
	case "password":
		patch.Password = &value
	case "secret":
		patch.Secret = &value
	default:
		b.reply(chatID, "Invalid field")
		return
	}

	if err := b.catalog.EditProduct(ctx, userID, args[0], patch); err != nil {
		b.reply(chatID, renderError(err))
		return
	}
	b.reply(chatID, "Product updated")
}

func (b *Bot) cmdApprove(ctx context.Context, chatID, userID int64, args []string) {
	targetID, productID, ok := parseUserProduct(args)
	if !ok {
		b.reply(chatID, "Usage: /approve <user_id> <product_id>")
		return
	}

	approval, err := b.purchases.Approve(ctx, userID, targetID, productID)
	if err != nil {
		b.reply(chatID, renderError(err))
		return
	}

	// Disclose exactly once, after the commit.
	b.deliverCredentials(approval)
	b.reply(chatID, "Approved.")
}

func (b *Bot) cmdReject(ctx context.Context, chatID, userID int64, args []string) {
	targetID, productID, ok := parseUserProduct(args)
	if !ok {
		b.reply(chatID, "Usage: /reject <user_id> <product_id>")
		return
	}

	if err := b.purchases.Reject(ctx, userID, targetID, productID); err != nil {
		b.reply(chatID, renderError(err))
		return
	}

	b.reply(targetID, "Your purchase was rejected.")
	b.reply(chatID, "Rejected.")
}

func (b *Bot) cmdBuyers(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 1 {
		b.reply(chatID, "Usage: /buyers <product_id>")
		return
	}

	buyers, err := b.catalog.ListBuyers(ctx, userID, args[0])
	if err != nil {
		b.reply(chatID, renderError(err))
		return
	}
	b.reply(chatID, renderBuyers(buyers))
}

func (b *Bot) cmdDeleteBuyer(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 2 {
		b.reply(chatID, "Usage: /deletebuyer <product_id> <user_id>")
		return
	}
	buyerID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		b.reply(chatID, "Invalid user id")
		return
	}

	if err := b.catalog.RemoveBuyer(ctx, userID, args[0], buyerID); err != nil {
		b.reply(chatID, renderError(err))
		return
	}
	b.reply(chatID, "Buyer removed")
}

func (b *Bot) cmdClearBuyers(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 1 {
		b.reply(chatID, "Usage: /clearbuyers <product_id>")
		return
	}

	if err := b.catalog.ClearBuyers(ctx, userID, args[0]); err != nil {
		b.reply(chatID, renderError(err))
		return
	}
	b.reply(chatID, "All buyers removed")
}

func (b *Bot) cmdResend(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 1 {
		b.reply(chatID, "Usage: /resend <product_id> [user_id]")
		return
	}

	var target *int64
	if len(args) > 1 {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			b.reply(chatID, "Invalid user id")
			return
		}
		target = &id
	}

	notifications, err := b.catalog.ResendCredentials(ctx, userID, args[0], target)
	if err != nil {
		b.reply(chatID, renderError(err))
		return
	}

	for _, n := range notifications {
		b.deliverCredentials(n)
	}
	b.reply(chatID, "Credentials resent")
}

func (b *Bot) cmdStats(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 1 {
		b.reply(chatID, "Usage: /stats <product_id>")
		return
	}

	stats, err := b.catalog.ProductStats(ctx, userID, args[0])
	if err != nil {
		b.reply(chatID, renderError(err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Price: %s\nTotal buyers: %d", stats.Price, stats.BuyerCount))
}

func (b *Bot) cmdPending(ctx context.Context, chatID, userID int64) {
	purchases, err := b.purchases.ListPendingPurchases(ctx, userID)
	if err != nil {
		b.reply(chatID, renderError(err))
		return
	}
	b.reply(chatID, renderPending(purchases))
}

func parseUserProduct(args []string) (int64, string, bool) {
	if len(args) < 2 {
		return 0, "", false
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return userID, args[1], true
}
