package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"feedback-backend/internal/config"
)

// SendTelegramNotification posts an operational ping to the
// maintainers' Telegram chat. Best-effort: callers ignore the error
// and nothing is sent when the bot is unconfigured.
func SendTelegramNotification(message string, cfg *config.Config) error {
	if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id": cfg.Telegram.ChatID,
		"text":    message,
	})
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", cfg.Telegram.BotToken)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sending telegram notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}
