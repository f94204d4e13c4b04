package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// opsMirror is the raw Bot API binding for the log mirror. It deliberately
// bypasses the notifications package: the notifications package logs through
// Logger, and the mirror must not loop back into it.
type opsMirror struct {
	BotToken string
	ChatID   int64
	ThreadID int
}

var mirror opsMirror

var mirrorClient = &http.Client{Timeout: 10 * time.Second}

func initOpsMirror() error {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}

	groupIDStr := os.Getenv("TELEGRAM_GROUP_ID")
	if groupIDStr == "" {
		return fmt.Errorf("TELEGRAM_GROUP_ID not set")
	}
	groupID, err := strconv.ParseInt(groupIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("parse TELEGRAM_GROUP_ID: %w", err)
	}

	threadID := 0
	if threadIDStr := os.Getenv("SYSTEM_LOGS_THREAD_ID"); threadIDStr != "" {
		threadID, err = strconv.Atoi(threadIDStr)
		if err != nil {
			return fmt.Errorf("parse SYSTEM_LOGS_THREAD_ID: %w", err)
		}
	}

	mirror = opsMirror{BotToken: token, ChatID: groupID, ThreadID: threadID}
	return nil
}

type sendMessagePayload struct {
	ChatID          int64  `json:"chat_id"`
	Text            string `json:"text"`
	ParseMode       string `json:"parse_mode,omitempty"`
	MessageThreadID int    `json:"message_thread_id,omitempty"`
}

// sendOpsMessage posts one message to the ops chat. Failures are swallowed:
// the mirror is a convenience, and stdout already has the log line.
func sendOpsMessage(text string) {
	if mirror.BotToken == "" {
		return
	}

	payload := sendMessagePayload{
		ChatID:          mirror.ChatID,
		Text:            text,
		ParseMode:       "Markdown",
		MessageThreadID: mirror.ThreadID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", mirror.BotToken)
	resp, err := mirrorClient.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return
	}
	defer resp.Body.Close()
}
