// Package telegram implements a Telegram Bot API wrapper: sending and editing
// messages, inline keyboards, callback answers and long polling.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alem-hub/kata-mentor-bot/pkg/circuitbreaker"
	"github.com/alem-hub/kata-mentor-bot/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig configures the Bot API client.
type ClientConfig struct {
	Token string

	// BaseURL defaults to https://api.telegram.org.
	BaseURL string

	// Timeout bounds one HTTP call. It must exceed PollingTimeout,
	// otherwise every long poll is cut short. Default PollingTimeout+30s.
	Timeout time.Duration

	// PollingTimeout is the getUpdates long poll in seconds. Default 30.
	PollingTimeout int

	// Retrier retries 429, 5xx and network errors. Defaults to retry.TelegramPolicy().
	Retrier *retry.Retrier

	// Breaker fails fast while the API is down. Defaults to a breaker that
	// opens after 5 failures and probes with two calls.
	Breaker *circuitbreaker.CircuitBreaker

	// OnCircuitChange is told about default breaker transitions.
	OnCircuitChange func(name string, from, to circuitbreaker.State)

	// HTTPClient overrides the transport, used in tests.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client calls the Bot API. Every call except getUpdates goes through the
// breaker and the retrier.
type Client struct {
	endpoint string // BaseURL + "/bot" + token
	polling  int
	http     *http.Client
	retrier  *retry.Retrier
	breaker  *circuitbreaker.CircuitBreaker
	logger   *slog.Logger

	offset int64 // next getUpdates offset, owned by StartPolling
}

// NewClient creates a client. It does not contact the API.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telegram.org"
	}
	if config.PollingTimeout <= 0 {
		config.PollingTimeout = 30
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Duration(config.PollingTimeout)*time.Second + 30*time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	logger := config.Logger.With("component", "telegram_client")

	if config.Retrier == nil {
		policy := retry.TelegramPolicy()
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			logger.Debug("retrying bot api call", "attempt", attempt, "wait", wait, "error", err)
		}
		config.Retrier = retry.New(policy)
	}

	if config.Breaker == nil {
		notify := config.OnCircuitChange
		config.Breaker = circuitbreaker.New(circuitbreaker.Config{
			Name:           "telegram",
			OpenTimeout:    30 * time.Second,
			HalfOpenProbes: 2,
			IsFailure:      func(err error) bool { return !isClientError(err) },
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
				if notify != nil {
					notify(name, from, to)
				}
			},
		})
	}

	return &Client{
		endpoint: strings.TrimRight(config.BaseURL, "/") + "/bot" + config.Token,
		polling:  config.PollingTimeout,
		http:     config.HTTPClient,
		retrier:  config.Retrier,
		breaker:  config.Breaker,
		logger:   logger,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// METHODS
// ══════════════════════════════════════════════════════════════════════════════

// SendMessageParams describes an outgoing message. At most one markup is
// sent: ReplyMarkup, then ReplyKeyboard, then RemoveKeyboard.
type SendMessageParams struct {
	ChatID              int64
	Text                string
	ParseMode           string
	DisableNotification bool
	DisableWebPreview   bool
	ReplyToMessageID    int64
	ReplyMarkup         *InlineKeyboardMarkup
	ReplyKeyboard       *ReplyKeyboardMarkup
	RemoveKeyboard      bool
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) (*Message, error) {
	req := sendMessageRequest{
		ChatID:                   p.ChatID,
		Text:                     p.Text,
		ParseMode:                p.ParseMode,
		DisableNotification:      p.DisableNotification,
		DisableWebPagePreview:    p.DisableWebPreview,
		ReplyToMessageID:         p.ReplyToMessageID,
		AllowSendingWithoutReply: p.ReplyToMessageID > 0,
	}
	switch {
	case p.ReplyMarkup != nil:
		req.ReplyMarkup = p.ReplyMarkup
	case p.ReplyKeyboard != nil:
		req.ReplyMarkup = p.ReplyKeyboard
	case p.RemoveKeyboard:
		req.ReplyMarkup = replyKeyboardRemove{RemoveKeyboard: true}
	}

	var msg Message
	if err := c.call(ctx, "sendMessage", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendHTML sends an HTML message without markup.
func (c *Client) SendHTML(ctx context.Context, chatID int64, html string) (*Message, error) {
	return c.SendMessage(ctx, SendMessageParams{ChatID: chatID, Text: html, ParseMode: ParseModeHTML})
}

// EditMessageText replaces the text of a message. A nil keyboard removes it.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text, parseMode string, keyboard *InlineKeyboardMarkup) (*Message, error) {
	var msg Message
	err := c.call(ctx, "editMessageText", editMessageRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   parseMode,
		ReplyMarkup: keyboard,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageReplyMarkup replaces the inline keyboard. A nil keyboard
// removes it, which is how a rating keyboard is closed after a vote.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, keyboard *InlineKeyboardMarkup) error {
	if keyboard == nil {
		keyboard = &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{}}
	}
	return c.call(ctx, "editMessageReplyMarkup", editMessageRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: keyboard,
	}, nil)
}

// AnswerCallbackQuery stops the button spinner, optionally with a toast
// or an alert.
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID, text string, showAlert bool) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackRequest{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       showAlert,
	}, nil)
}

// GetMe returns the bot account; used as a startup token check.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SetMyCommands publishes the command menu.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	return c.call(ctx, "setMyCommands", setCommandsRequest{Commands: commands}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// call runs one method under the breaker and the retrier.
func (c *Client) call(ctx context.Context, method string, req, out any) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return classify(c.post(ctx, method, req, out))
		})
	})
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	return nil
}

// classify marks the errors worth another attempt.
func classify(err error) error {
	var apiErr *APIError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests:
		return retry.RetryableAfter(err, time.Duration(apiErr.RetryAfter)*time.Second)
	case errors.As(err, &apiErr) && apiErr.Code >= 500:
		return retry.Retryable(err)
	case isNetworkError(err):
		return retry.Retryable(err)
	}
	return err
}

// post performs one HTTP round trip and decodes the result into out.
func (c *Client) post(ctx context.Context, method string, req, out any) error {
	var body io.Reader
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("encode %s: %w", method, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/"+method, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// *url.Error prints the URL, and the URL holds the token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 500 {
			return &APIError{Code: resp.StatusCode, Description: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode %s response: %w", method, err)
	}

	if !env.OK {
		apiErr := &APIError{Code: env.ErrorCode, Description: env.Description}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		return apiErr
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is an ok=false response.
type APIError struct {
	Code        int
	Description string

	// RetryAfter is set on 429, in seconds.
	RetryAfter int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bot api %d: %s", e.Code, e.Description)
}

func apiCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// IsUserBlocked reports that the user blocked the bot or never started it.
func IsUserBlocked(err error) bool {
	return apiCode(err) == http.StatusForbidden
}

// IsMessageNotModified reports an edit that would not change the message.
func IsMessageNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		apiErr.Code == http.StatusBadRequest &&
		strings.Contains(apiErr.Description, "message is not modified")
}

// isClientError reports a 4xx other than 429. Those say nothing about
// the API being down.
func isClientError(err error) bool {
	code := apiCode(err)
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}
