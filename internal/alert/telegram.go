package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"threat-detector/internal/model"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
)

const DefaultTelegramAPIBase = "https://api.telegram.org"

type TelegramConfig struct {
	BotToken        string
	ChatID          string
	ParseMode       string
	Enabled         bool
	APIBase         string
	Timeout         time.Duration
	RetryAttempts   int
	MessageTemplate string
}

type TelegramNotifier struct {
	cfg             TelegramConfig
	messageTemplate *template.Template
	client          *http.Client
	breaker         *gobreaker.CircuitBreaker[struct{}]
	retryDelay      time.Duration
	logger          *logrus.Logger
}

type TelegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type TelegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func NewTelegramNotifier(cfg TelegramConfig, logger *logrus.Logger) *TelegramNotifier {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultTelegramAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}

	tn := &TelegramNotifier{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		retryDelay: time.Second,
		logger:     logger,
	}

	tn.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("[Telegram] circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	if strings.TrimSpace(cfg.MessageTemplate) != "" {
		funcMap := template.FuncMap{
			"formatTime": func(t time.Time, layout string) string {
				return t.Format(layout)
			},
		}
		tmpl, err := template.New("telegram_message").Funcs(funcMap).Parse(cfg.MessageTemplate)
		if err != nil {
			logger.Warnf("Failed to parse Telegram message template: %v, using default format", err)
		} else {
			tn.messageTemplate = tmpl
		}
	}

	return tn
}

func (tn *TelegramNotifier) Name() string {
	return "telegram"
}

func (tn *TelegramNotifier) IsEnabled() bool {
	return tn.cfg.Enabled
}

func (tn *TelegramNotifier) SendAlert(alert model.Alert) error {
	if !tn.cfg.Enabled {
		tn.logger.Debug("Telegram notifier is disabled, skipping alert")
		return nil
	}

	message := tn.formatAlertMessage(alert)

	var lastErr error
	for i := 0; i < tn.cfg.RetryAttempts; i++ {
		_, err := tn.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, tn.sendMessage(message)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		tn.logger.Warnf("Failed to send alert (attempt %d/%d): %v", i+1, tn.cfg.RetryAttempts, err)

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if i < tn.cfg.RetryAttempts-1 {
			time.Sleep(time.Duration(i+1) * tn.retryDelay)
		}
	}

	return fmt.Errorf("failed to send alert to telegram: %w", lastErr)
}

func (tn *TelegramNotifier) formatAlertMessage(alert model.Alert) string {
	if tn.messageTemplate != nil {
		var buf bytes.Buffer
		if err := tn.messageTemplate.Execute(&buf, alert); err != nil {
			tn.logger.Warnf("Failed to execute message template: %v, using default format", err)
		} else {
			return buf.String()
		}
	}

	return fmt.Sprintf("ALERT FIRING: %s\n\n"+
		"severity: %s\n"+
		"time: %s\n"+
		"source: %s\n"+
		"destination: %s:%d\n"+
		"anomaly_score: %.3f\n"+
		"confidence: %d%%\n"+
		"description: %s\n"+
		"recommendation: %s",
		alert.ThreatType,
		alert.Severity,
		alert.Timestamp.Format("2006-01-02 15:04:05"),
		alert.SourceAddr,
		alert.DestAddr,
		alert.DestPort,
		alert.AnomalyScore,
		alert.Confidence,
		alert.Description,
		alert.Recommendation)
}

func (tn *TelegramNotifier) sendMessage(text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", tn.cfg.APIBase, tn.cfg.BotToken)

	// Markdown modes are dropped; free-form descriptions break their parser.
	parseMode := ""
	if tn.cfg.ParseMode != "" && tn.cfg.ParseMode != "Markdown" && tn.cfg.ParseMode != "MarkdownV2" {
		parseMode = tn.cfg.ParseMode
	}

	jsonData, err := json.Marshal(TelegramMessage{
		ChatID:    tn.cfg.ChatID,
		Text:      text,
		ParseMode: parseMode,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), tn.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var telegramResp TelegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&telegramResp); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	if !telegramResp.OK {
		return fmt.Errorf("telegram API error: %s", telegramResp.Description)
	}

	tn.logger.Infof("Alert sent to Telegram successfully")
	return nil
}

func (tn *TelegramNotifier) SendTestMessage() error {
	if !tn.cfg.Enabled {
		return fmt.Errorf("telegram notifier is disabled")
	}
	return tn.sendMessage("Test Message\n\nThreat detector is working correctly!")
}
