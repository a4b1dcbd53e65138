package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tunix/internal/config"
)

const telegramAPIBase = "https://api.telegram.org"

// 中文说明：
// Telegram 通知器：仓位开平、异常与状态汇总都经由这里推送。
// 通知失败只记录不重试交易动作，行情循环不被通知阻塞的前提是
// 调用方把 SendText 放在动作完成之后。

type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client

	sleep func(time.Duration)
}

func NewTelegram(cfg config.TelegramConfig) *Telegram {
	return &Telegram{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		apiBase:  telegramAPIBase,
		client:   &http.Client{Timeout: 15 * time.Second},
		sleep:    time.Sleep,
	}
}

// SendText 发送 Markdown 文本，最多重试 3 次，间隔线性递增。
func (t *Telegram) SendText(text string) error {
	if t.botToken == "" || t.chatID == "" {
		return fmt.Errorf("telegram 配置不完整")
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	body, err := json.Marshal(map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("序列化 telegram 消息失败: %w", err)
	}

	var lastErr error
	for i := 0; i < 3; i++ {
		if i > 0 {
			t.sleep(time.Duration(i) * time.Second)
		}
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("构造 telegram 请求失败: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 == 2 {
			return nil
		}
		lastErr = fmt.Errorf("telegram status=%d", resp.StatusCode)
	}
	return lastErr
}
