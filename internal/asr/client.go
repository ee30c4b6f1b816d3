package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
)

// maxResponseBytes 限制读取的响应体大小。
const maxResponseBytes = 1 << 20

// Result 是语音识别的结果。识别服务没有给出的字段保持零值。
type Result struct {
	Text       string   `json:"text"`
	Language   string   `json:"language,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Client 调用外部的语音识别服务。识别是尽力而为的，失败不重试。
type Client struct {
	endpoint   string
	httpClient *http.Client
	log        *logger.Logger
}

func NewClient(endpoint string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Configured 报告是否配置了识别服务地址。
func (c *Client) Configured() bool {
	return c.endpoint != ""
}

// Transcribe 把音频以 multipart 表单的 audio 字段上传到识别服务。
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte) (*Result, error) {
	if !c.Configured() {
		return nil, apperr.New(apperr.ErrUnavailable, "语音识别服务未配置")
	}

	// 1. 构造表单
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return nil, fmt.Errorf("无法创建表单字段: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("无法写入音频数据: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("无法完成表单: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("无法创建识别请求: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("ngrok-skip-browser-warning", "true")

	// 2. 发送请求
	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("语音识别请求失败", "error", err)
		return nil, apperr.Wrap(apperr.ErrUnavailable, "网络错误或服务不可用", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUnavailable, "网络错误或服务不可用", err)
	}

	// 3. 解析结果
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure struct {
			Error string `json:"error"`
		}
		msg := "识别失败"
		if json.Unmarshal(body, &failure) == nil && strings.TrimSpace(failure.Error) != "" {
			msg = failure.Error
		}
		c.log.Warn("语音识别服务返回错误", "status", resp.StatusCode, "error", msg)
		return nil, apperr.Wrap(apperr.ErrUnavailable, msg, fmt.Errorf("识别服务返回状态码 %d", resp.StatusCode))
	}

	var out Result
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apperr.Wrap(apperr.ErrUnavailable, "识别结果格式错误", err)
	}
	c.log.Debug("语音识别完成", "bytes", len(audio), "latency", time.Since(started), "language", out.Language)
	return &out, nil
}
