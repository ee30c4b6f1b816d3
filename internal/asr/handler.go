package asr

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

// MaxUploadBytes 是单个音频上传的大小上限。
const MaxUploadBytes = 10 << 20

type Handler struct {
	client *Client
}

func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// isAudio 报告探测到的类型是否是可接受的录音格式。
// 浏览器 MediaRecorder 产生的 webm 会被识别为 video/webm。
func isAudio(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") || m.Is("video/webm") || m.Is("application/ogg") {
			return true
		}
	}
	return false
}

// Transcribe 接收 audio 字段上传的录音，转发给识别服务。
func (h *Handler) Transcribe(c *gin.Context) {
	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.ErrInvalid, "缺少音频文件", err))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.ErrInvalid, "无法读取音频文件", err))
		return
	}
	if len(audio) == 0 {
		apperr.Respond(c, apperr.New(apperr.ErrInvalid, "音频文件为空"))
		return
	}
	if len(audio) > MaxUploadBytes {
		apperr.Respond(c, apperr.New(apperr.ErrInvalid, "音频文件过大"))
		return
	}

	mtype := mimetype.Detect(audio)
	if !isAudio(mtype) {
		apperr.Respond(c, apperr.Wrap(apperr.ErrInvalid, "不支持的音频格式", errors.New(mtype.String())))
		return
	}

	filename := filepath.Base(header.Filename)
	if filename == "." || filename == "/" || filename == "" {
		filename = "recording" + mtype.Extension()
	}

	result, err := h.client.Transcribe(c.Request.Context(), filename, audio)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
