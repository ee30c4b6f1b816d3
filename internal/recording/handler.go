package recording

import (
	"context"
	"net/http"
	"strconv"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/apperr"
	"github.com/SlpAus/dialect-voice-backend/internal/user"
	"github.com/gin-gonic/gin"
)

// TallyReader 提供录音的实时赞踩数。
type TallyReader interface {
	Tally(ctx context.Context, recordID string) (up, down int, err error)
}

// Handler 暴露录音相关的HTTP接口。
type Handler struct {
	svc     *Service
	tallies TallyReader
}

func NewHandler(svc *Service, tallies TallyReader) *Handler {
	return &Handler{svc: svc, tallies: tallies}
}

// View 是录音的对外表示，附带审核状态。
type View struct {
	*DialectRecord
	ReviewState string `json:"review_state"`
}

func toView(r *DialectRecord) View {
	return View{DialectRecord: r, ReviewState: r.ReviewState()}
}

func toViews(rs []DialectRecord) []View {
	out := make([]View, len(rs))
	for i := range rs {
		out[i] = toView(&rs[i])
	}
	return out
}

func queryLimit(c *gin.Context) int {
	n, _ := strconv.Atoi(c.Query("limit"))
	return n
}

// Submit 提交一条新录音。
func (h *Handler) Submit(c *gin.Context) {
	u := user.CurrentUser(c)
	if u == nil {
		apperr.Respond(c, apperr.ErrUnauthenticated)
		return
	}

	var body Submission
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.ErrInvalid, "请求格式错误", err))
		return
	}

	res, err := h.svc.Submit(c.Request.Context(), u.ID, body)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListRecent 返回最近通过审核的录音，可按方言和精选筛选。
func (h *Handler) ListRecent(c *gin.Context) {
	featured, _ := strconv.ParseBool(c.Query("featured"))
	list, err := h.svc.Recent(c.Request.Context(), RecentFilter{
		Dialect:      c.Query("dialect"),
		FeaturedOnly: featured,
		Limit:        queryLimit(c),
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordings": toViews(list)})
}

// GetDialectStats 返回各方言的录音数量。
func (h *Handler) GetDialectStats(c *gin.Context) {
	stats, err := h.svc.DialectStats(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dialects": stats})
}

// GetRecording 返回一条录音以及实时的赞踩数。已删除的录音只对管理员可见。
func (h *Handler) GetRecording(c *gin.Context) {
	r, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if r.SoftDeleted && !user.CapabilitiesFor(user.CurrentUser(c)).Has(user.CapModerate) {
		apperr.Respond(c, apperr.New(apperr.ErrNotFound, "录音不存在"))
		return
	}

	if h.tallies != nil {
		if up, down, err := h.tallies.Tally(c.Request.Context(), r.ID); err == nil {
			r.Upvotes, r.Downvotes = up, down
		}
	}
	c.JSON(http.StatusOK, gin.H{"recording": toView(r)})
}

// GetUserRecordings 返回某个用户的录音画廊。
func (h *Handler) GetUserRecordings(c *gin.Context) {
	list, err := h.svc.ListByUser(c.Request.Context(), c.Param("id"), queryLimit(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordings": toViews(list)})
}

// GetPending 返回待审核队列。
func (h *Handler) GetPending(c *gin.Context) {
	list, err := h.svc.Pending(c.Request.Context(), queryLimit(c))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordings": toViews(list)})
}

type moderateRequestBody struct {
	Action Action `json:"action" binding:"required"`
}

// Moderate 对一条录音执行审核操作。所需能力由操作决定。
func (h *Handler) Moderate(c *gin.Context) {
	var body moderateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.ErrInvalid, "请求格式错误", err))
		return
	}

	r, err := h.svc.Moderate(c.Request.Context(), user.CurrentUser(c), c.Param("id"), body.Action)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording": toView(r)})
}

// GetAdminStats 返回录音审核状态的概况。
func (h *Handler) GetAdminStats(c *gin.Context) {
	stats, err := h.svc.AdminStats(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
