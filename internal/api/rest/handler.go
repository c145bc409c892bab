// Package rest exposes the ingestion engine over an HTTP JSON API.
package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/osa030/musicbucket/internal/app/activity"
	"github.com/osa030/musicbucket/internal/app/ingest"
	"github.com/osa030/musicbucket/internal/app/queries"
	"github.com/osa030/musicbucket/internal/app/releases"
	"github.com/osa030/musicbucket/internal/app/resolver"
	domain "github.com/osa030/musicbucket/internal/domain/activity"
	"github.com/osa030/musicbucket/internal/infra/store"
)

// Handler serves the API.
type Handler struct {
	pipeline *ingest.Pipeline
	activity *activity.Service
	sweeper  *releases.Sweeper
	queries  *queries.Service
}

// NewHandler creates an API handler.
func NewHandler(p *ingest.Pipeline, act *activity.Service, sw *releases.Sweeper, q *queries.Service) *Handler {
	return &Handler{pipeline: p, activity: act, sweeper: sw, queries: q}
}

// NewRouter builds the gin engine. An empty token disables authentication.
func NewRouter(h *Handler, token string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	if token != "" {
		api.Use(TokenAuth(token))
	}
	h.RegisterRoutes(api)
	return r
}

// RegisterRoutes registers the API routes on a group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/messages", h.PostMessage)
	r.POST("/releases/sweep", h.SweepReleases)

	users := r.Group("/users/:id")
	users.GET("/saved", h.ListSaved)
	users.POST("/saved", h.Save)
	users.DELETE("/saved/:link_id", h.Unsave)
	users.GET("/follows", h.ListFollows)
	users.POST("/follows", h.Follow)
	users.DELETE("/follows/:artist_id", h.Unfollow)
	users.POST("/releases", h.CheckReleases)
	users.GET("/history", h.History)

	chats := r.Group("/chats/:id")
	chats.GET("/links", h.ChatLinks)
	chats.GET("/stats", h.ChatStats)
}

// MessageRequest is a chat message posted by the transport.
type MessageRequest struct {
	Text      string    `json:"text" binding:"required"`
	UserID    int64     `json:"user_id" binding:"required"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	ChatID    int64     `json:"chat_id" binding:"required"`
	ChatName  string    `json:"chat_name"`
	SentAt    time.Time `json:"sent_at"`
}

// URLRequest carries a link URL and, optionally, the names of the acting user.
type URLRequest struct {
	URL       string `json:"url" binding:"required"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

func (r URLRequest) user(id int64) domain.User {
	return domain.User{ID: id, Username: r.Username, FirstName: r.FirstName}
}

// PostMessage ingests a chat message.
func (h *Handler) PostMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.pipeline.Ingest(c.Request.Context(), ingest.Message{
		Text:      req.Text,
		UserID:    req.UserID,
		Username:  req.Username,
		FirstName: req.FirstName,
		ChatID:    req.ChatID,
		ChatName:  req.ChatName,
		SentAt:    req.SentAt,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, SentResponse{
		ID:     res.Sent.ID,
		SentAt: res.Sent.SentAt,
		Link:   linkToResponse(res.Link),
	})
}

// ListSaved lists a user's saved links.
func (h *Handler) ListSaved(c *gin.Context) {
	userID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	views, err := h.activity.SavedLinks(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]SavedResponse, 0, len(views))
	for _, v := range views {
		out = append(out, savedToResponse(v))
	}
	c.JSON(http.StatusOK, out)
}

// Save saves the link behind a URL.
func (h *Handler) Save(c *gin.Context) {
	userID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req URLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := h.pipeline.SaveURL(c.Request.Context(), req.user(userID), req.URL)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": saved.ID, "link_id": saved.LinkID, "saved_at": saved.SavedAt})
}

// Unsave removes a saved link. Removing an unsaved link succeeds.
func (h *Handler) Unsave(c *gin.Context) {
	userID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	linkID, ok := int64Param(c, "link_id")
	if !ok {
		return
	}
	if err := h.activity.Unsave(c.Request.Context(), userID, uint(linkID)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListFollows lists a user's followed artists.
func (h *Handler) ListFollows(c *gin.Context) {
	userID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	views, err := h.activity.FollowedArtists(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]FollowResponse, 0, len(views))
	for _, v := range views {
		out = append(out, FollowResponse{
			ArtistID:   v.ArtistID,
			ArtistName: v.ArtistName,
			FollowedAt: v.FollowedAt,
			LastLookup: v.LastLookup,
		})
	}
	c.JSON(http.StatusOK, out)
}

// Follow follows the artist behind a URL.
func (h *Handler) Follow(c *gin.Context) {
	userID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req URLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, artist, err := h.pipeline.FollowURL(c.Request.Context(), req.user(userID), req.URL)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ResultResponse{OK: res.OK, Code: res.Code, ArtistID: artist.ID, ArtistName: artist.Name})
}

// Unfollow stops following an artist.
func (h *Handler) Unfollow(c *gin.Context) {
	userID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	artistID := c.Param("artist_id")
	res, err := h.activity.Unfollow(c.Request.Context(), userID, artistID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ResultResponse{OK: res.OK, Code: res.Code, ArtistID: artistID})
}

// CheckReleases checks a user's followed artists for new releases.
func (h *Handler) CheckReleases(c *gin.Context) {
	userID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	report, err := h.sweeper.CheckUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reportToResponse(report))
}

// SweepReleases checks every follow of every user.
func (h *Handler) SweepReleases(c *gin.Context) {
	reports, err := h.sweeper.SweepAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make(map[string]ReportResponse, len(reports))
	for userID, r := range reports {
		out[strconv.FormatInt(userID, 10)] = reportToResponse(r)
	}
	c.JSON(http.StatusOK, out)
}

// History lists the links a user sent, newest first.
func (h *Handler) History(c *gin.Context) {
	userID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	views, err := h.queries.History(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sentViewsToResponse(views))
}

// ChatLinks lists the recent links of a chat grouped by sender, or every
// link of one sender when the username query parameter is set.
func (h *Handler) ChatLinks(c *gin.Context) {
	chatID, ok := int64Param(c, "id")
	if !ok {
		return
	}

	if username, set := c.GetQuery("username"); set {
		views, err := h.queries.UserLinks(c.Request.Context(), chatID, username)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, sentViewsToResponse(views))
		return
	}

	groups, err := h.queries.RecentLinks(c.Request.Context(), chatID)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]SenderResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, SenderResponse{Sender: g.Sender, Links: sentViewsToResponse(g.Links)})
	}
	c.JSON(http.StatusOK, out)
}

// ChatStats returns send counts per user and the most sent genres of a chat.
func (h *Handler) ChatStats(c *gin.Context) {
	chatID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	stats, err := h.queries.Stats(c.Request.Context(), chatID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statsToResponse(stats))
}

// fail maps an engine error to a status code.
func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ingest.ErrInvalidLink), errors.Is(err, ingest.ErrNotArtist):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, queries.ErrUsernameRequired):
		status = http.StatusBadRequest
	case errors.Is(err, resolver.ErrResolutionFailed):
		status = http.StatusBadGateway
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}

	msg := http.StatusText(status)
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}
