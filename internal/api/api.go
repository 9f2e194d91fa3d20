package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/lovelens/internal/chat"
	"github.com/wuwenbin0122/lovelens/internal/models"
	"github.com/wuwenbin0122/lovelens/internal/store"
)

// Responder produces the assistant side of a chat turn.
type Responder interface {
	GenerateResponse(ctx context.Context, conv models.Conversation) (*chat.Response, error)
}

type Handler struct {
	store     store.Store
	responder Responder
	logger    *zap.SugaredLogger
}

func NewHandler(st store.Store, responder Responder, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{store: st, responder: responder, logger: logger}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	apiGroup := router.Group("/api")

	conversations := apiGroup.Group("/conversations")
	conversations.GET("", h.handleListConversations)
	conversations.POST("", h.handleCreateConversation)
	conversations.GET("/:id", h.handleGetConversation)
	conversations.DELETE("/:id", h.handleDeleteConversation)

	apiGroup.POST("/chat", h.handleChat)
}

type createConversationRequest struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

type chatRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	Message        string `json:"message" binding:"required"`
}

var errMissingChatFields = errors.New("conversationId and message are required")

func (h *Handler) handleListConversations(c *gin.Context) {
	conversations, err := h.store.ListConversations(c.Request.Context())
	if err != nil {
		h.logger.Errorf("list conversations: %v", err)
		writeError(c, http.StatusInternalServerError, "failed to fetch conversations", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *Handler) handleGetConversation(c *gin.Context) {
	conv, err := h.store.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(c, http.StatusNotFound, "conversation not found", err)
		default:
			h.logger.Errorf("get conversation %s: %v", c.Param("id"), err)
			writeError(c, http.StatusInternalServerError, "failed to fetch conversation", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conv})
}

func (h *Handler) handleCreateConversation(c *gin.Context) {
	var req createConversationRequest
	// An empty body creates a conversation with the default title.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	conv, err := h.store.CreateConversation(c.Request.Context(), store.CreateInput{
		Title:   strings.TrimSpace(req.Title),
		Summary: strings.TrimSpace(req.Summary),
	})
	if err != nil {
		h.logger.Errorf("create conversation: %v", err)
		writeError(c, http.StatusInternalServerError, "failed to create conversation", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

func (h *Handler) handleDeleteConversation(c *gin.Context) {
	if err := h.store.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		h.logger.Errorf("delete conversation %s: %v", c.Param("id"), err)
		writeError(c, http.StatusInternalServerError, "failed to delete conversation", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, errMissingChatFields.Error(), err)
		return
	}

	// The message is stored as sent. Blank input is rejected.
	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" || strings.TrimSpace(req.Message) == "" {
		writeError(c, http.StatusBadRequest, errMissingChatFields.Error(), errMissingChatFields)
		return
	}

	ctx := c.Request.Context()

	if _, err := h.store.AddMessage(ctx, conversationID, req.Message, models.SenderUser); err != nil {
		h.writeChatStoreError(c, conversationID, "failed to store message", err)
		return
	}

	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		h.writeChatStoreError(c, conversationID, "failed to fetch conversation", err)
		return
	}

	resp, err := h.responder.GenerateResponse(ctx, *conv)
	if err != nil {
		h.writeChatFailure(c, conversationID, "failed to generate response", err)
		return
	}

	if _, err := h.store.AddMessage(ctx, conversationID, resp.Reply, models.SenderAI); err != nil {
		h.writeChatStoreError(c, conversationID, "failed to store reply", err)
		return
	}

	update := store.Update{Title: resp.Title, Summary: resp.Summary, Insights: resp.Insights}
	if !update.IsEmpty() {
		updated, err := h.store.UpdateConversation(ctx, conversationID, update)
		if err != nil {
			// The reply is already stored; metadata is best effort.
			h.logger.Warnf("chat %s: update conversation metadata: %v", conversationID, err)
		} else {
			conv = updated
		}
	}

	body := gin.H{
		"reply":   resp.Reply,
		"title":   conv.Title,
		"summary": conv.Summary,
	}
	if resp.Insights != nil {
		body["insights"] = resp.Insights
	}

	c.JSON(http.StatusOK, body)
}

// writeChatStoreError keeps the 404 and 400 mapping of writeStoreError. Any
// other failure is a chat failure.
func (h *Handler) writeChatStoreError(c *gin.Context, conversationID, message string, err error) {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidSender) {
		h.writeStoreError(c, message, err)
		return
	}
	h.writeChatFailure(c, conversationID, message, err)
}

// writeChatFailure answers a failed turn with the fallback reply. The cause is
// logged and never sent to the client.
func (h *Handler) writeChatFailure(c *gin.Context, conversationID, message string, err error) {
	h.logger.Errorf("chat %s: %s: %v", conversationID, message, err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": message,
		"reply": chat.FallbackReply,
	})
}

func (h *Handler) writeStoreError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(c, http.StatusNotFound, "conversation not found", err)
	case errors.Is(err, store.ErrInvalidSender):
		writeError(c, http.StatusBadRequest, err.Error(), err)
	default:
		h.logger.Errorf("%s: %v", message, err)
		writeError(c, http.StatusInternalServerError, message, err)
	}
}

func writeError(c *gin.Context, status int, message string, err error) {
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}
