package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vidioagent/backend/internal/common"
)

// ListConversations returns the authenticated tenant's conversations with
// their pipeline status, newest first.
func (h *Handler) ListConversations(c *gin.Context) {
	bid, ok := businessIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if v := c.Query("before_id"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			beforeID = n
		}
	}

	conversations, err := h.Repo.ListByBusiness(c.Request.Context(), bid, limit, beforeID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "failed to list conversations")
		return
	}

	var nextBeforeID uint64
	if len(conversations) > 0 {
		nextBeforeID = conversations[len(conversations)-1].ID
	}

	common.OK(c, gin.H{
		"conversations":  conversations,
		"next_before_id": nextBeforeID,
	})
}
