package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vidioagent/backend/internal/auth"
	"github.com/vidioagent/backend/internal/common"
	"github.com/vidioagent/backend/internal/models"
	"github.com/vidioagent/backend/internal/phone"
)

type loginReq struct {
	WhatsAppNumber string `json:"whatsapp_number" binding:"required"`
	Password       string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "whatsapp_number and password required")
		return
	}

	number := phone.Normalize(req.WhatsAppNumber)

	var b models.Business
	if err := h.DB.First(&b, "whatsapp_number = ?", number).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			common.Fail(c, http.StatusUnauthorized, 40103, "invalid credentials")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	if !auth.CheckPassword(b.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40103, "invalid credentials")
		return
	}

	token, err := auth.SignJWT(b.ID, h.Cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20007, "failed to sign token")
		return
	}

	common.OK(c, gin.H{
		"token": token,
		"business": gin.H{
			"id":              b.ID,
			"name":            b.Name,
			"whatsapp_number": b.WhatsAppNumber,
		},
	})
}

func (h *Handler) Me(c *gin.Context) {
	bid, ok := businessIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var b models.Business
	if err := h.DB.First(&b, "id = ?", bid).Error; err != nil {
		common.Fail(c, http.StatusNotFound, 40401, "business not found")
		return
	}

	common.OK(c, gin.H{
		"id":              b.ID,
		"name":            b.Name,
		"whatsapp_number": b.WhatsAppNumber,
		"owner_name":      b.OwnerName,
		"business_type":   b.BusinessType,
		"response_style":  b.ResponseStyle,
		"is_active":       b.IsActive,
		"created_at":      b.CreatedAt,
	})
}
