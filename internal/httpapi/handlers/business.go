package handlers

import (
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vidioagent/backend/internal/auth"
	"github.com/vidioagent/backend/internal/common"
	"github.com/vidioagent/backend/internal/models"
	"github.com/vidioagent/backend/internal/phone"
)

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

var responseStyles = map[string]bool{
	"professional": true,
	"casual":       true,
	"friendly":     true,
}

// RegisterBusiness creates a tenant from a multipart form: profile fields
// plus a voice sample (audio/*) and an avatar (image/*).
func (h *Handler) RegisterBusiness(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	number := c.PostForm("whatsapp_number")
	ownerName := strings.TrimSpace(c.PostForm("owner_name"))
	businessType := strings.TrimSpace(c.PostForm("business_type"))
	style := c.DefaultPostForm("response_style", "professional")
	password := c.PostForm("password")

	if name == "" || number == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "name and whatsapp_number are required")
		return
	}

	formatted := phone.Normalize(number)
	if formatted == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid WhatsApp number format")
		return
	}

	if !responseStyles[style] {
		common.Fail(c, http.StatusBadRequest, 10003, "response_style must be professional, casual or friendly")
		return
	}

	if len(password) < 8 {
		common.Fail(c, http.StatusBadRequest, 10004, "password must be at least 8 characters long")
		return
	}

	var count int64
	if err := h.DB.Model(&models.Business{}).Where("whatsapp_number = ?", formatted).Count(&count).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if count > 0 {
		common.Fail(c, http.StatusBadRequest, 10005, fmt.Sprintf("business with WhatsApp number %s already registered", formatted))
		return
	}

	voiceFH, err := c.FormFile("voice_sample")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10006, "voice_sample file is required")
		return
	}
	avatarFH, err := c.FormFile("avatar_image")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10007, "avatar_image file is required")
		return
	}
	if !strings.HasPrefix(voiceFH.Header.Get("Content-Type"), "audio/") {
		common.Fail(c, http.StatusBadRequest, 10008, "voice sample must be an audio file")
		return
	}
	if !strings.HasPrefix(avatarFH.Header.Get("Content-Type"), "image/") {
		common.Fail(c, http.StatusBadRequest, 10009, "avatar must be an image file")
		return
	}

	voiceData, err := readUpload(voiceFH)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to read voice sample")
		return
	}
	avatarData, err := readUpload(avatarFH)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to read avatar")
		return
	}

	voicePath, err := h.Store.SaveVoiceSample(voiceData, voiceFH.Filename)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20004, "failed to save voice sample")
		return
	}
	avatarPath, err := h.Store.SaveAvatar(avatarData, avatarFH.Filename)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20005, "failed to save avatar")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20006, "failed to hash password")
		return
	}

	business := models.Business{
		Name:           name,
		WhatsAppNumber: formatted,
		OwnerName:      ownerName,
		BusinessType:   businessType,
		VoiceSampleURL: voicePath,
		AvatarImageURL: avatarPath,
		PasswordHash:   hash,
		ResponseStyle:  style,
		IsActive:       true,
	}
	if err := h.DB.Create(&business).Error; err != nil {
		log.Printf("register: create business %s: %v", formatted, err)
		common.Fail(c, http.StatusBadRequest, 10010, "failed to register business")
		return
	}

	common.OK(c, gin.H{
		"id":              business.ID,
		"name":            business.Name,
		"whatsapp_number": business.WhatsAppNumber,
		"owner_name":      business.OwnerName,
		"business_type":   business.BusinessType,
		"message":         fmt.Sprintf("Business '%s' registered successfully! You can now receive AI video responses on %s", name, formatted),
	})
}

func (h *Handler) GetBusiness(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10011, "invalid business id")
		return
	}

	var b models.Business
	if err := h.DB.First(&b, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			common.Fail(c, http.StatusNotFound, 40401, "business not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{
		"id":              b.ID,
		"name":            b.Name,
		"whatsapp_number": b.WhatsAppNumber,
		"owner_name":      b.OwnerName,
		"business_type":   b.BusinessType,
		"is_active":       b.IsActive,
		"created_at":      b.CreatedAt,
	})
}

func (h *Handler) ListBusinesses(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if offset < 0 {
		offset = 0
	}

	var businesses []models.Business
	if err := h.DB.Offset(offset).Limit(limit).Find(&businesses).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	out := make([]gin.H, 0, len(businesses))
	for _, b := range businesses {
		out = append(out, gin.H{
			"id":              b.ID,
			"name":            b.Name,
			"whatsapp_number": b.WhatsAppNumber,
			"business_type":   b.BusinessType,
			"is_active":       b.IsActive,
		})
	}
	common.OK(c, out)
}

type setActiveReq struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// SetActive toggles the authenticated tenant's active flag. An inactive
// business keeps its data but the webhook stops accepting its messages.
func (h *Handler) SetActive(c *gin.Context) {
	bid, ok := businessIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req setActiveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10012, "is_active is required")
		return
	}

	if err := h.DB.Model(&models.Business{}).Where("id = ?", bid).
		Update("is_active", *req.IsActive).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"id": bid, "is_active": *req.IsActive})
}
