package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/vidioagent/backend/internal/config"
	"github.com/vidioagent/backend/internal/models"
	"github.com/vidioagent/backend/internal/storage"
)

type registerForm struct {
	fields    map[string]string
	voiceType string
	imageType string
}

func defaultRegisterForm() registerForm {
	return registerForm{
		fields: map[string]string{
			"name":            "Ada's Bakery",
			"whatsapp_number": "+15559998888",
			"owner_name":      "Ada",
			"business_type":   "Bakery",
			"response_style":  "friendly",
			"password":        "strong-enough",
		},
		voiceType: "audio/mpeg",
		imageType: "image/png",
	}
}

func buildMultipart(t *testing.T, form registerForm) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range form.fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}

	filePart := func(field, filename, contentType string, data []byte) {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		hdr.Set("Content-Type", contentType)
		part, err := w.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part %s: %v", field, err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part %s: %v", field, err)
		}
	}
	filePart("voice_sample", "voice.mp3", form.voiceType, []byte("voice-bytes"))
	filePart("avatar_image", "avatar.png", form.imageType, []byte("image-bytes"))

	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func newRegisterFixture(t *testing.T) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := openTestDB(t)
	store, err := storage.New(t.TempDir(), "http://example.test:8000")
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	h := NewHandler(db, config.Config{JWTSecret: "test-secret"}, store, &fakeNotifier{}, &fakeQueue{})

	engine := gin.New()
	engine.POST("/register", h.RegisterBusiness)
	engine.POST("/login", h.Login)
	return engine, h
}

func postRegister(t *testing.T, engine *gin.Engine, form registerForm) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := buildMultipart(t, form)
	req := httptest.NewRequest(http.MethodPost, "/register", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRegisterBusiness_Success(t *testing.T) {
	engine, h := newRegisterFixture(t)

	w := postRegister(t, engine, defaultRegisterForm())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	var b models.Business
	if err := h.DB.First(&b, "whatsapp_number = ?", "+15559998888").Error; err != nil {
		t.Fatalf("business not created: %v", err)
	}
	if b.VoiceSampleURL == "" || b.AvatarImageURL == "" {
		t.Fatalf("uploads not stored: %+v", b)
	}
	if b.PasswordHash == "" || b.PasswordHash == "strong-enough" {
		t.Fatalf("password not hashed")
	}
	if !b.IsActive {
		t.Fatalf("new business not active")
	}
}

func TestRegisterBusiness_WeakPassword(t *testing.T) {
	engine, h := newRegisterFixture(t)

	form := defaultRegisterForm()
	form.fields["password"] = "short"
	w := postRegister(t, engine, form)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "at least 8 characters") {
		t.Fatalf("unexpected reason: %s", w.Body.String())
	}

	var count int64
	h.DB.Model(&models.Business{}).Count(&count)
	if count != 0 {
		t.Fatalf("business created despite weak password")
	}
}

func TestRegisterBusiness_BadFileTypes(t *testing.T) {
	engine, _ := newRegisterFixture(t)

	form := defaultRegisterForm()
	form.voiceType = "text/plain"
	w := postRegister(t, engine, form)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "audio file") {
		t.Fatalf("voice type accepted: %d %s", w.Code, w.Body.String())
	}

	form = defaultRegisterForm()
	form.imageType = "application/pdf"
	w = postRegister(t, engine, form)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "image file") {
		t.Fatalf("image type accepted: %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterBusiness_DuplicateNumber(t *testing.T) {
	engine, _ := newRegisterFixture(t)

	if w := postRegister(t, engine, defaultRegisterForm()); w.Code != http.StatusOK {
		t.Fatalf("first register failed: %d", w.Code)
	}

	// Same number in a different surface form still counts as a duplicate.
	form := defaultRegisterForm()
	form.fields["whatsapp_number"] = "whatsapp:+1 (555) 999-8888"
	w := postRegister(t, engine, form)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "already registered") {
		t.Fatalf("duplicate accepted: %d %s", w.Code, w.Body.String())
	}
}

func TestLogin_IssuesToken(t *testing.T) {
	engine, _ := newRegisterFixture(t)

	if w := postRegister(t, engine, defaultRegisterForm()); w.Code != http.StatusOK {
		t.Fatalf("register failed: %d", w.Code)
	}

	body, _ := json.Marshal(map[string]string{
		"whatsapp_number": "+15559998888",
		"password":        "strong-enough",
	})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Token == "" {
		t.Fatalf("no token issued")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	engine, _ := newRegisterFixture(t)

	if w := postRegister(t, engine, defaultRegisterForm()); w.Code != http.StatusOK {
		t.Fatalf("register failed: %d", w.Code)
	}

	body, _ := json.Marshal(map[string]string{
		"whatsapp_number": "+15559998888",
		"password":        "wrong-password",
	})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
