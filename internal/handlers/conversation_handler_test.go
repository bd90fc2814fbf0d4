package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sms-relay-server/internal/models"
	"sms-relay-server/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConvRepo struct {
	claimFn    func(phone, operator string, minutes int) (*models.ClaimResult, error)
	getFn      func(phone string) (*models.Conversation, error)
	listFn     func(limit, offset int) ([]*models.Conversation, error)
	markReadFn func(phone string) error
}

func (f *fakeConvRepo) UpsertInbound(phone string, at time.Time) error  { return nil }
func (f *fakeConvRepo) UpsertOutbound(phone string, at time.Time) error { return nil }

func (f *fakeConvRepo) MarkRead(phone string) error {
	if f.markReadFn != nil {
		return f.markReadFn(phone)
	}
	return nil
}

func (f *fakeConvRepo) Claim(phone, operator string, minutes int) (*models.ClaimResult, error) {
	return f.claimFn(phone, operator, minutes)
}

func (f *fakeConvRepo) Get(phone string) (*models.Conversation, error) {
	if f.getFn != nil {
		return f.getFn(phone)
	}
	return nil, nil
}

func (f *fakeConvRepo) List(limit, offset int) ([]*models.Conversation, error) {
	if f.listFn != nil {
		return f.listFn(limit, offset)
	}
	return nil, nil
}

func conversationRouter(repo *fakeConvRepo, operator string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("operator", operator)
		c.Next()
	})
	h := NewConversationHandler(services.NewConversationService(repo))
	r.GET("/api/conversations", h.List)
	r.GET("/api/conversations/:phone", h.Get)
	r.POST("/api/conversations/:phone/claim", h.Claim)
	r.POST("/api/conversations/:phone/read", h.MarkRead)
	return r
}

func TestClaimEndpoint(t *testing.T) {
	t.Run("successful claim passes canonical phone and operator", func(t *testing.T) {
		var gotPhone, gotOperator string
		var gotMinutes int
		repo := &fakeConvRepo{
			claimFn: func(phone, operator string, minutes int) (*models.ClaimResult, error) {
				gotPhone, gotOperator, gotMinutes = phone, operator, minutes
				return &models.ClaimResult{AssignedTo: operator, AssignedUntil: time.Now().Add(5 * time.Minute)}, nil
			},
		}
		router := conversationRouter(repo, "alice")

		body, _ := json.Marshal(ClaimRequest{Minutes: 10})
		req, _ := http.NewRequest("POST", "/api/conversations/+34600111222/claim", bytes.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "34600111222", gotPhone)
		assert.Equal(t, "alice", gotOperator)
		assert.Equal(t, 10, gotMinutes)
	})

	t.Run("already assigned returns conflict", func(t *testing.T) {
		repo := &fakeConvRepo{
			claimFn: func(phone, operator string, minutes int) (*models.ClaimResult, error) {
				return &models.ClaimResult{
					WasAlreadyAssigned: true,
					AssignedTo:         "bob",
					AssignedUntil:      time.Now().Add(3 * time.Minute),
				}, nil
			},
		}
		router := conversationRouter(repo, "alice")

		req, _ := http.NewRequest("POST", "/api/conversations/+34600111222/claim", bytes.NewReader([]byte("{}")))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusConflict, w.Code)
		var result models.ClaimResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, "bob", result.AssignedTo)
	})

	t.Run("invalid phone rejected before store", func(t *testing.T) {
		repo := &fakeConvRepo{
			claimFn: func(phone, operator string, minutes int) (*models.ClaimResult, error) {
				t.Fatal("store should not be reached")
				return nil, nil
			},
		}
		router := conversationRouter(repo, "alice")

		req, _ := http.NewRequest("POST", "/api/conversations/not-a-phone/claim", bytes.NewReader([]byte("{}")))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetConversationEndpoint(t *testing.T) {
	repo := &fakeConvRepo{
		getFn: func(phone string) (*models.Conversation, error) {
			if phone == "34600111222" {
				return &models.Conversation{CustomerPhone: phone}, nil
			}
			return nil, nil
		},
	}
	router := conversationRouter(repo, "alice")

	t.Run("known conversation", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/conversations/+34600111222", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/conversations/+34999888777", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid phone", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/conversations/not-a-phone", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("store failure is not a client error", func(t *testing.T) {
		failing := &fakeConvRepo{
			getFn: func(phone string) (*models.Conversation, error) {
				return nil, errors.New("database is locked")
			},
		}
		failRouter := conversationRouter(failing, "alice")

		req, _ := http.NewRequest("GET", "/api/conversations/+34600111222", nil)
		w := httptest.NewRecorder()
		failRouter.ServeHTTP(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestListConversationsEndpoint(t *testing.T) {
	var gotLimit, gotOffset int
	repo := &fakeConvRepo{
		listFn: func(limit, offset int) ([]*models.Conversation, error) {
			gotLimit, gotOffset = limit, offset
			return []*models.Conversation{{CustomerPhone: "34600111222"}}, nil
		},
	}
	router := conversationRouter(repo, "alice")

	req, _ := http.NewRequest("GET", "/api/conversations?limit=10&offset=20", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, gotLimit)
	assert.Equal(t, 20, gotOffset)
}

func TestMarkReadEndpoint(t *testing.T) {
	var gotPhone string
	repo := &fakeConvRepo{
		markReadFn: func(phone string) error {
			gotPhone = phone
			return nil
		},
	}
	router := conversationRouter(repo, "alice")

	req, _ := http.NewRequest("POST", "/api/conversations/+34600111222/read", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "34600111222", gotPhone)
}
