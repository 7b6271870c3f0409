package checkout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ai-bootcamp/backend/internal/registrations"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type creatorFunc func(ctx context.Context, req Request) (*Session, error)

func (f creatorFunc) Create(ctx context.Context, req Request) (*Session, error) { return f(ctx, req) }

func post(h *Handler, body string) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST("/checkout/sessions", h.CreateSession)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/checkout/sessions", strings.NewReader(body)))
	return w
}

func TestCreateSessionHandler(t *testing.T) {
	eventID, regID := uuid.New(), uuid.New()
	body := `{"eventId":"` + eventID.String() + `","registrationId":"` + regID.String() + `","amount":199,"email":"ada@example.com"}`

	var got Request
	h := NewHandler(creatorFunc(func(_ context.Context, req Request) (*Session, error) {
		got = req
		return &Session{ID: "cs_1", URL: "https://checkout.example.com/cs_1"}, nil
	}))
	w := post(h, body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"url":"https://checkout.example.com/cs_1"`)
	assert.Equal(t, regID, got.RegistrationID)
	assert.Equal(t, 199.0, got.Amount)

	errCases := map[error]int{
		ErrInvalidRequest:         http.StatusBadRequest,
		ErrAlreadyPaid:            http.StatusConflict,
		registrations.ErrNotFound: http.StatusNotFound,
		ErrGateway:                http.StatusBadGateway,
		context.DeadlineExceeded:  http.StatusInternalServerError,
	}
	for e, code := range errCases {
		h := NewHandler(creatorFunc(func(context.Context, Request) (*Session, error) { return nil, e }))
		assert.Equal(t, code, post(h, body).Code, e.Error())
	}

	assert.Equal(t, http.StatusBadRequest, post(h, `{"eventId":"x","registrationId":"y","amount":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(h, `{"eventId":"`+eventID.String()+`","registrationId":"`+regID.String()+`","amount":0}`).Code)
}
