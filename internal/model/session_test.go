package model

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func bindJSON(t *testing.T, body string, dst interface{}) error {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c.ShouldBindJSON(dst)
}

func TestNavigateRequestAllowsZeroDelta(t *testing.T) {
	var req NavigateRequest
	if err := bindJSON(t, `{"delta":0}`, &req); err != nil {
		t.Fatalf("zero delta rejected: %v", err)
	}
	if req.Delta != 0 {
		t.Errorf("delta = %d, want 0", req.Delta)
	}
}

func TestAnswerRequestRequiresOptionIndex(t *testing.T) {
	var req AnswerRequest
	if err := bindJSON(t, `{"question_id":"q1"}`, &req); err == nil {
		t.Error("missing option_index accepted")
	}

	req = AnswerRequest{}
	if err := bindJSON(t, `{"question_id":"q1","option_index":0}`, &req); err != nil {
		t.Fatalf("zero option_index rejected: %v", err)
	}
	if req.OptionIndex == nil || *req.OptionIndex != 0 {
		t.Error("option_index not bound")
	}
}
