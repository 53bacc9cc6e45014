// internal/api/response_helpers_test.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/Corphon/DreamTaleMCP/internal/errors"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestHTTPStatusForErrorType 测试错误类型到HTTP状态码的映射
func TestHTTPStatusForErrorType(t *testing.T) {
	cases := []struct {
		errType apperrors.ErrorType
		want    int
	}{
		{apperrors.ErrorTypeValidation, http.StatusBadRequest},
		{apperrors.ErrorTypeInvalidChoice, http.StatusBadRequest},
		{apperrors.ErrorTypeNotFound, http.StatusNotFound},
		{apperrors.ErrorTypeConflict, http.StatusConflict},
		{apperrors.ErrorTypeProvider, http.StatusBadGateway},
		{apperrors.ErrorTypeJudgeUnavailable, http.StatusBadGateway},
		{apperrors.ErrorTypeExtractionExhausted, http.StatusBadGateway},
		{apperrors.ErrorType("unknown"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := httpStatusForErrorType(tc.errType); got != tc.want {
			t.Errorf("类型 %q 应该映射到 %d，实际 %d", tc.errType, tc.want, got)
		}
	}
}

// TestSanitizeErrorMessage 测试敏感信息过滤
func TestSanitizeErrorMessage(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"普通错误原样返回", "会话不存在", "会话不存在"},
		{"包含api_key", "invalid api_key provided", "An internal error occurred"},
		{"包含secret", "Secret mismatch", "An internal error occurred"},
		{"包含token", "bad Bearer TOKEN", "An internal error occurred"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeErrorMessage(tc.in); got != tc.want {
				t.Errorf("sanitizeErrorMessage(%q) = %q, 期望 %q", tc.in, got, tc.want)
			}
		})
	}
}

// appErrorResponse 发起一次会触发AppError响应的请求
func appErrorResponse(t *testing.T, err error) (*httptest.ResponseRecorder, *APIResponse) {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/test", nil)

	NewResponseHelper().AppError(c, err)

	var body APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("响应不是合法JSON: %v", err)
	}
	return w, &body
}

// TestAppErrorMapping 测试应用层错误映射为标准响应
func TestAppErrorMapping(t *testing.T) {
	w, body := appErrorResponse(t, apperrors.NewInvalidChoiceError("该选项不存在"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("无效选项应该返回400，实际 %d", w.Code)
	}
	if body.Success {
		t.Error("错误响应的success应该是false")
	}
	if body.Error == nil || body.Error.Code != "INVALID_CHOICE" {
		t.Errorf("错误代码不匹配: %+v", body.Error)
	}
	if body.Error.Message != "该选项不存在" {
		t.Errorf("错误消息不匹配: %q", body.Error.Message)
	}
}

// TestAppErrorUnknownError 测试非AppError按内部错误处理
func TestAppErrorUnknownError(t *testing.T) {
	w, body := appErrorResponse(t, errors.New("boom"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("未知错误应该返回500，实际 %d", w.Code)
	}
	if body.Error == nil || body.Error.Code != ErrorInternalError {
		t.Errorf("错误代码不匹配: %+v", body.Error)
	}
}

// TestAppErrorSanitizesSensitiveDetails 测试错误响应过滤敏感信息
func TestAppErrorSanitizesSensitiveDetails(t *testing.T) {
	_, body := appErrorResponse(t, apperrors.NewProviderError("invalid api_key in request", nil))

	if body.Error == nil || body.Error.Message != "An internal error occurred" {
		t.Errorf("敏感消息应该被替换，实际: %+v", body.Error)
	}
}
