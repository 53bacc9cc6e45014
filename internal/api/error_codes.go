// internal/api/error_codes.go
package api

import (
	"net/http"

	apperrors "github.com/Corphon/DreamTaleMCP/internal/errors"
)

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorForbidden     = "FORBIDDEN"

	// 故事会话相关错误
	ErrorInvalidInput        = "INVALID_INPUT"
	ErrorInvalidChoice       = "INVALID_CHOICE"
	ErrorStoryNotFound       = "NOT_FOUND"
	ErrorProviderFailed      = "PROVIDER_ERROR"
	ErrorJudgeUnavailable    = "JUDGE_UNAVAILABLE"
	ErrorExtractionExhausted = "EXTRACTION_EXHAUSTED"

	// LLM服务相关错误
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorLLMConfigInvalid      = "LLM_CONFIG_INVALID"
	ErrorConnectionFailed      = "CONNECTION_FAILED"

	// 配置健康相关
	ErrorConfigUnhealthy    = "CONFIG_UNHEALTHY"
	ErrorLLMProviderMissing = "LLM_PROVIDER_MISSING"
	ErrorAPIKeyMissing      = "API_KEY_MISSING"
)

// httpStatusForErrorType 根据应用错误类型映射HTTP状态码
func httpStatusForErrorType(errType apperrors.ErrorType) int {
	switch errType {
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeInvalidChoice:
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeProvider,
		apperrors.ErrorTypeJudgeUnavailable,
		apperrors.ErrorTypeExtractionExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
