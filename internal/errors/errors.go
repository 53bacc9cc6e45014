// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// ErrorTypeValidation 输入校验错误（例如故事创意为空）
	ErrorTypeValidation ErrorType = "validation_error"
	// ErrorTypeInvalidChoice 选项不在当前场景提供的两个选项之内
	ErrorTypeInvalidChoice ErrorType = "invalid_choice"
	// ErrorTypeNotFound 会话或资源不存在
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeProvider 外部模型端点调用失败（超时、限流、响应异常）
	ErrorTypeProvider ErrorType = "provider_error"
	// ErrorTypeJudgeUnavailable 评审结果无法解析为三个整数分项
	ErrorTypeJudgeUnavailable ErrorType = "judge_unavailable"
	// ErrorTypeExtractionExhausted 学习词提取启发式与LLM兜底均失败
	ErrorTypeExtractionExhausted ErrorType = "extraction_exhausted"
	// ErrorTypeConflict 操作与当前会话状态冲突（例如故事未完成时请求评审）
	ErrorTypeConflict ErrorType = "conflict"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewInvalidInputError 创建输入校验错误
func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message, nil)
}

// NewInvalidChoiceError 创建无效选项错误
func NewInvalidChoiceError(message string) *AppError {
	return NewAppError(ErrorTypeInvalidChoice, message, nil)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProviderError 包装外部端点错误
func NewProviderError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeProvider, message, originalError)
}

// NewJudgeUnavailableError 创建评审不可用错误
func NewJudgeUnavailableError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeJudgeUnavailable, message, originalError)
}

// NewExtractionExhaustedError 创建提取兜底耗尽错误
func NewExtractionExhaustedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeExtractionExhausted, message, originalError)
}

// NewConflictError 创建状态冲突错误
func NewConflictError(message string) *AppError {
	return NewAppError(ErrorTypeConflict, message, nil)
}

// IsType 检查错误是否属于指定类型
func IsType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// IsValidationError 检查是否为输入校验错误
func IsValidationError(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsInvalidChoiceError 检查是否为无效选项错误
func IsInvalidChoiceError(err error) bool {
	return IsType(err, ErrorTypeInvalidChoice)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsProviderError 检查是否为外部端点错误
func IsProviderError(err error) bool {
	return IsType(err, ErrorTypeProvider)
}

// IsJudgeUnavailableError 检查是否为评审不可用错误
func IsJudgeUnavailableError(err error) bool {
	return IsType(err, ErrorTypeJudgeUnavailable)
}

// IsConflictError 检查是否为状态冲突错误
func IsConflictError(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "INVALID_INPUT"
	case ErrorTypeInvalidChoice:
		return "INVALID_CHOICE"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeProvider:
		return "PROVIDER_ERROR"
	case ErrorTypeJudgeUnavailable:
		return "JUDGE_UNAVAILABLE"
	case ErrorTypeExtractionExhausted:
		return "EXTRACTION_EXHAUSTED"
	case ErrorTypeConflict:
		return "CONFLICT"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
