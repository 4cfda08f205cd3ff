package xerrors

import "fmt"

const (
	CodeInvalidParameters = 400101
	CodeInvalidIndex      = 400102
	CodeRateLimited       = 429001
)

var (
	// ErrInvalidParameters 证券或期权参数违反约束（u ≤ d、无套利区间、波动率非正等）。
	ErrInvalidParameters = New(ErrInvalidArg, CodeInvalidParameters, "invalid parameters", "", nil)
	// ErrInvalidIndex 查询的时间步或上行次数越界。
	ErrInvalidIndex = New(ErrOutOfRange, CodeInvalidIndex, "invalid index", "", nil)
	// ErrRateLimited 请求被限流。
	ErrRateLimited = New(ErrLimitExceeded, CodeRateLimited, "too many requests", "access rate limit exceeded", nil)
)

// InvalidParameters 构造一个新的参数错误，可用 errors.Is(err, ErrInvalidParameters) 判别。
func InvalidParameters(format string, args ...any) *Error {
	return New(ErrInvalidArg, CodeInvalidParameters, "invalid parameters", fmt.Sprintf(format, args...), nil)
}

// InvalidIndex 构造一个新的越界错误，可用 errors.Is(err, ErrInvalidIndex) 判别。
func InvalidIndex(format string, args ...any) *Error {
	return New(ErrOutOfRange, CodeInvalidIndex, "invalid index", fmt.Sprintf(format, args...), nil)
}
