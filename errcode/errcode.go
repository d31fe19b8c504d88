package errcode

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind 错误分类, 决定调用方是否可以重试以及 HTTP 状态码
type Kind int

const (
	KindInternal   Kind = iota // 未分类的内部错误
	KindValidation             // 客户端原因, 原样重试不会成功
	KindNotFound               // 拍卖或通道不存在
	KindConflict               // 与当前状态冲突
	KindTransient              // 存储或链上调用失败, 可重试
	KindFatal                  // 不变量被破坏
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "internal"
	}
}

// Err 带错误码的业务错误
type Err struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	Kind  Kind   `json:"-"`
	cause error
}

func (e *Err) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

func (e *Err) Unwrap() error { return e.cause }

// Is 按错误码比较, 使 errors.Is(err, ErrXXX) 在 WithMsg/Wrap 之后依然成立
func (e *Err) Is(target error) bool {
	t, ok := target.(*Err)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMsg 复制一份错误并替换提示信息
func (e *Err) WithMsg(msg string) *Err {
	return &Err{Code: e.Code, Msg: msg, Kind: e.Kind, cause: e.cause}
}

// Wrap 复制一份错误并附加底层原因
func (e *Err) Wrap(cause error) *Err {
	return &Err{Code: e.Code, Msg: e.Msg, Kind: e.Kind, cause: cause}
}

func New(code int, kind Kind, msg string) *Err {
	return &Err{Code: code, Msg: msg, Kind: kind}
}

var (
	ErrUnexpected    = New(10000, KindInternal, "unexpected error")
	ErrInvalidParams = New(10001, KindValidation, "invalid params")
	ErrCustom        = New(10002, KindValidation, "")

	ErrAuctionNotFound      = New(20001, KindNotFound, "auction not found")
	ErrChannelNotFound      = New(20002, KindNotFound, "channel not found")
	ErrBidNotFound          = New(20003, KindNotFound, "bid not found")
	ErrAuctionNotActive     = New(20010, KindValidation, "auction is not active")
	ErrAuctionNotEnded      = New(20011, KindValidation, "auction has not ended")
	ErrInvalidAuction       = New(20012, KindValidation, "invalid auction params")
	ErrNotSeller            = New(20013, KindValidation, "caller is not the seller")
	ErrAuctionHasBids       = New(20014, KindConflict, "auction already has bids")
	ErrDuplicateKey         = New(20020, KindConflict, "duplicate key")
	ErrStaleState           = New(20021, KindConflict, "state changed concurrently")
	ErrSettlementInProgress = New(20030, KindConflict, "settlement already in progress")
	ErrSettlementDone       = New(20031, KindConflict, "settlement already completed")
	ErrBidRejected          = New(20040, KindValidation, "bid rejected")

	ErrStorage  = New(30001, KindTransient, "storage unavailable")
	ErrTransfer = New(30002, KindTransient, "settlement transfer failed")
	ErrNotFinal = New(30003, KindTransient, "transaction not final yet")

	ErrInvariant         = New(40001, KindFatal, "invariant violated")
	ErrSubmissionUnknown = New(40002, KindFatal, "settlement submission outcome unknown")
)

// NewCustomErr 自定义提示信息的参数错误
func NewCustomErr(msg string) *Err {
	return ErrCustom.WithMsg(msg)
}

// KindOf 沿包装链查找 *Err 并返回其分类, 找不到时视为内部错误
func KindOf(err error) Kind {
	var e *Err
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable 只有临时性基础设施错误可以原样重试
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
