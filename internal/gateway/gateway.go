package gateway

import "errors"

var (
	ErrInvalidSignature = errors.New("回调签名校验失败")
	ErrMalformed        = errors.New("回调内容格式错误")
	ErrNotConfigured    = errors.New("支付渠道未配置")
)
