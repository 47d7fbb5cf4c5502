package dto

// OrderRequest 下单/询价请求
type OrderRequest struct {
	ProductType string `json:"product_type" binding:"required,oneof=SUBSCRIPTION ADDON"`
	Plan        string `json:"plan,omitempty"`
	Period      string `json:"period,omitempty" binding:"omitempty,oneof=monthly annual"`
	AddonID     string `json:"addon_id,omitempty"`
	Currency    string `json:"currency,omitempty" binding:"omitempty,len=3"`
	Provider    string `json:"provider" binding:"required,oneof=wechat alipay"`
}

// QuoteResponse 询价结果
type QuoteResponse struct {
	ProductType       string `json:"product_type"`
	Plan              string `json:"plan,omitempty"`
	Period            string `json:"period,omitempty"`
	AddonID           string `json:"addon_id,omitempty"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Days              int    `json:"days,omitempty"`
	Decision          string `json:"decision,omitempty"`
	IsUpgrade         bool   `json:"is_upgrade"`
	IsFreeUpgrade     bool   `json:"is_free_upgrade"`
	ImageCredits      int    `json:"image_credits,omitempty"`
	VideoAudioCredits int    `json:"video_audio_credits,omitempty"`
}

// OrderResponse 下单结果，provider_order_id 交给支付渠道作为商户订单号
type OrderResponse struct {
	PaymentID       string         `json:"payment_id"`
	ProviderOrderID string         `json:"provider_order_id"`
	Quote           *QuoteResponse `json:"quote"`
}

// PendingChange 排队中的降级
type PendingChange struct {
	Plan        string `json:"plan"`
	Period      string `json:"period"`
	EffectiveAt string `json:"effective_at"`
	ExpiresAt   string `json:"expires_at"`
}

// Entitlement 账户当前权益
type Entitlement struct {
	AccountID           int64           `json:"account_id"`
	Plan                string          `json:"plan"`
	Pro                 bool            `json:"pro"`
	Active              bool            `json:"active"`
	ContractExpiresAt   string          `json:"contract_expires_at,omitempty"`
	BillingAnchorDay    int             `json:"billing_anchor_day,omitempty"`
	MonthlyImageLimit   int             `json:"monthly_image_limit"`
	MonthlyVideoLimit   int             `json:"monthly_video_limit"`
	MonthlyImageBalance int             `json:"monthly_image_balance"`
	MonthlyVideoBalance int             `json:"monthly_video_balance"`
	MonthlyResetAt      string          `json:"monthly_reset_at,omitempty"`
	AddonImageBalance   int             `json:"addon_image_balance"`
	AddonVideoBalance   int             `json:"addon_video_balance"`
	TotalImageBalance   int             `json:"total_image_balance"`
	TotalVideoBalance   int             `json:"total_video_balance"`
	PendingDowngrades   []PendingChange `json:"pending_downgrades"`
}

// ReconcileResponse 对账扫描结果
type ReconcileResponse struct {
	ProcessedCount int `json:"processed_count"`
	ErrorCount     int `json:"error_count"`
}
