// Package plan 套餐等级、计费周期与价格目录
package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/qs3c/quota_ledger/config"
)

var (
	ErrUnknownTier   = errors.New("未知套餐")
	ErrUnknownPeriod = errors.New("未知计费周期")
	ErrNoPrice       = errors.New("套餐未配置该币种价格")
	ErrUnknownAddon  = errors.New("无效的加油包ID")
)

type Tier string

const (
	Free       Tier = "Free"
	Basic      Tier = "Basic"
	Pro        Tier = "Pro"
	Enterprise Tier = "Enterprise"
)

var ranks = map[Tier]int{
	Free:       0,
	Basic:      1,
	Pro:        2,
	Enterprise: 3,
}

// Rank 套餐等级，未知套餐按 Free 处理
func (t Tier) Rank() int {
	return ranks[t]
}

func (t Tier) IsFree() bool {
	return t.Rank() == 0
}

// ParseTier 统一套餐名称，兼容中英文
func ParseTier(name string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "free", "免费版":
		return Free, nil
	case "basic", "基础版":
		return Basic, nil
	case "pro", "专业版":
		return Pro, nil
	case "enterprise", "企业版":
		return Enterprise, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTier, name)
}

type Period string

const (
	Monthly Period = "monthly"
	Annual  Period = "annual"
)

const (
	DaysPerMonth = 30
	DaysPerYear  = 365
)

func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "month", "":
		return Monthly, nil
	case "annual", "yearly", "year":
		return Annual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
}

// Months 周期对应的日历月数
func (p Period) Months() int {
	if p == Annual {
		return 12
	}
	return 1
}

// Days 周期对应的标准天数，用于折算
func (p Period) Days() int {
	if p == Annual {
		return DaysPerYear
	}
	return DaysPerMonth
}

// Allowance 月度额度
type Allowance struct {
	Image int `json:"image"`
	Video int `json:"video"`
}

type Definition struct {
	Tier      Tier
	Allowance Allowance
	monthly   map[string]decimal.Decimal
	annual    map[string]decimal.Decimal
}

// Addon 加油包，额度永久有效
type Addon struct {
	ID                string
	Price             map[string]decimal.Decimal
	ImageCredits      int
	VideoAudioCredits int
}

// Catalog 只读价格目录。价格可随配置变化，但订单创建时的金额会固化到支付记录上。
type Catalog struct {
	plans  map[Tier]Definition
	addons map[string]Addon
}

func NewCatalog(plans map[string]config.PlanConfig, addons []config.AddonConfig) (*Catalog, error) {
	c := &Catalog{
		plans:  make(map[Tier]Definition, len(plans)),
		addons: make(map[string]Addon, len(addons)),
	}

	for name, pc := range plans {
		tier, err := ParseTier(name)
		if err != nil {
			return nil, err
		}
		monthly, err := parsePrices(pc.MonthlyPrice)
		if err != nil {
			return nil, fmt.Errorf("plan %s monthly price: %w", name, err)
		}
		annual, err := parsePrices(pc.AnnualPrice)
		if err != nil {
			return nil, fmt.Errorf("plan %s annual price: %w", name, err)
		}
		c.plans[tier] = Definition{
			Tier:      tier,
			Allowance: Allowance{Image: pc.MonthlyImage, Video: pc.MonthlyVideo},
			monthly:   monthly,
			annual:    annual,
		}
	}

	if _, ok := c.plans[Free]; !ok {
		c.plans[Free] = Definition{Tier: Free}
	}

	for _, ac := range addons {
		price, err := parsePrices(ac.Price)
		if err != nil {
			return nil, fmt.Errorf("addon %s price: %w", ac.ID, err)
		}
		c.addons[ac.ID] = Addon{
			ID:                ac.ID,
			Price:             price,
			ImageCredits:      ac.ImageCredits,
			VideoAudioCredits: ac.VideoAudioCredits,
		}
	}

	return c, nil
}

func parsePrices(raw map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(raw))
	for currency, s := range raw {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		out[strings.ToUpper(currency)] = d
	}
	return out, nil
}

// Allowance 套餐月度额度
func (c *Catalog) Allowance(t Tier) Allowance {
	return c.plans[t].Allowance
}

// PriceOf 套餐在指定周期与币种下的整期价格
func (c *Catalog) PriceOf(t Tier, p Period, currency string) (decimal.Decimal, error) {
	def, ok := c.plans[t]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownTier, t)
	}

	prices := def.monthly
	if p == Annual {
		prices = def.annual
	}

	price, ok := prices[strings.ToUpper(currency)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s/%s/%s", ErrNoPrice, t, p, currency)
	}
	return price, nil
}

// MonthlyPrice 月付价格，折算日价使用
func (c *Catalog) MonthlyPrice(t Tier, currency string) (decimal.Decimal, error) {
	return c.PriceOf(t, Monthly, currency)
}

func (c *Catalog) Addon(id string) (Addon, error) {
	a, ok := c.addons[id]
	if !ok {
		return Addon{}, fmt.Errorf("%w: %s", ErrUnknownAddon, id)
	}
	return a, nil
}

// PriceIn 加油包在指定币种下的价格
func (a Addon) PriceIn(currency string) (decimal.Decimal, error) {
	price, ok := a.Price[strings.ToUpper(currency)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", ErrNoPrice, a.ID, currency)
	}
	return price, nil
}

// Tiers 按等级升序返回已配置的套餐
func (c *Catalog) Tiers() []Tier {
	tiers := lo.Keys(c.plans)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Rank() < tiers[j].Rank() })
	return tiers
}

// Addons 按 ID 排序返回加油包
func (c *Catalog) Addons() []Addon {
	addons := lo.Values(c.addons)
	sort.Slice(addons, func(i, j int) bool { return addons[i].ID < addons[j].ID })
	return addons
}
