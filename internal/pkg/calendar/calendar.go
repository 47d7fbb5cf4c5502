// Package calendar 账单日历计算。
//
// 所有账户共用同一个账单时钟：固定 UTC+8（北京时间），与支付渠道无关。
// 账期边界统一落在该时区的零点。
package calendar

import "time"

// OffsetHours 账单时钟相对 UTC 的偏移
const OffsetHours = 8

// Location 账单时钟所在时区
var Location = time.FixedZone("UTC+8", OffsetHours*60*60)

// DaysIn 返回指定月份的天数
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, Location).Day()
}

// ValidAnchorDay 锚点日必须在 1..31 之间
func ValidAnchorDay(day int) bool {
	return day >= 1 && day <= 31
}

// AnchorDay 取账单时钟下的日期（几号）
func AnchorDay(t time.Time) int {
	return t.In(Location).Day()
}

// AddCalendarMonths 日历月累加并对齐账单锚点。
// 结果为目标月份锚点日的零点；锚点日超过当月天数时取月末（31 -> 2月28/29日，
// 之后的月份仍回到 31 日）。
func AddCalendarMonths(base time.Time, months int, anchorDay int) time.Time {
	if anchorDay < 1 {
		anchorDay = 1
	}
	if anchorDay > 31 {
		anchorDay = 31
	}

	local := base.In(Location)
	first := time.Date(local.Year(), local.Month()+time.Month(months), 1, 0, 0, 0, 0, Location)

	day := anchorDay
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}

	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, Location)
}

// StartOfDay 账单时钟下当天零点
func StartOfDay(t time.Time) time.Time {
	local := t.In(Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Location)
}

// AddDays 从当天零点起累加天数，用于升级折算的赠送天数
func AddDays(base time.Time, days int) time.Time {
	return StartOfDay(base).AddDate(0, 0, days)
}
