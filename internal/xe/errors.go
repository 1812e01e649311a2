package xe

import "github.com/go-orz/orz"

var (
	ErrInvalidParams      = orz.NewError(10400, "参数无效")
	ErrInvalidToken       = orz.NewError(10403, "令牌无效")
	ErrPositionNotFound   = orz.NewError(10404, "持仓不存在")
	ErrOrderNotFound      = orz.NewError(10405, "订单不存在")
	ErrInvalidOrder       = orz.NewError(10406, "订单参数无效")
	ErrOrderNotCancelable = orz.NewError(10407, "订单不是待触发状态，无法取消")
	ErrInstrumentBusy     = orz.NewError(10409, "该代币正在处理中，请稍后重试")
	ErrCloseFailed        = orz.NewError(10500, "强制卖出失败，持仓保持不变")
)
