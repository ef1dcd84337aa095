package quote

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var adapter = common.HexToAddress("0x7777777777777777777777777777777777777777")

func q(venue string, buy uint64) VenueQuote {
	return VenueQuote{
		Venue:     venue,
		Adapter:   adapter,
		BuyAmount: uint256.NewInt(buy),
		Calldata:  []byte{0x01, 0x02},
	}
}

func TestBest_PicksHighestBuyAmount(t *testing.T) {
	best, ok := Best([]VenueQuote{q("odos", 995), q("1inch", 1001), q("paraswap", 998)})
	require.True(t, ok)
	assert.Equal(t, "1inch", best.Venue)
}

// 并列时保留先出现者，归约结果与遍历顺序一一对应
func TestBest_TieKeepsFirst(t *testing.T) {
	best, ok := Best([]VenueQuote{q("odos", 1000), q("1inch", 1000)})
	require.True(t, ok)
	assert.Equal(t, "odos", best.Venue)
}

func TestBest_SkipsUnreadyQuotes(t *testing.T) {
	noAdapter := q("broken", 9999)
	noAdapter.Adapter = common.Address{}
	noCalldata := q("empty", 9999)
	noCalldata.Calldata = nil

	best, ok := Best([]VenueQuote{noAdapter, noCalldata, q("odos", 100)})
	require.True(t, ok)
	assert.Equal(t, "odos", best.Venue, "不可用报价即使金额更高也不能入选")

	_, ok = Best([]VenueQuote{noAdapter, noCalldata})
	assert.False(t, ok)

	_, ok = Best(nil)
	assert.False(t, ok)
}

func TestMinBuyAmount(t *testing.T) {
	// 10000 @ 50bps -> 9950
	assert.Equal(t, uint256.NewInt(9950), MinBuyAmount(uint256.NewInt(10000), 50))
	// 向下取整：9999 * 9950 / 10000 = 9949.0050 -> 9949
	assert.Equal(t, uint256.NewInt(9949), MinBuyAmount(uint256.NewInt(9999), 50))
	// 0 滑点原样返回
	assert.Equal(t, uint256.NewInt(777), MinBuyAmount(uint256.NewInt(777), 0))
	// 滑点 >= 100% 直接归零
	assert.True(t, MinBuyAmount(uint256.NewInt(777), 10000).IsZero())
	assert.True(t, MinBuyAmount(nil, 50).IsZero())
}
