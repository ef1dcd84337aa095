package cache

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TokenPricePoint 某资产在某时刻的 USD 价格（8 位定点）
type TokenPricePoint struct {
	Timestamp int64
	PriceUsd  uint64
}

// PriceCache 预言机价格快照缓存：边界层用它补全请求里缺失的资产价格。
// 核心只读快照，不触碰此缓存。
type PriceCache struct {
	mu      sync.RWMutex
	history map[common.Address][]TokenPricePoint // 历史价格点按时间升序排列，便于二分查找
}

func NewPriceCache() *PriceCache {
	return &PriceCache{
		history: make(map[common.Address][]TokenPricePoint),
	}
}

// Insert 插入一批新价格点，按时间有序维护并限制容量
func (pc *PriceCache) Insert(newPoints map[common.Address]TokenPricePoint) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	const maxCapacity = 400
	const retainCount = 300

	for token, point := range newPoints {
		pricePoints, ok := pc.history[token]
		if !ok {
			pricePoints = make([]TokenPricePoint, 0, maxCapacity)
			pricePoints = append(pricePoints, point)
			pc.history[token] = pricePoints
			continue
		}

		if len(pricePoints) >= maxCapacity {
			// 将后半段复制到前半段，截断为 retainCount 长度
			copy(pricePoints[:retainCount], pricePoints[len(pricePoints)-retainCount:])
			pricePoints = pricePoints[:retainCount]
			pc.history[token] = pricePoints
		}

		// 顺序插入优化
		lastPricePoint := pricePoints[len(pricePoints)-1]
		if point.Timestamp == lastPricePoint.Timestamp {
			continue
		}
		if point.Timestamp > lastPricePoint.Timestamp {
			pricePoints = append(pricePoints, point)
			pc.history[token] = pricePoints
			continue
		}

		insertIdx := sort.Search(len(pricePoints), func(i int) bool {
			return pricePoints[i].Timestamp >= point.Timestamp
		})
		if insertIdx < len(pricePoints) && pricePoints[insertIdx].Timestamp == point.Timestamp {
			continue
		}

		pricePoints = append(pricePoints, TokenPricePoint{})
		copy(pricePoints[insertIdx+1:], pricePoints[insertIdx:])
		pricePoints[insertIdx] = point
		pc.history[token] = pricePoints
	}
}

// GetPriceAt 查询某资产在指定时刻的价格（8 位定点 USD）
func (pc *PriceCache) GetPriceAt(token common.Address, at int64) (*uint256.Int, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	points, ok := pc.history[token]
	if !ok || len(points) == 0 {
		return nil, false
	}

	count := len(points)

	// 边界快速判断：比最老还早 or 比最新还晚
	if at >= points[count-1].Timestamp {
		return uint256.NewInt(points[count-1].PriceUsd), true
	}
	if at < points[0].Timestamp {
		return uint256.NewInt(points[0].PriceUsd), true
	}

	idx := sort.Search(len(points), func(i int) bool {
		return points[i].Timestamp >= at
	})
	if idx < count && points[idx].Timestamp == at {
		return uint256.NewInt(points[idx].PriceUsd), true
	}

	// 否则取前一个点（即 < at 的最大点）
	if idx > 0 {
		idx--
	}
	return uint256.NewInt(points[idx].PriceUsd), true
}
