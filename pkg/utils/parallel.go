package utils

import "sync"

// ParallelMap 以固定并发度对 inputs 逐一执行 fn，结果保持输入顺序。
// 空输入返回空切片；单元素直接执行，不起协程。
func ParallelMap[T any, R any](inputs []T, workers int, fn func(T) R) []R {
	if len(inputs) == 0 {
		return []R{}
	}
	if len(inputs) == 1 {
		return []R{fn(inputs[0])}
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	results := make([]R, len(inputs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, in := range inputs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, in T) {
			defer func() {
				<-sem
				wg.Done()
			}()
			results[i] = fn(in)
		}(i, in)
	}
	wg.Wait()
	return results
}
