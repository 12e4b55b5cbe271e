// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package ops

import (
	"sync"
	"sync/atomic"
)

// Runs fn on all items with the given concurrency limit, in no particular order. Stops 
// dispatching new items after the first failure, waits for running items to finish, and
// returns the first error seen
func ParallelEach[T any](items []T, maxThreads int, fn func(i int, item T) error) error {
	if len(items)==0 { return nil }
	if maxThreads<1 { maxThreads=1 }

	var (
		firstErr error
		errOnce  sync.Once
		failed   atomic.Bool
	)
	limiter:=make(chan bool, maxThreads)
	for i, item:=range items {
		limiter <- true
		if failed.Load() { 
			<-limiter
			break 
		}
		go func(i int, item T) {
			defer func() { <-limiter }()
			if err:=fn(i, item); err!=nil {
				errOnce.Do(func() { 
					firstErr=err 
					failed.Store(true)
				})
			}
		}(i, item)
	}
	for i:=0; i<cap(limiter); i++ {  // wait for goroutines to finish
		limiter <- true
	}
	return firstErr
}

// Maps fn over all items in parallel. Results are scattered into the output by original index,
// so the output order matches the input order regardless of completion order
func ParallelMap[T, R any](items []T, maxThreads int, fn func(i int, item T) (R, error)) ([]R, error) {
	if len(items)==0 { return nil, nil }
	outs:=make([]R, len(items))
	err:=ParallelEach(items, maxThreads, func(i int, item T) error {
		r, err:=fn(i, item)
		if err!=nil { return err }
		outs[i]=r
		return nil
	})
	if err!=nil { return nil, err }
	return outs, nil
}

// Maps fn over all items in parallel and hands each result to fold as soon as it is available.
// Calls to fold are serialized, in completion order. fold must be order-independent
func ParallelFold[T, R any](items []T, maxThreads int, fn func(i int, item T) (R, error), fold func(i int, r R) error) error {
	var mu sync.Mutex
	return ParallelEach(items, maxThreads, func(i int, item T) error {
		r, err:=fn(i, item)
		if err!=nil { return err }
		mu.Lock()
		defer mu.Unlock()
		return fold(i, r)
	})
}
