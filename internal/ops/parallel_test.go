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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fastrand"
	"github.com/mlnoga/xrdstack/internal/frame"
)

func TestParallelMapPreservesOrder(t *testing.T) {
	rng:=fastrand.RNG{}
	for _, threads:=range []int{0, 1, 3, 16} {
		items:=make([]int, 100)
		for i:=range items {
			items[i]=i*i
		}
		outs, err:=ParallelMap(items, threads, func(i int, item int) (string, error) {
			time.Sleep(time.Duration(rng.Uint32n(200))*time.Microsecond) // scramble completion order
			return fmt.Sprintf("%d:%d", i, item), nil
		})
		if err!=nil { t.Fatal(err) }
		for i, out:=range outs {
			if want:=fmt.Sprintf("%d:%d", i, i*i); out!=want {
				t.Errorf("threads=%d outs[%d]=%s; want %s", threads, i, out, want)
			}
		}
	}
}

func TestParallelMapLimitsConcurrency(t *testing.T) {
	var running, peak int32
	items:=make([]int, 50)
	_, err:=ParallelMap(items, 4, func(i int, item int) (int, error) {
		r:=atomic.AddInt32(&running, 1)
		for {
			p:=atomic.LoadInt32(&peak)
			if r<=p || atomic.CompareAndSwapInt32(&peak, p, r) { break }
		}
		time.Sleep(100*time.Microsecond)
		atomic.AddInt32(&running, -1)
		return 0, nil
	})
	if err!=nil { t.Fatal(err) }
	if peak>4 {
		t.Errorf("peak concurrency=%d; want at most 4", peak)
	}
}

func TestParallelMapFirstError(t *testing.T) {
	errBoom:=errors.New("boom")
	var calls int32
	items:=make([]int, 1000)
	outs, err:=ParallelMap(items, 2, func(i int, item int) (int, error) {
		atomic.AddInt32(&calls, 1)
		if i==3 { return 0, fmt.Errorf("item %d: %w", i, errBoom) }
		time.Sleep(100*time.Microsecond)
		return i, nil
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("err=%v; want boom", err)
	}
	if outs!=nil {
		t.Errorf("outs=%v; want nil on failure", outs)
	}
	if calls==int32(len(items)) {
		t.Errorf("all %d items ran after a failure; want early stop", calls)
	}
}

func TestParallelFoldSum(t *testing.T) {
	items:=make([]float64, 1000)
	want:=float64(0)
	for i:=range items {
		items[i]=float64(i)
		want+=float64(i)
	}
	sum:=float64(0)
	seen:=map[int]bool{}
	err:=ParallelFold(items, 8, func(i int, item float64) (float64, error) {
		return item, nil
	}, func(i int, r float64) error {
		sum+=r
		seen[i]=true
		return nil
	})
	if err!=nil { t.Fatal(err) }
	if sum!=want || len(seen)!=len(items) {
		t.Errorf("sum=%f seen=%d; want %f %d", sum, len(seen), want, len(items))
	}
}

func TestParallelEachEmpty(t *testing.T) {
	if err:=ParallelEach(nil, 4, func(i int, item int) error { return errors.New("called") }); err!=nil {
		t.Errorf("err=%v; want nil", err)
	}
}

func TestLogProgress(t *testing.T) {
	var buf bytes.Buffer
	p:=NewLogProgress(&buf)
	p.SetMax(4)
	for i:=0; i<4; i++ {
		p.Advance()
	}
	if done, max:=p.Done(); done!=4 || max!=4 {
		t.Errorf("done=%d max=%d; want 4 4", done, max)
	}
	if got:=buf.String(); got!="\r25%\r50%\r75%\r100%\n" {
		t.Errorf("log=%q", got)
	}
}

func TestContextNilTolerance(t *testing.T) {
	c:=&Context{Log: io.Discard}
	c.ProgressMax(3)
	c.ProgressAdvance()
	c.Notify("title", "message")

	var got string
	c.Notifier=NotifierFunc(func(title, message string) { got=title+"/"+message })
	c.Notify("a", "b")
	if got!="a/b" {
		t.Errorf("notified=%q; want a/b", got)
	}
}

func TestThreads(t *testing.T) {
	c:=&Context{Log: io.Discard, MaxThreads: 8, StackMemoryMB: 64}
	// 4 Mpixel float32 frames, three per worker: 48 MiB per worker
	if n:=c.Threads(4*1024*1024, 3); n!=1 {
		t.Errorf("threads=%d; want 1", n)
	}
	if n:=c.Threads(1024, 3); n!=8 {
		t.Errorf("threads=%d; want 8", n)
	}
	c.MaxThreads=0
	if n:=c.Threads(0, 0); n!=1 {
		t.Errorf("threads=%d; want 1", n)
	}
}

func TestExpandPatterns(t *testing.T) {
	dir:=t.TempDir()
	for _, name:=range []string{"b.tiff", "a.tiff", "c.fits"} {
		if err:=os.WriteFile(filepath.Join(dir, name), nil, 0666); err!=nil { t.Fatal(err) }
	}
	names, err:=ExpandPatterns([]string{filepath.Join(dir, "*.tiff"), filepath.Join(dir, "*.fits")}, false, io.Discard)
	if err!=nil { t.Fatal(err) }
	got:=make([]string, len(names))
	for i, n:=range names {
		got[i]=filepath.Base(n)
	}
	if strings.Join(got, ",")!="a.tiff,b.tiff,c.fits" {
		t.Errorf("names=%v; want a.tiff,b.tiff,c.fits", got)
	}
	if _, err:=ExpandPatterns([]string{filepath.Join(dir, "*.tiff")}, true, io.Discard); err==nil {
		t.Errorf("absolute matches accepted in restricted mode")
	}
	if IsPathAllowed("../x.tiff") || IsPathAllowed("/x.tiff") || !IsPathAllowed("data/x.tiff") {
		t.Errorf("IsPathAllowed misclassifies paths")
	}
}

func TestNewContext(t *testing.T) {
	c:=NewContext(io.Discard, frame.NewMemStore())
	if c.MaxThreads<1 || c.StackMemoryMB>c.MemoryMB {
		t.Errorf("threads=%d memory=%d stack=%d", c.MaxThreads, c.MemoryMB, c.StackMemoryMB)
	}
}
