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
	"fmt"
	"io"
	"sync"
)

// Observer for batch progress. A batch calls SetMax once, then Advance once per completed item
type Progress interface {
	SetMax(n int)
	Advance()
}

type nopProgress struct{}

func (nopProgress) SetMax(n int) {}
func (nopProgress) Advance()     {}

// Progress sink printing a percentage line to a log writer, rewriting it in place
type LogProgress struct {
	Log     io.Writer
	mutex   sync.Mutex
	max     int
	done    int
	percent int
}

func NewLogProgress(log io.Writer) *LogProgress {
	return &LogProgress{Log: log}
}

func (p *LogProgress) SetMax(n int) {
	p.mutex.Lock()
	p.max, p.done, p.percent=n, 0, -1
	p.mutex.Unlock()
}

func (p *LogProgress) Advance() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.done++
	if p.max<=0 { return }
	percent:=p.done*100/p.max
	if percent!=p.percent {
		p.percent=percent
		fmt.Fprintf(p.Log, "\r%d%%", percent)
		if p.done>=p.max { fmt.Fprintf(p.Log, "\n") }
	}
}

// Completed and maximum count
func (p *LogProgress) Done() (done, max int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.done, p.max
}


// Fire-and-forget user notification
type Notifier interface {
	Notify(title, message string)
}

// Notifier writing to a log
type LogNotifier struct {
	Log io.Writer
}

func NewLogNotifier(log io.Writer) *LogNotifier { return &LogNotifier{Log: log} }

func (n *LogNotifier) Notify(title, message string) {
	if n.Log==nil { return }
	fmt.Fprintf(n.Log, "%s: %s\n", title, message)
}

// Adapts a function to the Notifier interface
type NotifierFunc func(title, message string)

func (f NotifierFunc) Notify(title, message string) { f(title, message) }
