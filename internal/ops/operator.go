// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed ins the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package ops

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"github.com/pbnjay/memory"
	"github.com/mlnoga/xrdstack/internal/frame"
)

// Raised when additive and subtractive sets would end up with different image counts
var ErrInputMismatch = errors.New("the number of imports must be the same for both additive and subtractive images")

// An execution context for operators
type Context struct {
	Log              io.Writer
	Store            frame.Store
	Progress         Progress
	Notifier         Notifier
	MemoryMB         int          // memory.TotalMemory()/1024/1024
	StackMemoryMB    int          // MemoryMB*7/10
	MaxThreads       int          `json:"maxThreads"`
	Verbose          bool         // log one line per image
}

func NewContext(log io.Writer, store frame.Store) *Context {
	memoryMB:=int(memory.TotalMemory()/1024/1024)
	return &Context{
		Log             : log,
		Store           : store,
		Progress        : nil,
		Notifier        : NewLogNotifier(log),
		MemoryMB        : memoryMB,
		StackMemoryMB   : memoryMB*7/10,
		MaxThreads      : runtime.GOMAXPROCS(0),
	}
}

// Number of worker threads for a batch whose workers each hold framesPerWorker frames 
// of the given pixel count in memory at once. Bounded by MaxThreads and StackMemoryMB
func (c *Context) Threads(pixels int64, framesPerWorker int) int {
	threads:=c.MaxThreads
	if threads<1 { threads=1 }
	if c.StackMemoryMB<=0 || pixels<=0 || framesPerWorker<=0 { return threads }
	bytesPerWorker:=pixels*4*int64(framesPerWorker)
	maxWorkers:=int(int64(c.StackMemoryMB)*1024*1024/bytesPerWorker)
	if maxWorkers<1 { maxWorkers=1 }
	if maxWorkers<threads {
		fmt.Fprintf(c.Log, "Limiting to %d threads to fit %d MiB of memory\n", maxWorkers, c.StackMemoryMB)
		threads=maxWorkers
	}
	return threads
}

// Progress sink, never nil
func (c *Context) progress() Progress {
	if c.Progress==nil { return nopProgress{} }
	return c.Progress
}

// Notifier, never nil
func (c *Context) notifier() Notifier {
	if c.Notifier==nil { return NewLogNotifier(c.Log) }
	return c.Notifier
}

// Sends a user-facing notification via the configured notifier
func (c *Context) Notify(title, message string) {
	c.notifier().Notify(title, message)
}

// Sets the maximum of the configured progress sink, if any
func (c *Context) ProgressMax(n int) { c.progress().SetMax(n) }

// Advances the configured progress sink, if any
func (c *Context) ProgressAdvance() { c.progress().Advance() }


// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type        string `json:"type"`
	Active      bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool { return op.Active }


// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory 
func IsPathAllowed(p string) bool {
	if filepath.IsAbs(p) { return false }          // relative paths only
	if strings.Contains(p, "..") { return false }  // no going outside the tree
	return true
}

// Expands file name patterns with wildcards into a list of file names, in pattern order.
// Matches within a pattern are sorted lexically. If restrict is set, skips matches outside 
// the current directory tree
func ExpandPatterns(patterns []string, restrict bool, logWriter io.Writer) (fileNames []string, err error) {
	for _, pattern:=range patterns {
		matches, err:=filepath.Glob(pattern)
		if err!=nil { return nil, err }
		for _, match:=range matches {
			if restrict && !IsPathAllowed(match) { 
				fmt.Fprintf(logWriter, "Pattern match outside current directory tree, skipping\n")
				continue
			}
			fileNames=append(fileNames, match)
		}
	}
	if len(patterns)>0 && len(fileNames)==0 { 
		return nil, fmt.Errorf("no files to load from pattern %v", patterns) 
	}
	return fileNames, nil
}
