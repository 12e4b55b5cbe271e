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


package frame

import (
	"fmt"
	"io"
	"sync"
)

// Failure to load an image from the given path
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string { return fmt.Sprintf("unable to load %s: %s", e.Path, e.Err.Error()) }
func (e *LoadError) Unwrap() error { return e.Err }

// Loads and saves single images by path. Implementations must be safe for concurrent use
type Store interface {
	Load(fileName string, id int, logWriter io.Writer) (*Image, error)
	Save(fileName string, f *Image, logWriter io.Writer) error
}

// Store backed by the file system, dispatching on file name suffix
type FileStore struct{}

func (FileStore) Load(fileName string, id int, logWriter io.Writer) (*Image, error) {
	f, err:=NewImageFromFile(fileName, id, logWriter)
	if err!=nil { return nil, &LoadError{Path: fileName, Err: err} }
	return f, nil
}

func (FileStore) Save(fileName string, f *Image, logWriter io.Writer) error {
	return f.WriteFile(fileName, logWriter)
}

// In-memory store keyed by file name. Load returns deep copies, so callers may modify results in place
type MemStore struct {
	mu     sync.Mutex
	images map[string]*Image
	loads  int
}

func NewMemStore() *MemStore {
	return &MemStore{images: map[string]*Image{}}
}

// Stores a copy of the given image under the given name
func (m *MemStore) Put(fileName string, f *Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c:=f.Clone()
	c.FileName=fileName
	m.images[fileName]=c
}

func (m *MemStore) Get(fileName string) (*Image, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok:=m.images[fileName]
	return f, ok
}

// Number of successful loads so far
func (m *MemStore) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

func (m *MemStore) Load(fileName string, id int, logWriter io.Writer) (*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok:=m.images[fileName]
	if !ok { return nil, &LoadError{Path: fileName, Err: fmt.Errorf("no such image")} }
	m.loads++
	c:=f.Clone()
	c.ID=id
	return c, nil
}

func (m *MemStore) Save(fileName string, f *Image, logWriter io.Writer) error {
	m.Put(fileName, f)
	return nil
}
