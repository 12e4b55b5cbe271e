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


package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestLogTee(t *testing.T) {
	var out bytes.Buffer
	logStdout=&out
	defer func() { logStdout=os.Stdout }()

	LogPrintf("before %d\n", 1)
	name:=filepath.Join(t.TempDir(), "x.log")
	if err:=LogAlsoToFile(name); err!=nil { t.Fatal(err) }
	LogPrintf("%d: loaded\n", 7)
	LogWriter().Write([]byte("\r50%"))
	LogPrintf("\n")
	if err:=LogClose(); err!=nil { t.Fatal(err) }
	LogPrintf("after\n")

	if want:="before 1\n7: loaded\n\r50%\nafter\n"; out.String()!=want {
		t.Errorf("stdout=%q; want %q", out.String(), want)
	}
	data, err:=os.ReadFile(name)
	if err!=nil { t.Fatal(err) }
	if want:="7: loaded\n\r50%\n"; string(data)!=want {
		t.Errorf("file=%q; want %q", data, want)
	}
}
