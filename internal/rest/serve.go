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


package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/xrdstack/internal/frame"
	"github.com/mlnoga/xrdstack/internal/imageset"
	"github.com/mlnoga/xrdstack/internal/ops"
	"github.com/mlnoga/xrdstack/internal/ops/bounds"
	"github.com/mlnoga/xrdstack/internal/ops/compile"
	"github.com/mlnoga/xrdstack/internal/ops/trace"
	"github.com/mlnoga/xrdstack/internal/selection"
)

// Serves one compilation session over HTTP. Requests are serialized
type Server struct {
	mu        sync.Mutex
	session   *imageset.Session
	selected  *selection.Selection
	store     frame.Store
	restrict  bool       // refuse paths outside the working directory tree
	Log       io.Writer  // server-side log, for requests not streaming their log
}

func NewServer(s *imageset.Session, store frame.Store, restrict bool, log io.Writer) *Server {
	return &Server{session: s, store: store, restrict: restrict, Log: log}
}

func (srv *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET   ("/ping",        getPing)
			v1.GET   ("/session",     srv.getSession)
			v1.POST  ("/sets/:kind",  srv.postSet)
			v1.DELETE("/sets/:kind",  srv.deleteSet)
			v1.POST  ("/swap",        srv.postSwap)
			v1.PUT   ("/cycles",      srv.putCycles)
			v1.PUT   ("/bounds/:kind",srv.putBounds)
			v1.PUT   ("/correction",  srv.putCorrection)
			v1.DELETE("/correction",  srv.deleteCorrection)
			v1.POST  ("/select",      srv.postSelect)
			v1.POST  ("/compile",     srv.postCompile)
			v1.POST  ("/trace",       srv.postTrace)
		}
	}
	return r
}

// Listens and serves on the given address, e.g. ":8080"
func (srv *Server) Serve(addr string) error {
	return srv.Router().Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m,err:=json.MarshalIndent(args, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// A context for one request. Notifications are collected into the given slice
func (srv *Server) context(log io.Writer, notes *[]gin.H) *ops.Context {
	ctx:=ops.NewContext(log, srv.store)
	ctx.Notifier=ops.NotifierFunc(func(title, message string) {
		*notes=append(*notes, gin.H{"title": title, "message": message})
	})
	return ctx
}

// Maps errors to status codes: mismatches conflict, unloadable files are server-side failures
func errorStatus(err error) int {
	var le *frame.LoadError
	switch {
	case errors.Is(err, ops.ErrInputMismatch): return http.StatusConflict
	case errors.As(err, &le):                  return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func abort(c *gin.Context, status int, err error, notes []gin.H) {
	h:=gin.H{"error": err.Error()}
	if len(notes)>0 { h["notifications"]=notes }
	c.JSON(status, h)
}

func (srv *Server) checkPath(p string) error {
	if srv.restrict && !ops.IsPathAllowed(p) { 
		return fmt.Errorf("path %s is outside the working directory", p) 
	}
	return nil
}

func kindParam(c *gin.Context) (imageset.Kind, bool) {
	kind, err:=imageset.ParseKind(c.Param("kind"))
	if err!=nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return kind, false
	}
	return kind, true
}

type sessionResponse struct {
	Session   *imageset.Session       `json:"session"`
	Reports   []imageset.SetReport    `json:"reports"`
	TotalNames [][]string             `json:"totalNames"`
	Selection *selection.Selection    `json:"selection"`
}

func (srv *Server) sessionState() sessionResponse {
	res:=sessionResponse{Session: srv.session, Reports: []imageset.SetReport{}, 
	                     TotalNames: srv.session.TotalNames(), Selection: srv.selected}
	for _, kind:=range []imageset.Kind{imageset.Additive, imageset.Subtractive} {
		if r, ok:=srv.session.Report(kind); ok { res.Reports=append(res.Reports, r) }
	}
	return res
}

func (srv *Server) getSession(c *gin.Context) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	c.JSON(http.StatusOK, srv.sessionState())
}

type postSetArgs struct {
	FilePatterns []string  `json:"filePatterns" binding:"required"`
	Rotation     *int      `json:"rotation"`
}

func (srv *Server) postSet(c *gin.Context) {
	kind, ok:=kindParam(c)
	if !ok { return }
	var args postSetArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()

	var notes []gin.H
	ctx:=srv.context(srv.Log, &notes)
	paths, err:=ops.ExpandPatterns(args.FilePatterns, srv.restrict, ctx.Log)
	if err!=nil { abort(c, http.StatusBadRequest, err, nil); return }
	if args.Rotation!=nil { srv.session.SetRotation(kind, *args.Rotation) }
	if err:=srv.session.Load(kind, paths, ctx); err!=nil {
		abort(c, errorStatus(err), err, notes)
		return
	}
	srv.selected=nil
	c.JSON(http.StatusOK, srv.sessionState())
}

func (srv *Server) deleteSet(c *gin.Context) {
	kind, ok:=kindParam(c)
	if !ok { return }
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.session.Unload(kind)
	srv.selected=nil
	c.JSON(http.StatusOK, srv.sessionState())
}

func (srv *Server) postSwap(c *gin.Context) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.session.Swap()
	if srv.selected!=nil {
		sw:=srv.selected.Swapped()
		srv.selected=&sw
	}
	c.JSON(http.StatusOK, srv.sessionState())
}

type putCyclesArgs struct {
	Cycles int `json:"cycles" binding:"required"`
}

func (srv *Server) putCycles(c *gin.Context) {
	var args putCyclesArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if err:=srv.session.SetCycles(args.Cycles); err!=nil { abort(c, http.StatusBadRequest, err, nil); return }
	srv.selected=nil
	c.JSON(http.StatusOK, srv.sessionState())
}

func (srv *Server) putBounds(c *gin.Context) {
	kind, ok:=kindParam(c)
	if !ok { return }
	args:=bounds.NewOpBoundsDefault()
	if err:=c.ShouldBind(args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	if args.DropFirst<0 || args.DropLast<0 || args.StdMin<0 || args.StdMax<0 {
		abort(c, http.StatusBadRequest, fmt.Errorf("negative bounds %+v", *args), nil)
		return
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	// the total view only updates the sets it draws from
	kinds:=selection.Selection{Kind: kind}.BoundsKinds(srv.session)
	if len(kinds)==0 { kinds=[]imageset.Kind{kind} }
	for _, k:=range kinds {
		b:=*args
		if err:=srv.session.SetBounds(k, &b); err!=nil { abort(c, http.StatusBadRequest, err, nil); return }
	}
	c.JSON(http.StatusOK, srv.sessionState())
}

type putCorrectionArgs struct {
	File     string `json:"file" binding:"required"`
	Rotation int    `json:"rotation"`
}

func (srv *Server) putCorrection(c *gin.Context) {
	var args putCorrectionArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	if err:=srv.checkPath(args.File); err!=nil { abort(c, http.StatusForbidden, err, nil); return }
	srv.mu.Lock()
	defer srv.mu.Unlock()
	var notes []gin.H
	if err:=srv.session.SetCorrection(args.File, args.Rotation, srv.context(srv.Log, &notes)); err!=nil {
		abort(c, errorStatus(err), err, notes)
		return
	}
	c.JSON(http.StatusOK, srv.sessionState())
}

func (srv *Server) deleteCorrection(c *gin.Context) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.session.ClearCorrection()
	c.JSON(http.StatusOK, srv.sessionState())
}

type postSelectArgs struct {
	Kind      imageset.Kind  `json:"kind"`
	ParentRow int            `json:"parentRow"`  // -1 for a cycle row
	Row       int            `json:"row"`
	Preview   string         `json:"preview"`    // optional JPEG file to write the image to
	Colormap  string         `json:"colormap"`
}

type postSelectResponse struct {
	Selection  selection.Selection  `json:"selection"`
	Name       string               `json:"name"`
	TotalIndex *int                 `json:"totalIndex"`
	Width      int                  `json:"width"`
	Height     int                  `json:"height"`
	Min        float32              `json:"min"`       // display window
	Max        float32              `json:"max"`
	Preview    string               `json:"preview,omitempty"`
}

func (srv *Server) postSelect(c *gin.Context) {
	var args postSelectArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	if args.Preview!="" {
		if err:=srv.checkPath(args.Preview); err!=nil { abort(c, http.StatusForbidden, err, nil); return }
	}
	opts:=frame.DefaultPreviewOptions()
	if args.Colormap!="" {
		cmap, err:=frame.ParseColormap(args.Colormap)
		if err!=nil { abort(c, http.StatusBadRequest, err, nil); return }
		opts.Colormap=cmap
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	sel:=selection.FromTree(args.Kind, args.ParentRow, args.Row)
	var notes []gin.H
	f, err:=sel.Image(srv.session, srv.context(srv.Log, &notes))
	if err!=nil { abort(c, errorStatus(err), err, notes); return }
	srv.selected=&sel

	res:=postSelectResponse{Selection: sel, Name: sel.Name(srv.session), Width: f.Width(), Height: f.Height(), Preview: args.Preview}
	res.Min, res.Max=f.DisplayWindow(opts.Sigma)
	if idx, ok:=sel.TotalIndex(srv.session); ok { res.TotalIndex=&idx }
	if args.Preview!="" {
		if err:=f.WritePreviewJPGToFile(args.Preview, opts); err!=nil { abort(c, http.StatusInternalServerError, err, nil); return }
	}
	c.JSON(http.StatusOK, res)
}

type postCompileArgs struct {
	Mode     string             `json:"mode"`     // total, cycles or singles
	Compile  *compile.OpCompile `json:"compile"`
}

func (srv *Server) postCompile(c *gin.Context) {
	logWriter := c.Writer
	args:=postCompileArgs{Mode: "total", Compile: compile.NewOpCompileDefault()}
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	if args.Compile==nil { args.Compile=compile.NewOpCompileDefault() }
	if err:=srv.checkPath(args.Compile.FileName("")); err!=nil { abort(c, http.StatusForbidden, err, nil); return }
	if args.Mode!="total" && args.Mode!="cycles" && args.Mode!="singles" {
		abort(c, http.StatusBadRequest, fmt.Errorf("unknown mode '%s'", args.Mode), nil)
		return
	}

	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	if err:=printArgs(logWriter, "Arguments:\n", "\n", args); err!=nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	var notes []gin.H
	ctx:=srv.context(logWriter, &notes)
	var err error
	switch args.Mode {
	case "total":   _, err=args.Compile.Total(srv.session, false, ctx)
	case "singles": _, err=args.Compile.Total(srv.session, true, ctx)
	case "cycles":  _, err=args.Compile.PerCycle(srv.session, ctx)
	}
	if err!=nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	} else {
		fmt.Fprintf(logWriter, "Done\n")
	}
	logWriter.(http.Flusher).Flush()
}

type postTraceArgs struct {
	Kind     imageset.Kind   `json:"kind"`
	Segment  trace.Segment   `json:"segment"`
	Stack    bool            `json:"stack"`    // return individual traces, not just their sum
}

func (srv *Server) postTrace(c *gin.Context) {
	var args postTraceArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	var notes []gin.H
	op:=trace.NewOpTrace(args.Segment)
	ctx:=srv.context(srv.Log, &notes)
	if !args.Stack {
		sum, pts, err:=op.Compile(srv.session, args.Kind, ctx)
		if err!=nil { abort(c, errorStatus(err), err, notes); return }
		c.JSON(http.StatusOK, gin.H{"points": pts, "sum": sum})
		return
	}
	traces, pts, err:=op.Stack(srv.session, args.Kind, ctx)
	if err!=nil { abort(c, errorStatus(err), err, notes); return }
	c.JSON(http.StatusOK, gin.H{"points": pts, "sum": trace.Sum(traces), "traces": traces})
}
