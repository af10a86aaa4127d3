package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/menta2k/image-annotator/pkg/classes"
	"github.com/menta2k/image-annotator/pkg/session"
	"github.com/menta2k/image-annotator/pkg/types"
)

// Suggester proposes boxes for an image file using the given class names.
type Suggester interface {
	SuggestFor(ctx context.Context, imagePath string, classNames []string) ([]types.BoundingBox, error)
}

// Server exposes a Session over HTTP and a WebSocket pointer stream. All
// session access is serialized, so events from several connections are
// applied in arrival order.
type Server struct {
	mu        sync.Mutex
	sess      *session.Session
	suggester Suggester
	upgrader  websocket.Upgrader
	closed    bool
}

// NewServer wraps sess. suggester may be nil, which disables /api/suggest.
func NewServer(sess *session.Session, suggester Suggester) *Server {
	return &Server{
		sess:      sess,
		suggester: suggester,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Response is returned by every endpoint that changes or reads the editor.
type Response struct {
	State session.State `json:"state"`
	Error string        `json:"error,omitempty"`
}

// Router builds the gin engine serving the editor API.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	apiRoutes := r.Group("/api")

	apiRoutes.GET("/state", func(ctx *gin.Context) {
		s.mu.Lock()
		resp := s.response(nil)
		s.mu.Unlock()
		ctx.JSON(http.StatusOK, resp)
	})

	apiRoutes.GET("/images", func(ctx *gin.Context) {
		s.mu.Lock()
		paths := s.sess.Images()
		s.mu.Unlock()

		names := make([]string, len(paths))
		for i, p := range paths {
			names[i] = filepath.Base(p)
		}
		ctx.JSON(http.StatusOK, names)
	})

	apiRoutes.GET("/image", func(ctx *gin.Context) {
		s.mu.Lock()
		cur, ok := s.sess.Current()
		s.mu.Unlock()
		if !ok {
			ctx.Status(http.StatusNotFound)
			return
		}
		http.ServeFile(ctx.Writer, ctx.Request, cur.Path)
	})

	apiRoutes.POST("/command", func(ctx *gin.Context) {
		var cmd Command
		if err := ctx.ShouldBindJSON(&cmd); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.respond(ctx, cmd)
	})

	apiRoutes.POST("/images/:index", func(ctx *gin.Context) {
		i, err := strconv.Atoi(ctx.Param("index"))
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid image index"})
			return
		}
		s.respond(ctx, Command{Type: CmdSwitch, Index: i})
	})

	for _, t := range []string{CmdNext, CmdPrev, CmdReload, CmdSave, CmdUndo, CmdDelete, CmdDuplicate, CmdAssign} {
		t := t
		apiRoutes.POST("/"+t, func(ctx *gin.Context) {
			s.respond(ctx, Command{Type: t})
		})
	}

	apiRoutes.POST("/classes", func(ctx *gin.Context) {
		var body struct {
			Name string `json:"name" binding:"required"`
		}
		if err := ctx.ShouldBindJSON(&body); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.respond(ctx, Command{Type: CmdAddClass, Name: body.Name})
	})

	apiRoutes.POST("/suggest", s.handleSuggest)

	r.GET("/ws", s.handleWebsocket)

	return r
}

// respond applies cmd and writes the resulting state.
func (s *Server) respond(ctx *gin.Context, cmd Command) {
	s.mu.Lock()
	err := s.apply(cmd)
	resp := s.response(err)
	s.mu.Unlock()

	if err != nil {
		log.Printf("api: %s failed: %v", cmd.Type, err)
	}
	ctx.JSON(statusFor(err), resp)
}

// response captures the session state. The caller holds s.mu.
func (s *Server) response(err error) Response {
	resp := Response{State: s.sess.State()}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (s *Server) handleSuggest(ctx *gin.Context) {
	if s.suggester == nil {
		ctx.JSON(http.StatusNotImplemented, gin.H{"error": "suggestions are not configured"})
		return
	}

	// The model call can take minutes; the session stays usable meanwhile.
	s.mu.Lock()
	cur, ok := s.sess.Current()
	names := s.sess.Classes()
	s.mu.Unlock()
	if !ok {
		ctx.JSON(statusFor(session.ErrNoImages), gin.H{"error": session.ErrNoImages.Error()})
		return
	}

	boxes, err := s.suggester.SuggestFor(ctx.Request.Context(), cur.Path, names)
	if err != nil {
		log.Printf("api: suggest failed for %s: %v", filepath.Base(cur.Path), err)
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ctx.JSON(statusFor(errClosed), gin.H{"error": errClosed.Error()})
		return
	}
	if now, ok := s.sess.Current(); !ok || now.Path != cur.Path {
		s.mu.Unlock()
		ctx.JSON(http.StatusConflict, gin.H{"error": "image changed while waiting for suggestions"})
		return
	}
	_, err = s.sess.ApplySuggestions(boxes)
	resp := s.response(err)
	s.mu.Unlock()
	ctx.JSON(statusFor(err), resp)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// handleWebsocket reads Command messages and answers each with a Response.
func (s *Server) handleWebsocket(ctx *gin.Context) {
	conn, err := s.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Printf("api: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	var writeMu sync.Mutex
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("api: websocket read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		s.mu.Lock()
		err := s.apply(cmd)
		resp := s.response(err)
		s.mu.Unlock()

		writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		werr := conn.WriteJSON(resp)
		writeMu.Unlock()
		if werr != nil {
			log.Printf("api: websocket write error: %v", werr)
			return
		}
	}
}

// Close persists the session and rejects every later command. Connections
// hijacked for websockets survive http.Server.Shutdown, so this waits for
// any command they are applying.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sess.Close()
}

var (
	errBadCommand = errors.New("bad command")
	errClosed     = errors.New("editor is shut down")
)

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errBadCommand), errors.Is(err, classes.ErrUnknownClass):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNoImages):
		return http.StatusConflict
	case errors.Is(err, errClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Addr formats a listen address for log output.
func Addr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return fmt.Sprintf("http://localhost%s", addr)
	}
	return "http://" + addr
}
