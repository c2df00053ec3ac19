package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"time"

	. "racetrack/grid_world"
	"racetrack/reinforcement"
	"racetrack/server/cell_views"
	"racetrack/server/fastview"
	"racetrack/server/root_view"

	"github.com/gorilla/mux"
)

const shutdownGracePeriod = 5 * time.Second

// Server serves a single page of live views over a single websocket. The ele-update
// channel has a single consumer, so only one browser tab receives updates at a time.
type Server struct {
	addr     string
	initial  [][]cell_views.Cell
	rootView *root_view.RootView
	router   *mux.Router
}

// NewServer builds the views over the snapshot channel. initial is rendered until the
// first snapshot arrives.
func NewServer(
	ctx context.Context,
	addr string,
	g *Grid,
	initial reinforcement.PolicySnapshot,
	snapshots <-chan reinforcement.PolicySnapshot,
) (*Server, error) {
	rootView, err := root_view.NewRootView(ctx, g, snapshots)
	if err != nil {
		return nil, err
	}

	server := &Server{
		addr:     addr,
		initial:  cell_views.Convert(g, initial),
		rootView: rootView,
		router:   mux.NewRouter(),
	}
	server.router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	server.router.HandleFunc("/ws", server.serveWebsocket)
	return server, nil
}

// Handler returns the server's routes.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve listens on the server's address until ctx is done, then shuts down gracefully.
func (server *Server) Serve(ctx context.Context) (err error) {
	srv := &http.Server{
		Addr:    server.addr,
		Handler: server.router,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Println("shutdown:", shutdownErr)
		}
	})
	defer stop()

	log.Printf("serving live views on http://%s\n", server.addr)
	if err = srv.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		err = fmt.Errorf("serve: %w", err)
	}
	return
}

// serveWebsocket publishes ele-updates to the client until it disconnects.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	cli, err := fastview.NewClient(server.rootView.Updates(), w, r)
	if err != nil {
		// The upgrader has already replied to the client.
		log.Println(err)
		return
	}

	if err := cli.Sync(); err != nil {
		log.Println("websocket:", err)
	}
}

// serveIndex serves the main page.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := renderTemplate(w, server.rootView, server.initial); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}

	err = t.Execute(w, data)
	return
}
