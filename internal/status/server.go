// Package status serves a small HTTP page showing the progress of the run
// in flight.
package status

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"sonatabench/internal/bench"
	"sonatabench/internal/logging"
)

//go:embed templates/index.html
var content embed.FS

type Server struct {
	Tracker *Tracker
	tpl     *template.Template
	mux     *http.ServeMux
}

func NewServer(t *Tracker) *Server {
	tpl := template.Must(template.New("index.html").Funcs(template.FuncMap{
		"format": bench.FormatValue,
	}).ParseFS(content, "templates/index.html"))
	s := &Server{Tracker: t, tpl: tpl, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/phase", s.handlePhase)
	s.mux.HandleFunc("/results", s.handleResults)
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	logging.FromContext(ctx).Info("status page listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type resultRow struct {
	Key   string
	Value any
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := struct {
		Snapshot
		Results []resultRow
	}{Snapshot: s.Tracker.Snapshot()}
	if rep, ok := s.Tracker.Report(); ok {
		for _, k := range rep.Results.Keys() {
			v, _ := rep.Results.Get(k)
			data.Results = append(data.Results, resultRow{Key: k, Value: v})
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	s.tpl.Execute(w, data)
}

func (s *Server) handlePhase(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Tracker.Snapshot())
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.Tracker.Report()
	if !ok {
		http.Error(w, "run not finished", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"run_id":  rep.ID,
		"example": rep.Example,
		"rank":    rep.Rank,
		"results": rep.Results,
	})
}
