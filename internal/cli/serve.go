package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	json "github.com/goccy/go-json"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hupe1980/unibase"
	"github.com/hupe1980/unibase/internal/config"
	"github.com/hupe1980/unibase/metrics/prometheus"
	"github.com/hupe1980/unibase/model"
)

func newServeCmd() *cobra.Command {
	var (
		listen        string
		persistOnExit bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workspace over HTTP",
		Long: `Keep the workspace open and serve it over a JSON HTTP API:

  POST   /v1/index          {"documents":[...]}
  POST   /v1/update         {"documents":[...]}
  POST   /v1/delete         {"ids":[...]}
  POST   /v1/search         {"queries":[...],"limit":10,"field":"","ef":0}
  GET    /v1/documents/{id}
  GET    /v1/stats
  POST   /v1/persist
  GET    /metrics           Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			cfg := config.Get()
			logger := newLogger(cfg)
			if cfg.Metrics.Listen != "" && !cmd.Flags().Changed("listen") {
				listen = cfg.Metrics.Listen
			}

			reg := stdprometheus.NewRegistry()
			mc := prometheus.NewCollector(reg, func(o *prometheus.Options) {
				o.ConstLabels = stdprometheus.Labels{"workspace": cfg.Workspace.Path}
			})

			db, err := openWorkspace(ctx, cfg, logger, mc)
			if err != nil {
				return err
			}
			defer db.Close()

			srv := &http.Server{
				Addr:              listen,
				Handler:           newServer(db, reg),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("Serving workspace", "addr", listen, "workspace", cfg.Workspace.Path)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				log.Info("Shutting down")
			}

			shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("Shutdown failed", "error", err)
			}
			if persistOnExit {
				return db.Persist(shutdownCtx)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":8080", "address to listen on")
	cmd.Flags().BoolVar(&persistOnExit, "persist-on-exit", true, "persist the workspace on shutdown")
	return cmd
}

type documentsRequest struct {
	Documents []model.Document `json:"documents"`
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

type searchRequest struct {
	Queries []model.Document `json:"queries"`
	Limit   int              `json:"limit"`
	Field   string           `json:"field"`
	EF      int              `json:"ef"`
}

type rejection struct {
	Position int    `json:"position"`
	ID       string `json:"id"`
	Error    string `json:"error"`
}

type indexResponse struct {
	Inserted []string    `json:"inserted"`
	Replaced []string    `json:"replaced"`
	Rejected []rejection `json:"rejected"`
}

type mutationResponse struct {
	Applied  []string    `json:"applied"`
	NotFound []string    `json:"not_found"`
	Rejected []rejection `json:"rejected"`
}

func rejections(rs []unibase.Rejection) []rejection {
	out := make([]rejection, len(rs))
	for i, r := range rs {
		out[i] = rejection{Position: r.Position, ID: r.ID, Error: r.Err.Error()}
	}
	return out
}

// newServer routes the HTTP API onto db.
func newServer(db *unibase.Unibase, reg *stdprometheus.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/index", func(w http.ResponseWriter, r *http.Request) {
		var req documentsRequest
		if !decode(w, r, &req) {
			return
		}
		report, err := db.Index(r.Context(), req.Documents)
		respond(w, indexResponse{
			Inserted: report.Inserted,
			Replaced: report.Replaced,
			Rejected: rejections(report.Rejected),
		}, err)
	})

	mux.HandleFunc("POST /v1/update", func(w http.ResponseWriter, r *http.Request) {
		var req documentsRequest
		if !decode(w, r, &req) {
			return
		}
		report, err := db.Update(r.Context(), req.Documents)
		respond(w, mutationResponse{
			Applied:  report.Applied,
			NotFound: report.NotFound,
			Rejected: rejections(report.Rejected),
		}, err)
	})

	mux.HandleFunc("POST /v1/delete", func(w http.ResponseWriter, r *http.Request) {
		var req deleteRequest
		if !decode(w, r, &req) {
			return
		}
		report, err := db.DeleteByID(r.Context(), req.IDs...)
		respond(w, mutationResponse{Applied: report.Applied, NotFound: report.NotFound}, err)
	})

	mux.HandleFunc("POST /v1/search", func(w http.ResponseWriter, r *http.Request) {
		req := searchRequest{Limit: unibase.DefaultLimit}
		if !decode(w, r, &req) {
			return
		}
		results, err := db.Search(r.Context(), req.Queries,
			unibase.WithLimit(req.Limit),
			unibase.WithSearchField(req.Field),
			unibase.WithEF(req.EF),
		)
		respond(w, results, err)
	})

	mux.HandleFunc("GET /v1/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		doc, ok := db.GetByID(r.PathValue("id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "document not found"})
			return
		}
		writeJSON(w, http.StatusOK, doc)
	})

	mux.HandleFunc("GET /v1/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, db.Stats())
	})

	mux.HandleFunc("POST /v1/persist", func(w http.ResponseWriter, r *http.Request) {
		err := db.Persist(r.Context())
		respond(w, map[string]int{"num_docs": db.NumDocs()}, err)
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "report": v})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, unibase.ErrSchemaMismatch),
		errors.Is(err, unibase.ErrInvalidLimit),
		errors.Is(err, unibase.ErrInvalidEF),
		errors.Is(err, unibase.ErrZeroVector),
		errors.Is(err, unibase.ErrInvalidDocument):
		return http.StatusBadRequest
	case errors.Is(err, unibase.ErrCapacity):
		return http.StatusInsufficientStorage
	case errors.Is(err, unibase.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to write response", "error", err)
	}
}
