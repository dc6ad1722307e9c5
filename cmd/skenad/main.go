package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/SkenaFi/skena-sc/config"
	"github.com/SkenaFi/skena-sc/observability/logging"
	"github.com/SkenaFi/skena-sc/oracle"
	"github.com/SkenaFi/skena-sc/protocol/lending"
	"github.com/SkenaFi/skena-sc/protocol/pool"
	"github.com/SkenaFi/skena-sc/protocol/risk"
	"github.com/SkenaFi/skena-sc/storage"
)

func main() {
	configPath := flag.String("config", "skenad.toml", "path to the service configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var logSink io.Writer
	if cfg.LogFile != "" {
		logSink = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    64, // MB
			MaxBackups: 4,
			MaxAge:     14, // days
			Compress:   true,
		}
	}
	logger := logging.Setup("skenad", cfg.Environment, logSink)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		logger.Error("open ledger database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	svc, err := buildService(cfg, db, logger)
	if err != nil {
		logger.Error("wire pools", "err", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/v1/pools", func(r chi.Router) {
		r.Get("/", svc.listPools)
		r.Get("/{id}", svc.poolDetail)
		r.Get("/{id}/accounts/{address}", svc.accountDetail)
	})

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("skenad listening", "addr", cfg.ListenAddress, "pools", len(cfg.Pools))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	logger.Info("skenad stopped")
}

type service struct {
	pools map[string]*pool.LendingPool
	order []string
	log   *slog.Logger
}

// buildService wires the read-only query surface: routers over the persisted
// ledger, static feeds from configuration and evaluators per pool. Mutating
// flows (borrow, liquidate, bridge) stay library-level.
func buildService(cfg *config.Config, db storage.Database, logger *slog.Logger) (*service, error) {
	feeds := oracle.NewRegistry()
	for _, feed := range cfg.Feeds {
		addr := common.HexToAddress(feed.Token)
		feeds.SetFeed(addr, oracle.NewStaticFeed(feed.ParsePrice(), feed.FeedDecimals))
		feeds.SetTokenDecimals(addr, feed.TokenDecimals)
	}
	book := storage.NewBalanceBook(db)
	admin := common.HexToAddress(cfg.Admin)
	treasury := common.HexToAddress(cfg.Treasury)
	eval := risk.NewEvaluator(feeds, book)

	svc := &service{pools: make(map[string]*pool.LendingPool), log: logger}
	for _, pc := range cfg.Pools {
		store := storage.NewPoolStore(db, pc.ID)
		router := lending.NewRouter(store,
			common.HexToAddress(pc.CollateralToken),
			common.HexToAddress(pc.BorrowToken),
			pc.LTV(), admin, treasury)
		router.SetHealthGate(eval)
		poolAddr := poolAddress(pc.ID)
		if err := router.SetLendingPool(admin, poolAddr); err != nil {
			return nil, err
		}
		lp := pool.New(pool.Config{
			ID:        pc.ID,
			Address:   poolAddr,
			Router:    router,
			Evaluator: eval,
			Book:      book,
			Feeds:     feeds,
			Log:       logger,
		})
		svc.pools[pc.ID] = lp
		svc.order = append(svc.order, pc.ID)
	}
	return svc, nil
}

// poolAddress derives the facade's custody address from the pool identifier,
// so pools sharing a token pair still get disjoint custody.
func poolAddress(id string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("skena/pool/"), []byte(id))[12:])
}

type poolView struct {
	ID                string `json:"id"`
	CollateralToken   string `json:"collateralToken"`
	BorrowToken       string `json:"borrowToken"`
	LTV               string `json:"ltv"`
	TotalSupplyAssets string `json:"totalSupplyAssets"`
	TotalSupplyShares string `json:"totalSupplyShares"`
	TotalBorrowAssets string `json:"totalBorrowAssets"`
	TotalBorrowShares string `json:"totalBorrowShares"`
	UtilizationBps    uint64 `json:"utilizationBps"`
	BorrowRateBps     uint64 `json:"borrowRateBps"`
	SupplyRateBps     uint64 `json:"supplyRateBps"`
}

func (s *service) view(lp *pool.LendingPool) (poolView, error) {
	router := lp.Router()
	market, err := router.Snapshot()
	if err != nil {
		return poolView{}, err
	}
	return poolView{
		ID:                lp.ID(),
		CollateralToken:   router.CollateralToken().Hex(),
		BorrowToken:       router.BorrowToken().Hex(),
		LTV:               router.LTV().String(),
		TotalSupplyAssets: market.TotalSupplyAssets.String(),
		TotalSupplyShares: market.TotalSupplyShares.String(),
		TotalBorrowAssets: market.TotalBorrowAssets.String(),
		TotalBorrowShares: market.TotalBorrowShares.String(),
		UtilizationBps:    lending.UtilizationBps(market.TotalBorrowAssets, market.TotalSupplyAssets),
		BorrowRateBps:     lending.BorrowRateBps(market.TotalBorrowAssets, market.TotalSupplyAssets),
		SupplyRateBps:     lending.SupplyRateBps(market.TotalBorrowAssets, market.TotalSupplyAssets),
	}, nil
}

func (s *service) listPools(w http.ResponseWriter, _ *http.Request) {
	views := make([]poolView, 0, len(s.order))
	for _, id := range s.order {
		view, err := s.view(s.pools[id])
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		views = append(views, view)
	}
	s.writeJSON(w, views)
}

func (s *service) poolDetail(w http.ResponseWriter, r *http.Request) {
	lp, ok := s.pools[chi.URLParam(r, "id")]
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.New("pool not found"))
		return
	}
	view, err := s.view(lp)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, view)
}

func (s *service) accountDetail(w http.ResponseWriter, r *http.Request) {
	lp, ok := s.pools[chi.URLParam(r, "id")]
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.New("pool not found"))
		return
	}
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid address"))
		return
	}
	user := common.HexToAddress(raw)
	account, err := lp.Router().AccountOf(user)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := map[string]any{
		"address":      user.Hex(),
		"supplyShares": account.SupplyShares.String(),
		"borrowShares": account.BorrowShares.String(),
		"collateral":   account.Collateral.String(),
	}
	if report, err := lp.CheckLiquidation(user); err == nil {
		out["liquidatable"] = report.Liquidatable
		out["borrowValue"] = report.BorrowValue.String()
		out["collateralValue"] = report.CollateralValue.String()
		out["maxBorrow"] = report.MaxBorrow.String()
	}
	s.writeJSON(w, out)
}

func (s *service) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("encode response", "err", err)
	}
}

func (s *service) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
