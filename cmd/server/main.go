package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dsapoetra/payment-processing-sub001/internal/api"
	"github.com/dsapoetra/payment-processing-sub001/internal/config"
	"github.com/dsapoetra/payment-processing-sub001/internal/domain"
	"github.com/dsapoetra/payment-processing-sub001/internal/metrics"
	"github.com/dsapoetra/payment-processing-sub001/internal/processor"
	"github.com/dsapoetra/payment-processing-sub001/internal/repository"
	"github.com/dsapoetra/payment-processing-sub001/internal/risk"
	"github.com/dsapoetra/payment-processing-sub001/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Initializing database at %s", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	// Create repositories.
	txnRepo := repository.NewTransactionRepo(db)
	merchantRepo := repository.NewMerchantRepo(db)
	auditRepo := repository.NewAuditRepo(db)
	jobRepo := repository.NewJobRepo(db)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Create services.
	scorer := risk.NewScorer(txnRepo, risk.NewStaticGeoChecker())
	proc := processor.NewService(db, txnRepo, merchantRepo, auditRepo, jobRepo,
		scorer, m, cfg.SettlementDelay, cfg.RefundDelay)
	reaper := scheduler.NewReaper(jobRepo, txnRepo, proc, m, cfg.ReaperInterval)

	// Seed merchants if the DB is empty.
	count, err := merchantRepo.Count()
	if err != nil {
		log.Fatalf("Failed to count merchants: %v", err)
	}
	if count == 0 {
		log.Println("Database is empty, seeding merchants from testdata...")
		if err := seedMerchants(merchantRepo, cfg.MerchantSeedPath); err != nil {
			log.Printf("WARNING: Failed to seed merchants: %v", err)
		}
	} else {
		log.Printf("Database already has %d merchants, skipping seed", count)
	}

	// Recover in-flight work before accepting traffic.
	reaper.RecoverStuckRefunds(cfg.StuckRefundThreshold)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reaper.Run(ctx)

	// Create router.
	router := api.NewRouter(proc, txnRepo, auditRepo, registry)

	log.Printf("Payment Processing Core")
	log.Printf("Listening on http://localhost:%s", cfg.Port)
	log.Printf("API base: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  POST   /api/v1/transactions")
	log.Printf("  GET    /api/v1/transactions")
	log.Printf("  GET    /api/v1/transactions/{id}")
	log.Printf("  POST   /api/v1/transactions/{id}/complete")
	log.Printf("  POST   /api/v1/transactions/{id}/fail")
	log.Printf("  POST   /api/v1/transactions/{id}/cancel")
	log.Printf("  POST   /api/v1/transactions/{reference}/refund  (reference = parent txn)")
	log.Printf("  GET    /api/v1/audit-events")
	log.Printf("  GET    /metrics")

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func seedMerchants(repo *repository.MerchantRepo, seedPath string) error {
	// Try multiple possible locations for testdata.
	candidates := []string{seedPath}

	// Also try to find relative to the executable.
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, seedPath),
			filepath.Join(dir, "..", "..", seedPath),
		)
	}

	var data []byte
	var loadErr error
	for _, path := range candidates {
		data, loadErr = os.ReadFile(path)
		if loadErr == nil {
			log.Printf("Loaded merchants from %s", path)
			break
		}
	}
	if loadErr != nil {
		return fmt.Errorf("could not find merchant seed in any candidate path: %w", loadErr)
	}

	var merchants []domain.Merchant
	if err := json.Unmarshal(data, &merchants); err != nil {
		return fmt.Errorf("unmarshal merchants: %w", err)
	}

	inserted, err := repo.BulkInsert(merchants)
	if err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}

	log.Printf("Seeded %d merchants (out of %d in file)", inserted, len(merchants))
	return nil
}
