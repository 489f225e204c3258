package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"order-ingest/internal/config"
	"order-ingest/internal/fetch"
	"order-ingest/internal/ingestion"
	"order-ingest/internal/metrics"
	"order-ingest/internal/server"
	"order-ingest/internal/warehouse"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wh, cleanup, err := connectWarehouse(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to the warehouse: %v", err)
	}
	defer cleanup()

	met := metrics.NewRegistry()
	fetcher := fetch.NewClient(cfg.APIURL, cfg.APIUser, cfg.APIPassword, cfg.FetchTimeout)
	dedup := ingestion.NewDedupEngine(wh, met, cfg.ProceedOnDedupCheckFailure)
	writer := ingestion.NewBatchWriter(wh, cfg.BatchSize, cfg.ChunkPause)
	service := ingestion.NewService(fetcher, wh, dedup, writer, met, cfg.Location(),
		cfg.DefaultStartHour, cfg.DefaultEndHour)

	router := server.SetupRoutes(server.NewIngestService(service), met, cfg.MemoryLimitBytes)
	srv := &http.Server{Addr: fmt.Sprintf(":%s", cfg.APIPort), Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server starting on port %s (%s backend)", cfg.APIPort, cfg.WarehouseBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func connectWarehouse(ctx context.Context, cfg *config.Config) (warehouse.Client, func(), error) {
	switch cfg.WarehouseBackend {
	case config.BackendPostgres:
		client, err := warehouse.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	default:
		client, err := warehouse.NewBigQueryClient(ctx, warehouse.BigQueryConfig{
			ProjectID:        cfg.BQProjectID,
			Dataset:          cfg.BQDataset,
			Table:            cfg.BQTable,
			CheckpointTable:  cfg.BQCheckpointTable,
			Location:         cfg.BQLocation,
			MaxCrossRefBytes: cfg.MaxCrossRefBytes,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() {
			if err := client.Close(); err != nil {
				log.Printf("Warning: error closing BigQuery client: %v", err)
			}
		}, nil
	}
}
