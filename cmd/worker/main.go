package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/abhishekdev057/studio-face-photos/internal/config"
	"github.com/abhishekdev057/studio-face-photos/internal/dedup"
	"github.com/abhishekdev057/studio-face-photos/internal/index"
	"github.com/abhishekdev057/studio-face-photos/internal/ingest"
	"github.com/abhishekdev057/studio-face-photos/internal/models"
	"github.com/abhishekdev057/studio-face-photos/internal/observability"
	"github.com/abhishekdev057/studio-face-photos/internal/queue"
	"github.com/abhishekdev057/studio-face-photos/internal/resolver"
	"github.com/abhishekdev057/studio-face-photos/internal/storage"
	"github.com/abhishekdev057/studio-face-photos/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting SFP ingest worker",
		"extract_workers", cfg.Ingest.ExtractWorkers,
		"persist_workers", cfg.Ingest.PersistWorkers,
		"backend", cfg.Matching.Backend,
		"cpu_cores", runtime.NumCPU(),
	)

	// Initialize ONNX Runtime
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	extractor, err := vision.NewONNXExtractor(cfg.Vision, cfg.Matching.EmbeddingDim, slog.Default())
	if err != nil {
		slog.Error("init extractor", "error", err)
		os.Exit(1)
	}
	defer extractor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Resolver search backend: exact pgvector queries, or an approximate
	// in-memory index warmed from the store.
	var searcher resolver.Searcher = db
	var faceIndex *index.FaceIndex
	if cfg.Matching.Backend == "hnsw" {
		faceIndex = index.NewFaceIndex()
		if err := faceIndex.Warm(ctx, db); err != nil {
			slog.Error("warm face index", "error", err)
			os.Exit(1)
		}
		searcher = faceIndex
		slog.Info("approximate face index warmed")
	}

	res := resolver.New(searcher, cfg.Matching.Threshold, cfg.Matching.EmbeddingDim, slog.Default())
	gate := dedup.NewGate(db, dedup.NewCache(cfg.Redis), slog.Default())
	counters := ingest.NewCounters()

	pipeline := ingest.New(cfg.Ingest, db, minioStore, gate, res, extractor, counters, slog.Default())
	if faceIndex != nil {
		pipeline.SetIndexer(faceIndex)
	}
	pipeline.SetProgress(func(r ingest.Result) {
		pubCtx, pubCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pubCancel()
		if err := producer.PublishResult(pubCtx, r.CollectionID.String(), r); err != nil {
			slog.Warn("publish result", "photo_id", r.PhotoID, "error", err)
		}
	})
	pipeline.Start(ctx)

	// Create NATS consumer
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumePhotoTasks(ctx, "ingest-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var task models.PhotoTask
		if err := json.Unmarshal(msg.Data(), &task); err != nil {
			slog.Error("unmarshal photo task", "error", err)
			return nil // Don't retry on unmarshal errors
		}

		data, err := minioStore.GetObject(ctx, task.StorageRef)
		if err != nil {
			return fmt.Errorf("load photo %s: %w", task.PhotoID, err)
		}

		if err := pipeline.SubmitTask(ctx, ingest.Task{
			PhotoID:      task.PhotoID,
			CollectionID: task.CollectionID,
			StorageRef:   task.StorageRef,
			ContentHash:  task.ContentHash,
			Data:         data,
		}); err != nil {
			return fmt.Errorf("submit photo %s: %w", task.PhotoID, err)
		}
		return nil
	}, cfg.Ingest.PersistWorkers)
	if err != nil {
		slog.Error("start photo task consumer", "error", err)
		os.Exit(1)
	}

	// Evict deleted faces from the in-memory index; the pgvector backend
	// sees deletions through the store directly.
	if faceIndex != nil {
		err = consumer.ConsumeDeletions(ctx, "index-deletions", func(ctx context.Context, msg jetstream.Msg) error {
			var ev models.DeletionEvent
			if err := json.Unmarshal(msg.Data(), &ev); err != nil {
				slog.Error("unmarshal deletion event", "error", err)
				return nil
			}
			faceIndex.Apply(ev)
			return nil
		})
		if err != nil {
			slog.Error("start deletion event consumer", "error", err)
			os.Exit(1)
		}
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(counters.Snapshot())
		})
		slog.Info("worker metrics listening", "addr", ":8082")
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	pipeline.Stop()
	cancel()

	snap := counters.Snapshot()
	slog.Info("worker stopped",
		"processed", snap.Processed,
		"uploaded", snap.Uploaded,
		"skipped", snap.Skipped,
		"errored", snap.Errored,
	)
}

// getONNXLibPath returns the ONNX Runtime shared library path
// based on the operating system.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
