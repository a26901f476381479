package main

import (
	"context"
	"log"
	"os"

	"github.com/hibiken/asynq"

	"safety-eval-backend/internal/db"
	httpSrv "safety-eval-backend/internal/http"
	"safety-eval-backend/internal/migrations"
	"safety-eval-backend/internal/storage"
)

func main() {
	// Run embedded migrations (idempotent)
	migrations.Run()

	dbase := db.MustOpen()
	store := db.NewStore(dbase)
	s3c, err := storage.New(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	asq := asynq.NewClient(asynq.RedisClientOpt{Addr: os.Getenv("REDIS_ADDR")})
	srv := httpSrv.NewServer(store, s3c, asq)
	log.Println("api: listening on", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
