package main

import (
	"context"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"safety-eval-backend/internal/db"
	"safety-eval-backend/internal/storage"
	"safety-eval-backend/internal/worker"
)

func main() {
	store := db.NewStore(db.MustOpen())
	s3c, err := storage.New(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	if err := worker.Run(os.Getenv("REDIS_ADDR"), store, s3c); err != nil {
		log.Fatal(err)
	}
}
