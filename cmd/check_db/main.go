package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"collab-backend/internal/archive"
	"collab-backend/internal/cache"
	"collab-backend/internal/config"
	"collab-backend/internal/database"
	"collab-backend/internal/room"
	"collab-backend/internal/store"
)

// check_db 운영 점검용: Redis 세션 키와 아카이브 테이블 상태 출력
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := false

	rdb, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		fmt.Printf("❌ Redis %s unreachable: %v\n", cfg.Redis.Addr, err)
		failed = true
	} else {
		defer rdb.Close()
		fmt.Printf("✅ Connected to Redis %s\n", cfg.Redis.Addr)

		var sessions, rooms int
		iter := rdb.Client().Scan(ctx, 0, rdb.Key(store.SessionKey("*")), 200).Iterator()
		for iter.Next(ctx) {
			sessions++
		}
		if err := iter.Err(); err != nil {
			fmt.Printf("❌ Failed to scan session keys: %v\n", err)
			failed = true
		}
		iter = rdb.Client().Scan(ctx, 0, rdb.Key(room.RecordKey("*")), 200).Iterator()
		for iter.Next(ctx) {
			rooms++
		}
		fmt.Printf("📊 Session records: %d, room records: %d\n", sessions, rooms)
	}
	fmt.Println()

	if !cfg.Database.Enabled() {
		fmt.Println("ℹ️ Database not configured (DB_HOST empty), skipping archive check")
	} else {
		db, err := database.Connect(cfg.Database)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			failed = true
		} else {
			defer database.Close(db)
			fmt.Println("✅ Connected to database")

			var exists bool
			query := `
				SELECT EXISTS (
					SELECT 1
					FROM information_schema.tables
					WHERE table_name = ?
				)
			`
			if err := db.Raw(query, archive.Record{}.TableName()).Scan(&exists).Error; err != nil {
				fmt.Printf("❌ Failed to check archive table: %v\n", err)
				failed = true
			}
			fmt.Printf("📊 Archive table exists: %v\n", exists)

			if exists {
				var count int64
				db.WithContext(ctx).Model(&archive.Record{}).Count(&count)
				fmt.Printf("📊 Archived sessions: %d\n", count)
			}
		}
	}

	if failed {
		os.Exit(1)
	}
}
