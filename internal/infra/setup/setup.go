// Package setup 负责基础设施连接的初始化（MySQL、Redis）和数据库迁移。
package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/Actiegen/collab-whiteboard-backend/internal/domain"
)

// InitDB 建立 MySQL 连接并配置连接池。
func InitDB(user, password, host, port, name string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, name)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("setup: connect mysql: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("setup: get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// MigrateDB 迁移全部数据模型。字符串列都带长度限制，AutoMigrate 即可。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("setup: cannot migrate with nil DB connection")
	}
	err := db.AutoMigrate(
		&domain.User{},
		&domain.Room{},
		&domain.ChatMessage{},
		&domain.WhiteboardAction{},
	)
	if err != nil {
		return fmt.Errorf("setup: auto-migrate: %w", err)
	}
	return nil
}

// InitRedis 建立 Redis 连接并验证连通性。
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxConnAge:   30 * time.Minute,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("setup: connect redis: %w", err)
	}
	return client, nil
}
