package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"pingme/middleware"
	"pingme/models"
	"pingme/pkg/chat"
	"pingme/pkg/config"
	"pingme/routes"
)

func main() {
	// config init via package init()

	db, err := gorm.Open(mysql.Open(config.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	// auto-migrate
	if err := db.AutoMigrate(&models.User{}, &models.Vehicle{}, &models.ChatSession{}, &models.ChatMessage{}); err != nil {
		log.Fatalf("failed migrate: %v", err)
	}

	middleware.SetRateLimitConfig(
		time.Duration(config.RateLimitWindowSeconds)*time.Second,
		config.RateLimitCapacity,
	)
	middleware.SetDuplicateTTL(time.Duration(config.DuplicateWindowSeconds) * time.Second)

	svc := chat.NewService(db, time.Duration(config.ChatTTLMinutes)*time.Minute)
	go svc.StartSweeper(context.Background(), time.Duration(config.SweepIntervalSeconds)*time.Second)

	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000", "http://localhost:5173", "http://127.0.0.1:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, db, svc)
	r.Run(":" + config.Port)
}
