package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"clawlink/internal/app"
	"clawlink/internal/app/api"
	"clawlink/pkg/config"
)

func main() {
	// .env 可选，用于本地提供 ${ENV} 形式的凭证
	_ = godotenv.Load()

	cfg, err := config.LoadAPIConfig()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	ctx := context.Background()
	bootstrap, err := app.NewBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}

	application, err := api.NewApp(ctx, bootstrap)
	if err != nil {
		_ = bootstrap.Close()
		log.Fatalf("创建 API 应用失败: %v", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	go func() {
		if err := application.Run(addr); err != nil {
			log.Printf("API 服务异常退出: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Printf("关闭失败: %v", err)
	}
	log.Println("API 服务已关闭")
}
