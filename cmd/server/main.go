package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/config"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/api/handler"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/api/router"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/events"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/identity"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/notify"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/repository"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/internal/service"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/database"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/jwt"
	applogger "github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/logger"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认查找 ./config/config.yaml）")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("api_endpoint", cfg.Server.APIEndpoint),
	)

	// 3. 连接数据库并执行迁移
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if _, err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 后台任务与外部客户端共享的根上下文
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	collab := service.Collaborators{Events: events.Nop{}}

	// 4. 连接 Redis（可选：失败时创建锁与限流降级）
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，创建锁与限流将不可用", zap.Error(err))
		rdb = nil
	} else {
		collab.Locker = rdb
	}

	// 5. 身份目录（未启用视为没有管理员会话）
	if cfg.Identity.Enabled {
		dir, err := identity.NewCognito(rootCtx, &cfg.Identity, logger)
		if err != nil {
			logger.Fatal("身份目录初始化失败", zap.Error(err))
		}
		collab.Directory = dir
	} else {
		logger.Warn("身份目录未启用，新建用户将不会写入用户池")
	}

	// 6. 邮件发送
	if cfg.Mail.Enabled {
		collab.Mailer = notify.NewSMTP(&cfg.Mail, logger)
	} else {
		logger.Warn("邮件发送未启用，欢迎邮件与验证邮件将不会发出")
	}

	// 7. 生命周期事件
	if len(cfg.Events.Brokers) > 0 {
		collab.Events = events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, logger)
	}

	// 8. 依赖注入: Repository → Service → Handler
	jwtMgr := jwt.NewManager(&cfg.Auth)
	repo := repository.NewRepository(db)
	svc := service.NewService(repo, collab, service.ProvisioningOptions{
		LoginURL:       cfg.Mail.LoginURL,
		LockTTL:        cfg.Provisioning.LockTTL,
		ReconcileGrace: cfg.Provisioning.ReconcileGrace,
		ReconcileBatch: cfg.Provisioning.ReconcileBatch,
	}, logger)
	h := handler.NewHandler(svc)

	// 9. 后台对账
	if cfg.Provisioning.ReconcileInterval > 0 {
		go svc.Provisioning.Run(rootCtx, cfg.Provisioning.ReconcileInterval)
	}

	// 10. 初始化路由并启动 HTTP 服务器（优雅关闭）
	engine := router.Setup(cfg, h, jwtMgr, rdb, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 11. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	if err := collab.Events.Close(); err != nil {
		logger.Warn("关闭事件发布器失败", zap.Error(err))
	}

	_ = sqlDB.Close()

	if rdb != nil {
		_ = rdb.Close()
	}

	logger.Info("服务器已关闭")
}
