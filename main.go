package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/superlion8/brand-camera-sub000/conf"
	"github.com/superlion8/brand-camera-sub000/controller"
	"github.com/superlion8/brand-camera-sub000/dao/mysql"
	"github.com/superlion8/brand-camera-sub000/dao/store"
	"github.com/superlion8/brand-camera-sub000/logic"
	"github.com/superlion8/brand-camera-sub000/pkg/generate"
	"github.com/superlion8/brand-camera-sub000/pkg/queue"
	sse "github.com/superlion8/brand-camera-sub000/pkg/sse"
)

func main() {
	confPath := os.Getenv("CONF_PATH")
	if confPath == "" {
		confPath = "conf/config.yaml"
	}
	cfg, err := conf.Load(confPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化zap，包内统一用 zap.L()
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init zap: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := generate.CheckArkEnv(); err != nil {
		log.Printf("warning: %v, primary backend calls will fail", err)
	}
	if os.Getenv("GEMINI_API_KEY") == "" {
		log.Printf("warning: GEMINI_API_KEY not set, fallback backend calls will fail")
	}

	if err := mysql.Init(cfg.MySQL.DSN, cfg.MySQL.MaxOpenConns, cfg.MySQL.MaxIdleConns); err != nil {
		log.Fatalf("Failed to init MySQL: %v", err)
	}
	defer mysql.Close()

	if err := store.Init(cfg.Redis.Addr); err != nil {
		log.Fatalf("Failed to init Redis: %v", err)
	}

	// 初始化单例落库重试队列，消费者只补写 slot 结果行，不会重新触发生成
	if err := queue.InitPersistRetryQueue(cfg.RabbitMQ.DSN); err != nil {
		log.Fatalf("Failed to init persist retry queue: %v", err)
	}
	retryQueue, err := queue.GetPersistRetryQueue()
	if err != nil {
		log.Fatalf("Failed to get persist retry queue: %v", err)
	}
	defer retryQueue.Close()
	go func() {
		err := retryQueue.Consume(func(msg queue.PersistRetryMessage) error {
			_, err := mysql.AppendSlotResult(msg.TaskID, msg.SlotIndex, msg.ImageURL, msg.Backend)
			return err
		})
		if err != nil {
			log.Fatalf("persist retry consume failed: %v", err)
		}
	}()

	// 初始化并启动 SSE hub
	sseHub := sse.NewHub()
	sse.SetDefaultHub(sseHub)
	go sseHub.Run()

	// 装配编排器
	primary := generate.NewArkBackend(cfg.Generate.PrimaryModel, cfg.Generate.PrimarySize)
	fallback := generate.NewGeminiBackend(cfg.Generate.FallbackModel, cfg.PublicDir)
	executor := logic.NewExecutor(primary, fallback, cfg.Generate.BackendTimeout)

	records := logic.NewMySQLRecordStore()
	handles := logic.NewRedisHandleStore()
	progress := logic.NewRedisProgressStore()
	orch := logic.NewOrchestrator(logic.NewMySQLLedger(), records, executor, cfg.Generate.StaggerInterval).
		WithProgress(progress).
		WithHandles(handles).
		WithNotifier(logic.NewSSENotifier()).
		WithRetry(logic.NewAMQPRetryEnqueuer()).
		WithMirrorDir(cfg.PublicDir)
	resumeMgr := logic.NewResumptionManager(orch, records, handles).
		WithProgress(progress)
	h := controller.NewHandler(orch, resumeMgr).
		WithProgress(progress)

	r := gin.Default()

	r.GET("/events", sse.ServeSSE)

	r.POST("/tryon", h.SubmitTryOnTask)
	r.GET("/tryon/task/:task_id", h.GetTryOnTask)
	r.GET("/tryon/resume/:user_id", h.ResumeTryOnTask)
	r.GET("/tryon/results/:task_id", controller.GetTaskResults)

	r.GET("/history/:user_id", controller.GetUserHistory)

	r.POST("/quota/init/:user_id", controller.InitUserQuotaHandler)
	r.GET("/quota/:user_id", controller.GetUserQuotaInfo)
	r.POST("/quota/recharge", controller.AddCreditsHandler)

	// 生成图片的本地镜像走静态目录
	r.Static("/public/pic", cfg.PublicDir)

	if err := r.Run(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
