package main

import (
	"log"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/azureiya85/YouApp-Test/internal/config"
	"github.com/azureiya85/YouApp-Test/internal/gateway"
	"github.com/azureiya85/YouApp-Test/internal/infra/mq"
	"github.com/azureiya85/YouApp-Test/internal/logger"
)

func main() {
	cfg, err := config.Load("./config")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init()
	zap.L().Info("log init success")

	mqConn := mq.Init(&cfg.RabbitMQ)

	g := gateway.NewGateway()

	// 消费循环与连接处理并行，贯穿进程生命周期。
	// 起不来或中途断开都直接退出，交给进程管理器重启。
	go func() {
		if err := g.RunConsumer(mqConn); err != nil {
			log.Fatalf("consumer failed: %v", err)
		}
		log.Fatal("consumer channel closed")
	}()

	app := iris.New()
	app.Get("/ws", g.HandleWS)
	app.Get("/healthz", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "online": g.Registry().Count()})
	})

	addr := cfg.GatewayServer.Addr()
	zap.L().Info("websocket gateway listening", zap.String("addr", addr))
	if err := app.Run(iris.Addr(addr)); err != nil {
		log.Fatalf("failed to run gateway: %v", err)
	}
}
