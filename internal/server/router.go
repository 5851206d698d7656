package server

import (
	"errors"
	"strings"
	"time"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/azureiya85/YouApp-Test/internal/auth"
	"github.com/azureiya85/YouApp-Test/internal/config"
	"github.com/azureiya85/YouApp-Test/internal/infra/mq"
	"github.com/azureiya85/YouApp-Test/internal/infra/redis"
	"github.com/azureiya85/YouApp-Test/internal/middleware"
	"github.com/azureiya85/YouApp-Test/internal/repository/mysql"
	"github.com/azureiya85/YouApp-Test/internal/service"
)

// RegisterRoutes 注册所有 HTTP 路由
func RegisterRoutes(app *iris.Application, cfg *config.Config) {
	// 初始化基础设施
	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)
	mqConn := mq.Init(&cfg.RabbitMQ)

	// 发布通道起不来只降级：API 照常工作，实时推送停摆
	var pub service.Publisher
	if p, err := mq.NewPublisher(mqConn); err != nil {
		zap.L().Error("mq publisher unavailable, live notifications disabled", zap.Error(err))
	} else {
		pub = p
	}

	// 仓储与服务
	userRepo := mysql.NewUserRepository(db)
	msgRepo := mysql.NewMessageRepository(db)

	userSvc := service.NewUserService(userRepo, &cfg.JWT)
	msgSvc := service.NewMessageService(msgRepo, pub)

	ring := auth.NewConsistentHashRing(cfg.Auth.Nodes, cfg.Auth.HashReplicas)
	tokenCache := auth.NewTokenCache(redisClient, ring, time.Duration(cfg.Auth.TokenCacheTTLSeconds)*time.Second)

	api := app.Party("/api")

	// 健康检查
	api.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{
			"code": 0,
			"msg":  "ok",
		})
	})

	// 投递指标
	api.Get("/stats", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "data": service.GetMonitor().Snapshot()})
	})

	// 用户注册/登录（简单示例）
	api.Post("/register", func(ctx iris.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		u, err := userSvc.Register(ctx.Request().Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, service.ErrInvalidInput) {
				ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
				return
			}
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": u})
	})

	api.Post("/login", func(ctx iris.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		token, err := userSvc.Login(ctx.Request().Context(), req.Username, req.Password)
		if err != nil {
			ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": iris.Map{"token": token}})
	})

	// 需要登录的核心接口
	authed := app.Party("/", func(ctx iris.Context) {
		token := strings.TrimPrefix(ctx.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "missing token"})
			return
		}
		claims, hit, err := tokenCache.Get(ctx.Request().Context(), token)
		if err != nil {
			// 缓存不可用时退回本地解析
			zap.L().Warn("token cache lookup failed", zap.Error(err))
			hit = false
		}
		if !hit {
			claims, err = auth.ParseToken(&cfg.JWT, token)
			if err != nil {
				ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "invalid token"})
				return
			}
			_ = tokenCache.Set(ctx.Request().Context(), token, claims)
		}
		ctx.Values().Set("user_id", claims.UserID)
		ctx.Values().Set("username", claims.Username)
		ctx.Next()
	})

	// 发送消息
	authed.Post("/messages", middleware.SendRateLimit(), func(ctx iris.Context) {
		senderID := ctx.Values().GetString("user_id")
		var in service.SendMessageInput
		if err := ctx.ReadJSON(&in); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		m, err := msgSvc.SendMessage(ctx.Request().Context(), senderID, in)
		if err != nil {
			respondServiceError(ctx, err)
			return
		}
		ctx.StatusCode(iris.StatusCreated)
		ctx.JSON(iris.Map{"code": 0, "msg": "Message sent successfully", "data": m})
	})

	// 拉取会话历史，同时把对方发来的未读置为已读
	authed.Get("/messages", func(ctx iris.Context) {
		userID := ctx.Values().GetString("user_id")
		otherID := ctx.URLParam("with")
		msgs, err := msgSvc.GetConversation(ctx.Request().Context(), userID, otherID)
		if err != nil {
			respondServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": msgs})
	})

	// 表情回应（再点一次取消）
	authed.Post("/messages/{id:uint64}/reactions", func(ctx iris.Context) {
		userID := ctx.Values().GetString("user_id")
		id, _ := ctx.Params().GetUint64("id")
		var req struct {
			Emoji string `json:"emoji"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		m, err := msgSvc.ToggleReaction(ctx.Request().Context(), userID, id, req.Emoji)
		if err != nil {
			respondServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": m})
	})

	// 收藏/取消收藏
	authed.Post("/messages/{id:uint64}/favorite", func(ctx iris.Context) {
		userID := ctx.Values().GetString("user_id")
		id, _ := ctx.Params().GetUint64("id")
		m, err := msgSvc.ToggleFavorite(ctx.Request().Context(), userID, id)
		if err != nil {
			respondServiceError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": m})
	})
}

// respondServiceError 把服务层错误映射为 HTTP 状态码
func respondServiceError(ctx iris.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		ctx.StopWithJSON(403, iris.Map{"code": 403, "msg": "无权操作这条消息"})
	case errors.Is(err, service.ErrNotFound):
		ctx.StopWithJSON(404, iris.Map{"code": 404, "msg": err.Error()})
	default:
		zap.L().Error("request failed", zap.String("path", ctx.Path()), zap.Error(err))
		ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": "internal error"})
	}
}
