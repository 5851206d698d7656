package main

import (
	"context"
	"fmt"
	"log"

	"github.com/azureiya85/YouApp-Test/internal/config"
	"github.com/azureiya85/YouApp-Test/internal/repository/mysql"
	"github.com/azureiya85/YouApp-Test/internal/service"
)

// 往数据库里塞两个演示账号，方便本地联调聊天流程
func main() {
	cfg, err := config.Load("./config")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db := mysql.Init(&cfg.MySQL)
	userRepo := mysql.NewUserRepository(db)
	userSvc := service.NewUserService(userRepo, &cfg.JWT)

	seeds := []struct {
		username string
		password string
	}{
		{"alice", "alice123"},
		{"bob", "bob123"},
	}

	ctx := context.Background()
	for _, s := range seeds {
		if _, err := userRepo.GetByUsername(ctx, s.username); err == nil {
			fmt.Printf("用户 %s 已存在，跳过\n", s.username)
			continue
		}
		u, err := userSvc.Register(ctx, s.username, s.password)
		if err != nil {
			log.Fatalf("failed to seed user %s: %v", s.username, err)
		}
		fmt.Printf("创建用户 %s (id=%s)\n", u.Username, u.ID)
	}
	fmt.Println("done")
}
