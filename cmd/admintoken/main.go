// Command admintoken 为运维人员签发管理员会话 Token，用于调用 /api/v1 接口。
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/config"
	"github.com/mohdhaggo/Rodeo-Drive-PROD-CRM/pkg/jwt"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	email := flag.String("email", "", "管理员邮箱")
	adminID := flag.String("id", "", "管理员 ID（为空时自动生成）")
	ttl := flag.Duration("ttl", 0, "有效期（为 0 时使用 auth.access_token_ttl）")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "必须指定 -email")
		flag.Usage()
		os.Exit(2)
	}
	if *adminID == "" {
		*adminID = uuid.New().String()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	token, err := jwt.NewManager(&cfg.Auth).GenerateAccessToken(*adminID, *email, jwt.RoleAdmin, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "签发 Token 失败: %v\n", err)
		os.Exit(1)
	}

	expires := *ttl
	if expires <= 0 {
		expires = cfg.Auth.AccessTokenTTL
	}
	fmt.Fprintf(os.Stderr, "admin_id=%s expires_in=%s\n", *adminID, expires)
	fmt.Println(token)
}
