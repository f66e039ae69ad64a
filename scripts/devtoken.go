// 本地调试用：按配置文件中的 JWT secret 签发令牌
//
// 用法: go run scripts/devtoken.go -user 1 -role student

package main

import (
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/util"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	JWT struct {
		Secret string `yaml:"secret"`
	} `yaml:"jwt"`
}

func main() {
	configFile := flag.String("config", "configs/config.yaml", "配置文件路径")
	userID := flag.Uint("user", 1, "用户ID")
	role := flag.String("role", string(model.Student), "角色: student | teacher | manager")
	hours := flag.Int("hours", 24, "有效期（小时）")
	flag.Parse()

	data, err := os.ReadFile(*configFile)
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}
	if cfg.JWT.Secret == "" {
		log.Fatal("jwt.secret 为空")
	}

	r := model.UserRole(*role)
	if !r.Valid() {
		log.Fatalf("未知角色: %s", *role)
	}

	token, err := util.GenerateJWT(uint(*userID), r, cfg.JWT.Secret, time.Duration(*hours)*time.Hour)
	if err != nil {
		log.Fatalf("签发令牌失败: %v", err)
	}
	fmt.Println(token)
}
