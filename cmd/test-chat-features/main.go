package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const baseURL = "http://localhost:8080"

// 端到端验证消息扩展功能：回复、表情回应、收藏。
// 需要 cmd/web 已经起好并连上 MySQL/RabbitMQ。
func main() {
	suffix := time.Now().Unix()
	alice := fmt.Sprintf("alice_%d", suffix)
	bob := fmt.Sprintf("bob_%d", suffix)

	fmt.Println("1. 注册并登录两个用户...")
	aliceID := register(alice, "pass123")
	bobID := register(bob, "pass123")
	aliceToken := login(alice, "pass123")
	bobToken := login(bob, "pass123")
	fmt.Printf("   alice=%s bob=%s\n", aliceID, bobID)

	fmt.Println("\n2. alice 给 bob 发第一条消息...")
	first := post(aliceToken, "/messages", map[string]any{
		"recipientId": bobID,
		"content":     "你好 bob",
	})
	fmt.Printf("   消息ID=%v 状态=%v\n", first["id"], first["status"])

	fmt.Println("\n3. bob 带 replyTo 回复...")
	reply := post(bobToken, "/messages", map[string]any{
		"recipientId": aliceID,
		"content":     "收到！",
		"replyTo":     first["id"],
	})
	fmt.Printf("   回复ID=%v replyTo=%v\n", reply["id"], reply["replyTo"])

	fmt.Println("\n4. bob 给第一条消息加表情...")
	r := post(bobToken, fmt.Sprintf("/messages/%v/reactions", first["id"]), map[string]any{"emoji": "👍"})
	fmt.Printf("   reactions=%v\n", r["reactions"])

	fmt.Println("\n5. 再点一次取消表情...")
	r = post(bobToken, fmt.Sprintf("/messages/%v/reactions", first["id"]), map[string]any{"emoji": "👍"})
	fmt.Printf("   reactions=%v (应为空)\n", r["reactions"])

	fmt.Println("\n6. alice 收藏自己的消息...")
	r = post(aliceToken, fmt.Sprintf("/messages/%v/favorite", first["id"]), nil)
	fmt.Printf("   isFavorited=%v\n", r["isFavorited"])

	fmt.Println("\n7. 发纯附件消息（空正文）...")
	r = post(aliceToken, "/messages", map[string]any{
		"recipientId": bobID,
		"attachment":  map[string]string{"type": "image", "url": "https://example.com/cat.jpg"},
	})
	fmt.Printf("   消息ID=%v attachment=%v\n", r["id"], r["attachment"])

	fmt.Println("\n全部通过")
}

func register(username, password string) string {
	resp, err := httpJSON("POST", baseURL+"/api/register", "", map[string]string{
		"username": username, "password": password,
	})
	if err != nil {
		log.Fatalf("注册失败: %v", err)
	}
	data, ok := resp["data"].(map[string]any)
	if !ok {
		log.Fatalf("注册返回异常: %v", resp)
	}
	return data["id"].(string)
}

func login(username, password string) string {
	resp, err := httpJSON("POST", baseURL+"/api/login", "", map[string]string{
		"username": username, "password": password,
	})
	if err != nil {
		log.Fatalf("登录失败: %v", err)
	}
	data := resp["data"].(map[string]any)
	return data["token"].(string)
}

func post(token, path string, body map[string]any) map[string]any {
	resp, err := httpJSON("POST", baseURL+path, token, body)
	if err != nil {
		log.Fatalf("请求 %s 失败: %v", path, err)
	}
	if data, ok := resp["data"].(map[string]any); ok {
		return data
	}
	log.Fatalf("请求 %s 返回异常: %v", path, resp)
	return nil
}

func httpJSON(method, url, token string, body any) (map[string]any, error) {
	var buf io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("status=%d body=%s", resp.StatusCode, raw)
	}
	return out, nil
}
