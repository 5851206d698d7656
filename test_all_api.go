package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	apiURL     = "http://localhost:8080"
	gatewayURL = "ws://localhost:8081/ws"
)

// 完整走一遍消息管道：注册 -> 登录 -> WebSocket 接入 -> 发消息 ->
// 实时收到 NEW_MESSAGE -> 拉历史触发已读 -> 实时收到 MESSAGES_READ。
// 需要 cmd/web 和 cmd/gateway 都已启动。
func main() {
	fmt.Println("==========================================")
	fmt.Println("    聊天管道完整测试")
	fmt.Println("==========================================")

	suffix := time.Now().Unix()
	aliceName := fmt.Sprintf("alice_%d", suffix)
	bobName := fmt.Sprintf("bob_%d", suffix)

	// 1. 注册
	fmt.Println("\n1. 注册用户...")
	aliceID := mustRegister(aliceName)
	bobID := mustRegister(bobName)
	fmt.Printf("   alice=%s\n   bob=%s\n", aliceID, bobID)

	// 2. 登录
	fmt.Println("\n2. 登录获取token...")
	aliceToken := mustLogin(aliceName)
	bobToken := mustLogin(bobName)

	// 3. 双方接入网关
	fmt.Println("\n3. 接入 WebSocket 网关...")
	aliceWS := mustDial(aliceID)
	defer aliceWS.Close()
	bobWS := mustDial(bobID)
	defer bobWS.Close()
	fmt.Println("   两条连接已建立")

	// 4. alice 发消息，bob 应实时收到 NEW_MESSAGE
	fmt.Println("\n4. alice -> bob 发送消息...")
	sent := mustPost(aliceToken, "/messages", map[string]any{
		"recipientId": bobID,
		"content":     "hi",
	})
	fmt.Printf("   已落库: id=%v status=%v\n", sent["id"], sent["status"])

	env := mustReadEnvelope(bobWS)
	if env["type"] != "NEW_MESSAGE" {
		fail("期望 NEW_MESSAGE，收到 %v", env["type"])
	}
	fmt.Printf("   bob 实时收到: type=%v\n", env["type"])

	// 5. bob 拉历史，消息置读，alice 应实时收到 MESSAGES_READ
	fmt.Println("\n5. bob 拉取会话历史...")
	conv := mustGet(bobToken, "/messages?with="+aliceID)
	fmt.Printf("   历史共 %d 条\n", len(conv))
	if len(conv) == 0 || conv[0]["status"] != "read" {
		fail("历史消息应已置为 read: %v", conv)
	}

	env = mustReadEnvelope(aliceWS)
	if env["type"] != "MESSAGES_READ" {
		fail("期望 MESSAGES_READ，收到 %v", env["type"])
	}
	fmt.Printf("   alice 实时收到回执: %v\n", env["payload"])

	fmt.Println("\n==========================================")
	fmt.Println("    全部通过")
	fmt.Println("==========================================")
}

func fail(format string, args ...any) {
	fmt.Printf("   失败: "+format+"\n", args...)
	panic("test failed")
}

func mustRegister(username string) string {
	resp := request("POST", apiURL+"/api/register", "", map[string]string{
		"username": username, "password": "testpass",
	})
	data, ok := resp["data"].(map[string]any)
	if !ok {
		fail("注册失败: %v", resp)
	}
	return data["id"].(string)
}

func mustLogin(username string) string {
	resp := request("POST", apiURL+"/api/login", "", map[string]string{
		"username": username, "password": "testpass",
	})
	data, ok := resp["data"].(map[string]any)
	if !ok {
		fail("登录失败: %v", resp)
	}
	return data["token"].(string)
}

func mustDial(userID string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(gatewayURL+"?userId="+userID, nil)
	if err != nil {
		fail("连接网关失败: %v", err)
	}
	return conn
}

func mustReadEnvelope(conn *websocket.Conn) map[string]any {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		fail("读取实时通知超时: %v", err)
	}
	var env map[string]any
	if err := json.Unmarshal(raw, &env); err != nil {
		fail("通知不是合法JSON: %s", raw)
	}
	return env
}

func mustPost(token, path string, body map[string]any) map[string]any {
	resp := request("POST", apiURL+path, token, body)
	data, ok := resp["data"].(map[string]any)
	if !ok {
		fail("请求 %s 失败: %v", path, resp)
	}
	return data
}

func mustGet(token, path string) []map[string]any {
	resp := request("GET", apiURL+path, token, nil)
	raw, ok := resp["data"].([]any)
	if !ok {
		fail("请求 %s 失败: %v", path, resp)
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func request(method, url, token string, body any) map[string]any {
	var buf io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		fail("构造请求失败: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fail("请求失败: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}
