package sse

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServeSSE 处理 SSE（Server-Sent Events）连接。
// 通过查询参数 `userid` 指定订阅的用户 topic，例如 `/events?userid=12345`。
// slot 状态变化、首图生成、任务结算都会往该 topic 推送消息。
func ServeSSE(c *gin.Context) {
	topic := c.Query("userid")
	if topic == "" {
		c.String(http.StatusBadRequest, "missing topic")
		return
	}

	h := GetHub()
	if h == nil {
		c.String(http.StatusInternalServerError, "sse hub not initialized")
		return
	}

	// 设置 SSE 必要的响应头，确保浏览器或代理以流式方式处理
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// 每个连接专用的消息通道（缓冲 16），handler 负责取消订阅并关闭
	msgCh := make(chan []byte, 16)
	h.Subscribe(msgCh, topic)
	defer h.Unsubscribe(msgCh, topic)

	notify := c.Request.Context().Done()
	// 发送一个注释（: connected）作为初次握手 / 保活 ping
	fmt.Fprintf(c.Writer, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-notify:
			return
		case msg := <-msgCh:
			fmt.Fprintf(c.Writer, "data: %s\n\n", string(msg))
			log.Printf("Sent message to topic %s: %s", topic, string(msg))
			flusher.Flush()
		}
	}
}
